package upsert

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInteger
	kindFloat
	kindNumeric
	kindBool
	kindTimestamp
)

var (
	integerTypes = map[string]struct{}{
		"int": {}, "int2": {}, "int4": {}, "int8": {}, "integer": {}, "smallint": {}, "bigint": {},
		"tinyint": {}, "mediumint": {}, "serial": {}, "serial2": {}, "serial4": {}, "serial8": {},
		"smallserial": {}, "bigserial": {},
	}
	floatTypes = map[string]struct{}{
		"real": {}, "float": {}, "float4": {}, "float8": {}, "double": {}, "double precision": {},
	}
	numericTypes = map[string]struct{}{
		"numeric": {}, "decimal": {},
	}
	boolTypes = map[string]struct{}{
		"bool": {}, "boolean": {},
	}
	timestampTypes = map[string]struct{}{
		"date": {}, "datetime": {}, "timestamp": {}, "timestamptz": {},
		"timestamp without time zone": {}, "timestamp with time zone": {},
	}

	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"01/02/2006 15:04:05",
		"01/02/2006",
		"1/2/2006",
		"01-02-06",
		"2006/01/02",
	}
)

func kindOf(databaseType string) columnKind {
	t := strings.ToLower(strings.TrimSpace(databaseType))
	if i := strings.Index(t, "("); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch {
	case has(integerTypes, t):
		return kindInteger
	case has(floatTypes, t):
		return kindFloat
	case has(numericTypes, t):
		return kindNumeric
	case has(boolTypes, t):
		return kindBool
	case has(timestampTypes, t):
		return kindTimestamp
	default:
		return kindText
	}
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// coerce converts a parsed cell into the Go value the destination column
// expects. nil stays nil.
func coerce(value any, kind columnKind) (any, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	switch kind {
	case kindInteger:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return int64(f), nil
	case kindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case kindNumeric:
		if !numericRegex.MatchString(s) {
			return nil, fmt.Errorf("%q is not a decimal number", s)
		}
		return s, nil
	case kindBool:
		switch strings.ToLower(s) {
		case "y", "yes", "on":
			return true, nil
		case "n", "no", "off":
			return false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case kindTimestamp:
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%q is not a recognised date or timestamp", s)
	default:
		return s, nil
	}
}

// canonicalKey renders an identifier value so that a value read from the
// destination and the same value coerced from a file compare equal.
func canonicalKey(value any, kind columnKind) string {
	raw := rawString(value)
	switch kind {
	case kindInteger, kindNumeric:
		if r, ok := new(big.Rat).SetString(raw); ok {
			return r.RatString()
		}
	case kindFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return canonicalFloat(f)
		}
	}
	return raw
}

func rawString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(v))
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
