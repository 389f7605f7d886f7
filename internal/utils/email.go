package utils

import (
	"regexp"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

var senderAddressRegex = regexp.MustCompile(`[\w.+-]+@[\w.-]+`)

// ExtractSenderAddress pulls the first address out of a From value such as
// `"Ops Team" <Ops@Example.com>` and returns it lower-cased. The boolean is
// false when no syntactically valid address was found.
func ExtractSenderAddress(sender string) (string, bool) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", false
	}

	candidate := sender
	if start, end := strings.LastIndex(sender, "<"), strings.LastIndex(sender, ">"); start >= 0 && end > start {
		candidate = sender[start+1 : end]
	}

	match := senderAddressRegex.FindString(candidate)
	if match == "" {
		return "", false
	}

	validation := mailvalidate.ValidateEmailSyntax(match)
	if !validation.IsValid {
		return "", false
	}
	return strings.ToLower(validation.CleanEmail), true
}

// SenderMatches is a case-insensitive exact comparison on the extracted
// address. An empty filter matches every sender.
func SenderMatches(address, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	return strings.EqualFold(address, filter)
}

// SubjectMatches is a case-insensitive substring test. An empty filter
// matches every subject.
func SubjectMatches(subject, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(FoldCase(subject), FoldCase(filter))
}
