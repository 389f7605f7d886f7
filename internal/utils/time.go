package utils

import "time"

// WatermarkLayout is the on-disk watermark format, YYYY-MM-DD_HH-MM-SS.
const WatermarkLayout = "2006-01-02_15-04-05"

// TruncateToSecond drops sub-second precision and moves t to UTC, the
// resolution at which item timestamps are compared to the watermark.
func TruncateToSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// IsAfterWatermark reports whether an item timestamp is strictly newer than
// the watermark at second resolution. A nil watermark admits everything.
func IsAfterWatermark(ts time.Time, watermark *time.Time) bool {
	if watermark == nil {
		return true
	}
	return TruncateToSecond(ts).After(TruncateToSecond(*watermark))
}

func FormatWatermark(t time.Time) string {
	return TruncateToSecond(t).Format(WatermarkLayout)
}

func ParseWatermark(s string) (time.Time, error) {
	return time.ParseInLocation(WatermarkLayout, s, time.UTC)
}
