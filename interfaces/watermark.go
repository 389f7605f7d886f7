package interfaces

import (
	"context"
	"time"
)

// WatermarkStore persists the timestamp of the newest processed item. Read
// returns nil when no usable value is stored.
type WatermarkStore interface {
	Read(ctx context.Context) (*time.Time, error)
	Write(ctx context.Context, ts time.Time) error
	Reset(ctx context.Context) error
}
