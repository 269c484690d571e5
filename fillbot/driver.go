package fillbot

import (
	"context"
	"time"
)

// Driver is the browser surface the filler consumes. Refs are opaque handles
// returned by ListFields. Interaction errors wrap ErrElementInteraction.
type Driver interface {
	ListFields(ctx context.Context) ([]FieldMeta, error)
	SetText(ctx context.Context, ref, value string) error
	SelectOption(ctx context.Context, ref, optionLabel string) error
	Check(ctx context.Context, ref string, on bool) error
	WaitVisible(ctx context.Context, ref string, timeout time.Duration) bool
}
