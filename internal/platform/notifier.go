package platform

import (
	"context"
	"time"

	"github.com/roach88/medremind/internal/model"
)

// DefaultCap is the platform limit on outstanding scheduled alerts.
const DefaultCap = 64

// Notifier is the set of OS notification primitives the engine consumes.
type Notifier interface {
	// Schedule registers a one-time alert firing at "at" and returns its OS
	// identifier. An empty identifier with a nil error means the OS declined.
	Schedule(ctx context.Context, content model.Content, at time.Time) (string, error)

	// Cancel removes a pending alert. Cancelling an unknown id is not an error.
	Cancel(ctx context.Context, id string) error

	// Scheduled lists every pending alert.
	Scheduled(ctx context.Context) ([]model.ScheduledAlert, error)

	// Presented lists every alert currently shown in the tray.
	Presented(ctx context.Context) ([]model.PresentedAlert, error)

	// Dismiss removes a shown alert from the tray.
	Dismiss(ctx context.Context, id string) error
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
