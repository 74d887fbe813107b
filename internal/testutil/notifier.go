package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/platform"
)

// ErrInjected is returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault selects which notifier primitive misbehaves.
type Fault string

const (
	FaultSchedule  Fault = "schedule"
	FaultNoID      Fault = "no_id" // Schedule succeeds but returns ""
	FaultCancel    Fault = "cancel"
	FaultScheduled Fault = "scheduled"
	FaultPresented Fault = "presented"
	FaultDismiss   Fault = "dismiss"
)

// FaultyNotifier wraps a Notifier and fails chosen calls on demand.
//
// Thread-safety: safe for concurrent use if the wrapped notifier is.
type FaultyNotifier struct {
	inner platform.Notifier

	mu      sync.Mutex
	pending map[Fault]int
	calls   map[Fault]int
}

var _ platform.Notifier = (*FaultyNotifier)(nil)

// NewFaultyNotifier wraps inner with no faults armed.
func NewFaultyNotifier(inner platform.Notifier) *FaultyNotifier {
	return &FaultyNotifier{
		inner:   inner,
		pending: make(map[Fault]int),
		calls:   make(map[Fault]int),
	}
}

// Inject arms fault for the next times calls. A negative count fails forever.
func (f *FaultyNotifier) Inject(fault Fault, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[fault] = times
}

// Clear disarms every fault.
func (f *FaultyNotifier) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make(map[Fault]int)
}

// Calls returns how many times the primitive behind fault was invoked.
func (f *FaultyNotifier) Calls(fault Fault) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fault]
}

func (f *FaultyNotifier) trip(fault Fault) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[fault]++

	n := f.pending[fault]
	switch {
	case n < 0:
		return true
	case n > 0:
		f.pending[fault] = n - 1
		return true
	default:
		return false
	}
}

// Schedule implements platform.Notifier.
func (f *FaultyNotifier) Schedule(ctx context.Context, content model.Content, at time.Time) (string, error) {
	if f.trip(FaultSchedule) {
		return "", ErrInjected
	}
	f.mu.Lock()
	noID := f.pending[FaultNoID] != 0
	f.mu.Unlock()
	if noID && f.trip(FaultNoID) {
		return "", nil
	}
	return f.inner.Schedule(ctx, content, at)
}

// Cancel implements platform.Notifier.
func (f *FaultyNotifier) Cancel(ctx context.Context, id string) error {
	if f.trip(FaultCancel) {
		return ErrInjected
	}
	return f.inner.Cancel(ctx, id)
}

// Scheduled implements platform.Notifier.
func (f *FaultyNotifier) Scheduled(ctx context.Context) ([]model.ScheduledAlert, error) {
	if f.trip(FaultScheduled) {
		return nil, ErrInjected
	}
	return f.inner.Scheduled(ctx)
}

// Presented implements platform.Notifier.
func (f *FaultyNotifier) Presented(ctx context.Context) ([]model.PresentedAlert, error) {
	if f.trip(FaultPresented) {
		return nil, ErrInjected
	}
	return f.inner.Presented(ctx)
}

// Dismiss implements platform.Notifier.
func (f *FaultyNotifier) Dismiss(ctx context.Context, id string) error {
	if f.trip(FaultDismiss) {
		return ErrInjected
	}
	return f.inner.Dismiss(ctx, id)
}
