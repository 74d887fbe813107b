package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/medremind/internal/model"
)

// ErrQueueFull is returned when scheduling would exceed the queue cap.
var ErrQueueFull = errors.New("notification queue full")

// MemoryQueue is an in-process notification queue with a hard cap.
//
// Alerts whose trigger has passed move from the scheduled list to the
// presented list the next time either list is read, mirroring how the OS
// delivers a one-time alert and then forgets its request.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryQueue struct {
	mu        sync.Mutex
	cap       int
	clock     Clock
	newID     func() string
	scheduled []model.ScheduledAlert
	presented []model.PresentedAlert
}

// Option configures a MemoryQueue.
type Option func(*MemoryQueue)

// WithCap overrides DefaultCap.
func WithCap(n int) Option {
	return func(q *MemoryQueue) {
		q.cap = n
	}
}

// WithClock sets the clock used to decide delivery.
func WithClock(c Clock) Option {
	return func(q *MemoryQueue) {
		q.clock = c
	}
}

// WithIDFunc sets the alert identifier source. Defaults to random UUIDs.
func WithIDFunc(f func() string) Option {
	return func(q *MemoryQueue) {
		q.newID = f
	}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(opts ...Option) *MemoryQueue {
	q := &MemoryQueue{
		cap:   DefaultCap,
		clock: SystemClock{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule implements Notifier.
func (q *MemoryQueue) Schedule(ctx context.Context, content model.Content, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.deliverDueLocked()
	if len(q.scheduled) >= q.cap {
		return "", fmt.Errorf("schedule %q: %w (cap %d)", content.Title, ErrQueueFull, q.cap)
	}

	id := q.newID()
	q.scheduled = append(q.scheduled, model.ScheduledAlert{
		ID:      id,
		Content: content,
		Trigger: at,
	})
	return id, nil
}

// Cancel implements Notifier.
func (q *MemoryQueue) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeScheduledLocked(id)
	return nil
}

// Scheduled implements Notifier. Alerts are ordered by trigger time.
func (q *MemoryQueue) Scheduled(ctx context.Context) ([]model.ScheduledAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.deliverDueLocked()
	out := make([]model.ScheduledAlert, len(q.scheduled))
	copy(out, q.scheduled)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Trigger.Before(out[j].Trigger)
	})
	return out, nil
}

// Presented implements Notifier.
func (q *MemoryQueue) Presented(ctx context.Context) ([]model.PresentedAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.deliverDueLocked()
	out := make([]model.PresentedAlert, len(q.presented))
	copy(out, q.presented)
	return out, nil
}

// Dismiss implements Notifier.
func (q *MemoryQueue) Dismiss(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, a := range q.presented {
		if a.ID == id {
			q.presented = append(q.presented[:i], q.presented[i+1:]...)
			return nil
		}
	}
	return nil
}

// Drop removes an alert from both lists without going through Cancel or
// Dismiss. It simulates the OS losing a request, e.g. after a reinstall.
func (q *MemoryQueue) Drop(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.removeScheduledLocked(id) {
		return true
	}
	for i, a := range q.presented {
		if a.ID == id {
			q.presented = append(q.presented[:i], q.presented[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of pending alerts.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.scheduled)
}

// Cap returns the configured queue cap.
func (q *MemoryQueue) Cap() int {
	return q.cap
}

func (q *MemoryQueue) removeScheduledLocked(id string) bool {
	for i, a := range q.scheduled {
		if a.ID == id {
			q.scheduled = append(q.scheduled[:i], q.scheduled[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MemoryQueue) deliverDueLocked() {
	now := q.clock.Now()
	kept := q.scheduled[:0]
	for _, a := range q.scheduled {
		if a.Trigger.After(now) {
			kept = append(kept, a)
			continue
		}
		q.presented = append(q.presented, model.PresentedAlert{
			ID:          a.ID,
			Content:     a.Content,
			DeliveredAt: a.Trigger,
		})
	}
	q.scheduled = kept
}

// snapshot is the serialisable queue state.
type snapshot struct {
	Scheduled []model.ScheduledAlert `yaml:"scheduled"`
	Presented []model.PresentedAlert `yaml:"presented"`
}

func (q *MemoryQueue) snapshot() snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := snapshot{
		Scheduled: make([]model.ScheduledAlert, len(q.scheduled)),
		Presented: make([]model.PresentedAlert, len(q.presented)),
	}
	copy(s.Scheduled, q.scheduled)
	copy(s.Presented, q.presented)
	return s
}

func (q *MemoryQueue) restore(s snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.scheduled = append([]model.ScheduledAlert(nil), s.Scheduled...)
	q.presented = append([]model.PresentedAlert(nil), s.Presented...)
}
