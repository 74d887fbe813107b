package worker

import (
	"fmt"
	"sync"

	"github.com/roach88/medremind/internal/model"
)

// EventType distinguishes the app events the worker reacts to.
type EventType int

const (
	// EventDoseLogged means a dose was logged or skipped in the app.
	EventDoseLogged EventType = iota + 1
	// EventCheckinChanged means a daily status was logged or cleared.
	EventCheckinChanged
	// EventMedicationRemoved means a medication was deleted or archived.
	EventMedicationRemoved
	// EventSchedulesChanged means schedules or settings were edited.
	EventSchedulesChanged
)

func (t EventType) String() string {
	switch t {
	case EventDoseLogged:
		return "dose_logged"
	case EventCheckinChanged:
		return "checkin_changed"
	case EventMedicationRemoved:
		return "medication_removed"
	case EventSchedulesChanged:
		return "schedules_changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one app-side change for the Run loop to apply.
type Event struct {
	Type         EventType
	MedicationID string
	ScheduleID   string
	Date         model.Date
}

// eventQueue is a thread-safe FIFO of events.
//
// Enqueue may be called from any goroutine; the Run loop dequeues. The
// signal channel lets the loop wait on events and ctx.Done() together.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
