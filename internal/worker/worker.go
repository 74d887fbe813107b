// Package worker keeps the alert horizon healthy in the background: it runs
// periodic maintenance and applies app events (doses logged, statuses
// changed, medications edited) through the engine, one at a time.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/engine"
	"github.com/roach88/medremind/internal/model"
)

// Engine is the subset of *engine.Engine the worker drives.
type Engine interface {
	Reconcile(ctx context.Context) (engine.ReconcileReport, error)
	TopUp(ctx context.Context, threshold int) (engine.TopUpReport, error)
	TopUpCheckins(ctx context.Context) engine.ScheduleReport
	Rebalance(ctx context.Context) (engine.RebalanceReport, error)
	FixScheduleInconsistencies(ctx context.Context) (engine.FixReport, error)
	CancelAllForMedication(ctx context.Context, medicationID string) (engine.CancelAllReport, error)
	HandleDoseLogged(ctx context.Context, medicationID, scheduleID string, date model.Date) engine.DoseReport
	OnCheckinStatusChanged(ctx context.Context, date model.Date) engine.CheckinChangeReport
}

// DefaultInterval is the maintenance period when none is configured.
const DefaultInterval = 15 * time.Minute

// Worker runs engine maintenance on a ticker and applies queued events.
//
// Run must be called from exactly one goroutine: maintenance and events are
// processed sequentially so no two engine mutations interleave.
type Worker struct {
	engine    Engine
	interval  time.Duration
	threshold int
	log       *logrus.Entry
	queue     *eventQueue
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval sets the maintenance period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithThreshold sets the top-up threshold passed to TopUp.
func WithThreshold(n int) Option {
	return func(w *Worker) {
		w.threshold = n
	}
}

// WithLogger sets the log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(w *Worker) {
		w.log = l
	}
}

// New creates a Worker around e.
func New(e Engine, opts ...Option) *Worker {
	w := &Worker{
		engine:    e,
		interval:  DefaultInterval,
		threshold: engine.DefaultBudget().TopUpThreshold,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		queue:     newEventQueue(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithField("component", "worker")
	return w
}

// Enqueue submits an event for the Run loop. Safe from any goroutine.
// Returns false once the worker has stopped.
func (w *Worker) Enqueue(ev Event) bool {
	return w.queue.Enqueue(ev)
}

// Stop closes the event queue; Run returns after draining it.
func (w *Worker) Stop() {
	w.queue.Close()
}

// Run performs maintenance immediately and then on every tick, applying
// queued events in between. It blocks until ctx is cancelled or Stop is
// called. Step failures are logged and never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("worker started")
	w.Maintain(ctx)

	for {
		if ev, ok := w.queue.TryDequeue(); ok {
			if err := w.process(ctx, ev); err != nil {
				w.log.WithFields(logrus.Fields{
					"event":         ev.Type.String(),
					"medication_id": ev.MedicationID,
					"schedule_id":   ev.ScheduleID,
					"date":          string(ev.Date),
				}).WithError(err).Error("event failed")
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.queue.Close()
			w.log.Info("worker stopped: context cancelled")
			return ctx.Err()
		case <-ticker.C:
			w.Maintain(ctx)
		case <-w.queue.Wait():
			// A closed signal channel fires immediately; stop once drained.
			if w.queue.Len() == 0 && w.queue.Closed() {
				w.log.Info("worker stopped")
				return nil
			}
		}
	}
}

// MaintenanceReport summarizes one Maintain pass.
type MaintenanceReport struct {
	Reconcile engine.ReconcileReport
	TopUp     engine.TopUpReport
	Checkins  engine.ScheduleReport
	Errors    []error
}

// Maintain runs reconcile, top-up and check-in top-up once. A failed step
// is recorded and the next step still runs.
func (w *Worker) Maintain(ctx context.Context) MaintenanceReport {
	var report MaintenanceReport
	var err error

	report.Reconcile, err = w.engine.Reconcile(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("reconcile: %w", err))
	}

	report.TopUp, err = w.engine.TopUp(ctx, w.threshold)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("top up: %w", err))
	}

	report.Checkins = w.engine.TopUpCheckins(ctx)

	entry := w.log.WithFields(logrus.Fields{
		"expired":           report.Reconcile.Expired,
		"orphan_mappings":   report.Reconcile.OrphanMappings,
		"orphan_alerts":     report.Reconcile.OrphanAlerts,
		"topped_up":         report.TopUp.Scheduled,
		"checkins":          report.Checkins.Scheduled,
		"failed_operations": report.Reconcile.Failed + report.TopUp.Failed + report.Checkins.Failed,
	})
	for _, err := range report.Errors {
		entry.WithError(err).Error("maintenance step failed")
	}
	entry.Info("maintenance complete")
	return report
}

func (w *Worker) process(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventDoseLogged:
		report := w.engine.HandleDoseLogged(ctx, ev.MedicationID, ev.ScheduleID, ev.Date)
		if report.FollowUp.Err != nil {
			return report.FollowUp.Err
		}
		return report.Reminder.Err

	case EventCheckinChanged:
		report := w.engine.OnCheckinStatusChanged(ctx, ev.Date)
		if len(report.Errors) > 0 {
			return report.Errors[0]
		}
		return nil

	case EventMedicationRemoved:
		report, err := w.engine.CancelAllForMedication(ctx, ev.MedicationID)
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d cancellations failed: %w", report.Failed, report.Errors[0])
		}
		return nil

	case EventSchedulesChanged:
		if _, err := w.engine.FixScheduleInconsistencies(ctx); err != nil {
			return err
		}
		_, err := w.engine.Rebalance(ctx)
		return err

	default:
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
}
