package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/engine"
	"github.com/roach88/medremind/internal/model"
)

// recordingEngine records calls in order and fails the steps named in fail.
type recordingEngine struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingEngine) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	if r.fail[name] {
		return errors.New(name + " failed")
	}
	return nil
}

func (r *recordingEngine) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingEngine) Reconcile(context.Context) (engine.ReconcileReport, error) {
	return engine.ReconcileReport{}, r.record("reconcile")
}

func (r *recordingEngine) TopUp(_ context.Context, threshold int) (engine.TopUpReport, error) {
	return engine.TopUpReport{TargetDays: threshold}, r.record("top_up")
}

func (r *recordingEngine) TopUpCheckins(context.Context) engine.ScheduleReport {
	r.record("top_up_checkins")
	return engine.ScheduleReport{}
}

func (r *recordingEngine) Rebalance(context.Context) (engine.RebalanceReport, error) {
	return engine.RebalanceReport{}, r.record("rebalance")
}

func (r *recordingEngine) FixScheduleInconsistencies(context.Context) (engine.FixReport, error) {
	return engine.FixReport{}, r.record("fix")
}

func (r *recordingEngine) CancelAllForMedication(_ context.Context, id string) (engine.CancelAllReport, error) {
	return engine.CancelAllReport{}, r.record("cancel_all:" + id)
}

func (r *recordingEngine) HandleDoseLogged(_ context.Context, med, sched string, date model.Date) engine.DoseReport {
	err := r.record("dose:" + med + "/" + sched + "/" + string(date))
	return engine.DoseReport{FollowUp: engine.CancelResult{Err: err}}
}

func (r *recordingEngine) OnCheckinStatusChanged(_ context.Context, date model.Date) engine.CheckinChangeReport {
	var report engine.CheckinChangeReport
	if err := r.record("checkin:" + string(date)); err != nil {
		report.Errors = append(report.Errors, err)
	}
	return report
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestNew_Defaults(t *testing.T) {
	w := New(&recordingEngine{})
	assert.Equal(t, DefaultInterval, w.interval)
	assert.Equal(t, 3, w.threshold)

	w = New(&recordingEngine{}, WithInterval(-time.Second), WithThreshold(5))
	assert.Equal(t, DefaultInterval, w.interval, "non-positive interval ignored")
	assert.Equal(t, 5, w.threshold)
}

func TestMaintain_RunsEveryStep(t *testing.T) {
	e := &recordingEngine{}
	w := New(e, WithThreshold(4), WithLogger(quietLogger()))

	report := w.Maintain(context.Background())
	assert.Empty(t, report.Errors)
	assert.Equal(t, 4, report.TopUp.TargetDays)
	assert.Equal(t, []string{"reconcile", "top_up", "top_up_checkins"}, e.Calls())
}

func TestMaintain_ContinuesAfterFailure(t *testing.T) {
	e := &recordingEngine{fail: map[string]bool{"reconcile": true}}
	w := New(e, WithLogger(quietLogger()))

	report := w.Maintain(context.Background())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "reconcile")
	assert.Equal(t, []string{"reconcile", "top_up", "top_up_checkins"}, e.Calls())
}

func TestRun_ProcessesEventsThenStops(t *testing.T) {
	e := &recordingEngine{fail: map[string]bool{"cancel_all:med-x": true}}
	w := New(e, WithInterval(time.Hour), WithLogger(quietLogger()))

	require.True(t, w.Enqueue(Event{Type: EventDoseLogged, MedicationID: "med-a", ScheduleID: "sched-a", Date: "2026-10-16"}))
	require.True(t, w.Enqueue(Event{Type: EventMedicationRemoved, MedicationID: "med-x"}))
	require.True(t, w.Enqueue(Event{Type: EventCheckinChanged, Date: "2026-10-16"}))
	require.True(t, w.Enqueue(Event{Type: EventSchedulesChanged}))
	require.True(t, w.Enqueue(Event{Type: EventType(42)}))
	w.Stop()

	err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"reconcile", "top_up", "top_up_checkins",
		"dose:med-a/sched-a/2026-10-16",
		"cancel_all:med-x",
		"checkin:2026-10-16",
		"fix", "rebalance",
	}, e.Calls(), "failed and unknown events do not stop the loop")
	assert.False(t, w.Enqueue(Event{Type: EventDoseLogged}))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	e := &recordingEngine{}
	w := New(e, WithInterval(time.Hour), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(e.Calls()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_TicksMaintenance(t *testing.T) {
	e := &recordingEngine{}
	w := New(e, WithInterval(10*time.Millisecond), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		n := 0
		for _, c := range e.Calls() {
			if c == "reconcile" {
				n++
			}
		}
		return n >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
