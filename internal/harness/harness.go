package harness

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/engine"
	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/platform"
	"github.com/roach88/medremind/internal/store"
	"github.com/roach88/medremind/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a real Engine with a frozen clock, an in-memory
// alert queue and sequential ids so every run is reproducible.
type Harness struct {
	store  *store.Store
	queue  *platform.MemoryQueue
	clock  *testutil.Clock
	meds   *medication.FileProvider
	engine *engine.Engine
	loc    *time.Location
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory store, queue and medication provider
// 2. Execute steps in order, tracing each report
// 3. Snapshot the final queue and store
// 4. Evaluate assertions against the snapshot
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		summary, err := h.execute(ctx, step)
		result.AddTrace(i, step.Action, summary, err)
	}

	state, err := h.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{State: state, Today: h.engine.Today(), Location: h.loc}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	loc, err := scenario.Location()
	if err != nil {
		return nil, err
	}
	start, err := scenario.Start()
	if err != nil {
		return nil, err
	}

	budget := engine.DefaultBudget()
	if b := scenario.Budget; b != nil {
		if b.Cap > 0 {
			budget.Cap = b.Cap
		}
		if b.Reserved > 0 {
			budget.Reserved = b.Reserved
		}
		if b.MinDays > 0 {
			budget.MinDays = b.MinDays
		}
		if b.MaxDays > 0 {
			budget.MaxDays = b.MaxDays
		}
	}

	clock := testutil.NewClock(start)
	queue := platform.NewMemoryQueue(
		platform.WithCap(budget.Cap),
		platform.WithClock(clock),
		platform.WithIDFunc(testutil.NewSequentialIDs("alert").Generate),
	)
	meds, err := medication.NewProvider(medication.Document{Medications: scenario.Medications}, model.Settings{})
	if err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}

	// Suppress engine logs in scenario runs
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithLocation(loc),
		engine.WithIDGenerator(testutil.NewSequentialIDs("map")),
		engine.WithLogger(logrus.NewEntry(logger)),
		engine.WithBudget(budget),
	}
	if c := scenario.Checkin; c != nil {
		days := c.Days
		if days <= 0 {
			days = engine.DefaultCheckinOptions.Days
		}
		opts = append(opts, engine.WithCheckins(meds, engine.CheckinOptions{Enabled: true, Time: c.Time, Days: days}))
	}

	return &Harness{
		store:  st,
		queue:  queue,
		clock:  clock,
		meds:   meds,
		engine: engine.New(st, queue, meds, opts...),
		loc:    loc,
	}, nil
}

// execute runs one step and renders the engine's report as a one-line summary.
func (h *Harness) execute(ctx context.Context, step Step) (string, error) {
	var date model.Date
	if step.Date != "" {
		d, err := ResolveDate(h.engine.Today(), step.Date)
		if err != nil {
			return "", err
		}
		date = d
	}

	switch step.Action {
	case ActionSchedule:
		days := step.Days
		if days <= 0 {
			target, _, err := h.engine.TargetDays(ctx)
			if err != nil {
				return "", err
			}
			days = target
		}
		r, err := h.engine.ScheduleForDays(ctx, days)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("days=%d %s", days, scheduleSummary(r)), nil

	case ActionRescheduleAll:
		r, err := h.engine.RescheduleAll(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cancelled=%d days=%d %s", r.Cancelled, r.Days, scheduleSummary(r.ScheduleReport)), nil

	case ActionTopUp:
		threshold := step.Threshold
		if threshold <= 0 {
			threshold = h.engine.Budget().TopUpThreshold
		}
		r, err := h.engine.TopUp(ctx, threshold)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("target_days=%d schedules=%d %s", r.TargetDays, r.Schedules, scheduleSummary(r.ScheduleReport)), nil

	case ActionRebalance:
		r, err := h.engine.Rebalance(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("target_days=%d trimmed=%d failed=%d topup_scheduled=%d",
			r.TargetDays, r.Trimmed, r.Failed, r.TopUp.Scheduled), nil

	case ActionReconcile:
		r, err := h.engine.Reconcile(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("expired=%d orphan_mappings=%d orphan_alerts=%d failed=%d",
			r.Expired, r.OrphanMappings, r.OrphanAlerts, r.Failed), nil

	case ActionFix:
		r, err := h.engine.FixScheduleInconsistencies(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed=%d invalid=[%s] failed=%d",
			r.Removed, strings.Join(r.InvalidScheduleIDs, " "), r.Failed), nil

	case ActionCancel:
		r := h.engine.CancelForDate(ctx, step.Medication, step.Schedule, date, kindOf(step.Kind))
		return "outcome=" + r.Outcome.String(), r.Err

	case ActionCancelAll:
		r, err := h.engine.CancelAllForMedication(ctx, step.Medication)
		if err != nil {
			return "", err
		}
		return outcomesSummary(r), nil

	case ActionDose:
		status := medication.DoseTaken
		if step.Status != "" {
			status = medication.DoseStatus(step.Status)
		}
		if err := h.meds.RecordDose(step.Medication, step.Schedule, date, status); err != nil {
			return "", err
		}
		r := h.engine.HandleDoseLogged(ctx, step.Medication, step.Schedule, date)
		return fmt.Sprintf("reminder=%s follow_up=%s dismissed=%d",
			r.Reminder.Outcome, r.FollowUp.Outcome, r.Dismissal.Dismissed), nil

	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return "", err
		}
		now := h.clock.Advance(d)
		return "now=" + now.In(h.loc).Format(nowLayout), nil

	case ActionDropAlert:
		return fmt.Sprintf("dropped=%t", h.queue.Drop(step.Alert)), nil

	case ActionDropMapping:
		m, err := h.store.GetMapping(ctx, step.Medication, step.Schedule, date, kindOf(step.Kind))
		if err != nil {
			return "", err
		}
		if m == nil {
			return "deleted=false", nil
		}
		if err := h.store.DeleteMapping(ctx, m.ID); err != nil {
			return "", err
		}
		return "deleted=true", nil

	case ActionCheckins:
		return scheduleSummary(h.engine.ScheduleCheckins(ctx)), nil

	case ActionCheckinStatus:
		h.meds.SetStatusLogged(date, step.Status != "unlogged")
		r := h.engine.OnCheckinStatusChanged(ctx, date)
		return fmt.Sprintf("dismissed=%d cancelled=%t topup_scheduled=%d",
			r.Dismissed, r.Cancelled, r.TopUp.Scheduled), nil

	case ActionUpsertMedication:
		if err := h.meds.Upsert(*step.Entry); err != nil {
			return "", err
		}
		return "upserted=" + step.Entry.ID, nil

	case ActionRemoveMedication:
		removed := h.meds.Remove(step.Medication)
		r, err := h.engine.CancelAllForMedication(ctx, step.Medication)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed=%t %s", removed, outcomesSummary(r)), nil
	}
	return "", fmt.Errorf("unknown action %q", step.Action)
}

// snapshot gathers outstanding alerts with their mappings, ordered by
// trigger time, plus every mapping whose alert is gone.
func (h *Harness) snapshot(ctx context.Context) (State, error) {
	scheduled, err := h.queue.Scheduled(ctx)
	if err != nil {
		return State{}, err
	}
	presented, err := h.queue.Presented(ctx)
	if err != nil {
		return State{}, err
	}
	mappings, err := h.store.All(ctx)
	if err != nil {
		return State{}, err
	}

	byAlert := make(map[string][]model.Mapping)
	for _, m := range mappings {
		byAlert[m.NotificationID] = append(byAlert[m.NotificationID], m)
	}

	var state State
	add := func(id string, c model.Content, trigger time.Time, shown bool) {
		ms := byAlert[id]
		delete(byAlert, id)
		sortMappings(ms)
		state.Alerts = append(state.Alerts, AlertState{
			ID:        id,
			Trigger:   trigger.In(h.loc),
			Title:     c.Title,
			Category:  c.Category,
			Level:     string(c.Level),
			Presented: shown,
			Mappings:  ms,
		})
	}
	for _, a := range scheduled {
		add(a.ID, a.Content, a.Trigger, false)
	}
	for _, a := range presented {
		add(a.ID, a.Content, a.DeliveredAt, true)
	}
	sort.SliceStable(state.Alerts, func(i, j int) bool {
		a, b := state.Alerts[i], state.Alerts[j]
		if !a.Trigger.Equal(b.Trigger) {
			return a.Trigger.Before(b.Trigger)
		}
		return a.Title < b.Title
	})

	for _, ms := range byAlert {
		state.Orphans = append(state.Orphans, ms...)
	}
	sortMappings(state.Orphans)
	return state, nil
}

func sortMappings(ms []model.Mapping) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.MedID() != b.MedID() {
			return a.MedID() < b.MedID()
		}
		if a.SchedID() != b.SchedID() {
			return a.SchedID() < b.SchedID()
		}
		return a.NotificationType < b.NotificationType
	})
}

func kindOf(kind string) model.NotificationType {
	if kind == "" {
		return model.TypeReminder
	}
	return model.NotificationType(kind)
}

func scheduleSummary(r engine.ScheduleReport) string {
	return fmt.Sprintf("scheduled=%d skipped=%d failed=%d", r.Scheduled, r.Skipped, r.Failed)
}

// outcomesSummary renders non-zero cancel outcomes in outcome order.
func outcomesSummary(r engine.CancelAllReport) string {
	outcomes := make([]engine.CancelOutcome, 0, len(r.Outcomes))
	for o, n := range r.Outcomes {
		if n > 0 {
			outcomes = append(outcomes, o)
		}
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	parts := make([]string, 0, len(outcomes)+1)
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", o, r.Outcomes[o]))
	}
	parts = append(parts, fmt.Sprintf("failed=%d", r.Failed))
	return strings.Join(parts, " ")
}
