package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/testutil"
)

func TestBudget_CalculateDays(t *testing.T) {
	b := DefaultBudget()

	tests := []struct {
		slots int
		want  int
	}{
		{0, 0},
		{-1, 0},
		{1, 14},
		{3, 14},
		{5, 10},
		{18, 3},
		{30, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.CalculateDays(tt.slots), "slots=%d", tt.slots)
	}
}

func TestBudget_CalculateDaysBoundedAndMonotonic(t *testing.T) {
	b := DefaultBudget()
	prev := b.CalculateDays(1)
	for slots := 1; slots <= 100; slots++ {
		days := b.CalculateDays(slots)
		assert.GreaterOrEqual(t, days, b.MinDays)
		assert.LessOrEqual(t, days, b.MaxDays)
		assert.LessOrEqual(t, days, prev, "more slots never means more days")
		prev = days
	}
}

func TestSlotsPerDay(t *testing.T) {
	f := newFixture(t,
		testutil.WithFollowUp(testutil.Med("med-a", "Aspirin", "sched-a@08:00"), 15*time.Minute),
		testutil.Med("med-b", "Iron", "sched-b@08:00", "sched-b2@20:00"),
		testutil.Med("med-c", "Zinc", "sched-c@13:00"),
	)

	slots, err := f.engine.SlotsPerDay(f.ctx, f.pairs())
	require.NoError(t, err)
	assert.Equal(t, 4, slots, "08:00 reminder and follow-up, 13:00, 20:00")
}

func TestTopUp_ExtendsShortSchedules(t *testing.T) {
	f := newFixture(t,
		testutil.WithFollowUp(testutil.Med("med-a", "Aspirin", "sched-a@08:00"), 30*time.Minute),
	)
	f.engine.budget = Budget{Cap: 26, Reserved: 10, MinDays: 3, MaxDays: 14, TopUpThreshold: 3}

	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)

	report, err := f.engine.TopUp(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, report.TargetDays)
	assert.Equal(t, 1, report.Schedules)
	assert.Equal(t, 14, report.Scheduled, "7 days of reminder and follow-up")
	assert.Zero(t, report.Failed)

	count, err := f.store.CountFutureBySchedule(f.ctx, "sched-a", today, model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	last, err := f.store.MaxDateBySchedule(f.ctx, "sched-a", model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, today.AddDays(7), last)
}

func TestTopUp_NoopAboveThreshold(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 3)
	require.NoError(t, err)

	report, err := f.engine.TopUp(f.ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, report.Schedules)
	assert.Zero(t, report.Scheduled)
	assert.Len(t, f.scheduled(), 3)
}

func TestTopUp_KeepsGroupsTogether(t *testing.T) {
	f := newFixture(t,
		testutil.Med("med-a", "Aspirin", "sched-a@08:00"),
		testutil.Med("med-b", "Iron", "sched-b@08:00"),
	)
	f.engine.budget = Budget{Cap: 14, Reserved: 10, MinDays: 3, MaxDays: 14, TopUpThreshold: 3}

	report, err := f.engine.TopUp(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, report.TargetDays)
	assert.Equal(t, 2, report.Schedules)
	assert.Equal(t, 4, report.Scheduled, "one grouped alert per day")

	for _, a := range f.scheduled() {
		assert.Equal(t, "Time for 2 medications", a.Content.Title)
	}
}

func TestTopUp_StartsTodayAfterStaleMappings(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	in := reminderInput("med-a", "sched-a")
	in.Date = today.AddDays(-2)
	_, err := f.engine.ScheduleAtomic(f.ctx, reminderFor("Aspirin"), at(today, "08:00"), in)
	require.NoError(t, err)

	report, err := f.engine.TopUp(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 14, report.Scheduled)
	assert.NotNil(t, f.mapping("med-a", "sched-a", today, model.TypeReminder))
}

func TestRebalance_TrimsFurthestDays(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 20)
	require.NoError(t, err)

	report, err := f.engine.Rebalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, report.TargetDays)
	assert.Equal(t, 6, report.Trimmed)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.TopUp.Scheduled)

	last, err := f.store.MaxDateBySchedule(f.ctx, "sched-a", model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, today.AddDays(13), last)
	assert.Len(t, f.scheduled(), 14)
}

func TestRebalance_BackfillsAfterShrink(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	f.engine.budget = Budget{Cap: 15, Reserved: 10, MinDays: 3, MaxDays: 14, TopUpThreshold: 3}
	_, err := f.engine.ScheduleForDays(f.ctx, 5)
	require.NoError(t, err)

	require.NoError(t, f.meds.Upsert(testutil.Med("med-b", "Iron", "sched-b@12:00")))

	report, err := f.engine.Rebalance(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TargetDays, "two slots per day under a budget of five")
	assert.Equal(t, 2, report.Trimmed)
	assert.Equal(t, 1, report.TopUp.Schedules)
	assert.Equal(t, 3, report.TopUp.Scheduled)
	assert.Len(t, f.scheduled(), 6)
}
