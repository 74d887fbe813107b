package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/testutil"
)

func TestReconcile_DeletesOrphanMappings(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 2)
	require.NoError(t, err)
	require.True(t, f.queue.Drop("alert-1"))

	report, err := f.engine.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanMappings)
	assert.Zero(t, report.OrphanAlerts)

	assert.Nil(t, f.mapping("med-a", "sched-a", today, model.TypeReminder))
	assert.NotNil(t, f.mapping("med-a", "sched-a", today.AddDays(1), model.TypeReminder))
}

func TestReconcile_CancelsUnmappedMedicationAlerts(t *testing.T) {
	f := newFixture(t)
	_, err := f.queue.Schedule(f.ctx, reminderFor("Aspirin"), at(today, "08:00"))
	require.NoError(t, err)
	other := model.Content{Title: "Water the plants", Category: "CHORE"}
	_, err = f.queue.Schedule(f.ctx, other, at(today, "09:00"))
	require.NoError(t, err)

	report, err := f.engine.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanAlerts)

	alerts := f.scheduled()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Water the plants", alerts[0].Content.Title)
}

func TestReconcile_PresentedAlertsAreLive(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.clock.Set(at(today, "08:30"))

	report, err := f.engine.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.OrphanMappings)
	assert.Len(t, f.mappings(), 1)
}

func TestReconcile_SweepsExpiredAndIsIdempotent(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 2)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)

	first, err := f.engine.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Expired)
	assert.Zero(t, first.OrphanMappings)
	assert.Zero(t, first.OrphanAlerts)

	second, err := f.engine.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, second)
	assert.Len(t, f.mappings(), 1)
}

func TestReconcile_ListFailureAborts(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.notifier.Inject(testutil.FaultScheduled, 1)

	_, err = f.engine.Reconcile(f.ctx)
	require.Error(t, err)
	assert.True(t, IsOSError(err))
	assert.Len(t, f.mappings(), 1, "nothing deleted on a partial view")
}

func TestFixScheduleInconsistencies(t *testing.T) {
	f := newFixture(t,
		testutil.Med("med-a", "Aspirin", "sched-a@08:00"),
		testutil.Med("med-b", "Iron", "sched-b@08:00"),
		testutil.Med("med-c", "Zinc", "sched-c@12:00"),
	)
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	require.True(t, f.meds.Remove("med-b"))

	report, err := f.engine.FixScheduleInconsistencies(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []string{"sched-b"}, report.InvalidScheduleIDs)
	assert.Zero(t, report.Failed)

	alerts := f.scheduled()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Time for Zinc", alerts[0].Content.Title)
	assert.Nil(t, f.mapping("med-a", "sched-a", today, model.TypeReminder))
}

func TestRescheduleAll(t *testing.T) {
	f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.engine.ScheduleCheckins(f.ctx)

	report, err := f.engine.RescheduleAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, 14, report.Days)
	assert.Equal(t, 14, report.Scheduled)

	checkins, err := f.store.CountFutureCheckins(f.ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 3, checkins, "check-ins untouched")
	assert.Len(t, f.scheduled(), 17)
}
