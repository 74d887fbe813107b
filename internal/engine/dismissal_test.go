package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/testutil"
)

func dbMapping(med, sched, nid string, grouped bool) model.Mapping {
	m := model.Mapping{
		ID:               "map-" + med,
		MedicationID:     model.Ptr(med),
		ScheduleID:       model.Ptr(sched),
		Date:             today,
		NotificationID:   nid,
		NotificationType: model.TypeReminder,
		IsGrouped:        grouped,
		SourceType:       model.SourceMedication,
	}
	if grouped {
		m.GroupKey = model.Ptr("08:00")
	}
	return m
}

func presentedAlert(id, title, category string, payload model.Payload, delivered time.Time) model.PresentedAlert {
	return model.PresentedAlert{
		ID:          id,
		Content:     model.Content{Title: title, Category: category, Payload: payload},
		DeliveredAt: delivered,
	}
}

func TestDecideDismissal(t *testing.T) {
	now := at(today, "08:10")
	delivered := at(today, "08:00")
	medPayload := model.Payload{Type: model.TypeReminder, Source: model.SourceMedication, MedicationIDs: []string{"med-a"}}
	bare := model.Payload{Source: model.SourceMedication}
	trigger := at(today, "08:07")

	tests := []struct {
		name       string
		in         DismissalInput
		dismiss    bool
		strategy   Strategy
		confidence int
		reason     string
	}{
		{
			name: "check-in never dismissed",
			in: DismissalInput{
				Alert: presentedAlert("n1", "Daily check-in", model.CategoryDailyCheckin,
					model.Payload{Type: model.TypeDailyCheckin}, delivered),
			},
			strategy: StrategyNone,
			reason:   "daily check-in",
		},
		{
			name: "database id match",
			in: DismissalInput{
				Alert:         presentedAlert("n1", "Time for Aspirin", model.CategoryReminder, medPayload, delivered),
				AlertMappings: []model.Mapping{dbMapping("med-a", "sched-a", "n1", false)},
			},
			dismiss:    true,
			strategy:   StrategyDatabaseID,
			confidence: ConfidenceDatabaseID,
		},
		{
			name: "grouped alert waits for other members",
			in: DismissalInput{
				Alert: presentedAlert("n1", "Time for 2 medications", model.CategoryGroupedReminder, bare, delivered),
				AlertMappings: []model.Mapping{
					dbMapping("med-a", "sched-a", "n1", true),
					dbMapping("med-b", "sched-b", "n1", true),
				},
				Unlogged: []string{"Iron"},
			},
			strategy:   StrategyDatabaseID,
			confidence: ConfidenceDatabaseID,
			reason:     "not all medications logged: Iron",
		},
		{
			name: "grouped alert with every member logged",
			in: DismissalInput{
				Alert: presentedAlert("n1", "Time for 2 medications", model.CategoryGroupedReminder, bare, delivered),
				AlertMappings: []model.Mapping{
					dbMapping("med-a", "sched-a", "n1", true),
					dbMapping("med-b", "sched-b", "n1", true),
				},
			},
			dismiss:    true,
			strategy:   StrategyDatabaseID,
			confidence: ConfidenceDatabaseID,
		},
		{
			name: "alert known to belong to another medication",
			in: DismissalInput{
				Alert:         presentedAlert("n1", "Time for Aspirin", model.CategoryReminder, bare, delivered),
				AlertMappings: []model.Mapping{dbMapping("med-b", "sched-b", "n1", false)},
			},
			strategy: StrategyNone,
			reason:   "alert belongs to other medications",
		},
		{
			name: "time window",
			in: DismissalInput{
				Alert: presentedAlert("n9", "Something", model.CategoryReminder, medPayload, delivered),
				MedicationMappings: []model.Mapping{func() model.Mapping {
					m := dbMapping("med-a", "sched-a", "other", false)
					m.ScheduledTriggerTime = &trigger
					return m
				}()},
				TimeWindow: 5 * time.Minute,
			},
			dismiss:    true,
			strategy:   StrategyTimeWindow,
			confidence: ConfidenceTimeWindow,
		},
		{
			name: "content match ignores case and composition",
			in: DismissalInput{
				Alert:          presentedAlert("n9", "Time for CAFÉ tonic", model.CategoryReminder, bare, delivered),
				MedicationName: "Café Tonic",
			},
			dismiss:    true,
			strategy:   StrategyContentMatch,
			confidence: ConfidenceContentMatch,
		},
		{
			name: "category within window",
			in: DismissalInput{
				Alert:          presentedAlert("n9", "Time for something", model.CategoryFollowUp, bare, delivered),
				MedicationName: "Aspirin",
				CategoryWindow: 30 * time.Minute,
			},
			dismiss:    true,
			strategy:   StrategyCategory,
			confidence: ConfidenceCategory,
		},
		{
			name: "category outside window",
			in: DismissalInput{
				Alert:          presentedAlert("n9", "Time for something", model.CategoryReminder, bare, delivered),
				MedicationName: "Aspirin",
				CategoryWindow: 5 * time.Minute,
			},
			strategy: StrategyNone,
			reason:   "no strategy matched",
		},
		{
			name: "unknown grouped alert never falls back",
			in: DismissalInput{
				Alert: presentedAlert("n9", "Time for Aspirin", model.CategoryGroupedReminder,
					model.Payload{Source: model.SourceMedication, Grouped: true}, delivered),
				MedicationName: "Aspirin",
				CategoryWindow: time.Hour,
			},
			strategy: StrategyNone,
			reason:   "alert not attributable to medication",
		},
		{
			name: "payload naming another medication never falls back",
			in: DismissalInput{
				Alert: presentedAlert("n9", "Time for Aspirin", model.CategoryReminder,
					model.Payload{Source: model.SourceMedication, MedicationIDs: []string{"med-b"}}, delivered),
				MedicationName: "Aspirin",
			},
			strategy: StrategyNone,
			reason:   "alert not attributable to medication",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.MedicationID, in.ScheduleID, in.Now = "med-a", "sched-a", now

			got := DecideDismissal(in)
			assert.Equal(t, tt.dismiss, got.Dismiss)
			assert.Equal(t, tt.strategy, got.Strategy)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestDismissForMedicationDose_GroupWaitsForAllMembers(t *testing.T) {
	f := newFixture(t,
		testutil.Med("med-a", "Aspirin", "sched-a@08:00"),
		testutil.Med("med-b", "Iron", "sched-b@08:00"),
	)
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.clock.Set(at(today, "08:10"))
	require.Len(t, f.presented(), 1)

	require.NoError(t, f.meds.RecordDose("med-a", "sched-a", today, medication.DoseTaken))
	report := f.engine.DismissForMedicationDose(f.ctx, "med-a", "sched-a", today)
	assert.Equal(t, 1, report.Evaluated)
	assert.Zero(t, report.Dismissed)
	assert.Equal(t, "not all medications logged: Iron", report.Decisions["alert-1"].Reason)
	assert.Len(t, f.presented(), 1)

	require.NoError(t, f.meds.RecordDose("med-b", "sched-b", today, medication.DoseSkipped))
	report = f.engine.DismissForMedicationDose(f.ctx, "med-b", "sched-b", today)
	assert.Equal(t, 1, report.Dismissed)
	assert.Equal(t, StrategyDatabaseID, report.Decisions["alert-1"].Strategy)
	assert.Empty(t, f.presented())
}

func TestDismissForMedicationDose_LeavesOtherAlerts(t *testing.T) {
	f := newFixture(t,
		testutil.Med("med-a", "Aspirin", "sched-a@08:00"),
		testutil.Med("med-b", "Iron", "sched-b@07:30"),
	)
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.engine.ScheduleCheckins(f.ctx)
	f.clock.Set(at(today, "20:05"))
	require.Len(t, f.presented(), 3)

	report := f.engine.DismissForMedicationDose(f.ctx, "med-a", "sched-a", today)
	assert.Equal(t, 2, report.Evaluated, "check-in skipped")
	assert.Equal(t, 1, report.Dismissed)

	remaining := f.presented()
	require.Len(t, remaining, 2)
	titles := []string{remaining[0].Content.Title, remaining[1].Content.Title}
	assert.ElementsMatch(t, []string{"Time for Iron", "Daily check-in"}, titles)
}

func TestDismissForMedicationDose_PresentedFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.Inject(testutil.FaultPresented, 1)

	report := f.engine.DismissForMedicationDose(f.ctx, "med-a", "sched-a", today)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.True(t, IsOSError(report.Errors[0]))
}

// lookupFailingProvider is a provider whose medication lookups fail.
type lookupFailingProvider struct {
	*medication.FileProvider
}

func (lookupFailingProvider) Medication(context.Context, string) (*model.Medication, error) {
	return nil, testutil.ErrInjected
}

func TestDismissForMedicationDose_LookupFailureReported(t *testing.T) {
	tests := []struct {
		name  string
		arm   func(f *fixture)
		check func(error) bool
	}{
		{
			name: "medication name",
			arm: func(f *fixture) {
				logger := logrus.New()
				logger.SetOutput(io.Discard)
				f.engine = New(f.store, f.notifier, lookupFailingProvider{f.meds},
					WithClock(f.clock),
					WithLocation(time.UTC),
					WithLogger(logrus.NewEntry(logger)),
				)
			},
			check: IsInconsistency,
		},
		{
			name:  "day mappings",
			arm:   func(f *fixture) { f.store.FailReads(1) },
			check: IsStoreError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testutil.Med("med-a", "Aspirin", "sched-a@08:00"))
			_, err := f.engine.ScheduleForDays(f.ctx, 1)
			require.NoError(t, err)
			f.clock.Set(at(today, "08:05"))
			tt.arm(f)

			report := f.engine.DismissForMedicationDose(f.ctx, "med-a", "sched-a", today)
			assert.Equal(t, 1, report.Failed)
			require.Len(t, report.Errors, 1)
			assert.True(t, tt.check(report.Errors[0]))

			// The alert's own mapping still identifies it.
			assert.Equal(t, 1, report.Evaluated)
			assert.Equal(t, 1, report.Dismissed)
			assert.Empty(t, f.presented())
		})
	}
}

func TestHandleDoseLogged_BeforeReminderFires(t *testing.T) {
	f := newFixture(t,
		testutil.WithFollowUp(testutil.Med("med-a", "Aspirin", "sched-a@08:00"), 30*time.Minute),
	)
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)

	report := f.engine.HandleDoseLogged(f.ctx, "med-a", "sched-a", today)
	assert.Equal(t, OutcomeCancelled, report.Reminder.Outcome)
	assert.Equal(t, OutcomeCancelled, report.FollowUp.Outcome)
	assert.Empty(t, f.scheduled())
	assert.Empty(t, f.mappings())
}

func TestHandleDoseLogged_AfterReminderFired(t *testing.T) {
	f := newFixture(t,
		testutil.WithFollowUp(testutil.Med("med-a", "Aspirin", "sched-a@08:00"), 30*time.Minute),
	)
	_, err := f.engine.ScheduleForDays(f.ctx, 1)
	require.NoError(t, err)
	f.clock.Set(at(today, "08:05"))

	report := f.engine.HandleDoseLogged(f.ctx, "med-a", "sched-a", today)
	assert.Equal(t, OutcomeNotFound, report.Reminder.Outcome, "fired reminder left to dismissal")
	assert.Equal(t, OutcomeCancelled, report.FollowUp.Outcome)
	assert.Equal(t, 1, report.Dismissal.Dismissed)

	assert.Empty(t, f.scheduled())
	assert.Empty(t, f.presented())
	assert.NotNil(t, f.mapping("med-a", "sched-a", today, model.TypeReminder))
}
