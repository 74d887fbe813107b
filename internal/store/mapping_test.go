package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
)

func TestCreateMappings_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	trigger := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	m := createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1")
	m.MedicationName = model.Ptr("Aspirin")
	m.ScheduledTriggerTime = &trigger
	m.NotificationTitle = model.Ptr("Time for Aspirin")
	m.CategoryIdentifier = model.Ptr(model.CategoryReminder)

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{m}))

	got, err := s.GetMapping(ctx, "med-a", "sched-a", "2026-10-17", model.TypeReminder)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "n1", got.NotificationID)
	assert.Equal(t, model.Date("2026-10-17"), got.Date)
	assert.False(t, got.IsGrouped)
	assert.Nil(t, got.GroupKey)
	assert.Equal(t, "Aspirin", model.Deref(got.MedicationName))
	assert.Equal(t, "Time for Aspirin", model.Deref(got.NotificationTitle))
	assert.Nil(t, got.NotificationBody)
	require.NotNil(t, got.ScheduledTriggerTime)
	assert.WithinDuration(t, trigger, *got.ScheduledTriggerTime, time.Second)
	assert.WithinDuration(t, testCreatedAt, got.CreatedAt, time.Second)
}

func TestCreateMappings_Empty(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.CreateMappings(context.Background(), nil))
}

func TestCreateMappings_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1"),
	}))

	// Second mapping collides with m1 on medication/schedule/date/type.
	err := s.CreateMappings(ctx, []model.Mapping{
		createGroupedMapping("m2", "med-b", "sched-b", "2026-10-17", "n2", "g1"),
		createTestMapping("m3", "med-a", "sched-a", "2026-10-17", "n3"),
	})
	require.Error(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m1", all[0].ID)
}

func TestCreateMappings_UniquePerType(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	reminder := createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1")
	followUp := createTestMapping("m2", "med-a", "sched-a", "2026-10-17", "n2")
	followUp.NotificationType = model.TypeFollowUp

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{reminder, followUp}))

	dup := createTestMapping("m3", "med-a", "sched-a", "2026-10-17", "n3")
	assert.Error(t, s.CreateMappings(ctx, []model.Mapping{dup}))
}

func TestCreateMappings_GroupKeyRequiredWhenGrouped(t *testing.T) {
	s := createTestStore(t)

	m := createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1")
	m.IsGrouped = true

	assert.Error(t, s.CreateMappings(context.Background(), []model.Mapping{m}))
}

func TestCreateMappings_OneCheckinPerDate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createCheckinMapping("c1", "2026-10-17", "n1"),
		createCheckinMapping("c2", "2026-10-18", "n2"),
	}))

	err := s.CreateMappings(ctx, []model.Mapping{createCheckinMapping("c3", "2026-10-17", "n3")})
	assert.Error(t, err)

	got, err := s.GetCheckin(ctx, "2026-10-17")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.ID)
	assert.Nil(t, got.MedicationID)
}

func TestReplaceMappings_SwapsRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createGroupedMapping("m1", "med-a", "sched-a", "2026-10-17", "n1", "g1"),
		createGroupedMapping("m2", "med-b", "sched-b", "2026-10-17", "n1", "g1"),
	}))

	replacement := createTestMapping("m3", "med-b", "sched-b", "2026-10-17", "n2")
	require.NoError(t, s.ReplaceMappings(ctx, []string{"m1", "m2"}, []model.Mapping{replacement}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m3", all[0].ID)
	assert.Equal(t, "n2", all[0].NotificationID)
	assert.False(t, all[0].IsGrouped)
}

func TestReplaceMappings_RollsBackOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1"),
		createTestMapping("m2", "med-b", "sched-b", "2026-10-17", "n2"),
	}))

	// Insert collides with m2, which is not being deleted.
	err := s.ReplaceMappings(ctx, []string{"m1"}, []model.Mapping{
		createTestMapping("m3", "med-b", "sched-b", "2026-10-17", "n3"),
	})
	require.Error(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteMapping_MissingIsNotError(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.DeleteMapping(context.Background(), "nope"))
}

func TestDeleteMappings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1"),
		createTestMapping("m2", "med-b", "sched-b", "2026-10-17", "n2"),
		createTestMapping("m3", "med-c", "sched-c", "2026-10-17", "n3"),
	}))

	require.NoError(t, s.DeleteMappings(ctx, []string{"m1", "m3"}))
	require.NoError(t, s.DeleteMapping(ctx, "m2"))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteByNotificationID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createGroupedMapping("m1", "med-a", "sched-a", "2026-10-17", "shared", "g1"),
		createGroupedMapping("m2", "med-b", "sched-b", "2026-10-17", "shared", "g1"),
		createTestMapping("m3", "med-c", "sched-c", "2026-10-17", "other"),
	}))

	n, err := s.DeleteByNotificationID(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.GetByNotificationID(ctx, "shared")
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err = s.DeleteByNotificationID(ctx, "shared")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteBeforeDate_IsStrict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-15", "n1"),
		createTestMapping("m2", "med-a", "sched-a", "2026-10-16", "n2"),
		createTestMapping("m3", "med-a", "sched-a", "2026-10-17", "n3"),
	}))

	n, err := s.DeleteBeforeDate(ctx, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "m2", all[0].ID)
}

func TestDeleteBySource(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n1"),
		createCheckinMapping("c1", "2026-10-17", "n2"),
	}))

	n, err := s.DeleteBySource(ctx, model.SourceMedication)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c1", all[0].ID)
}

func TestGetMapping_NotFound(t *testing.T) {
	s := createTestStore(t)

	got, err := s.GetMapping(context.Background(), "med-a", "sched-a", "2026-10-17", model.TypeReminder)
	require.NoError(t, err)
	assert.Nil(t, got)

	checkin, err := s.GetCheckin(context.Background(), "2026-10-17")
	require.NoError(t, err)
	assert.Nil(t, checkin)
}

func TestGetByGroup_AllTypesSameDate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	followUp := createGroupedMapping("m3", "med-a", "sched-a", "2026-10-17", "n2", "g1")
	followUp.NotificationType = model.TypeFollowUp

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createGroupedMapping("m1", "med-a", "sched-a", "2026-10-17", "n1", "g1"),
		createGroupedMapping("m2", "med-b", "sched-b", "2026-10-17", "n1", "g1"),
		followUp,
		createGroupedMapping("m4", "med-a", "sched-a", "2026-10-18", "n3", "g1"),
		createTestMapping("m5", "med-c", "sched-c", "2026-10-17", "n4"),
	}))

	got, err := s.GetByGroup(ctx, "g1", "2026-10-17")
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, ids)
}

func TestGetByScheduleAndMedication(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-18", "n1"),
		createTestMapping("m2", "med-a", "sched-a", "2026-10-17", "n2"),
		createTestMapping("m3", "med-a", "sched-b", "2026-10-17", "n3"),
		createTestMapping("m4", "med-b", "sched-c", "2026-10-17", "n4"),
	}))

	bySched, err := s.GetBySchedule(ctx, "sched-a")
	require.NoError(t, err)
	require.Len(t, bySched, 2)
	assert.Equal(t, "m2", bySched[0].ID, "ordered by date")
	assert.Equal(t, "m1", bySched[1].ID)

	byMed, err := s.GetByMedication(ctx, "med-a")
	require.NoError(t, err)
	assert.Len(t, byMed, 3)
}

func TestCountAndMaxDateBySchedule(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	followUp := createTestMapping("m4", "med-a", "sched-a", "2026-10-20", "n4")
	followUp.NotificationType = model.TypeFollowUp

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createTestMapping("m1", "med-a", "sched-a", "2026-10-15", "n1"),
		createTestMapping("m2", "med-a", "sched-a", "2026-10-16", "n2"),
		createTestMapping("m3", "med-a", "sched-a", "2026-10-17", "n3"),
		followUp,
	}))

	n, err := s.CountFutureBySchedule(ctx, "sched-a", "2026-10-16", model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := s.MaxDateBySchedule(ctx, "sched-a", model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, model.Date("2026-10-17"), latest)

	none, err := s.MaxDateBySchedule(ctx, "sched-x", model.TypeReminder)
	require.NoError(t, err)
	assert.Equal(t, model.Date(""), none)
}

func TestCountFutureCheckins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateMappings(ctx, []model.Mapping{
		createCheckinMapping("c1", "2026-10-15", "n1"),
		createCheckinMapping("c2", "2026-10-16", "n2"),
		createCheckinMapping("c3", "2026-10-17", "n3"),
		createTestMapping("m1", "med-a", "sched-a", "2026-10-17", "n4"),
	}))

	n, err := s.CountFutureCheckins(ctx, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
