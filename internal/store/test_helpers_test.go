package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/medremind/internal/model"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testCreatedAt = time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)

// createTestMapping creates an ungrouped reminder mapping with minimal required fields.
func createTestMapping(id, medID, schedID string, date model.Date, notificationID string) model.Mapping {
	return model.Mapping{
		ID:               id,
		MedicationID:     model.Ptr(medID),
		ScheduleID:       model.Ptr(schedID),
		Date:             date,
		NotificationID:   notificationID,
		NotificationType: model.TypeReminder,
		SourceType:       model.SourceMedication,
		CreatedAt:        testCreatedAt,
	}
}

// createGroupedMapping creates a grouped mapping sharing groupKey.
func createGroupedMapping(id, medID, schedID string, date model.Date, notificationID, groupKey string) model.Mapping {
	m := createTestMapping(id, medID, schedID, date, notificationID)
	m.IsGrouped = true
	m.GroupKey = model.Ptr(groupKey)
	return m
}

// createCheckinMapping creates a check-in mapping for date.
func createCheckinMapping(id string, date model.Date, notificationID string) model.Mapping {
	return model.Mapping{
		ID:               id,
		Date:             date,
		NotificationID:   notificationID,
		NotificationType: model.TypeDailyCheckin,
		SourceType:       model.SourceDailyCheckin,
		CreatedAt:        testCreatedAt,
	}
}
