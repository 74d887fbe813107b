package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/medremind/internal/model"
)

// Every multi-row query orders by date, created_at, id so results are stable.
const selectMappings = "SELECT * FROM notification_mappings"

// GetMapping returns the mapping for a medication/schedule/date/type, or nil if none exists.
func (s *Store) GetMapping(
	ctx context.Context,
	medicationID, scheduleID string,
	date model.Date,
	typ model.NotificationType,
) (*model.Mapping, error) {
	var m model.Mapping
	err := s.db.GetContext(ctx, &m, selectMappings+`
		WHERE medication_id = ? AND schedule_id = ? AND date = ? AND notification_type = ?`,
		medicationID, scheduleID, date, typ,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping %s/%s/%s/%s: %w", medicationID, scheduleID, date, typ, err)
	}
	return &m, nil
}

// GetByNotificationID returns every mapping pointing at the OS alert.
func (s *Store) GetByNotificationID(ctx context.Context, notificationID string) ([]model.Mapping, error) {
	return s.selectMany(ctx, "mappings for notification "+notificationID,
		selectMappings+" WHERE notification_id = ? ORDER BY date, created_at, id", notificationID)
}

// GetByGroup returns the grouped mappings sharing groupKey on date, across all types.
func (s *Store) GetByGroup(ctx context.Context, groupKey string, date model.Date) ([]model.Mapping, error) {
	return s.selectMany(ctx, "group "+groupKey+" on "+string(date),
		selectMappings+" WHERE is_grouped = 1 AND group_key = ? AND date = ? ORDER BY created_at, id",
		groupKey, date)
}

// GetBySchedule returns every mapping for the schedule.
func (s *Store) GetBySchedule(ctx context.Context, scheduleID string) ([]model.Mapping, error) {
	return s.selectMany(ctx, "mappings for schedule "+scheduleID,
		selectMappings+" WHERE schedule_id = ? ORDER BY date, created_at, id", scheduleID)
}

// GetByMedication returns every mapping for the medication.
func (s *Store) GetByMedication(ctx context.Context, medicationID string) ([]model.Mapping, error) {
	return s.selectMany(ctx, "mappings for medication "+medicationID,
		selectMappings+" WHERE medication_id = ? ORDER BY date, created_at, id", medicationID)
}

// GetCheckin returns the check-in mapping for date, or nil if none exists.
func (s *Store) GetCheckin(ctx context.Context, date model.Date) (*model.Mapping, error) {
	var m model.Mapping
	err := s.db.GetContext(ctx, &m,
		selectMappings+" WHERE source_type = ? AND date = ?", model.SourceDailyCheckin, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in mapping for %s: %w", date, err)
	}
	return &m, nil
}

// All returns every mapping in the store.
func (s *Store) All(ctx context.Context) ([]model.Mapping, error) {
	return s.selectMany(ctx, "all mappings", selectMappings+" ORDER BY date, created_at, id")
}

// CountFutureBySchedule counts mappings of typ for the schedule dated on or after from.
func (s *Store) CountFutureBySchedule(
	ctx context.Context,
	scheduleID string,
	from model.Date,
	typ model.NotificationType,
) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notification_mappings
		WHERE schedule_id = ? AND date >= ? AND notification_type = ?`,
		scheduleID, from, typ,
	)
	if err != nil {
		return 0, fmt.Errorf("count mappings for schedule %s: %w", scheduleID, err)
	}
	return n, nil
}

// MaxDateBySchedule returns the latest mapped date of typ for the schedule, or "" if none.
func (s *Store) MaxDateBySchedule(
	ctx context.Context,
	scheduleID string,
	typ model.NotificationType,
) (model.Date, error) {
	var d string
	err := s.db.GetContext(ctx, &d, `
		SELECT COALESCE(MAX(date), '') FROM notification_mappings
		WHERE schedule_id = ? AND notification_type = ?`,
		scheduleID, typ,
	)
	if err != nil {
		return "", fmt.Errorf("max date for schedule %s: %w", scheduleID, err)
	}
	return model.Date(d), nil
}

// CountFutureCheckins counts check-in mappings dated on or after from.
func (s *Store) CountFutureCheckins(ctx context.Context, from model.Date) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notification_mappings
		WHERE source_type = ? AND date >= ?`,
		model.SourceDailyCheckin, from,
	)
	if err != nil {
		return 0, fmt.Errorf("count check-in mappings: %w", err)
	}
	return n, nil
}

func (s *Store) selectMany(ctx context.Context, what, query string, args ...any) ([]model.Mapping, error) {
	var out []model.Mapping
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	return out, nil
}
