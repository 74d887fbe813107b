package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/medremind/internal/model"
)

const insertMappingSQL = `
	INSERT INTO notification_mappings (
		id, medication_id, schedule_id, date,
		notification_id, notification_type, is_grouped, group_key,
		source_type, medication_name, scheduled_trigger_time,
		notification_title, notification_body, category_identifier,
		created_at
	) VALUES (
		:id, :medication_id, :schedule_id, :date,
		:notification_id, :notification_type, :is_grouped, :group_key,
		:source_type, :medication_name, :scheduled_trigger_time,
		:notification_title, :notification_body, :category_identifier,
		:created_at
	)`

// CreateMappings inserts all mappings in one transaction.
// Either every mapping is persisted or none is.
func (s *Store) CreateMappings(ctx context.Context, mappings []model.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create mappings: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := insertMappings(ctx, tx, mappings); err != nil {
		return fmt.Errorf("create mappings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create mappings: commit: %w", err)
	}
	return nil
}

// ReplaceMappings deletes the mappings in deleteIDs and inserts creates in a
// single transaction. Deletes run first so a replacement for the same
// medication/schedule/date/type never collides with the row it replaces.
func (s *Store) ReplaceMappings(ctx context.Context, deleteIDs []string, creates []model.Mapping) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace mappings: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteMappings(ctx, tx, deleteIDs); err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}
	if err := insertMappings(ctx, tx, creates); err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace mappings: commit: %w", err)
	}
	return nil
}

// DeleteMapping removes a mapping by id. Deleting a missing id is not an error.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notification_mappings WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete mapping %s: %w", id, err)
	}
	return nil
}

// DeleteMappings removes several mappings in one transaction.
func (s *Store) DeleteMappings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete mappings: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteMappings(ctx, tx, ids); err != nil {
		return fmt.Errorf("delete mappings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete mappings: commit: %w", err)
	}
	return nil
}

// DeleteByNotificationID removes every mapping that references the OS alert.
// Returns the number of rows removed.
func (s *Store) DeleteByNotificationID(ctx context.Context, notificationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notification_mappings WHERE notification_id = ?", notificationID)
	if err != nil {
		return 0, fmt.Errorf("delete mappings for notification %s: %w", notificationID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteBeforeDate removes mappings whose date is strictly before date.
func (s *Store) DeleteBeforeDate(ctx context.Context, date model.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notification_mappings WHERE date < ?", date)
	if err != nil {
		return 0, fmt.Errorf("delete mappings before %s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteBySource removes every mapping owned by the given source.
func (s *Store) DeleteBySource(ctx context.Context, source model.SourceType) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notification_mappings WHERE source_type = ?", source)
	if err != nil {
		return 0, fmt.Errorf("delete %s mappings: %w", source, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func insertMappings(ctx context.Context, tx *sqlx.Tx, mappings []model.Mapping) error {
	for _, m := range mappings {
		m.CreatedAt = m.CreatedAt.UTC()
		if m.ScheduledTriggerTime != nil {
			utc := m.ScheduledTriggerTime.UTC()
			m.ScheduledTriggerTime = &utc
		}
		if _, err := tx.NamedExecContext(ctx, insertMappingSQL, m); err != nil {
			return fmt.Errorf("insert mapping %s: %w", m.ID, err)
		}
	}
	return nil
}

func deleteMappings(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM notification_mappings WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete mappings: %w", err)
	}
	return nil
}
