// Package store provides the SQLite-backed Mapping Store: the table that
// correlates OS alert identifiers with the medication, schedule, date and
// notification type each alert was scheduled for.
//
// # Invariants enforced by the schema
//
//   - UNIQUE(medication_id, schedule_id, date, notification_type): at most one
//     mapping per medication/schedule/date/type.
//   - One check-in mapping per date (partial unique index).
//   - group_key IS NOT NULL exactly when is_grouped = 1.
//
// Mappings are created and deleted, never updated in place. Regrouping goes
// through ReplaceMappings, which deletes the stale rows before inserting the
// replacements inside one transaction so the unique constraint never trips.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - Single open connection: one writer at a time
//
// All timestamps are written in UTC. Dates are local calendar days stored as
// YYYY-MM-DD text so that lexical comparison matches chronological order.
package store
