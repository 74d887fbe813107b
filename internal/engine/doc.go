// Package engine implements medication alert scheduling and reconciliation.
//
// The engine keeps two independently mutable stores of truth consistent:
// the OS alert queue (platform.Notifier) and the local Mapping Store. Either
// may drift, through partial failures, app kills or the OS dropping
// requests, and the engine is written so that drift is always healable.
//
// COMPONENTS:
//
// Atomic Scheduler (atomic.go):
// One OS alert plus its mapping(s) as a unit. OS first, store second; a
// failed store write cancels the just-created alert again.
//
// Grouping Engine (grouping.go):
// Pairs due at the same clock time share one alert. Merged urgency is the
// OR of every member's flags (critical dominates), and the group follow-up
// fires after the MAXIMUM enabled delay.
//
// Cancellation & Regroup (cancel.go):
// Removing one member of a group is an explicit state machine over the
// number of remaining members of the same type: none dissolves the group,
// one is demoted to an ungrouped alert, two or more are rebuilt as a new
// group on the original trigger.
//
// Dismissal (dismissal.go):
// DecideDismissal is a pure ranked fallback chain (database id, time
// window, content, category). A grouped alert is never dismissed while
// another member's dose is unlogged.
//
// Budget & Reconciliation (budget.go, reconcile.go):
// CalculateDays keeps the whole horizon under the platform cap. TopUp,
// Rebalance, Reconcile and FixScheduleInconsistencies repair drift in one
// direction only: delete orphan mappings, cancel orphan medication alerts.
//
// Daily check-ins (checkin.go):
// Share the store and scheduler but are suppressed at delivery time rather
// than cancelled, and default to being shown when in doubt.
//
// CONCURRENCY:
//
// Operations are sequential call chains. Group repair deletes stale rows
// before inserting replacements inside one store transaction, so racing
// operations see either the old group or the new one. Multi-day loops are
// not transactional as a whole; every slot is independently idempotent and
// Reconcile heals whatever a crash leaves behind.
package engine
