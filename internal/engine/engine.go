package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/platform"
)

// MappingStore is the persistence the engine needs. *store.Store implements it.
type MappingStore interface {
	CreateMappings(ctx context.Context, mappings []model.Mapping) error
	ReplaceMappings(ctx context.Context, deleteIDs []string, creates []model.Mapping) error
	DeleteMapping(ctx context.Context, id string) error
	DeleteMappings(ctx context.Context, ids []string) error
	DeleteByNotificationID(ctx context.Context, notificationID string) (int64, error)
	DeleteBeforeDate(ctx context.Context, date model.Date) (int64, error)
	DeleteBySource(ctx context.Context, source model.SourceType) (int64, error)

	GetMapping(ctx context.Context, medicationID, scheduleID string, date model.Date, typ model.NotificationType) (*model.Mapping, error)
	GetByNotificationID(ctx context.Context, notificationID string) ([]model.Mapping, error)
	GetByGroup(ctx context.Context, groupKey string, date model.Date) ([]model.Mapping, error)
	GetBySchedule(ctx context.Context, scheduleID string) ([]model.Mapping, error)
	GetByMedication(ctx context.Context, medicationID string) ([]model.Mapping, error)
	GetCheckin(ctx context.Context, date model.Date) (*model.Mapping, error)
	All(ctx context.Context) ([]model.Mapping, error)

	CountFutureBySchedule(ctx context.Context, scheduleID string, from model.Date, typ model.NotificationType) (int, error)
	MaxDateBySchedule(ctx context.Context, scheduleID string, typ model.NotificationType) (model.Date, error)
	CountFutureCheckins(ctx context.Context, from model.Date) (int, error)
}

// CheckinOptions configures daily check-in alerts.
type CheckinOptions struct {
	Enabled bool
	Time    string // HH:mm
	Days    int
}

// DismissalOptions holds the tolerances of the fallback dismissal strategies.
type DismissalOptions struct {
	TimeWindow     time.Duration
	CategoryWindow time.Duration
}

// Defaults for the options above.
var (
	DefaultCheckinOptions   = CheckinOptions{Enabled: true, Time: "20:00", Days: 7}
	DefaultDismissalOptions = DismissalOptions{TimeWindow: 5 * time.Minute, CategoryWindow: 30 * time.Minute}
)

// Engine schedules, groups, cancels, dismisses and reconciles medication
// alerts, keeping the OS queue and the Mapping Store consistent.
//
// Every mutating sequence changes OS state first and store state second,
// compensating on the OS side when the store write fails. Public entry
// points never return an OS failure as a panic or an unlogged error: each
// caught error is logged with its operation name and identifiers, then
// surfaced through a report or outcome value.
//
// Thread-safety: an Engine holds no mutable state of its own; concurrent
// calls are safe as long as the store and notifier are.
type Engine struct {
	store     MappingStore
	notifier  platform.Notifier
	meds      medication.Provider
	checkins  medication.CheckinSource
	clock     platform.Clock
	loc       *time.Location
	ids       IDGenerator
	log       *logrus.Entry
	budget    Budget
	checkin   CheckinOptions
	dismissal DismissalOptions
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock. Default: platform.SystemClock.
func WithClock(c platform.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocation sets the time zone calendar dates are computed in. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.loc = loc
	}
}

// WithIDGenerator sets the mapping id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the log entry every engine log line derives from.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithBudget overrides DefaultBudget.
func WithBudget(b Budget) Option {
	return func(e *Engine) {
		e.budget = b
	}
}

// WithCheckins enables daily check-ins backed by src.
func WithCheckins(src medication.CheckinSource, opts CheckinOptions) Option {
	return func(e *Engine) {
		e.checkins = src
		e.checkin = opts
	}
}

// WithDismissal overrides DefaultDismissalOptions.
func WithDismissal(opts DismissalOptions) Option {
	return func(e *Engine) {
		e.dismissal = opts
	}
}

// New creates an Engine. Check-ins stay disabled until WithCheckins is given.
func New(s MappingStore, n platform.Notifier, meds medication.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		notifier:  n,
		meds:      meds,
		clock:     platform.SystemClock{},
		loc:       time.Local,
		ids:       UUIDv7Generator{},
		log:       logrus.NewEntry(logrus.StandardLogger()),
		budget:    DefaultBudget(),
		checkin:   CheckinOptions{},
		dismissal: DefaultDismissalOptions,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Budget returns the configured alert budget.
func (e *Engine) Budget() Budget {
	return e.budget
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// Today returns the current calendar date in the engine's location.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.now(), e.loc)
}

func (e *Engine) triggerAt(date model.Date, clock string) (time.Time, error) {
	return model.TriggerAt(date, clock, e.loc)
}

// logFailure records a caught error. OpErrors contribute their structured fields.
func (e *Engine) logFailure(err error) {
	var oe *OpError
	if errors.As(err, &oe) {
		e.log.WithFields(oe.Fields()).WithError(oe.Err).Error("operation failed")
		return
	}
	e.log.WithError(err).Error("operation failed")
}
