package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/config"
	"github.com/roach88/medremind/internal/engine"
	"github.com/roach88/medremind/internal/harness"
	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/platform"
	"github.com/roach88/medremind/internal/store"
)

// runtime is everything a command needs, opened from the config file.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	queue  *platform.FileQueue
	meds   *medication.FileProvider
	engine *engine.Engine
	log    *logrus.Entry
}

// openRuntime loads the config and opens the store, the alert queue and the
// medication file. Diagnostics go to errOut.
func openRuntime(opts *RootOptions, errOut io.Writer) (*runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	log, err := newLogger(cfg.Log, opts.Verbose, errOut)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log config", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = platform.SystemClock{}
	}

	for _, path := range []string{cfg.Database, cfg.Queue, cfg.Medications} {
		if path == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
		}
	}

	log.WithField("path", cfg.Database).Debug("opening database")
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	queue, err := platform.OpenFileQueue(cfg.Queue,
		platform.WithCap(cfg.Notifications.Cap),
		platform.WithClock(clock),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open alert queue", err)
	}
	meds, err := medication.LoadFile(cfg.Medications, cfg.DefaultSettings())
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load medications", err)
	}

	n := cfg.Notifications
	eng := engine.New(st, queue, meds,
		engine.WithClock(clock),
		engine.WithLocation(loc),
		engine.WithLogger(log),
		engine.WithBudget(engine.Budget{
			Cap:            n.Cap,
			Reserved:       n.ReservedSlots,
			MinDays:        n.MinDays,
			MaxDays:        n.MaxDays,
			TopUpThreshold: n.TopUpThreshold,
		}),
		engine.WithCheckins(meds, engine.CheckinOptions{
			Enabled: cfg.Checkin.Enabled,
			Time:    cfg.Checkin.Time,
			Days:    cfg.Checkin.Days,
		}),
		engine.WithDismissal(engine.DismissalOptions{
			TimeWindow:     cfg.Dismissal.TimeWindow,
			CategoryWindow: cfg.Dismissal.CategoryWindow,
		}),
	)

	return &runtime{cfg: cfg, store: st, queue: queue, meds: meds, engine: eng, log: log}, nil
}

// Close writes the medication file back and closes the store. The store is
// closed even when the save fails, and both errors are reported.
func (r *runtime) Close() error {
	saveErr := r.meds.Save()
	return errors.Join(saveErr, r.store.Close())
}

// date resolves a --date flag (YYYY-MM-DD, today or today+N).
func (r *runtime) date(expr string) (model.Date, error) {
	d, err := harness.ResolveDate(r.engine.Today(), expr)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --date", err)
	}
	return d, nil
}

// newLogger builds the logrus logger described by cfg. Verbose forces debug.
func newLogger(cfg config.LogConfig, verbose bool, out io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logrus.NewEntry(logger), nil
}

// withRuntime opens a runtime, runs fn and closes it, keeping fn's error.
func withRuntime(opts *RootOptions, errOut io.Writer, fn func(*runtime) error) error {
	rt, err := openRuntime(opts, errOut)
	if err != nil {
		return err
	}
	runErr := fn(rt)
	if err := rt.Close(); err != nil && runErr == nil {
		return WrapExitError(ExitCommandError, "failed to save state", err)
	}
	return runErr
}
