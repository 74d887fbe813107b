package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medremind/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval time.Duration
	Once     bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the maintenance worker",
		Long: `Run reconcile, top-up and check-in top-up immediately and then on every
interval until interrupted.

Example:
  medremind run
  medremind run --interval 5m --verbose
  medremind run --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "maintenance interval (default from config)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run one maintenance pass and exit")

	return cmd
}

func runWorker(opts *RunOptions, cmd *cobra.Command) error {
	return withRuntime(opts.RootOptions, cmd.ErrOrStderr(), func(rt *runtime) error {
		interval := opts.Interval
		if interval <= 0 {
			interval = rt.cfg.Worker.Interval
		}
		w := worker.New(rt.engine,
			worker.WithInterval(interval),
			worker.WithThreshold(rt.cfg.Notifications.TopUpThreshold),
			worker.WithLogger(rt.log),
		)

		// Use command's context if available (for testing), otherwise create one
		parentCtx := cmd.Context()
		if parentCtx == nil {
			parentCtx = context.Background()
		}

		if opts.Once {
			r := w.Maintain(parentCtx)
			out := newFormatter(cmd, opts.RootOptions)
			v := maintenanceView{
				Reconcile: reconcileView{
					Expired:        r.Reconcile.Expired,
					OrphanMappings: r.Reconcile.OrphanMappings,
					OrphanAlerts:   r.Reconcile.OrphanAlerts,
					Failed:         r.Reconcile.Failed,
					Errors:         errorStrings(r.Reconcile.Errors),
				},
				TopUp:    newTopUpView(r.TopUp),
				Checkins: newScheduleView(r.Checkins),
			}
			if err := out.Success(v); err != nil {
				return err
			}
			errs := append([]error(nil), r.Errors...)
			errs = append(errs, r.Reconcile.Errors...)
			errs = append(errs, r.TopUp.Errors...)
			errs = append(errs, r.Checkins.Errors...)
			return out.Failures("maintenance", errs)
		}

		ctx, cancel := context.WithCancel(parentCtx)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case sig := <-sigChan:
				rt.log.WithField("signal", sig.String()).Info("received signal, shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()

		stopWatch, err := watchMedications(ctx, rt, w)
		if err != nil {
			rt.log.WithError(err).Warn("medication file changes will not be picked up")
		} else {
			defer stopWatch()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Worker started (interval %s). Press Ctrl-C to stop.\n", interval)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "worker error", err)
		}
		rt.log.Info("worker stopped gracefully")
		return nil
	})
}

type maintenanceView struct {
	Reconcile reconcileView `json:"reconcile"`
	TopUp     topUpView     `json:"top_up"`
	Checkins  scheduleView  `json:"checkins"`
}

func (v maintenanceView) String() string {
	return fmt.Sprintf("reconcile: %s\ntop-up: %s\ncheck-ins: %s", v.Reconcile, v.TopUp, v.Checkins)
}
