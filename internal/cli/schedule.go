package cli

import (
	"github.com/spf13/cobra"
)

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule reminders for every active medication",
		Long: `Schedule reminder and follow-up alerts for every enabled schedule.

Without --days every existing alert is cancelled and the full budgeted
horizon is rebuilt. With --days N, only missing alerts for the next N days
are added.

Examples:
  medremind schedule
  medremind schedule --days 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				ctx := cmd.Context()
				if days <= 0 {
					r, err := rt.engine.RescheduleAll(ctx)
					if err != nil {
						return WrapExitError(ExitFailure, "reschedule failed", err)
					}
					v := newScheduleView(r.ScheduleReport)
					v.Days, v.Cancelled = r.Days, r.Cancelled
					if err := out.Success(v); err != nil {
						return err
					}
					return out.Failures("schedule", r.Errors)
				}

				r, err := rt.engine.ScheduleForDays(ctx, days)
				if err != nil {
					return WrapExitError(ExitFailure, "schedule failed", err)
				}
				v := newScheduleView(r)
				v.Days = days
				if err := out.Success(v); err != nil {
					return err
				}
				return out.Failures("schedule", r.Errors)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "schedule only missing alerts for this many days")
	return cmd
}

// NewTopUpCommand creates the topup command.
func NewTopUpCommand(rootOpts *RootOptions) *cobra.Command {
	var threshold int

	cmd := &cobra.Command{
		Use:   "topup",
		Short: "Extend schedules running low on future reminders",
		Long: `Extend every schedule with fewer than --threshold future reminders up to
the budgeted number of days. Check-ins are topped up too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				ctx := cmd.Context()
				t := threshold
				if t <= 0 {
					t = rt.engine.Budget().TopUpThreshold
				}
				r, err := rt.engine.TopUp(ctx, t)
				if err != nil {
					return WrapExitError(ExitFailure, "top-up failed", err)
				}
				checkins := rt.engine.TopUpCheckins(ctx)
				out.VerboseLog("check-ins: %s", newScheduleView(checkins))

				if err := out.Success(newTopUpView(r)); err != nil {
					return err
				}
				return out.Failures("topup", append(r.Errors, checkins.Errors...))
			})
		},
	}

	cmd.Flags().IntVar(&threshold, "threshold", 0, "top up schedules with fewer future reminders than this (default from config)")
	return cmd
}

// NewRebalanceCommand creates the rebalance command.
func NewRebalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Fit outstanding reminders to the current budget",
		Long: `Recompute the day budget, cancel reminder days beyond it and top up
schedules that fall short.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				r, err := rt.engine.Rebalance(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "rebalance failed", err)
				}
				v := rebalanceView{
					TargetDays: r.TargetDays,
					Trimmed:    r.Trimmed,
					Failed:     r.Failed,
					Errors:     errorStrings(r.Errors),
					TopUp:      newTopUpView(r.TopUp),
				}
				if err := out.Success(v); err != nil {
					return err
				}
				return out.Failures("rebalance", append(r.Errors, r.TopUp.Errors...))
			})
		},
	}
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Heal drift between the alert queue and the mapping store",
		Long: `Delete mappings whose alert is gone, cancel medication alerts that no
mapping references, and sweep mappings dated before today.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				r, err := rt.engine.Reconcile(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "reconcile failed", err)
				}
				v := reconcileView{
					Expired:        r.Expired,
					OrphanMappings: r.OrphanMappings,
					OrphanAlerts:   r.OrphanAlerts,
					Failed:         r.Failed,
					Errors:         errorStrings(r.Errors),
				}
				if err := out.Success(v); err != nil {
					return err
				}
				return out.Failures("reconcile", r.Errors)
			})
		},
	}
}

// NewFixCommand creates the fix command.
func NewFixCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "fix",
		Short:         "Remove alerts for schedules that no longer exist",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				r, err := rt.engine.FixScheduleInconsistencies(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "fix failed", err)
				}
				if err := out.Success(fixView{Removed: r.Removed, Invalid: r.InvalidScheduleIDs, Failed: r.Failed}); err != nil {
					return err
				}
				if r.Failed > 0 {
					return NewExitError(ExitFailure, "fix: some alerts could not be removed")
				}
				return nil
			})
		},
	}
}
