package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckinCommand creates the checkin command group.
func NewCheckinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Manage daily check-in alerts",
	}

	cmd.AddCommand(newCheckinScheduleCommand(rootOpts))
	cmd.AddCommand(newCheckinStatusCommand(rootOpts))
	cmd.AddCommand(newCheckinPresentCommand(rootOpts))
	return cmd
}

func newCheckinScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schedule",
		Short:         "Schedule check-ins for the configured look-ahead window",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				r := rt.engine.ScheduleCheckins(cmd.Context())
				if err := out.Success(newScheduleView(r)); err != nil {
					return err
				}
				return out.Failures("checkin schedule", r.Errors)
			})
		},
	}
}

func newCheckinStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	var clearStatus bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Log or clear the check-in status for a date",
		Long: `Log (or with --clear, clear) the status for a date. Presented check-ins
for the date are dismissed, its pending check-in is cancelled and the
look-ahead window is topped up.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				d, err := rt.date(date)
				if err != nil {
					return err
				}
				rt.meds.SetStatusLogged(d, !clearStatus)

				r := rt.engine.OnCheckinStatusChanged(cmd.Context(), d)
				v := checkinChangeView{
					Dismissed: r.Dismissed,
					Cancelled: r.Cancelled,
					TopUp:     newScheduleView(r.TopUp),
					Errors:    errorStrings(r.Errors),
				}
				if err := out.Success(v); err != nil {
					return err
				}
				return out.Failures("checkin status", append(r.Errors, r.TopUp.Errors...))
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "today", "date: YYYY-MM-DD, today or today+N")
	cmd.Flags().BoolVar(&clearStatus, "clear", false, "clear the status instead of logging it")
	return cmd
}

func newCheckinPresentCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "present",
		Short: "Decide whether a delivered check-in should be shown",
		Long: `Evaluate the suppression rules for a delivered check-in. Exits 1 when the
check-in should be suppressed, so the command can gate a notifier hook.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				d, err := rt.date(date)
				if err != nil {
					return err
				}
				decision := rt.engine.ShouldPresentCheckin(cmd.Context(), d)
				if rootOpts.Format == "json" {
					if err := out.Success(decision); err != nil {
						return err
					}
				} else {
					verdict := "present"
					if !decision.Present {
						verdict = "suppress"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verdict, decision.Reason)
				}
				if !decision.Present {
					return NewExitError(ExitFailure, "check-in suppressed: "+decision.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "today", "date: YYYY-MM-DD, today or today+N")
	return cmd
}
