package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// slotFlags identifies one medication/schedule/date slot.
type slotFlags struct {
	Medication string
	Schedule   string
	Date       string
}

func (f *slotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Medication, "medication", "", "medication id (required)")
	cmd.Flags().StringVar(&f.Schedule, "schedule", "", "schedule id (required)")
	cmd.Flags().StringVar(&f.Date, "date", "today", "date: YYYY-MM-DD, today or today+N")
	_ = cmd.MarkFlagRequired("medication")
	_ = cmd.MarkFlagRequired("schedule")
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var slot slotFlags
	var typ string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel one medication's alert for a date",
		Long: `Cancel one medication's reminder or follow-up for a date. If the alert
is shared with other medications, the rest of the group keeps an alert.

Examples:
  medremind cancel --medication med-a --schedule sched-a --date today
  medremind cancel --medication med-a --schedule sched-a --date 2026-10-17 --type follow_up`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			nt := model.NotificationType(typ)
			if nt != model.TypeReminder && nt != model.TypeFollowUp {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --type %q: must be reminder or follow_up", typ))
			}

			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				date, err := rt.date(slot.Date)
				if err != nil {
					return err
				}
				r := rt.engine.CancelForDate(cmd.Context(), slot.Medication, slot.Schedule, date, nt)
				if err := out.Success(newCancelView(r)); err != nil {
					return err
				}
				if r.Err != nil {
					return out.Failures("cancel", []error{r.Err})
				}
				return nil
			})
		},
	}

	slot.register(cmd)
	cmd.Flags().StringVar(&typ, "type", string(model.TypeReminder), "notification type (reminder|follow_up)")
	return cmd
}

// NewCancelAllCommand creates the cancel-all command.
func NewCancelAllCommand(rootOpts *RootOptions) *cobra.Command {
	var medicationID string
	var remove bool

	cmd := &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel every alert of a medication",
		Long: `Cancel every alert of a medication, repairing any group it shared.
With --remove the medication is also deleted from the medication file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				// Removed before cancelling so group repair never re-adds it.
				if remove && !rt.meds.Remove(medicationID) {
					out.VerboseLog("medication %s not in medication file", medicationID)
				}
				r, err := rt.engine.CancelAllForMedication(cmd.Context(), medicationID)
				if err != nil {
					return WrapExitError(ExitFailure, "cancel-all failed", err)
				}
				if err := out.Success(newCancelAllView(r)); err != nil {
					return err
				}
				return out.Failures("cancel-all", r.Errors)
			})
		},
	}

	cmd.Flags().StringVar(&medicationID, "medication", "", "medication id (required)")
	cmd.Flags().BoolVar(&remove, "remove", false, "also remove the medication")
	_ = cmd.MarkFlagRequired("medication")
	return cmd
}

// NewDoseCommand creates the dose command.
func NewDoseCommand(rootOpts *RootOptions) *cobra.Command {
	var slot slotFlags
	var skipped bool

	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Log a dose and clear the alerts it makes obsolete",
		Long: `Record a dose as taken (or skipped) in the medication file, cancel the
slot's pending follow-up and not-yet-fired reminder, and dismiss presented
alerts the dose makes obsolete.

Examples:
  medremind dose --medication med-a --schedule sched-a
  medremind dose --medication med-a --schedule sched-a --date today --skipped`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				date, err := rt.date(slot.Date)
				if err != nil {
					return err
				}
				status := medication.DoseTaken
				if skipped {
					status = medication.DoseSkipped
				}
				if err := rt.meds.RecordDose(slot.Medication, slot.Schedule, date, status); err != nil {
					return WrapExitError(ExitCommandError, "failed to record dose", err)
				}

				r := rt.engine.HandleDoseLogged(cmd.Context(), slot.Medication, slot.Schedule, date)
				if err := out.Success(newDoseView(r)); err != nil {
					return err
				}

				var errs []error
				for _, err := range []error{r.Reminder.Err, r.FollowUp.Err} {
					if err != nil {
						errs = append(errs, err)
					}
				}
				return out.Failures("dose", append(errs, r.Dismissal.Errors...))
			})
		},
	}

	slot.register(cmd)
	cmd.Flags().BoolVar(&skipped, "skipped", false, "record the dose as skipped")
	return cmd
}
