package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medremind/internal/model"
)

// alertView is one outstanding alert and the mappings pointing at it.
type alertView struct {
	ID        string          `json:"id"`
	Trigger   time.Time       `json:"trigger"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Presented bool            `json:"presented,omitempty"`
	Mappings  []model.Mapping `json:"mappings"`
}

type statusView struct {
	Today    model.Date      `json:"today"`
	Cap      int             `json:"cap"`
	Pending  int             `json:"pending"`
	Alerts   []alertView     `json:"alerts"`
	Unmapped []model.Mapping `json:"unmapped,omitempty"`
}

func (v statusView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "today %s: %d/%d alerts pending\n", v.Today, v.Pending, v.Cap)
	for _, a := range v.Alerts {
		mark := ""
		if a.Presented {
			mark = " (presented)"
		}
		fmt.Fprintf(&b, "%s  %s  %q%s\n", a.Trigger.Format("2006-01-02 15:04"), a.ID, a.Title, mark)
		for _, m := range a.Mappings {
			fmt.Fprintf(&b, "    %s\n", describeMapping(m))
		}
	}
	if len(v.Unmapped) > 0 {
		fmt.Fprintf(&b, "mappings without an alert:\n")
		for _, m := range v.Unmapped {
			fmt.Fprintf(&b, "    %s -> %s\n", describeMapping(m), m.NotificationID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeMapping(m model.Mapping) string {
	if m.MedicationID == nil {
		return fmt.Sprintf("check-in %s", m.Date)
	}
	s := fmt.Sprintf("%s/%s %s %s", m.MedID(), m.SchedID(), m.Date, m.NotificationType)
	if m.IsGrouped {
		s += " [group " + m.Group() + "]"
	}
	return s
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show outstanding alerts and their mappings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				ctx := cmd.Context()
				scheduled, err := rt.queue.Scheduled(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list alerts", err)
				}
				presented, err := rt.queue.Presented(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list presented alerts", err)
				}
				mappings, err := rt.store.All(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list mappings", err)
				}

				byAlert := make(map[string][]model.Mapping)
				for _, m := range mappings {
					byAlert[m.NotificationID] = append(byAlert[m.NotificationID], m)
				}

				v := statusView{Today: rt.engine.Today(), Cap: rt.queue.Cap(), Pending: len(scheduled)}
				for _, a := range scheduled {
					v.Alerts = append(v.Alerts, alertView{ID: a.ID, Trigger: a.Trigger, Title: a.Content.Title,
						Category: a.Content.Category, Mappings: byAlert[a.ID]})
					delete(byAlert, a.ID)
				}
				for _, a := range presented {
					v.Alerts = append(v.Alerts, alertView{ID: a.ID, Trigger: a.DeliveredAt, Title: a.Content.Title,
						Category: a.Content.Category, Presented: true, Mappings: byAlert[a.ID]})
					delete(byAlert, a.ID)
				}
				sort.SliceStable(v.Alerts, func(i, j int) bool { return v.Alerts[i].Trigger.Before(v.Alerts[j].Trigger) })

				for _, m := range mappings {
					if _, ok := byAlert[m.NotificationID]; ok {
						v.Unmapped = append(v.Unmapped, m)
					}
				}
				return out.Success(v)
			})
		},
	}
}

type daysView struct {
	SlotsPerDay int `json:"slots_per_day"`
	Days        int `json:"days"`
	Cap         int `json:"cap"`
	Reserved    int `json:"reserved"`
}

func (v daysView) String() string {
	return fmt.Sprintf("%d days (%d slots/day, cap %d, %d reserved)", v.Days, v.SlotsPerDay, v.Cap, v.Reserved)
}

// NewDaysCommand creates the days command.
func NewDaysCommand(rootOpts *RootOptions) *cobra.Command {
	var slots int

	cmd := &cobra.Command{
		Use:   "days",
		Short: "Show how many days of reminders fit in the budget",
		Long: `Show the scheduling horizon the budget allows. Without --slots the
slots per day are counted from the active schedules.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return withRuntime(rootOpts, cmd.ErrOrStderr(), func(rt *runtime) error {
				budget := rt.engine.Budget()
				v := daysView{SlotsPerDay: slots, Cap: budget.Cap, Reserved: budget.Reserved}
				if slots <= 0 {
					days, pairs, err := rt.engine.TargetDays(cmd.Context())
					if err != nil {
						return WrapExitError(ExitFailure, "failed to read schedules", err)
					}
					n, err := rt.engine.SlotsPerDay(cmd.Context(), pairs)
					if err != nil {
						return WrapExitError(ExitFailure, "failed to read settings", err)
					}
					v.SlotsPerDay, v.Days = n, days
				} else {
					v.Days = budget.CalculateDays(slots)
				}
				return out.Success(v)
			})
		},
	}

	cmd.Flags().IntVar(&slots, "slots", 0, "alerts needed per day (default: count active schedules)")
	return cmd
}
