package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/medremind/internal/engine"
)

// Views are the JSON/text renderings of engine reports. Errors are carried
// as strings since error values do not encode.

type scheduleView struct {
	Days      int      `json:"days,omitempty"`
	Cancelled int      `json:"cancelled,omitempty"`
	Scheduled int      `json:"scheduled"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func newScheduleView(r engine.ScheduleReport) scheduleView {
	return scheduleView{
		Scheduled: r.Scheduled,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Errors:    errorStrings(r.Errors),
	}
}

func (v scheduleView) String() string {
	var b strings.Builder
	if v.Days > 0 {
		fmt.Fprintf(&b, "days=%d ", v.Days)
	}
	if v.Cancelled > 0 {
		fmt.Fprintf(&b, "cancelled=%d ", v.Cancelled)
	}
	fmt.Fprintf(&b, "scheduled=%d skipped=%d failed=%d", v.Scheduled, v.Skipped, v.Failed)
	return b.String()
}

type topUpView struct {
	TargetDays int `json:"target_days"`
	Schedules  int `json:"schedules"`
	scheduleView
}

func newTopUpView(r engine.TopUpReport) topUpView {
	return topUpView{TargetDays: r.TargetDays, Schedules: r.Schedules, scheduleView: newScheduleView(r.ScheduleReport)}
}

func (v topUpView) String() string {
	return fmt.Sprintf("target_days=%d schedules=%d %s", v.TargetDays, v.Schedules, v.scheduleView)
}

type rebalanceView struct {
	TargetDays int       `json:"target_days"`
	Trimmed    int       `json:"trimmed"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	TopUp      topUpView `json:"top_up"`
}

func (v rebalanceView) String() string {
	return fmt.Sprintf("target_days=%d trimmed=%d failed=%d top_up: %s", v.TargetDays, v.Trimmed, v.Failed, v.TopUp)
}

type reconcileView struct {
	Expired        int64    `json:"expired"`
	OrphanMappings int      `json:"orphan_mappings"`
	OrphanAlerts   int      `json:"orphan_alerts"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors,omitempty"`
}

func (v reconcileView) String() string {
	return fmt.Sprintf("expired=%d orphan_mappings=%d orphan_alerts=%d failed=%d",
		v.Expired, v.OrphanMappings, v.OrphanAlerts, v.Failed)
}

type fixView struct {
	Removed int      `json:"removed"`
	Invalid []string `json:"invalid_schedule_ids,omitempty"`
	Failed  int      `json:"failed"`
}

func (v fixView) String() string {
	return fmt.Sprintf("removed=%d invalid=[%s] failed=%d", v.Removed, strings.Join(v.Invalid, " "), v.Failed)
}

type cancelView struct {
	Outcome        engine.CancelOutcome `json:"outcome"`
	NotificationID string               `json:"notification_id,omitempty"`
	Error          string               `json:"error,omitempty"`
}

func newCancelView(r engine.CancelResult) cancelView {
	v := cancelView{Outcome: r.Outcome, NotificationID: r.NotificationID}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func (v cancelView) String() string {
	if v.NotificationID != "" {
		return fmt.Sprintf("%s (replacement %s)", v.Outcome, v.NotificationID)
	}
	return v.Outcome.String()
}

type cancelAllView struct {
	Outcomes map[string]int `json:"outcomes"`
	Failed   int            `json:"failed"`
	Errors   []string       `json:"errors,omitempty"`
}

func newCancelAllView(r engine.CancelAllReport) cancelAllView {
	v := cancelAllView{Outcomes: make(map[string]int), Failed: r.Failed, Errors: errorStrings(r.Errors)}
	for o, n := range r.Outcomes {
		v.Outcomes[o.String()] = n
	}
	return v
}

func (v cancelAllView) String() string {
	keys := make([]string, 0, len(v.Outcomes))
	for k := range v.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v.Outcomes[k]))
	}
	parts = append(parts, fmt.Sprintf("failed=%d", v.Failed))
	return strings.Join(parts, " ")
}

type doseView struct {
	Reminder  cancelView `json:"reminder"`
	FollowUp  cancelView `json:"follow_up"`
	Evaluated int        `json:"evaluated"`
	Dismissed int        `json:"dismissed"`
	Failed    int        `json:"failed"`
	Errors    []string   `json:"errors,omitempty"`
}

func newDoseView(r engine.DoseReport) doseView {
	return doseView{
		Reminder:  newCancelView(r.Reminder),
		FollowUp:  newCancelView(r.FollowUp),
		Evaluated: r.Dismissal.Evaluated,
		Dismissed: r.Dismissal.Dismissed,
		Failed:    r.Dismissal.Failed,
		Errors:    errorStrings(r.Dismissal.Errors),
	}
}

func (v doseView) String() string {
	return fmt.Sprintf("reminder=%s follow_up=%s dismissed=%d/%d", v.Reminder, v.FollowUp, v.Dismissed, v.Evaluated)
}

type checkinChangeView struct {
	Dismissed int          `json:"dismissed"`
	Cancelled bool         `json:"cancelled"`
	TopUp     scheduleView `json:"top_up"`
	Errors    []string     `json:"errors,omitempty"`
}

func (v checkinChangeView) String() string {
	return fmt.Sprintf("dismissed=%d cancelled=%t top_up: %s", v.Dismissed, v.Cancelled, v.TopUp)
}
