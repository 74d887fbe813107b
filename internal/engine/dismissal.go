package engine

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/medremind/internal/model"
)

// Strategy names the rule that produced a dismissal decision.
type Strategy string

const (
	StrategyDatabaseID   Strategy = "database_id"
	StrategyTimeWindow   Strategy = "time_window"
	StrategyContentMatch Strategy = "content_match"
	StrategyCategory     Strategy = "category_match"
	StrategyNone         Strategy = "none"
)

// Confidence of each strategy, highest first.
const (
	ConfidenceDatabaseID   = 100
	ConfidenceTimeWindow   = 80
	ConfidenceContentMatch = 60
	ConfidenceCategory     = 40
)

// DismissalInput is everything DecideDismissal looks at. It is gathered by
// DismissForMedicationDose; tests build it directly.
type DismissalInput struct {
	Alert          model.PresentedAlert
	MedicationID   string
	ScheduleID     string
	MedicationName string
	Now            time.Time

	// AlertMappings are the mappings whose notification id is Alert.ID.
	AlertMappings []model.Mapping

	// MedicationMappings are the medication's mappings for the dose date.
	MedicationMappings []model.Mapping

	// Unlogged names the other members of Alert's group whose dose for the
	// slot is neither logged nor skipped.
	Unlogged []string

	TimeWindow     time.Duration
	CategoryWindow time.Duration
}

// DismissalDecision is the outcome of DecideDismissal.
type DismissalDecision struct {
	Dismiss    bool     `json:"dismiss"`
	Strategy   Strategy `json:"strategy"`
	Confidence int      `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// DecideDismissal runs the ranked strategies and returns the first match.
//
// The exact id match wins outright, but a grouped alert is only dismissed
// once every other member has been acted on. The fallbacks apply only to
// alerts the store knows nothing about, and never to grouped alerts or to
// alerts whose payload names other medications. Check-in alerts are never
// dismissed here.
func DecideDismissal(in DismissalInput) DismissalDecision {
	if in.Alert.Content.IsCheckin() {
		return DismissalDecision{Strategy: StrategyNone, Reason: "daily check-in"}
	}

	for _, m := range in.AlertMappings {
		if !m.Matches(in.MedicationID, in.ScheduleID) {
			continue
		}
		if m.IsGrouped && len(in.Unlogged) > 0 {
			return DismissalDecision{
				Strategy:   StrategyDatabaseID,
				Confidence: ConfidenceDatabaseID,
				Reason:     "not all medications logged: " + strings.Join(in.Unlogged, ", "),
			}
		}
		return DismissalDecision{Dismiss: true, Strategy: StrategyDatabaseID, Confidence: ConfidenceDatabaseID}
	}
	if len(in.AlertMappings) > 0 {
		return DismissalDecision{Strategy: StrategyNone, Reason: "alert belongs to other medications"}
	}

	if !fallbackEligible(in) {
		return DismissalDecision{Strategy: StrategyNone, Reason: "alert not attributable to medication"}
	}

	for _, m := range in.MedicationMappings {
		if m.SchedID() != in.ScheduleID || m.ScheduledTriggerTime == nil {
			continue
		}
		if within(*m.ScheduledTriggerTime, in.Now, in.TimeWindow) {
			return DismissalDecision{Dismiss: true, Strategy: StrategyTimeWindow, Confidence: ConfidenceTimeWindow}
		}
	}

	if in.MedicationName != "" {
		name := fold(in.MedicationName)
		if strings.Contains(fold(in.Alert.Content.Title), name) || strings.Contains(fold(in.Alert.Content.Body), name) {
			return DismissalDecision{Dismiss: true, Strategy: StrategyContentMatch, Confidence: ConfidenceContentMatch}
		}
	}

	switch in.Alert.Content.Category {
	case model.CategoryReminder, model.CategoryFollowUp:
		if !in.Alert.DeliveredAt.IsZero() && within(in.Alert.DeliveredAt, in.Now, in.CategoryWindow) {
			return DismissalDecision{Dismiss: true, Strategy: StrategyCategory, Confidence: ConfidenceCategory}
		}
	}

	return DismissalDecision{Strategy: StrategyNone, Reason: "no strategy matched"}
}

// fallbackEligible rejects alerts the fallback strategies cannot safely attribute.
func fallbackEligible(in DismissalInput) bool {
	c := in.Alert.Content
	if !c.IsMedication() || c.Payload.Grouped || c.Category == model.CategoryGroupedReminder {
		return false
	}
	if len(c.Payload.MedicationIDs) == 0 {
		return true
	}
	for _, id := range c.Payload.MedicationIDs {
		if id == in.MedicationID {
			return true
		}
	}
	return false
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// fold normalizes s for case- and composition-insensitive comparison.
// A Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// DismissReport summarizes DismissForMedicationDose.
type DismissReport struct {
	Evaluated int
	Dismissed int
	Decisions map[string]DismissalDecision // by alert id
	Failed    int
	Errors    []error
}

// DismissForMedicationDose removes presented alerts made obsolete by a dose
// logged in the app. Each presented alert is evaluated and dismissed
// independently, so one failure does not block the rest.
func (e *Engine) DismissForMedicationDose(ctx context.Context, medicationID, scheduleID string, date model.Date) DismissReport {
	const op = "dismiss_for_dose"
	report := DismissReport{Decisions: make(map[string]DismissalDecision)}
	target := slot{medicationID: medicationID, scheduleID: scheduleID, date: date}

	presented, err := e.notifier.Presented(ctx)
	if err != nil {
		oe := target.err(op, CodeOSCall, err)
		e.logFailure(oe)
		report.Failed++
		report.Errors = append(report.Errors, oe)
		return report
	}

	// A failed lookup only narrows the fallback strategies; evaluation goes on
	// but the failure is reported.
	var name string
	if med, err := e.meds.Medication(ctx, medicationID); err != nil {
		oe := target.err(op, CodeInconsistent, err)
		e.logFailure(oe)
		report.Failed++
		report.Errors = append(report.Errors, oe)
	} else if med != nil {
		name = med.Name
	}

	var dayMappings []model.Mapping
	if all, err := e.store.GetByMedication(ctx, medicationID); err != nil {
		oe := target.err(op, CodeStore, err)
		e.logFailure(oe)
		report.Failed++
		report.Errors = append(report.Errors, oe)
	} else {
		for _, m := range all {
			if m.Date == date {
				dayMappings = append(dayMappings, m)
			}
		}
	}

	for _, alert := range presented {
		if alert.Content.IsCheckin() {
			continue
		}
		report.Evaluated++

		decision, err := e.evaluateDismissal(ctx, alert, target, name, dayMappings)
		if err != nil {
			e.logFailure(err)
			report.Failed++
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Decisions[alert.ID] = decision
		if !decision.Dismiss {
			continue
		}

		if err := e.notifier.Dismiss(ctx, alert.ID); err != nil {
			oe := target.err(op, CodeOSCall, err)
			oe.NotificationID = alert.ID
			e.logFailure(oe)
			report.Failed++
			report.Errors = append(report.Errors, oe)
			continue
		}
		report.Dismissed++
		e.log.WithFields(logrus.Fields{
			"op":              op,
			"medication_id":   medicationID,
			"schedule_id":     scheduleID,
			"notification_id": alert.ID,
			"strategy":        string(decision.Strategy),
			"confidence":      decision.Confidence,
		}).Info("presented alert dismissed")
	}
	return report
}

func (e *Engine) evaluateDismissal(
	ctx context.Context,
	alert model.PresentedAlert,
	target slot,
	name string,
	dayMappings []model.Mapping,
) (DismissalDecision, error) {
	alertMappings, err := e.store.GetByNotificationID(ctx, alert.ID)
	if err != nil {
		oe := target.err("dismiss_for_dose", CodeStore, err)
		oe.NotificationID = alert.ID
		return DismissalDecision{}, oe
	}

	var unlogged []string
	for _, m := range alertMappings {
		if m.Matches(target.medicationID, target.scheduleID) {
			continue
		}
		done, err := e.meds.DoseRecorded(ctx, m.MedID(), m.SchedID(), m.Date)
		if err != nil {
			oe := slotOf(m).err("dismiss_for_dose", CodeInconsistent, err)
			oe.NotificationID = alert.ID
			return DismissalDecision{}, oe
		}
		if !done {
			label := model.Deref(m.MedicationName)
			if label == "" {
				label = m.MedID()
			}
			unlogged = append(unlogged, label)
		}
	}

	return DecideDismissal(DismissalInput{
		Alert:              alert,
		MedicationID:       target.medicationID,
		ScheduleID:         target.scheduleID,
		MedicationName:     name,
		Now:                e.now(),
		AlertMappings:      alertMappings,
		MedicationMappings: dayMappings,
		Unlogged:           unlogged,
		TimeWindow:         e.dismissal.TimeWindow,
		CategoryWindow:     e.dismissal.CategoryWindow,
	}), nil
}

// DoseReport summarizes HandleDoseLogged.
type DoseReport struct {
	Reminder  CancelResult
	FollowUp  CancelResult
	Dismissal DismissReport
}

// HandleDoseLogged reacts to a dose being logged or skipped in the app: the
// slot's pending follow-up is cancelled, its reminder too if it has not
// fired yet, and obsolete presented alerts are dismissed.
func (e *Engine) HandleDoseLogged(ctx context.Context, medicationID, scheduleID string, date model.Date) DoseReport {
	var report DoseReport

	report.Reminder = CancelResult{Outcome: OutcomeNotFound}
	reminder, err := e.store.GetMapping(ctx, medicationID, scheduleID, date, model.TypeReminder)
	switch {
	case err != nil:
		oe := slot{medicationID, scheduleID, date, model.TypeReminder}.err("handle_dose", CodeStore, err)
		e.logFailure(oe)
		report.Reminder = CancelResult{Outcome: OutcomeFailed, Err: oe}
	case reminder != nil && reminder.ScheduledTriggerTime != nil && reminder.ScheduledTriggerTime.After(e.now()):
		report.Reminder = e.CancelForDate(ctx, medicationID, scheduleID, date, model.TypeReminder)
	}

	report.FollowUp = e.CancelForDate(ctx, medicationID, scheduleID, date, model.TypeFollowUp)
	report.Dismissal = e.DismissForMedicationDose(ctx, medicationID, scheduleID, date)
	return report
}
