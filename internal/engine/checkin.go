package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/model"
)

// CheckinDecision is the delivery-time verdict for a check-in alert.
type CheckinDecision struct {
	Present bool   `json:"present"`
	Reason  string `json:"reason"`
}

// ScheduleCheckins ensures a check-in alert exists for each of the next
// configured days, skipping dates whose status is already logged and
// triggers that have passed.
func (e *Engine) ScheduleCheckins(ctx context.Context) ScheduleReport {
	var report ScheduleReport
	if !e.checkin.Enabled {
		return report
	}

	today := e.Today()
	for i := 0; i < e.checkin.Days; i++ {
		e.ensureCheckin(ctx, today.AddDays(i), &report)
	}
	return report
}

// TopUpCheckins refills the check-in look-ahead window if it has fewer
// alerts than configured.
func (e *Engine) TopUpCheckins(ctx context.Context) ScheduleReport {
	if !e.checkin.Enabled {
		return ScheduleReport{}
	}

	count, err := e.store.CountFutureCheckins(ctx, e.Today())
	if err != nil {
		oe := &OpError{Op: "top_up_checkins", Code: CodeStore, Err: err}
		e.logFailure(oe)
		return ScheduleReport{Failed: 1, Errors: []error{oe}}
	}
	if count >= e.checkin.Days {
		return ScheduleReport{}
	}
	return e.ScheduleCheckins(ctx)
}

func (e *Engine) ensureCheckin(ctx context.Context, date model.Date, report *ScheduleReport) {
	const op = "schedule_checkin"
	s := slot{date: date, typ: model.TypeDailyCheckin}

	if e.checkins != nil {
		logged, err := e.checkins.StatusLogged(ctx, date)
		if err != nil {
			oe := s.err(op, CodeInconsistent, err)
			e.logFailure(oe)
			report.fail(oe)
			return
		}
		if logged {
			report.Skipped++
			return
		}
	}

	existing, err := e.store.GetCheckin(ctx, date)
	if err != nil {
		oe := s.err(op, CodeStore, err)
		e.logFailure(oe)
		report.fail(oe)
		return
	}
	if existing != nil {
		report.Skipped++
		return
	}

	trigger, err := e.triggerAt(date, e.checkin.Time)
	if err != nil {
		oe := s.err(op, CodeInconsistent, err)
		e.logFailure(oe)
		report.fail(oe)
		return
	}
	if !trigger.After(e.now()) {
		report.Skipped++
		return
	}

	_, err = e.ScheduleAtomic(ctx, checkinContent(date, e.checkin.Time), trigger, MappingInput{
		Date:   date,
		Type:   model.TypeDailyCheckin,
		Source: model.SourceDailyCheckin,
	})
	if err != nil {
		report.fail(err)
		return
	}
	report.Scheduled++
}

// ShouldPresentCheckin decides whether a delivered check-in for date is
// shown. It is suppressed during an active episode, when an episode exists
// for the day, or when the day's status is already logged. Any error
// evaluating those conditions means the alert is shown.
func (e *Engine) ShouldPresentCheckin(ctx context.Context, date model.Date) CheckinDecision {
	if e.checkins == nil {
		return CheckinDecision{Present: true, Reason: "no check-in source"}
	}

	checks := []struct {
		reason string
		fn     func() (bool, error)
	}{
		{"episode active", func() (bool, error) { return e.checkins.ActiveEpisode(ctx) }},
		{"episode recorded for day", func() (bool, error) { return e.checkins.EpisodeOn(ctx, date) }},
		{"status already logged", func() (bool, error) { return e.checkins.StatusLogged(ctx, date) }},
	}
	for _, c := range checks {
		suppress, err := c.fn()
		if err != nil {
			e.log.WithFields(logrus.Fields{"op": "should_present_checkin", "date": string(date)}).
				WithError(err).Warn("check-in condition unavailable; presenting")
			return CheckinDecision{Present: true, Reason: "evaluation failed"}
		}
		if suppress {
			return CheckinDecision{Present: false, Reason: c.reason}
		}
	}
	return CheckinDecision{Present: true, Reason: "no suppression condition"}
}

// CheckinChangeReport summarizes OnCheckinStatusChanged.
type CheckinChangeReport struct {
	Dismissed int
	Cancelled bool
	TopUp     ScheduleReport
	Errors    []error
}

// OnCheckinStatusChanged reacts to a status being logged or cleared for
// date: presented check-ins for the date are dismissed, its pending alert is
// cancelled with its mapping, and the look-ahead window is topped up.
func (e *Engine) OnCheckinStatusChanged(ctx context.Context, date model.Date) CheckinChangeReport {
	const op = "checkin_status_changed"
	var report CheckinChangeReport
	s := slot{date: date, typ: model.TypeDailyCheckin}

	presented, err := e.notifier.Presented(ctx)
	if err != nil {
		oe := s.err(op, CodeOSCall, err)
		e.logFailure(oe)
		report.Errors = append(report.Errors, oe)
	}
	for _, a := range presented {
		if !a.Content.IsCheckin() || a.Content.Payload.Date != date {
			continue
		}
		if err := e.notifier.Dismiss(ctx, a.ID); err != nil {
			oe := s.err(op, CodeOSCall, err)
			oe.NotificationID = a.ID
			e.logFailure(oe)
			report.Errors = append(report.Errors, oe)
			continue
		}
		report.Dismissed++
	}

	mapping, err := e.store.GetCheckin(ctx, date)
	switch {
	case err != nil:
		oe := s.err(op, CodeStore, err)
		e.logFailure(oe)
		report.Errors = append(report.Errors, oe)
	case mapping != nil:
		report.Cancelled = e.CancelAtomic(ctx, mapping.NotificationID)
	}

	report.TopUp = e.TopUpCheckins(ctx)
	return report
}
