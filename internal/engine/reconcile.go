package engine

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/model"
)

// ReconcileReport summarizes Reconcile.
type ReconcileReport struct {
	Expired        int64 // mappings dated before today
	OrphanMappings int   // mappings whose alert is gone
	OrphanAlerts   int   // medication alerts without a mapping, cancelled
	Failed         int
	Errors         []error
}

// Reconcile heals drift between the OS queue and the Mapping Store.
//
// Repair is one-directional: mappings whose alert is neither scheduled nor
// presented are deleted, and scheduled medication alerts with no mapping are
// cancelled. Non-medication alerts are left alone. Mappings dated before
// today are swept first, so a second run with no change in between finds
// nothing to do.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	const op = "reconcile"
	var report ReconcileReport

	scheduled, err := e.notifier.Scheduled(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeOSCall, Err: err}
		e.logFailure(oe)
		return report, oe
	}
	presented, err := e.notifier.Presented(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeOSCall, Err: err}
		e.logFailure(oe)
		return report, oe
	}

	today := e.Today()
	report.Expired, err = e.store.DeleteBeforeDate(ctx, today)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeStore, Date: today, Err: err}
		e.logFailure(oe)
		report.Failed++
		report.Errors = append(report.Errors, oe)
	}

	mappings, err := e.store.All(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeStore, Err: err}
		e.logFailure(oe)
		return report, oe
	}

	live := make(map[string]bool, len(scheduled)+len(presented))
	for _, a := range scheduled {
		live[a.ID] = true
	}
	for _, a := range presented {
		live[a.ID] = true
	}

	mapped := make(map[string]bool, len(mappings))
	var orphans []string
	for _, m := range mappings {
		if live[m.NotificationID] {
			mapped[m.NotificationID] = true
			continue
		}
		orphans = append(orphans, m.ID)
	}
	if len(orphans) > 0 {
		if err := e.store.DeleteMappings(ctx, orphans); err != nil {
			oe := &OpError{Op: op, Code: CodeStore, Err: err}
			e.logFailure(oe)
			report.Failed++
			report.Errors = append(report.Errors, oe)
		} else {
			report.OrphanMappings = len(orphans)
		}
	}

	for _, a := range scheduled {
		if mapped[a.ID] || !a.Content.IsMedication() {
			continue
		}
		if err := e.notifier.Cancel(ctx, a.ID); err != nil {
			oe := &OpError{Op: op, Code: CodeOSCall, NotificationID: a.ID, Date: a.Content.Payload.Date, Err: err}
			e.logFailure(oe)
			report.Failed++
			report.Errors = append(report.Errors, oe)
			continue
		}
		report.OrphanAlerts++
	}

	e.log.WithFields(logrus.Fields{
		"op":              op,
		"expired":         report.Expired,
		"orphan_mappings": report.OrphanMappings,
		"orphan_alerts":   report.OrphanAlerts,
		"failed":          report.Failed,
	}).Info("reconcile complete")
	return report, nil
}

// FixReport summarizes FixScheduleInconsistencies.
type FixReport struct {
	Removed            int
	InvalidScheduleIDs []string
	Failed             int
}

// FixScheduleInconsistencies cancels every scheduled medication alert,
// single or grouped, that references a schedule no active medication owns
// any more.
func (e *Engine) FixScheduleInconsistencies(ctx context.Context) (FixReport, error) {
	const op = "fix_schedule_inconsistencies"
	var report FixReport

	meds, err := e.meds.ActiveMedications(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeInconsistent, Err: err}
		e.logFailure(oe)
		return report, oe
	}
	valid := make(map[string]bool)
	for _, m := range meds {
		schedules, err := e.meds.Schedules(ctx, m.ID)
		if err != nil {
			oe := &OpError{Op: op, Code: CodeInconsistent, MedicationID: m.ID, Err: err}
			e.logFailure(oe)
			return report, oe
		}
		for _, s := range schedules {
			valid[s.ID] = true
		}
	}

	scheduled, err := e.notifier.Scheduled(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeOSCall, Err: err}
		e.logFailure(oe)
		return report, oe
	}

	invalid := make(map[string]bool)
	for _, a := range scheduled {
		if !a.Content.IsMedication() {
			continue
		}
		var bad []string
		for _, id := range a.Content.Payload.ScheduleIDs {
			if !valid[id] {
				bad = append(bad, id)
			}
		}
		if len(bad) == 0 {
			continue
		}

		e.log.WithFields(logrus.Fields{
			"op":              op,
			"notification_id": a.ID,
			"schedule_ids":    bad,
		}).Warn("alert references missing schedule")

		if !e.CancelAtomic(ctx, a.ID) {
			report.Failed++
			continue
		}
		report.Removed++
		for _, id := range bad {
			invalid[id] = true
		}
	}

	for id := range invalid {
		report.InvalidScheduleIDs = append(report.InvalidScheduleIDs, id)
	}
	sort.Strings(report.InvalidScheduleIDs)
	return report, nil
}

// RescheduleReport summarizes RescheduleAll.
type RescheduleReport struct {
	Cancelled int
	Days      int
	ScheduleReport
}

// RescheduleAll discards every medication alert and mapping and schedules
// the full horizon from scratch. Check-ins are left alone.
func (e *Engine) RescheduleAll(ctx context.Context) (RescheduleReport, error) {
	const op = "reschedule_all"
	var report RescheduleReport

	scheduled, err := e.notifier.Scheduled(ctx)
	if err != nil {
		oe := &OpError{Op: op, Code: CodeOSCall, Err: err}
		e.logFailure(oe)
		return report, oe
	}
	for _, a := range scheduled {
		if !a.Content.IsMedication() {
			continue
		}
		if err := e.notifier.Cancel(ctx, a.ID); err != nil {
			oe := &OpError{Op: op, Code: CodeOSCall, NotificationID: a.ID, Err: err}
			e.logFailure(oe)
			report.fail(oe)
			continue
		}
		report.Cancelled++
	}

	if _, err := e.store.DeleteBySource(ctx, model.SourceMedication); err != nil {
		oe := &OpError{Op: op, Code: CodeStore, Err: err}
		e.logFailure(oe)
		return report, oe
	}

	days, pairs, err := e.TargetDays(ctx)
	if err != nil {
		return report, err
	}
	report.Days = days
	report.merge(e.ScheduleGroupedForDays(ctx, pairs, days))

	e.log.WithFields(logrus.Fields{
		"op":        op,
		"cancelled": report.Cancelled,
		"days":      days,
		"scheduled": report.Scheduled,
		"failed":    report.Failed,
	}).Info("reschedule complete")
	return report, nil
}
