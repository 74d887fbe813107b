package engine

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// ScheduleReport summarizes a scheduling pass.
type ScheduleReport struct {
	Scheduled int // OS alerts created
	Skipped   int // slots already covered or already past
	Failed    int
	Errors    []error
}

func (r *ScheduleReport) merge(other ScheduleReport) {
	r.Scheduled += other.Scheduled
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

func (r *ScheduleReport) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err)
}

// bucket is every member due at one clock time.
type bucket struct {
	key     string
	members []member
}

// ScheduleForDays schedules every enabled schedule of every active
// medication for the next days days, starting today.
func (e *Engine) ScheduleForDays(ctx context.Context, days int) (ScheduleReport, error) {
	pairs, err := medication.ActivePairs(ctx, e.meds)
	if err != nil {
		return ScheduleReport{}, err
	}
	return e.ScheduleGroupedForDays(ctx, pairs, days), nil
}

// ScheduleGroupedForDays schedules reminders and follow-ups for pairs over
// days days starting today. Pairs due at the same clock time share one alert.
// Slots that already have a mapping are skipped, so repeated calls never
// duplicate alerts.
func (e *Engine) ScheduleGroupedForDays(ctx context.Context, pairs []model.Pair, days int) ScheduleReport {
	var report ScheduleReport
	buckets := e.partition(ctx, pairs, &report)
	today := e.Today()

	for offset := 0; offset < days; offset++ {
		date := today.AddDays(offset)
		for _, b := range buckets {
			report.merge(e.scheduleBucketDay(ctx, b, date))
		}
	}
	return report
}

// partition resolves settings for every pair and buckets them by clock time.
// Pairs whose settings cannot be read are reported and left out.
func (e *Engine) partition(ctx context.Context, pairs []model.Pair, report *ScheduleReport) []bucket {
	byKey := make(map[string][]member)
	for _, p := range pairs {
		settings, err := e.meds.EffectiveSettings(ctx, p.Medication.ID)
		if err != nil {
			oe := &OpError{
				Op:           "partition",
				Code:         CodeInconsistent,
				MedicationID: p.Medication.ID,
				ScheduleID:   p.Schedule.ID,
				Err:          err,
			}
			e.logFailure(oe)
			report.fail(oe)
			continue
		}
		byKey[p.Schedule.Time] = append(byKey[p.Schedule.Time], member{pair: p, settings: settings})
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]bucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, bucket{key: k, members: byKey[k]})
	}
	return out
}

// scheduleBucketDay ensures the reminder and follow-up alerts of one bucket
// exist on date.
func (e *Engine) scheduleBucketDay(ctx context.Context, b bucket, date model.Date) ScheduleReport {
	var report ScheduleReport

	trigger, err := e.triggerAt(date, b.key)
	if err != nil {
		oe := &OpError{Op: "schedule_day", Code: CodeInconsistent, Date: date, Err: err}
		e.logFailure(oe)
		report.fail(oe)
		return report
	}
	if !trigger.After(e.now()) {
		report.Skipped++
		return report
	}

	if !e.ensureAlert(ctx, b.key, b.members, date, model.TypeReminder, trigger, &report) {
		return report
	}

	var enabled []member
	var settings []model.Settings
	for _, m := range b.members {
		if m.settings.FollowUpEnabled() {
			enabled = append(enabled, m)
			settings = append(settings, m.settings)
		}
	}
	if len(enabled) == 0 {
		return report
	}
	delay := model.MergeSettings(settings...).FollowUpDelay
	e.ensureAlert(ctx, b.key, enabled, date, model.TypeFollowUp, trigger.Add(delay), &report)
	return report
}

// ensureAlert makes sure one alert of typ covers every member on date.
//
// If every member already has a mapping nothing happens. If none has, one
// alert is scheduled (grouped when there are two or more members). If only
// some have, the partial coverage is replaced: a fresh alert for the whole
// set is scheduled, the stale mappings are swapped out in the same store
// transaction, and only then are the stale OS alerts cancelled.
//
// Returns false when scheduling failed.
func (e *Engine) ensureAlert(
	ctx context.Context,
	groupKey string,
	members []member,
	date model.Date,
	typ model.NotificationType,
	trigger time.Time,
	report *ScheduleReport,
) bool {
	var existing []model.Mapping
	for _, m := range members {
		mapping, err := e.store.GetMapping(ctx, m.medicationID(), m.scheduleID(), date, typ)
		if err != nil {
			oe := slot{m.medicationID(), m.scheduleID(), date, typ}.err("ensure_alert", CodeStore, err)
			e.logFailure(oe)
			report.fail(oe)
			return false
		}
		if mapping != nil {
			existing = append(existing, *mapping)
		}
	}

	if len(existing) == len(members) {
		report.Skipped++
		return true
	}

	var content model.Content
	inputs := make([]MappingInput, len(members))
	if len(members) == 1 {
		content = singleContent(members[0], date, typ)
	} else {
		content = groupContent(members, date, groupKey, typ)
	}
	for i, m := range members {
		inputs[i] = MappingInput{
			MedicationID:   m.medicationID(),
			ScheduleID:     m.scheduleID(),
			Date:           date,
			Type:           typ,
			Source:         model.SourceMedication,
			MedicationName: m.name(),
		}
		if len(members) > 1 {
			inputs[i].GroupKey = groupKey
		}
	}

	if len(existing) == 0 {
		if _, err := e.ScheduleAtomic(ctx, content, trigger, inputs...); err != nil {
			report.fail(err)
			return false
		}
		report.Scheduled++
		return true
	}

	staleAlerts, staleIDs, err := e.staleCoverage(ctx, existing)
	if err != nil {
		oe := slotOf(existing[0]).err("ensure_alert", CodeStore, err)
		e.logFailure(oe)
		report.fail(oe)
		return false
	}
	if _, err := e.scheduleReplacing(ctx, "regroup_partial", content, trigger, staleIDs, inputs); err != nil {
		report.fail(err)
		return false
	}
	report.Scheduled++

	for _, nid := range staleAlerts {
		if err := e.notifier.Cancel(ctx, nid); err != nil {
			e.logFailure(&OpError{Op: "regroup_partial", Code: CodeOSCall, Date: date, NotificationID: nid, Err: err})
		}
	}
	e.log.WithFields(logrus.Fields{
		"op":                "regroup_partial",
		"date":              string(date),
		"notification_type": string(typ),
		"members":           len(members),
		"replaced":          len(staleIDs),
	}).Info("partial coverage replaced by one alert")
	return true
}

// staleCoverage returns the distinct alert ids behind existing and every
// mapping that points at them.
func (e *Engine) staleCoverage(ctx context.Context, existing []model.Mapping) ([]string, []string, error) {
	seenAlert := make(map[string]bool)
	seenMapping := make(map[string]bool)
	var alerts, ids []string
	for _, m := range existing {
		if seenAlert[m.NotificationID] {
			continue
		}
		seenAlert[m.NotificationID] = true
		alerts = append(alerts, m.NotificationID)

		shared, err := e.store.GetByNotificationID(ctx, m.NotificationID)
		if err != nil {
			return nil, nil, err
		}
		for _, s := range shared {
			if !seenMapping[s.ID] {
				seenMapping[s.ID] = true
				ids = append(ids, s.ID)
			}
		}
	}
	return alerts, ids, nil
}
