package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// CancelOutcome is the terminal state of CancelForDate.
type CancelOutcome int

const (
	// OutcomeFailed means an OS or store call failed; see CancelResult.Err.
	OutcomeFailed CancelOutcome = iota
	// OutcomeNotFound means no mapping existed: already cancelled or never scheduled.
	OutcomeNotFound
	// OutcomeCancelled means an ungrouped alert was cancelled.
	OutcomeCancelled
	// OutcomeGroupDissolved means the target was the last member of its group.
	OutcomeGroupDissolved
	// OutcomeDemoted means one member remained and got its own ungrouped alert.
	OutcomeDemoted
	// OutcomeRegrouped means two or more members remained and share a new alert.
	OutcomeRegrouped
	// OutcomeRemainderDropped means the remaining members could not be
	// rescheduled (trigger passed or data vanished) and were removed.
	OutcomeRemainderDropped
)

var outcomeNames = map[CancelOutcome]string{
	OutcomeFailed:           "failed",
	OutcomeNotFound:         "not_found",
	OutcomeCancelled:        "cancelled",
	OutcomeGroupDissolved:   "group_dissolved",
	OutcomeDemoted:          "demoted",
	OutcomeRegrouped:        "regrouped",
	OutcomeRemainderDropped: "remainder_dropped",
}

func (o CancelOutcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (o CancelOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *CancelOutcome) UnmarshalText(text []byte) error {
	for k, name := range outcomeNames {
		if name == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown cancel outcome %q", text)
}

// CancelResult reports what CancelForDate did.
type CancelResult struct {
	Outcome CancelOutcome
	// NotificationID is the replacement alert after a demotion or regroup.
	NotificationID string
	Err            error
}

// remainder classifies how many group members are left after removing the target.
type remainder int

const (
	remainderNone remainder = iota
	remainderSingle
	remainderGroup
)

func classify(n int) remainder {
	switch {
	case n <= 0:
		return remainderNone
	case n == 1:
		return remainderSingle
	default:
		return remainderGroup
	}
}

// survivor is a remaining group member whose medication data still resolves.
type survivor struct {
	mapping model.Mapping
	member  member
}

// CancelForDate removes one medication's alert of typ on date.
//
// An ungrouped alert is simply cancelled. For a grouped alert the shared OS
// alert is cancelled, the target's mapping deleted, and the remaining
// members of the same type are repaired: none left dissolves the group, one
// left is demoted to its own ungrouped alert, two or more are rebuilt as a
// new group. Members of other types (e.g. a sibling's follow-up) are never
// touched.
func (e *Engine) CancelForDate(
	ctx context.Context,
	medicationID, scheduleID string,
	date model.Date,
	typ model.NotificationType,
) CancelResult {
	const op = "cancel_for_date"
	target := slot{medicationID, scheduleID, date, typ}

	mapping, err := e.store.GetMapping(ctx, medicationID, scheduleID, date, typ)
	if err != nil {
		return e.cancelFailed(target.err(op, CodeStore, err))
	}
	if mapping == nil {
		return CancelResult{Outcome: OutcomeNotFound}
	}

	if !mapping.IsGrouped {
		return e.cancelUngrouped(ctx, *mapping)
	}

	group, err := e.store.GetByGroup(ctx, mapping.Group(), date)
	if err != nil {
		return e.cancelFailed(target.err(op, CodeStore, err))
	}
	var siblings []model.Mapping
	for _, m := range group {
		if m.NotificationType == typ && m.ID != mapping.ID {
			siblings = append(siblings, m)
		}
	}

	for i, nid := range distinctAlerts(*mapping, siblings) {
		if err := e.notifier.Cancel(ctx, nid); err != nil {
			oe := target.err(op, CodeOSCall, err)
			oe.NotificationID = nid
			if i == 0 {
				return e.cancelFailed(oe)
			}
			e.logFailure(oe)
			return e.abandonGroup(ctx, target, append(siblings, *mapping), oe)
		}
	}
	// From here on the shared alert is gone: every failure must also drop
	// the mappings still pointing at it.
	if err := e.store.DeleteMapping(ctx, mapping.ID); err != nil {
		oe := target.err(op, CodeStore, err)
		e.logFailure(oe)
		return e.abandonGroup(ctx, target, append(siblings, *mapping), oe)
	}

	switch classify(len(siblings)) {
	case remainderNone:
		return e.dissolveGroup(ctx, target, siblings)
	case remainderSingle:
		return e.demoteSurvivor(ctx, target, mapping.Group(), siblings)
	default:
		return e.regroupSurvivors(ctx, target, mapping.Group(), siblings)
	}
}

func (e *Engine) cancelUngrouped(ctx context.Context, m model.Mapping) CancelResult {
	const op = "cancel_for_date"
	s := slotOf(m)

	if err := e.notifier.Cancel(ctx, m.NotificationID); err != nil {
		oe := s.err(op, CodeOSCall, err)
		oe.NotificationID = m.NotificationID
		return e.cancelFailed(oe)
	}
	if err := e.store.DeleteMapping(ctx, m.ID); err != nil {
		return e.cancelFailed(s.err(op, CodeStore, err))
	}
	e.logCancel(s, OutcomeCancelled, m.NotificationID)
	return CancelResult{Outcome: OutcomeCancelled}
}

// dissolveGroup removes any stale sibling rows left behind.
func (e *Engine) dissolveGroup(ctx context.Context, target slot, stale []model.Mapping) CancelResult {
	if err := e.store.DeleteMappings(ctx, mappingIDs(stale)); err != nil {
		return e.cancelFailed(target.err("dissolve_group", CodeStore, err))
	}
	e.logCancel(target, OutcomeGroupDissolved, "")
	return CancelResult{Outcome: OutcomeGroupDissolved}
}

// demoteSurvivor gives the one remaining member its own ungrouped alert.
func (e *Engine) demoteSurvivor(ctx context.Context, target slot, groupKey string, siblings []model.Mapping) CancelResult {
	survivors, vanished, err := e.resolveSurvivors(ctx, siblings, target.typ)
	if err != nil {
		oe := target.err("demote_survivor", CodeStore, err)
		e.logFailure(oe)
		return e.abandonGroup(ctx, target, siblings, oe)
	}
	if len(survivors) == 0 {
		return e.dropRemainder(ctx, target, siblings, "remaining member no longer resolves")
	}

	s := survivors[0]
	trigger, err := e.survivorTrigger(s, groupKey, target.typ)
	if err != nil {
		return e.dropRemainder(ctx, target, siblings, err.Error())
	}
	if !trigger.After(e.now()) {
		return e.dropRemainder(ctx, target, siblings, "remaining member's trigger has passed")
	}

	stale := append(mappingIDs(vanished), s.mapping.ID)
	input := MappingInput{
		MedicationID:   s.member.medicationID(),
		ScheduleID:     s.member.scheduleID(),
		Date:           target.date,
		Type:           target.typ,
		Source:         model.SourceMedication,
		MedicationName: s.member.name(),
		TriggerTime:    &trigger,
	}
	content := singleContent(s.member, target.date, target.typ)
	mappings, err := e.scheduleReplacing(ctx, "demote_survivor", content, trigger, stale, []MappingInput{input})
	if err != nil {
		return e.abandonGroup(ctx, target, siblings, err)
	}

	e.logCancel(target, OutcomeDemoted, mappings[0].NotificationID)
	return CancelResult{Outcome: OutcomeDemoted, NotificationID: mappings[0].NotificationID}
}

// regroupSurvivors rebuilds the group around the remaining members.
func (e *Engine) regroupSurvivors(ctx context.Context, target slot, groupKey string, siblings []model.Mapping) CancelResult {
	survivors, vanished, err := e.resolveSurvivors(ctx, siblings, target.typ)
	if err != nil {
		oe := target.err("regroup_survivors", CodeStore, err)
		e.logFailure(oe)
		return e.abandonGroup(ctx, target, siblings, oe)
	}

	// Vanished members shrink the remainder; reclassify before rebuilding.
	switch classify(len(survivors)) {
	case remainderNone:
		return e.dropRemainder(ctx, target, siblings, "no remaining member resolves")
	case remainderSingle:
		return e.demoteSurvivor(ctx, target, groupKey, survivorMappings(survivors, vanished))
	}

	members := make([]member, len(survivors))
	settings := make([]model.Settings, len(survivors))
	for i, s := range survivors {
		members[i] = s.member
		settings[i] = s.member.settings
	}

	var trigger time.Time
	if target.typ == model.TypeFollowUp {
		base, err := e.triggerAt(target.date, groupKey)
		if err != nil {
			return e.dropRemainder(ctx, target, siblings, err.Error())
		}
		trigger = base.Add(model.MergeSettings(settings...).FollowUpDelay)
	} else {
		trigger, err = e.survivorTrigger(survivors[0], groupKey, target.typ)
		if err != nil {
			return e.dropRemainder(ctx, target, siblings, err.Error())
		}
	}
	if !trigger.After(e.now()) {
		return e.dropRemainder(ctx, target, siblings, "group trigger has passed")
	}

	inputs := make([]MappingInput, len(survivors))
	for i, s := range survivors {
		stored := trigger
		if target.typ == model.TypeReminder && s.mapping.ScheduledTriggerTime != nil {
			stored = *s.mapping.ScheduledTriggerTime
		}
		inputs[i] = MappingInput{
			MedicationID:   s.member.medicationID(),
			ScheduleID:     s.member.scheduleID(),
			Date:           target.date,
			Type:           target.typ,
			Source:         model.SourceMedication,
			GroupKey:       groupKey,
			MedicationName: s.member.name(),
			TriggerTime:    &stored,
		}
	}

	content := groupContent(members, target.date, groupKey, target.typ)
	mappings, err := e.scheduleReplacing(ctx, "regroup_survivors", content, trigger, mappingIDs(siblings), inputs)
	if err != nil {
		return e.abandonGroup(ctx, target, siblings, err)
	}

	e.logCancel(target, OutcomeRegrouped, mappings[0].NotificationID)
	return CancelResult{Outcome: OutcomeRegrouped, NotificationID: mappings[0].NotificationID}
}

// resolveSurvivors looks up the medication, schedule and settings of every
// sibling. Siblings whose data vanished, or whose follow-up has since been
// turned off, are returned separately as inconsistencies.
func (e *Engine) resolveSurvivors(ctx context.Context, siblings []model.Mapping, typ model.NotificationType) ([]survivor, []model.Mapping, error) {
	var survivors []survivor
	var vanished []model.Mapping
	for _, m := range siblings {
		med, err := e.meds.Medication(ctx, m.MedID())
		if err != nil {
			return nil, nil, err
		}
		var sched *model.Schedule
		if med != nil && !med.Archived {
			sched, err = medication.FindSchedule(ctx, e.meds, med.ID, m.SchedID())
			if err != nil {
				return nil, nil, err
			}
		}
		if sched == nil || !sched.Enabled {
			e.log.WithFields(slotOf(m).err("resolve_survivor", CodeInconsistent, nil).Fields()).
				Warn("group member no longer resolves; dropping")
			vanished = append(vanished, m)
			continue
		}

		settings, err := e.meds.EffectiveSettings(ctx, med.ID)
		if err != nil {
			return nil, nil, err
		}
		if typ == model.TypeFollowUp && !settings.FollowUpEnabled() {
			vanished = append(vanished, m)
			continue
		}

		survivors = append(survivors, survivor{
			mapping: m,
			member:  member{pair: model.Pair{Medication: *med, Schedule: *sched}, settings: settings},
		})
	}
	return survivors, vanished, nil
}

// survivorTrigger reuses the stored trigger when present so a rebuilt alert
// stays on its original slot, and otherwise recomputes it.
func (e *Engine) survivorTrigger(s survivor, groupKey string, typ model.NotificationType) (time.Time, error) {
	if s.mapping.ScheduledTriggerTime != nil {
		return *s.mapping.ScheduledTriggerTime, nil
	}
	clock := groupKey
	if clock == "" {
		clock = s.member.pair.Schedule.Time
	}
	base, err := e.triggerAt(s.mapping.Date, clock)
	if err != nil {
		return time.Time{}, err
	}
	if typ == model.TypeFollowUp {
		return base.Add(s.member.settings.FollowUpDelay), nil
	}
	return base, nil
}

// dropRemainder deletes the remaining members' mappings without scheduling anything.
func (e *Engine) dropRemainder(ctx context.Context, target slot, remaining []model.Mapping, reason string) CancelResult {
	if err := e.store.DeleteMappings(ctx, mappingIDs(remaining)); err != nil {
		return e.cancelFailed(target.err("drop_remainder", CodeStore, err))
	}
	e.log.WithFields(target.err("drop_remainder", CodeInconsistent, nil).Fields()).
		WithField("remaining", len(remaining)).
		Info(reason)
	return CancelResult{Outcome: OutcomeRemainderDropped}
}

// abandonGroup handles a repair that failed after the shared alert was
// cancelled. The stale mappings are deleted so the slots read as uncovered
// and the next scheduling or top-up pass recreates them. cause has already
// been logged and is returned unchanged.
func (e *Engine) abandonGroup(ctx context.Context, target slot, stale []model.Mapping, cause error) CancelResult {
	if err := e.store.DeleteMappings(ctx, mappingIDs(stale)); err != nil {
		e.log.WithFields(target.err("abandon_group", CodeStore, err).Fields()).
			WithField("stale", len(stale)).
			Error("mappings of cancelled alert left behind until reconcile")
	} else {
		e.log.WithFields(target.err("abandon_group", CodeInconsistent, cause).Fields()).
			WithField("stale", len(stale)).
			Warn("group repair failed; remaining members dropped for rescheduling")
	}
	return CancelResult{Outcome: OutcomeFailed, Err: cause}
}

func (e *Engine) cancelFailed(oe *OpError) CancelResult {
	e.logFailure(oe)
	return CancelResult{Outcome: OutcomeFailed, Err: oe}
}

func (e *Engine) logCancel(s slot, outcome CancelOutcome, nid string) {
	fields := logrus.Fields{
		"op":                "cancel_for_date",
		"medication_id":     s.medicationID,
		"schedule_id":       s.scheduleID,
		"date":              string(s.date),
		"notification_type": string(s.typ),
		"outcome":           outcome.String(),
	}
	if nid != "" {
		fields["notification_id"] = nid
	}
	e.log.WithFields(fields).Debug("alert cancelled")
}

// CancelAllReport summarizes CancelAllForMedication.
type CancelAllReport struct {
	Outcomes map[CancelOutcome]int
	Failed   int
	Errors   []error
}

// CancelAllForMedication cancels every alert of the medication, repairing
// any group it shared. Each slot is handled independently.
func (e *Engine) CancelAllForMedication(ctx context.Context, medicationID string) (CancelAllReport, error) {
	report := CancelAllReport{Outcomes: make(map[CancelOutcome]int)}

	mappings, err := e.store.GetByMedication(ctx, medicationID)
	if err != nil {
		oe := &OpError{Op: "cancel_all_for_medication", Code: CodeStore, MedicationID: medicationID, Err: err}
		e.logFailure(oe)
		return report, oe
	}

	for _, m := range mappings {
		res := e.CancelForDate(ctx, medicationID, m.SchedID(), m.Date, m.NotificationType)
		report.Outcomes[res.Outcome]++
		if res.Err != nil {
			report.Failed++
			report.Errors = append(report.Errors, res.Err)
		}
	}
	return report, nil
}

func distinctAlerts(target model.Mapping, siblings []model.Mapping) []string {
	seen := map[string]bool{target.NotificationID: true}
	out := []string{target.NotificationID}
	for _, s := range siblings {
		if !seen[s.NotificationID] {
			seen[s.NotificationID] = true
			out = append(out, s.NotificationID)
		}
	}
	return out
}

func mappingIDs(ms []model.Mapping) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}

// survivorMappings flattens resolved and vanished members back into rows
// so demoteSurvivor can re-resolve them and clean up the vanished ones.
func survivorMappings(survivors []survivor, vanished []model.Mapping) []model.Mapping {
	out := make([]model.Mapping, 0, len(survivors)+len(vanished))
	for _, s := range survivors {
		out = append(out, s.mapping)
	}
	return append(out, vanished...)
}
