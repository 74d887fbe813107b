package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/model"
)

// MappingInput is what a caller knows about an alert before the OS assigns
// it an identifier. One OS alert may carry several inputs (a group).
type MappingInput struct {
	MedicationID string
	ScheduleID   string
	Date         model.Date
	Type         model.NotificationType
	Source       model.SourceType

	// GroupKey is the shared clock time of a grouped alert, "" when ungrouped.
	GroupKey string

	// MedicationName overrides the name parsed from the alert title.
	MedicationName string

	// TriggerTime overrides the stored scheduled trigger, preserving the
	// original slot when an alert is rebuilt.
	TriggerTime *time.Time
}

func (in MappingInput) slot() slot {
	return slot{medicationID: in.MedicationID, scheduleID: in.ScheduleID, date: in.Date, typ: in.Type}
}

// ScheduleAtomic schedules one OS alert and persists a mapping for every
// input as a unit. If the store write fails the alert is cancelled again
// and the store error is returned; a failed compensation is logged but
// never masks the original error.
func (e *Engine) ScheduleAtomic(
	ctx context.Context,
	content model.Content,
	trigger time.Time,
	inputs ...MappingInput,
) ([]model.Mapping, error) {
	return e.scheduleReplacing(ctx, "schedule_atomic", content, trigger, nil, inputs)
}

// scheduleReplacing is ScheduleAtomic that also deletes replaceIDs in the
// same store transaction as the insert. Deletes run before inserts so a
// rebuilt group never collides with its own stale rows.
func (e *Engine) scheduleReplacing(
	ctx context.Context,
	op string,
	content model.Content,
	trigger time.Time,
	replaceIDs []string,
	inputs []MappingInput,
) ([]model.Mapping, error) {
	if len(inputs) == 0 {
		return nil, &OpError{Op: op, Code: CodeInconsistent, Err: errors.New("no mapping inputs")}
	}
	first := inputs[0].slot()

	nid, err := e.notifier.Schedule(ctx, content, trigger)
	if err != nil {
		oe := first.err(op, CodeOSCall, err)
		e.logFailure(oe)
		return nil, oe
	}
	if nid == "" {
		oe := first.err(op, CodeNoIdentifier, errors.New("scheduler returned no identifier"))
		e.logFailure(oe)
		return nil, oe
	}

	mappings := e.buildMappings(nid, content, trigger, inputs)

	if len(replaceIDs) > 0 {
		err = e.store.ReplaceMappings(ctx, replaceIDs, mappings)
	} else {
		err = e.store.CreateMappings(ctx, mappings)
	}
	if err != nil {
		oe := first.err(op, CodeStore, err)
		oe.NotificationID = nid
		e.logFailure(oe)

		if cerr := e.notifier.Cancel(ctx, nid); cerr != nil {
			e.log.WithFields(oe.Fields()).WithError(cerr).Error("compensating cancel failed")
		}
		return nil, oe
	}

	e.log.WithFields(logrus.Fields{
		"op":                op,
		"notification_id":   nid,
		"notification_type": string(first.typ),
		"date":              string(first.date),
		"mappings":          len(mappings),
	}).Debug("alert scheduled")
	return mappings, nil
}

func (e *Engine) buildMappings(nid string, content model.Content, trigger time.Time, inputs []MappingInput) []model.Mapping {
	now := e.now()
	parsedName := MedicationNameFromTitle(content.Title)

	out := make([]model.Mapping, 0, len(inputs))
	for _, in := range inputs {
		stored := trigger
		if in.TriggerTime != nil {
			stored = *in.TriggerTime
		}
		name := in.MedicationName
		if name == "" {
			name = parsedName
		}
		source := in.Source
		if source == "" {
			source = model.SourceMedication
		}

		out = append(out, model.Mapping{
			ID:                   e.ids.Generate(),
			MedicationID:         model.Ptr(in.MedicationID),
			ScheduleID:           model.Ptr(in.ScheduleID),
			Date:                 in.Date,
			NotificationID:       nid,
			NotificationType:     in.Type,
			IsGrouped:            in.GroupKey != "",
			GroupKey:             model.Ptr(in.GroupKey),
			SourceType:           source,
			MedicationName:       model.Ptr(name),
			ScheduledTriggerTime: &stored,
			NotificationTitle:    model.Ptr(content.Title),
			NotificationBody:     model.Ptr(content.Body),
			CategoryIdentifier:   model.Ptr(content.Category),
			CreatedAt:            now,
		})
	}
	return out
}

// BatchItem is one alert for ScheduleBatch.
type BatchItem struct {
	Content model.Content
	Trigger time.Time
	Inputs  []MappingInput
}

// BatchResult reports a ScheduleBatch run.
type BatchResult struct {
	Scheduled []model.Mapping
	Failed    int
	Errors    []error
}

// ScheduleBatch applies ScheduleAtomic to each item independently: a failed
// item does not stop the ones after it.
func (e *Engine) ScheduleBatch(ctx context.Context, items []BatchItem) BatchResult {
	var res BatchResult
	for _, item := range items {
		mappings, err := e.ScheduleAtomic(ctx, item.Content, item.Trigger, item.Inputs...)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Scheduled = append(res.Scheduled, mappings...)
	}
	return res
}

// CancelAtomic cancels an OS alert and deletes every mapping referencing it.
// Returns false if either step fails; the failure is logged.
func (e *Engine) CancelAtomic(ctx context.Context, notificationID string) bool {
	if err := e.notifier.Cancel(ctx, notificationID); err != nil {
		e.logFailure(&OpError{Op: "cancel_atomic", Code: CodeOSCall, NotificationID: notificationID, Err: err})
		return false
	}
	if _, err := e.store.DeleteByNotificationID(ctx, notificationID); err != nil {
		e.logFailure(&OpError{Op: "cancel_atomic", Code: CodeStore, NotificationID: notificationID, Err: err})
		return false
	}
	return true
}
