// Package medication defines the read API the engine uses to look up
// medications, their schedules, effective notification settings and dose
// history, plus a YAML-file implementation of it.
package medication

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/medremind/internal/model"
)

// Provider is the medication data the engine reads.
type Provider interface {
	// ActiveMedications returns every non-archived medication.
	ActiveMedications(ctx context.Context) ([]model.Medication, error)

	// Medication returns the medication with id, or nil if it no longer exists.
	Medication(ctx context.Context, id string) (*model.Medication, error)

	// Schedules returns every schedule of the medication, enabled or not.
	Schedules(ctx context.Context, medicationID string) ([]model.Schedule, error)

	// EffectiveSettings resolves the medication's notification settings,
	// falling back to global defaults for anything not overridden.
	EffectiveSettings(ctx context.Context, medicationID string) (model.Settings, error)

	// DoseRecorded reports whether a dose was logged or skipped for the slot.
	DoseRecorded(ctx context.Context, medicationID, scheduleID string, date model.Date) (bool, error)
}

// CheckinSource is the episode and status data consulted when a daily
// check-in alert is delivered.
type CheckinSource interface {
	ActiveEpisode(ctx context.Context) (bool, error)
	EpisodeOn(ctx context.Context, date model.Date) (bool, error)
	StatusLogged(ctx context.Context, date model.Date) (bool, error)
}

// ActivePairs returns every enabled schedule of every active medication,
// ordered by clock time then medication id.
func ActivePairs(ctx context.Context, p Provider) ([]model.Pair, error) {
	meds, err := p.ActiveMedications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active medications: %w", err)
	}

	var pairs []model.Pair
	for _, med := range meds {
		schedules, err := p.Schedules(ctx, med.ID)
		if err != nil {
			return nil, fmt.Errorf("list schedules for %s: %w", med.ID, err)
		}
		for _, sched := range schedules {
			if !sched.Enabled {
				continue
			}
			pairs = append(pairs, model.Pair{Medication: med, Schedule: sched})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Schedule.Time != pairs[j].Schedule.Time {
			return pairs[i].Schedule.Time < pairs[j].Schedule.Time
		}
		return pairs[i].Medication.ID < pairs[j].Medication.ID
	})
	return pairs, nil
}

// FindSchedule returns the schedule with id from the medication, or nil.
func FindSchedule(ctx context.Context, p Provider, medicationID, scheduleID string) (*model.Schedule, error) {
	schedules, err := p.Schedules(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	for _, s := range schedules {
		if s.ID == scheduleID {
			return &s, nil
		}
	}
	return nil, nil
}
