package model

import "time"

// Medication is the read-only view of a medication the engine schedules for.
type Medication struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Dosage   string `yaml:"dosage,omitempty" json:"dosage,omitempty"`
	Archived bool   `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// Schedule is one daily clock time at which a medication is due.
type Schedule struct {
	ID           string `yaml:"id" json:"id"`
	MedicationID string `yaml:"-" json:"medication_id"`
	Time         string `yaml:"time" json:"time"`
	Enabled      bool   `yaml:"enabled" json:"enabled"`
}

// Pair couples a medication with one of its schedules.
type Pair struct {
	Medication Medication
	Schedule   Schedule
}

// InterruptionLevel is the urgency an alert is delivered with.
type InterruptionLevel string

const (
	LevelActive        InterruptionLevel = "active"
	LevelTimeSensitive InterruptionLevel = "time_sensitive"
	LevelCritical      InterruptionLevel = "critical"
)

// Settings are the effective notification settings of one medication.
// A zero FollowUpDelay means follow-ups are off.
type Settings struct {
	TimeSensitive  bool
	CriticalAlerts bool
	FollowUpDelay  time.Duration
}

// FollowUpEnabled reports whether a follow-up alert should be scheduled.
func (s Settings) FollowUpEnabled() bool {
	return s.FollowUpDelay > 0
}

// Level returns the interruption level the settings request.
// Critical dominates time-sensitive.
func (s Settings) Level() InterruptionLevel {
	switch {
	case s.CriticalAlerts:
		return LevelCritical
	case s.TimeSensitive:
		return LevelTimeSensitive
	default:
		return LevelActive
	}
}

// MergeSettings combines the settings of every member of a group: urgency
// flags are OR-ed and the follow-up delay is the maximum enabled delay, so no
// member's follow-up fires before that member had time to act.
func MergeSettings(all ...Settings) Settings {
	var merged Settings
	for _, s := range all {
		merged.TimeSensitive = merged.TimeSensitive || s.TimeSensitive
		merged.CriticalAlerts = merged.CriticalAlerts || s.CriticalAlerts
		if s.FollowUpDelay > merged.FollowUpDelay {
			merged.FollowUpDelay = s.FollowUpDelay
		}
	}
	return merged
}
