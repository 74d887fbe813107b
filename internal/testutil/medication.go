package testutil

import (
	"testing"
	"time"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// Med builds a medication entry with one enabled schedule per "id@HH:mm" argument.
//
//	Med("med-a", "Aspirin", "sched-a@08:00", "sched-a2@20:00")
func Med(id, name string, schedules ...string) medication.MedicationEntry {
	entry := medication.MedicationEntry{ID: id, Name: name}
	for _, s := range schedules {
		sid, at := splitSchedule(s)
		entry.Schedules = append(entry.Schedules, medication.ScheduleEntry{ID: sid, Time: at})
	}
	return entry
}

// WithFollowUp sets the medication's follow-up delay.
func WithFollowUp(entry medication.MedicationEntry, d time.Duration) medication.MedicationEntry {
	delay := medication.Delay(d)
	entry.Settings = ensureOverride(entry.Settings)
	entry.Settings.FollowUpDelay = &delay
	return entry
}

// WithCritical enables critical alerts for the medication.
func WithCritical(entry medication.MedicationEntry) medication.MedicationEntry {
	on := true
	entry.Settings = ensureOverride(entry.Settings)
	entry.Settings.CriticalAlerts = &on
	return entry
}

// WithTimeSensitive enables time-sensitive alerts for the medication.
func WithTimeSensitive(entry medication.MedicationEntry) medication.MedicationEntry {
	on := true
	entry.Settings = ensureOverride(entry.Settings)
	entry.Settings.TimeSensitive = &on
	return entry
}

// NewProvider serves meds from memory with all settings defaulting to off.
func NewProvider(t *testing.T, meds ...medication.MedicationEntry) *medication.FileProvider {
	t.Helper()
	p, err := medication.NewProvider(medication.Document{Medications: meds}, model.Settings{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func ensureOverride(o *medication.SettingsOverride) *medication.SettingsOverride {
	if o == nil {
		return &medication.SettingsOverride{}
	}
	cp := *o
	return &cp
}

func splitSchedule(s string) (string, string) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '@' {
			return s[:i], s[i+1:]
		}
	}
	return s, s
}
