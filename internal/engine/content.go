package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/medremind/internal/model"
)

const (
	reminderPrefix = "Time for "
	followUpPrefix = "Reminder: "
)

var countTitle = regexp.MustCompile(`^\d+ medications$`)

// MedicationNameFromTitle extracts X from "Time for X" or "Reminder: X".
// Group titles ("Time for 3 medications") and unrelated titles yield "".
func MedicationNameFromTitle(title string) string {
	var name string
	switch {
	case strings.HasPrefix(title, reminderPrefix):
		name = strings.TrimPrefix(title, reminderPrefix)
	case strings.HasPrefix(title, followUpPrefix):
		name = strings.TrimPrefix(title, followUpPrefix)
	default:
		return ""
	}
	name = strings.TrimSpace(name)
	if countTitle.MatchString(name) {
		return ""
	}
	return name
}

// member is one medication/schedule pair with its resolved settings.
type member struct {
	pair     model.Pair
	settings model.Settings
}

func (m member) medicationID() string { return m.pair.Medication.ID }
func (m member) scheduleID() string   { return m.pair.Schedule.ID }
func (m member) name() string         { return m.pair.Medication.Name }

func singleContent(m member, date model.Date, typ model.NotificationType) model.Content {
	c := model.Content{
		Level: m.settings.Level(),
		Payload: model.Payload{
			Type:          typ,
			Source:        model.SourceMedication,
			MedicationIDs: []string{m.medicationID()},
			ScheduleIDs:   []string{m.scheduleID()},
			Date:          date,
			Time:          m.pair.Schedule.Time,
		},
	}

	dose := m.name()
	if m.pair.Medication.Dosage != "" {
		dose = fmt.Sprintf("%s (%s)", m.name(), m.pair.Medication.Dosage)
	}

	if typ == model.TypeFollowUp {
		c.Title = followUpPrefix + m.name()
		c.Body = fmt.Sprintf("You haven't logged %s yet.", dose)
		c.Category = model.CategoryFollowUp
		return c
	}
	c.Title = reminderPrefix + m.name()
	c.Body = fmt.Sprintf("Take %s.", dose)
	c.Category = model.CategoryReminder
	return c
}

func groupContent(members []member, date model.Date, groupKey string, typ model.NotificationType) model.Content {
	settings := make([]model.Settings, len(members))
	names := make([]string, len(members))
	medIDs := make([]string, len(members))
	schedIDs := make([]string, len(members))
	for i, m := range members {
		settings[i] = m.settings
		names[i] = m.name()
		medIDs[i] = m.medicationID()
		schedIDs[i] = m.scheduleID()
	}

	c := model.Content{
		Level: model.MergeSettings(settings...).Level(),
		Payload: model.Payload{
			Type:          typ,
			Source:        model.SourceMedication,
			MedicationIDs: medIDs,
			ScheduleIDs:   schedIDs,
			Date:          date,
			Time:          groupKey,
			Grouped:       true,
		},
	}

	list := strings.Join(names, ", ")
	if typ == model.TypeFollowUp {
		c.Title = fmt.Sprintf("%s%d medications", followUpPrefix, len(members))
		c.Body = "Not logged yet: " + list
		c.Category = model.CategoryFollowUp
		return c
	}
	c.Title = fmt.Sprintf("%s%d medications", reminderPrefix, len(members))
	c.Body = list
	c.Category = model.CategoryGroupedReminder
	return c
}

func checkinContent(date model.Date, clock string) model.Content {
	return model.Content{
		Title:    "Daily check-in",
		Body:     "How are you feeling today?",
		Category: model.CategoryDailyCheckin,
		Level:    model.LevelActive,
		Payload: model.Payload{
			Type:   model.TypeDailyCheckin,
			Source: model.SourceDailyCheckin,
			Date:   date,
			Time:   clock,
		},
	}
}
