package model

import "time"

// Category identifiers attached to scheduled alerts.
const (
	CategoryReminder        = "MEDICATION_REMINDER"
	CategoryGroupedReminder = "MULTIPLE_MEDICATION_REMINDER"
	CategoryFollowUp        = "MEDICATION_FOLLOW_UP"
	CategoryDailyCheckin    = "DAILY_CHECKIN"
)

// Content is what is handed to the OS when an alert is scheduled.
type Content struct {
	Title    string            `yaml:"title" json:"title"`
	Body     string            `yaml:"body" json:"body"`
	Category string            `yaml:"category" json:"category"`
	Level    InterruptionLevel `yaml:"level" json:"level"`
	Payload  Payload           `yaml:"payload" json:"payload"`
}

// Payload is the structured data embedded in an alert.
type Payload struct {
	Type          NotificationType `yaml:"type" json:"type"`
	Source        SourceType       `yaml:"source" json:"source"`
	MedicationIDs []string         `yaml:"medication_ids,omitempty" json:"medication_ids,omitempty"`
	ScheduleIDs   []string         `yaml:"schedule_ids,omitempty" json:"schedule_ids,omitempty"`
	Date          Date             `yaml:"date,omitempty" json:"date,omitempty"`
	Time          string           `yaml:"time,omitempty" json:"time,omitempty"`
	Grouped       bool             `yaml:"grouped,omitempty" json:"grouped,omitempty"`
}

// IsMedication reports whether the alert was scheduled for a medication.
// The category is consulted when the payload carries no source.
func (c Content) IsMedication() bool {
	if c.Payload.Source != "" {
		return c.Payload.Source == SourceMedication
	}
	switch c.Category {
	case CategoryReminder, CategoryGroupedReminder, CategoryFollowUp:
		return true
	}
	return false
}

// IsCheckin reports whether the alert is a daily check-in.
func (c Content) IsCheckin() bool {
	return c.Payload.Type == TypeDailyCheckin ||
		c.Payload.Source == SourceDailyCheckin ||
		c.Category == CategoryDailyCheckin
}

// ScheduledAlert is an outstanding alert in the OS queue.
type ScheduledAlert struct {
	ID      string    `yaml:"id" json:"id"`
	Content Content   `yaml:"content" json:"content"`
	Trigger time.Time `yaml:"trigger" json:"trigger"`
}

// PresentedAlert is an alert currently shown in the notification tray.
type PresentedAlert struct {
	ID          string    `yaml:"id" json:"id"`
	Content     Content   `yaml:"content" json:"content"`
	DeliveredAt time.Time `yaml:"delivered_at" json:"delivered_at"`
}
