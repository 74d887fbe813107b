package model

import "time"

// NotificationType distinguishes the kinds of alert a mapping can represent.
type NotificationType string

const (
	TypeReminder     NotificationType = "reminder"
	TypeFollowUp     NotificationType = "follow_up"
	TypeDailyCheckin NotificationType = "daily_checkin"
)

// SourceType identifies which subsystem owns a mapping.
type SourceType string

const (
	SourceMedication   SourceType = "medication"
	SourceDailyCheckin SourceType = "daily_checkin"
)

// Mapping is the persistent record correlating an OS alert identifier with
// what it was scheduled for.
//
// MedicationID and ScheduleID are nil only for check-in entries. GroupKey is
// set iff IsGrouped. The Medication* and Notification* snapshot fields are
// advisory: they exist for best-effort dismissal matching and never drive a
// scheduling decision.
type Mapping struct {
	ID                   string           `db:"id" json:"id"`
	MedicationID         *string          `db:"medication_id" json:"medication_id,omitempty"`
	ScheduleID           *string          `db:"schedule_id" json:"schedule_id,omitempty"`
	Date                 Date             `db:"date" json:"date"`
	NotificationID       string           `db:"notification_id" json:"notification_id"`
	NotificationType     NotificationType `db:"notification_type" json:"notification_type"`
	IsGrouped            bool             `db:"is_grouped" json:"is_grouped"`
	GroupKey             *string          `db:"group_key" json:"group_key,omitempty"`
	SourceType           SourceType       `db:"source_type" json:"source_type"`
	MedicationName       *string          `db:"medication_name" json:"medication_name,omitempty"`
	ScheduledTriggerTime *time.Time       `db:"scheduled_trigger_time" json:"scheduled_trigger_time,omitempty"`
	NotificationTitle    *string          `db:"notification_title" json:"notification_title,omitempty"`
	NotificationBody     *string          `db:"notification_body" json:"notification_body,omitempty"`
	CategoryIdentifier   *string          `db:"category_identifier" json:"category_identifier,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
}

// MedID returns the medication id or "" for check-in mappings.
func (m Mapping) MedID() string {
	return Deref(m.MedicationID)
}

// SchedID returns the schedule id or "" for check-in mappings.
func (m Mapping) SchedID() string {
	return Deref(m.ScheduleID)
}

// Group returns the group key or "" for ungrouped mappings.
func (m Mapping) Group() string {
	return Deref(m.GroupKey)
}

// Matches reports whether the mapping belongs to the given medication/schedule pair.
func (m Mapping) Matches(medicationID, scheduleID string) bool {
	return m.MedID() == medicationID && m.SchedID() == scheduleID
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
