package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/model"
)

// ErrorCode categorizes engine failures.
type ErrorCode string

const (
	// CodeOSCall indicates a notification primitive returned an error.
	CodeOSCall ErrorCode = "OS_CALL_FAILED"

	// CodeNoIdentifier indicates the OS accepted a schedule call but returned no id.
	CodeNoIdentifier ErrorCode = "NO_IDENTIFIER"

	// CodeStore indicates a Mapping Store read or write failed.
	CodeStore ErrorCode = "STORE_FAILED"

	// CodeInconsistent indicates a medication or schedule vanished after its
	// alert was scheduled.
	CodeInconsistent ErrorCode = "INCONSISTENT"
)

// OpError is a failure inside an engine operation, carrying enough context
// for a caller to build an actionable message.
type OpError struct {
	Op             string
	Code           ErrorCode
	MedicationID   string
	ScheduleID     string
	Date           model.Date
	NotificationID string
	Type           model.NotificationType
	Err            error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.MedicationID != "" {
		msg += fmt.Sprintf(" (medication=%s, schedule=%s, date=%s)", e.MedicationID, e.ScheduleID, e.Date)
	} else if e.Date != "" {
		msg += fmt.Sprintf(" (date=%s)", e.Date)
	}
	if e.NotificationID != "" {
		msg += fmt.Sprintf(" [notification=%s]", e.NotificationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Fields returns the error context as log fields. Empty identifiers are omitted.
func (e *OpError) Fields() logrus.Fields {
	f := logrus.Fields{"op": e.Op, "code": string(e.Code)}
	if e.MedicationID != "" {
		f["medication_id"] = e.MedicationID
	}
	if e.ScheduleID != "" {
		f["schedule_id"] = e.ScheduleID
	}
	if e.Date != "" {
		f["date"] = string(e.Date)
	}
	if e.NotificationID != "" {
		f["notification_id"] = e.NotificationID
	}
	if e.Type != "" {
		f["notification_type"] = string(e.Type)
	}
	return f
}

// IsOSError reports whether err is an OS primitive failure, including a
// missing identifier. Uses errors.As to handle wrapped errors.
func IsOSError(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == CodeOSCall || oe.Code == CodeNoIdentifier
	}
	return false
}

// IsStoreError reports whether err is a Mapping Store failure.
func IsStoreError(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == CodeStore
	}
	return false
}

// IsInconsistency reports whether err describes vanished medication data.
func IsInconsistency(err error) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Code == CodeInconsistent
	}
	return false
}

// slot identifies the alert an operation is acting on.
type slot struct {
	medicationID string
	scheduleID   string
	date         model.Date
	typ          model.NotificationType
}

func slotOf(m model.Mapping) slot {
	return slot{medicationID: m.MedID(), scheduleID: m.SchedID(), date: m.Date, typ: m.NotificationType}
}

func (s slot) err(op string, code ErrorCode, cause error) *OpError {
	return &OpError{
		Op:           op,
		Code:         code,
		MedicationID: s.medicationID,
		ScheduleID:   s.scheduleID,
		Date:         s.date,
		Type:         s.typ,
		Err:          cause,
	}
}
