package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
)

// Scenario is an end-to-end engine test: a frozen starting time, a set of
// medications, a sequence of steps, and assertions on the final queue and
// store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the starting wall-clock time, "2006-01-02T15:04" in Timezone.
	Now string `yaml:"now"`

	// Timezone is an IANA zone name. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Budget overrides the engine's default alert budget.
	Budget *BudgetSpec `yaml:"budget,omitempty"`

	// Checkin enables daily check-ins.
	Checkin *CheckinSpec `yaml:"checkin,omitempty"`

	Medications []medication.MedicationEntry `yaml:"medications"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final state. Supported types: alert_count,
	// mapping_count, group_members, alert_title, follow_up_at, no_alert_for.
	Assertions []Assertion `yaml:"assertions"`
}

// BudgetSpec mirrors engine.Budget; zero fields keep the default.
type BudgetSpec struct {
	Cap      int `yaml:"cap,omitempty"`
	Reserved int `yaml:"reserved,omitempty"`
	MinDays  int `yaml:"min_days,omitempty"`
	MaxDays  int `yaml:"max_days,omitempty"`
}

// CheckinSpec configures daily check-ins.
type CheckinSpec struct {
	Time string `yaml:"time"`
	Days int    `yaml:"days"`
}

// Step is one action applied to the engine or its surroundings.
type Step struct {
	// Action selects what the step does; see the Action* constants.
	Action string `yaml:"action"`

	Days      int `yaml:"days,omitempty"`
	Threshold int `yaml:"threshold,omitempty"`

	Medication string `yaml:"medication,omitempty"`
	Schedule   string `yaml:"schedule,omitempty"`

	// Date is YYYY-MM-DD, "today", or "today+N".
	Date string `yaml:"date,omitempty"`

	// Kind is the notification type: reminder (default) or follow_up.
	Kind string `yaml:"kind,omitempty"`

	// Duration is a Go duration for advance.
	Duration string `yaml:"duration,omitempty"`

	// Alert is an OS alert id for drop_alert.
	Alert string `yaml:"alert,omitempty"`

	// Status is taken (default) or skipped for dose, and logged (default)
	// or unlogged for checkin_status.
	Status string `yaml:"status,omitempty"`

	// Entry is the medication written by upsert_medication.
	Entry *medication.MedicationEntry `yaml:"entry,omitempty"`
}

// Step actions.
const (
	ActionSchedule         = "schedule"
	ActionRescheduleAll    = "reschedule_all"
	ActionTopUp            = "topup"
	ActionRebalance        = "rebalance"
	ActionReconcile        = "reconcile"
	ActionFix              = "fix"
	ActionCancel           = "cancel"
	ActionCancelAll        = "cancel_all"
	ActionDose             = "dose"
	ActionAdvance          = "advance"
	ActionDropAlert        = "drop_alert"
	ActionDropMapping      = "drop_mapping"
	ActionCheckins         = "checkins"
	ActionCheckinStatus    = "checkin_status"
	ActionUpsertMedication = "upsert_medication"
	ActionRemoveMedication = "remove_medication"
)

// Assertion validates the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is the expected number for alert_count and mapping_count.
	Count *int `yaml:"count,omitempty"`

	// Date filters by alert date: YYYY-MM-DD, "today", or "today+N".
	Date string `yaml:"date,omitempty"`

	// Kind filters by notification type.
	Kind string `yaml:"kind,omitempty"`

	// Time is the clock time (HH:mm) of the alert under test.
	Time string `yaml:"time,omitempty"`

	// Members are the medication ids expected in a group, in any order.
	Members []string `yaml:"members,omitempty"`

	// Title is the expected alert title.
	Title string `yaml:"title,omitempty"`

	// At is the expected follow-up clock time (HH:mm).
	At string `yaml:"at,omitempty"`

	Medication string `yaml:"medication,omitempty"`
}

// Assertion types.
const (
	AssertAlertCount   = "alert_count"
	AssertMappingCount = "mapping_count"
	AssertGroupMembers = "group_members"
	AssertAlertTitle   = "alert_title"
	AssertFollowUpAt   = "follow_up_at"
	AssertNoAlertFor   = "no_alert_for"
)

const nowLayout = "2006-01-02T15:04"

// dateAnchor is the "today" date expressions are checked against during validation.
const dateAnchor model.Date = "2000-01-01"

// ResolveDate turns a date expression into a calendar date relative to
// today. Accepted forms: YYYY-MM-DD, "today", "today+N" and "today-N".
func ResolveDate(today model.Date, expr string) (model.Date, error) {
	expr = strings.TrimSpace(expr)
	if expr == "today" {
		return today, nil
	}
	if rest, ok := strings.CutPrefix(expr, "today"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || (rest[0] != '+' && rest[0] != '-') {
			return "", fmt.Errorf("invalid date expression %q", expr)
		}
		return today.AddDays(n), nil
	}
	d, err := model.ParseDate(expr)
	if err != nil {
		return "", fmt.Errorf("invalid date expression %q: %w", expr, err)
	}
	return d, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Location resolves the scenario's time zone.
func (s *Scenario) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Start parses Now in the scenario's time zone.
func (s *Scenario) Start() (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(nowLayout, s.Now, loc)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := s.Start(); err != nil {
		return fmt.Errorf("now must be %s: %w", nowLayout, err)
	}
	if err := (medication.Document{Medications: s.Medications}).Validate(); err != nil {
		return fmt.Errorf("medications: %w", err)
	}
	if s.Checkin != nil {
		if _, _, err := model.ParseClock(s.Checkin.Time); err != nil {
			return fmt.Errorf("checkin: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st Step) error {
	needSlot := func() error {
		if st.Medication == "" || st.Schedule == "" || st.Date == "" {
			return fmt.Errorf("steps[%d]: %s requires medication, schedule and date", i, st.Action)
		}
		return nil
	}

	if st.Date != "" {
		if _, err := ResolveDate(dateAnchor, st.Date); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	switch st.Action {
	case ActionSchedule, ActionRescheduleAll, ActionTopUp, ActionRebalance,
		ActionReconcile, ActionFix, ActionCheckins:
		return nil
	case ActionCancel, ActionDropMapping:
		if st.Kind != "" && st.Kind != string(model.TypeReminder) && st.Kind != string(model.TypeFollowUp) {
			return fmt.Errorf("steps[%d]: unknown kind %q", i, st.Kind)
		}
		return needSlot()
	case ActionDose:
		if st.Status != "" && st.Status != string(medication.DoseTaken) && st.Status != string(medication.DoseSkipped) {
			return fmt.Errorf("steps[%d]: unknown dose status %q", i, st.Status)
		}
		return needSlot()
	case ActionCancelAll, ActionRemoveMedication:
		if st.Medication == "" {
			return fmt.Errorf("steps[%d]: %s requires medication", i, st.Action)
		}
	case ActionAdvance:
		if _, err := time.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", i, err)
		}
	case ActionDropAlert:
		if st.Alert == "" {
			return fmt.Errorf("steps[%d]: drop_alert requires alert", i)
		}
	case ActionCheckinStatus:
		if st.Date == "" {
			return fmt.Errorf("steps[%d]: checkin_status requires date", i)
		}
		if st.Status != "" && st.Status != "logged" && st.Status != "unlogged" {
			return fmt.Errorf("steps[%d]: unknown check-in status %q", i, st.Status)
		}
	case ActionUpsertMedication:
		if st.Entry == nil {
			return fmt.Errorf("steps[%d]: upsert_medication requires entry", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, st.Action)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Date != "" {
		if _, err := ResolveDate(dateAnchor, a.Date); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	if a.Kind != "" && a.Kind != string(model.TypeReminder) && a.Kind != string(model.TypeFollowUp) &&
		a.Kind != string(model.TypeDailyCheckin) {
		return fmt.Errorf("assertions[%d]: unknown kind %q", index, a.Kind)
	}

	switch a.Type {
	case AssertAlertCount, AssertMappingCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: %s requires a non-negative count", index, a.Type)
		}
	case AssertGroupMembers:
		if a.Date == "" || a.Time == "" || len(a.Members) == 0 {
			return fmt.Errorf("assertions[%d]: group_members requires date, time and members", index)
		}
	case AssertAlertTitle:
		if a.Date == "" || a.Time == "" || a.Title == "" {
			return fmt.Errorf("assertions[%d]: alert_title requires date, time and title", index)
		}
	case AssertFollowUpAt:
		if a.Date == "" || a.Medication == "" || a.At == "" {
			return fmt.Errorf("assertions[%d]: follow_up_at requires date, medication and at", index)
		}
	case AssertNoAlertFor:
		if a.Medication == "" || a.Date == "" {
			return fmt.Errorf("assertions[%d]: no_alert_for requires medication and date", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
