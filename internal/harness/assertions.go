package harness

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/medremind/internal/model"
)

// AssertionContext provides what assertions are evaluated against.
type AssertionContext struct {
	State    State
	Today    model.Date
	Location *time.Location
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Alerts   []AlertState
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nOutstanding alerts:\n")
	for i, a := range e.Alerts {
		fmt.Fprintf(&buf, "  [%d] %s %q (%d mappings)\n",
			i+1, a.Trigger.Format(nowLayout), a.Title, len(a.Mappings))
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
// Returns empty slice if all assertions pass.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errors
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	var date model.Date
	if a.Date != "" {
		d, err := ResolveDate(actx.Today, a.Date)
		if err != nil {
			return err
		}
		date = d
	}

	switch a.Type {
	case AssertAlertCount:
		return assertAlertCount(a, date, actx)
	case AssertMappingCount:
		return assertMappingCount(a, date, actx)
	case AssertGroupMembers:
		return assertGroupMembers(a, date, actx)
	case AssertAlertTitle:
		return assertAlertTitle(a, date, actx)
	case AssertFollowUpAt:
		return assertFollowUpAt(a, date, actx)
	case AssertNoAlertFor:
		return assertNoAlertFor(a, date, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// alertKind derives an alert's notification type from its mappings.
func alertKind(a AlertState) model.NotificationType {
	if len(a.Mappings) > 0 {
		return a.Mappings[0].NotificationType
	}
	switch a.Category {
	case model.CategoryFollowUp:
		return model.TypeFollowUp
	case model.CategoryDailyCheckin:
		return model.TypeDailyCheckin
	}
	return model.TypeReminder
}

// filterAlerts keeps alerts matching date (by trigger day), kind and time.
func filterAlerts(alerts []AlertState, date model.Date, kind, clock string, loc *time.Location) []AlertState {
	var out []AlertState
	for _, a := range alerts {
		if date != "" && model.DateOf(a.Trigger, loc) != date {
			continue
		}
		if kind != "" && string(alertKind(a)) != kind {
			continue
		}
		if clock != "" && a.Trigger.In(loc).Format("15:04") != clock {
			continue
		}
		out = append(out, a)
	}
	return out
}

func assertAlertCount(a Assertion, date model.Date, actx *AssertionContext) error {
	got := len(filterAlerts(actx.State.Alerts, date, a.Kind, a.Time, actx.Location))
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d alerts", *a.Count),
			Actual:   fmt.Sprintf("%d alerts", got),
			Alerts:   actx.State.Alerts,
		}
	}
	return nil
}

func assertMappingCount(a Assertion, date model.Date, actx *AssertionContext) error {
	got := 0
	for _, m := range actx.State.Mappings() {
		if date != "" && m.Date != date {
			continue
		}
		if a.Kind != "" && string(m.NotificationType) != a.Kind {
			continue
		}
		if a.Medication != "" && m.MedID() != a.Medication {
			continue
		}
		got++
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d mappings", *a.Count),
			Actual:   fmt.Sprintf("%d mappings", got),
			Alerts:   actx.State.Alerts,
		}
	}
	return nil
}

// singleAlert finds exactly one alert at date and time of the given kind.
func singleAlert(a Assertion, date model.Date, actx *AssertionContext) (AlertState, error) {
	kind := a.Kind
	if kind == "" {
		kind = string(model.TypeReminder)
	}
	matches := filterAlerts(actx.State.Alerts, date, kind, a.Time, actx.Location)
	if len(matches) != 1 {
		return AlertState{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("one %s alert at %s %s", kind, date, a.Time),
			Actual:   fmt.Sprintf("%d alerts", len(matches)),
			Alerts:   actx.State.Alerts,
		}
	}
	return matches[0], nil
}

func assertGroupMembers(a Assertion, date model.Date, actx *AssertionContext) error {
	alert, err := singleAlert(a, date, actx)
	if err != nil {
		return err
	}

	got := make([]string, 0, len(alert.Mappings))
	for _, m := range alert.Mappings {
		got = append(got, m.MedID())
	}
	want := append([]string(nil), a.Members...)
	sort.Strings(got)
	sort.Strings(want)

	if strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("members %v", want),
			Actual:   fmt.Sprintf("members %v", got),
			Alerts:   actx.State.Alerts,
		}
	}
	return nil
}

func assertAlertTitle(a Assertion, date model.Date, actx *AssertionContext) error {
	alert, err := singleAlert(a, date, actx)
	if err != nil {
		return err
	}
	if alert.Title != a.Title {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("title %q", a.Title),
			Actual:   fmt.Sprintf("title %q", alert.Title),
			Alerts:   actx.State.Alerts,
		}
	}
	return nil
}

func assertFollowUpAt(a Assertion, date model.Date, actx *AssertionContext) error {
	for _, alert := range filterAlerts(actx.State.Alerts, date, string(model.TypeFollowUp), "", actx.Location) {
		for _, m := range alert.Mappings {
			if m.MedID() != a.Medication {
				continue
			}
			got := alert.Trigger.In(actx.Location).Format("15:04")
			if got != a.At {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("follow-up for %s at %s", a.Medication, a.At),
					Actual:   fmt.Sprintf("follow-up at %s", got),
					Alerts:   actx.State.Alerts,
				}
			}
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("follow-up for %s at %s", a.Medication, a.At),
		Actual:   "no follow-up",
		Alerts:   actx.State.Alerts,
	}
}

func assertNoAlertFor(a Assertion, date model.Date, actx *AssertionContext) error {
	for _, alert := range filterAlerts(actx.State.Alerts, "", a.Kind, "", actx.Location) {
		for _, m := range alert.Mappings {
			if m.MedID() == a.Medication && m.Date == date {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("no alert for %s on %s", a.Medication, date),
					Actual:   fmt.Sprintf("%s alert %q", m.NotificationType, alert.Title),
					Alerts:   actx.State.Alerts,
				}
			}
		}
	}
	return nil
}
