package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medremind/internal/model"
)

func intPtr(n int) *int { return &n }

func testMapping(med string, date model.Date, typ model.NotificationType, group string) model.Mapping {
	return model.Mapping{
		MedicationID:     model.Ptr(med),
		ScheduleID:       model.Ptr("s-" + med),
		Date:             date,
		NotificationType: typ,
		IsGrouped:        group != "",
		GroupKey:         model.Ptr(group),
		SourceType:       model.SourceMedication,
	}
}

func testContext() *AssertionContext {
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
	}
	return &AssertionContext{
		Today:    "2026-10-16",
		Location: time.UTC,
		State: State{
			Alerts: []AlertState{
				{
					Trigger:  at(16, 8, 0),
					Title:    "Time for 2 medications",
					Category: model.CategoryGroupedReminder,
					Mappings: []model.Mapping{
						testMapping("med-a", "2026-10-16", model.TypeReminder, "08:00"),
						testMapping("med-b", "2026-10-16", model.TypeReminder, "08:00"),
					},
				},
				{
					Trigger:  at(16, 8, 45),
					Title:    "Reminder: Aspirin",
					Category: model.CategoryFollowUp,
					Mappings: []model.Mapping{
						testMapping("med-a", "2026-10-16", model.TypeFollowUp, ""),
					},
				},
				{
					Trigger:  at(17, 8, 0),
					Title:    "Time for Aspirin",
					Category: model.CategoryReminder,
					Mappings: []model.Mapping{
						testMapping("med-a", "2026-10-17", model.TypeReminder, ""),
					},
				},
			},
			Orphans: []model.Mapping{
				testMapping("med-c", "2026-10-17", model.TypeReminder, ""),
			},
		},
	}
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"all alerts", Assertion{Type: AssertAlertCount, Count: intPtr(3)}, ""},
		{"alerts today", Assertion{Type: AssertAlertCount, Date: "today", Count: intPtr(2)}, ""},
		{"follow-ups", Assertion{Type: AssertAlertCount, Kind: "follow_up", Count: intPtr(1)}, ""},
		{"alerts at time", Assertion{Type: AssertAlertCount, Time: "08:00", Count: intPtr(2)}, ""},
		{"alert count wrong", Assertion{Type: AssertAlertCount, Count: intPtr(1)}, "Actual: 3 alerts"},
		{"mappings include orphans", Assertion{Type: AssertMappingCount, Count: intPtr(5)}, ""},
		{"mappings by medication", Assertion{Type: AssertMappingCount, Medication: "med-a", Count: intPtr(3)}, ""},
		{"mappings by date and kind", Assertion{Type: AssertMappingCount, Date: "today+1", Kind: "reminder", Count: intPtr(2)}, ""},
		{"group members any order", Assertion{Type: AssertGroupMembers, Date: "today", Time: "08:00", Members: []string{"med-b", "med-a"}}, ""},
		{"group members wrong", Assertion{Type: AssertGroupMembers, Date: "today", Time: "08:00", Members: []string{"med-a"}}, "members [med-a]"},
		{"group members no alert", Assertion{Type: AssertGroupMembers, Date: "today", Time: "09:00", Members: []string{"med-a"}}, "0 alerts"},
		{"title", Assertion{Type: AssertAlertTitle, Date: "today+1", Time: "08:00", Title: "Time for Aspirin"}, ""},
		{"title wrong", Assertion{Type: AssertAlertTitle, Date: "today+1", Time: "08:00", Title: "Time for Iron"}, `title "Time for Aspirin"`},
		{"follow-up time", Assertion{Type: AssertFollowUpAt, Date: "today", Medication: "med-a", At: "08:45"}, ""},
		{"follow-up time wrong", Assertion{Type: AssertFollowUpAt, Date: "today", Medication: "med-a", At: "08:30"}, "follow-up at 08:45"},
		{"follow-up missing", Assertion{Type: AssertFollowUpAt, Date: "today", Medication: "med-b", At: "08:30"}, "no follow-up"},
		{"no alert", Assertion{Type: AssertNoAlertFor, Medication: "med-b", Date: "today+1"}, ""},
		{"orphans do not count as alerts", Assertion{Type: AssertNoAlertFor, Medication: "med-c", Date: "today+1"}, ""},
		{"no alert violated", Assertion{Type: AssertNoAlertFor, Medication: "med-b", Date: "today"}, "reminder alert"},
		{"unknown type", Assertion{Type: "vibes"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions([]Assertion{tt.assertion}, testContext())
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestAssertionError_ListsAlerts(t *testing.T) {
	err := &AssertionError{
		Type:     AssertAlertCount,
		Expected: "1 alerts",
		Actual:   "3 alerts",
		Alerts:   testContext().State.Alerts,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: alert_count")
	assert.Contains(t, msg, `[1] 2026-10-16T08:00 "Time for 2 medications" (2 mappings)`)
	assert.Contains(t, msg, `[3] 2026-10-17T08:00 "Time for Aspirin" (1 mappings)`)
}
