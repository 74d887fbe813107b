package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/medremind/internal/model"
)

// Snapshot renders a result as stable text: the step trace followed by the
// outstanding alerts and their mappings. Alert and mapping ids are left out
// so the snapshot only changes when behavior does.
func Snapshot(scenarioName string, result *Result) []byte {
	var buf strings.Builder

	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)

	buf.WriteString("trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&buf, "  [%d] %s: %s", ev.Step, ev.Action, ev.Summary)
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%q", ev.Error)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("alerts:\n")
	if len(result.State.Alerts) == 0 {
		buf.WriteString("  (none)\n")
	}
	for _, a := range result.State.Alerts {
		fmt.Fprintf(&buf, "  %s %s %s %q", a.Trigger.Format("2006-01-02 15:04"), a.Category, a.Level, a.Title)
		if a.Presented {
			buf.WriteString(" presented")
		}
		buf.WriteString("\n")
		for _, m := range a.Mappings {
			fmt.Fprintf(&buf, "    %s\n", mappingLine(m))
		}
	}

	if len(result.State.Orphans) > 0 {
		buf.WriteString("orphans:\n")
		for _, m := range result.State.Orphans {
			fmt.Fprintf(&buf, "  %s\n", mappingLine(m))
		}
	}
	return []byte(buf.String())
}

func mappingLine(m model.Mapping) string {
	subject := "checkin"
	if m.MedicationID != nil {
		subject = m.MedID() + "/" + m.SchedID()
	}
	line := fmt.Sprintf("%s %s %s", subject, m.Date, m.NotificationType)
	if m.IsGrouped {
		line += " group=" + m.Group()
	}
	return line
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
