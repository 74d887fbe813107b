package harness

import (
	"time"

	"github.com/roach88/medremind/internal/model"
)

// TraceEvent records one executed step and what the engine reported.
type TraceEvent struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// AlertState is one outstanding alert with the mappings that point at it.
type AlertState struct {
	ID        string          `json:"id"`
	Trigger   time.Time       `json:"trigger"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Level     string          `json:"level"`
	Presented bool            `json:"presented,omitempty"`
	Mappings  []model.Mapping `json:"mappings"`
}

// State is the final queue and store contents of a run.
type State struct {
	Alerts []AlertState `json:"alerts"`

	// Orphans are mappings whose alert is no longer in the queue.
	Orphans []model.Mapping `json:"orphans,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(step int, action, summary string, err error) {
	ev := TraceEvent{Step: step, Action: action, Summary: summary}
	if err != nil {
		ev.Error = err.Error()
	}
	r.Trace = append(r.Trace, ev)
}

// Mappings flattens the state into every mapping, live or orphaned.
func (s State) Mappings() []model.Mapping {
	var out []model.Mapping
	for _, a := range s.Alerts {
		out = append(out, a.Mappings...)
	}
	return append(out, s.Orphans...)
}
