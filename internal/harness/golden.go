package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/unbundle/internal/ir"
)

// TraceSnapshot captures what a scenario run observably did: the step
// outcomes, the final bookmarks and the bookmark update log.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Bookmarks    map[string]string
	Log          []LogLine
}

// NewTraceSnapshot builds the snapshot of a result.
func NewTraceSnapshot(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Bookmarks:    result.Bookmarks,
		Log:          result.Log,
	}
}

// Marshal renders the snapshot as canonical JSON, so snapshots compare
// byte for byte.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// toCanonicalMap converts the snapshot to the value types
// ir.MarshalCanonical accepts. Empty fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"step":    event.Step,
			"action":  event.Action,
			"outcome": event.Outcome,
		}
		putString(m, "bookmark", event.Bookmark)
		putString(m, "head", event.Head)
		if len(event.Rebased) > 0 {
			rebased := make([]any, len(event.Rebased))
			for j, r := range event.Rebased {
				rebased[j] = map[string]any{"old": r.Old, "new": r.New}
			}
			m["rebased"] = rebased
		}
		if len(event.Rejections) > 0 {
			m["rejections"] = event.Rejections
		}
		if len(event.Conflicts) > 0 {
			m["conflicts"] = event.Conflicts
		}
		trace[i] = m
	}

	bookmarks := make(map[string]any, len(s.Bookmarks))
	for name, label := range s.Bookmarks {
		bookmarks[name] = label
	}

	log := make([]any, len(s.Log))
	for i, line := range s.Log {
		m := map[string]any{
			"bookmark": line.Bookmark,
			"reason":   line.Reason,
		}
		putString(m, "from", line.From)
		putString(m, "to", line.To)
		putString(m, "bundle", line.Bundle)
		log[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"bookmarks":     bookmarks,
		"log":           log,
	}
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// RunWithGolden executes a scenario, fails the test on any unmet
// expectation and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
