package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/unbundle/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Action, event.Bookmark, event.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertBookmark:
			err = assertBookmark(result, a)
		case AssertHistory:
			err = assertHistory(ctx, h, a)
		case AssertPublic:
			err = assertPublic(ctx, h, a)
		case AssertStored:
			err = assertStored(ctx, h, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func assertBookmark(result *Result, a Assertion) error {
	got, found := result.Bookmarks[a.Bookmark]
	switch {
	case a.Absent && found:
		return &AssertionError{
			Type:     AssertBookmark,
			Expected: fmt.Sprintf("bookmark %s absent", a.Bookmark),
			Actual:   fmt.Sprintf("at %s", got),
		}
	case !a.Absent && !found:
		return &AssertionError{
			Type:     AssertBookmark,
			Expected: fmt.Sprintf("bookmark %s at %s", a.Bookmark, a.At),
			Actual:   "absent",
		}
	case !a.Absent && got != a.At:
		return &AssertionError{
			Type:     AssertBookmark,
			Expected: fmt.Sprintf("bookmark %s at %s", a.Bookmark, a.At),
			Actual:   fmt.Sprintf("at %s", got),
		}
	}
	return nil
}

func assertHistory(ctx context.Context, h *Harness, a Assertion) error {
	entries, err := h.store.BookmarkHistory(ctx, ir.BookmarkName(a.Bookmark), 0)
	if err != nil {
		return err
	}
	reasons := make([]string, len(entries))
	for i, e := range entries {
		reasons[i] = string(e.Reason)
	}
	if !slices.Equal(reasons, a.Reasons) {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("history of %s %v", a.Bookmark, a.Reasons),
			Actual:   fmt.Sprintf("%v", reasons),
		}
	}
	return nil
}

func assertPublic(ctx context.Context, h *Harness, a Assertion) error {
	id, err := h.labels.Resolve(a.Commit)
	if err != nil {
		return err
	}
	public, err := h.store.IsPublic(ctx, id)
	if err != nil {
		return err
	}
	if public == a.Absent {
		return &AssertionError{
			Type:     AssertPublic,
			Expected: fmt.Sprintf("%s public=%t", a.Commit, !a.Absent),
			Actual:   fmt.Sprintf("public=%t", public),
		}
	}
	return nil
}

func assertStored(ctx context.Context, h *Harness, a Assertion) error {
	id, err := h.labels.Resolve(a.Commit)
	if err != nil {
		return err
	}
	known, err := h.store.KnownChangesets(ctx, []ir.ChangesetID{id})
	if err != nil {
		return err
	}
	if known[id] == a.Absent {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("%s stored=%t", a.Commit, !a.Absent),
			Actual:   fmt.Sprintf("stored=%t", known[id]),
		}
	}
	return nil
}
