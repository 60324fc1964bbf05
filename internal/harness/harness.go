package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/engine"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/metrics"
	"github.com/roach88/unbundle/internal/replay"
	"github.com/roach88/unbundle/internal/scribe"
	"github.com/roach88/unbundle/internal/store"
	"github.com/roach88/unbundle/internal/testutil"
)

// Harness runs one scenario against a fresh repository.
type Harness struct {
	store  *store.Store
	repo   *bookmarks.Repo
	engine *engine.Engine
	labels *Labels
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and request id, so identical scenarios produce identical traces.
// Steps run one at a time and side effects are drained after each step.
//
// Execution flow:
//  1. Build the repository from the scenario config
//  2. Store setup commits and bookmarks
//  3. Run each step through the engine and check its expectation
//  4. Evaluate assertions against the final state
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, err := scenario.RepoConfig()
	if err != nil {
		return nil, err
	}
	labels, err := NewLabels(scenario.Commits)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	repo, err := bookmarks.NewRepo(cfg, st)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(repo, cfg,
		engine.WithScribe(scribe.NewMemoryClient()),
		engine.WithMetrics(metrics.New()),
		engine.WithClock(clock),
		engine.WithRequestIDs(testutil.NewFixedRequestIDGenerator(scenario.RequestID)),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:  st,
		repo:   repo,
		engine: eng,
		labels: labels,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := h.executeSetup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSetup stores the commits that setup refers to, with their
// ancestors, then publishes and bookmarks them.
func (h *Harness) executeSetup(ctx context.Context, scenario *Scenario) error {
	needed := make(map[string]bool)
	var visit func(label string)
	visit = func(label string) {
		if needed[label] {
			return
		}
		needed[label] = true
		for _, c := range scenario.Commits {
			if c.Label == label {
				for _, p := range c.Parents {
					visit(p)
				}
			}
		}
	}
	for _, label := range scenario.Setup.Public {
		visit(label)
	}
	for _, label := range scenario.Setup.Bookmarks {
		visit(label)
	}

	var ordered []string
	for _, c := range scenario.Commits {
		if needed[c.Label] {
			ordered = append(ordered, c.Label)
		}
	}
	changesets, err := h.labels.Changesets(ordered)
	if err != nil {
		return err
	}
	if err := h.store.SaveChangesets(ctx, changesets); err != nil {
		return err
	}

	var public []ir.ChangesetID
	for _, label := range scenario.Setup.Public {
		id, _ := h.labels.Resolve(label)
		public = append(public, id)
	}
	if err := h.store.MarkPublic(ctx, public...); err != nil {
		return err
	}

	names := make([]string, 0, len(scenario.Setup.Bookmarks))
	for name := range scenario.Setup.Bookmarks {
		names = append(names, name)
	}
	slices.Sort(names)
	if len(names) == 0 {
		return nil
	}

	txn := h.store.NewTransaction()
	for _, name := range names {
		bookmark, err := ir.NewBookmarkName(name)
		if err != nil {
			return err
		}
		target, _ := h.labels.Resolve(scenario.Setup.Bookmarks[name])
		txn.Create(bookmark, target, h.repo.KindOf(bookmark), ir.ReasonManualMove)
	}
	ok, err := txn.Commit(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("setup bookmarks already exist")
	}

	h.logger.Info("setup completed",
		"commits", len(changesets),
		"bookmarks", len(names),
	)
	return nil
}

// executeStep runs one step and records its trace event. Unexpected
// outcomes are recorded as result errors, not returned.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	action, err := BuildAction(step, h.labels)
	if err != nil {
		return err
	}

	user := step.User
	if user == "" {
		user = "alice"
	}
	ctx = engine.WithClientInfo(ctx, ir.ClientInfo{User: user, Hostname: step.Hostname})

	resp, runErr := h.engine.ResolveAndApply(ctx, action)
	h.engine.Wait()

	event := TraceEvent{
		Step:     n,
		Action:   step.Action,
		Outcome:  OutcomeOK,
		Bookmark: step.Bookmark,
	}
	if runErr != nil {
		h.recordError(&event, runErr)
	} else if pr, ok := resp.(*engine.PushRebaseResponse); ok {
		for _, pair := range pr.PushrebasedChangesets {
			rebased := h.labels.Name(pair.OldID) + "'"
			h.labels.Add(rebased, pair.NewID)
			event.Rebased = append(event.Rebased, RebaseLine{Old: h.labels.Name(pair.OldID), New: rebased})
		}
		event.Head = h.labels.Name(pr.PushrebasedRev)
	}
	result.Trace = append(result.Trace, event)

	want := OutcomeOK
	var contains string
	if step.Expect != nil {
		want = step.Expect.Outcome
		contains = step.Expect.Contains
	}
	if event.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s): outcome %s, want %s: %v", n, step.Action, event.Outcome, want, runErr))
	}
	if contains != "" && (runErr == nil || !strings.Contains(runErr.Error(), contains)) {
		result.AddError(fmt.Sprintf("step %d (%s): error %v does not contain %q", n, step.Action, runErr, contains))
	}

	h.logger.Info("step completed",
		"step", n,
		"action", step.Action,
		"outcome", event.Outcome,
	)
	return nil
}

func (h *Harness) recordError(event *TraceEvent, err error) {
	event.Outcome = string(engine.CodeOf(err))
	var re *engine.ResolverError
	if !errors.As(err, &re) {
		return
	}
	for _, r := range re.Rejections {
		event.Rejections = append(event.Rejections, fmt.Sprintf("%s for %s", r.HookName, r.NativeID))
	}
	for _, c := range re.Conflicts {
		event.Conflicts = append(event.Conflicts, c.Left+" vs "+c.Right)
	}
}

// collectState reads the final bookmarks and the full update log.
func (h *Harness) collectState(ctx context.Context, result *Result) error {
	all, err := h.store.ListBookmarks(ctx, "", "")
	if err != nil {
		return err
	}
	for _, b := range all {
		result.Bookmarks[string(b.Name)] = h.labels.Name(b.Target)
	}

	entries, err := h.store.ReadBookmarkLog(ctx, 0, 0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := LogLine{
			Bookmark: string(e.Name),
			From:     h.labels.Name(e.From),
			To:       h.labels.Name(e.To),
			Reason:   string(e.Reason),
		}
		if len(e.ReplayData) > 0 {
			data, err := replay.Decode(e.ReplayData)
			if err != nil {
				return fmt.Errorf("log entry %d: %w", e.ID, err)
			}
			line.Bundle = string(data.RawBundleID)
		}
		result.Log = append(result.Log, line)
	}
	return nil
}
