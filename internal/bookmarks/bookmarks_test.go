package bookmarks

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/pushrebase"
	"github.com/roach88/unbundle/internal/replay"
	"github.com/roach88/unbundle/internal/store"
)

func testConfig() *config.RepoConfig {
	return &config.RepoConfig{
		Name: "fbsource",
		Infinitepush: config.InfinitepushParams{
			AllowWrites: true,
			Namespace:   "^scratch/",
		},
		Bookmarks: []config.BookmarkParams{
			{Name: "main", OnlyFastForward: true, Hooks: []string{"no_keys"}},
			{Name: "release", AllowedUsers: "^releng$"},
		},
		Hooks: []config.HookParams{
			{Name: "no_keys", Type: "deny_files", Config: map[string]string{"pattern": `\.key$`}},
		},
	}
}

type fixture struct {
	store *store.Store
	repo  *Repo
	root  ir.ChangesetID
}

func newFixture(t *testing.T, cfg *config.RepoConfig) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	repo, err := NewRepo(cfg, s)
	require.NoError(t, err)

	root := commit("root", "README")
	require.NoError(t, s.SaveChangesets(context.Background(), []*ir.Changeset{root}))

	f := &fixture{store: s, repo: repo, root: root.MustID()}
	f.setBookmark(t, "main", f.root, ir.BookmarkKindPublic)
	return f
}

func (f *fixture) setBookmark(t *testing.T, name ir.BookmarkName, target ir.ChangesetID, kind ir.BookmarkKind) {
	t.Helper()
	txn := f.store.NewTransaction()
	txn.Create(name, target, kind, ir.ReasonManualMove)
	ok, err := txn.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) target(t *testing.T, name ir.BookmarkName) (ir.ChangesetID, bool) {
	t.Helper()
	b, found, err := f.store.GetBookmark(context.Background(), name)
	require.NoError(t, err)
	return b.Target, found
}

func (f *fixture) known(t *testing.T, id ir.ChangesetID) bool {
	t.Helper()
	known, err := f.store.KnownChangesets(context.Background(), []ir.ChangesetID{id})
	require.NoError(t, err)
	return known[id]
}

func commit(msg, path string, parents ...ir.ChangesetID) *ir.Changeset {
	return &ir.Changeset{
		Parents:     parents,
		Author:      "alice",
		AuthorDate:  1700000000,
		Message:     msg,
		FileChanges: map[string]ir.FileChange{path: {Size: 4}},
	}
}

func assertCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok, "expected a bookmarks.Error, got %v", err)
	assert.Equal(t, want, code, err.Error())
}

func TestCreateBookmarkOp(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	child := commit("feature", "feature.go", f.root)

	err := CreateBookmarkOp{
		Name:          "feature",
		Target:        child.MustID(),
		Reason:        ir.ReasonPush,
		Requirement:   ir.OnlyIfPublic,
		NewChangesets: []*ir.Changeset{child},
		ReplayData:    &replay.Data{RawBundleID: "b1"},
	}.Run(ctx, f.repo)
	require.NoError(t, err)

	got, found := f.target(t, "feature")
	require.True(t, found)
	assert.Equal(t, child.MustID(), got)
	assert.True(t, f.known(t, child.MustID()))

	history, err := f.store.BookmarkHistory(ctx, "feature", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].From.IsZero())
	assert.Equal(t, child.MustID(), history[0].To)
	data, err := replay.Decode(history[0].ReplayData)
	require.NoError(t, err)
	assert.Equal(t, ir.RawBundleID("b1"), data.RawBundleID)

	err = CreateBookmarkOp{Name: "feature", Target: f.root, Reason: ir.ReasonPush}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeRaceLost)
}

func TestCreateBookmarkOp_UnknownTarget(t *testing.T) {
	f := newFixture(t, testConfig())
	missing := commit("never pushed", "x", f.root)

	err := CreateBookmarkOp{Name: "feature", Target: missing.MustID(), Reason: ir.ReasonPush}.Run(context.Background(), f.repo)
	assertCode(t, err, ErrCodeInvalidChangeset)
	_, found := f.target(t, "feature")
	assert.False(t, found)
}

func TestUpdateBookmarkOp_FastForward(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	child := commit("next", "next.go", f.root)

	err := UpdateBookmarkOp{
		Name:          "main",
		Old:           f.root,
		New:           child.MustID(),
		Reason:        ir.ReasonPush,
		Policy:        ir.FastForwardOnly,
		NewChangesets: []*ir.Changeset{child},
	}.Run(ctx, f.repo)
	require.NoError(t, err)

	got, _ := f.target(t, "main")
	assert.Equal(t, child.MustID(), got)
}

func TestUpdateBookmarkOp_NonFastForward(t *testing.T) {
	cfg := testConfig()
	cfg.Bookmarks = append(cfg.Bookmarks, config.BookmarkParams{Name: "loose"})
	f := newFixture(t, cfg)
	ctx := context.Background()

	sideways := commit("sideways", "side.go")
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{sideways}))
	f.setBookmark(t, "loose", f.root, ir.BookmarkKindPublic)

	tests := []struct {
		name     string
		bookmark ir.BookmarkName
		policy   ir.BookmarkUpdatePolicy
		wantErr  bool
	}{
		{"ff-only policy rejects", "loose", ir.FastForwardOnly, true},
		{"only_fast_forward attribute overrides pushvar", "main", ir.AnyPermittedByConfig, true},
		{"permitted by config", "loose", ir.AnyPermittedByConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UpdateBookmarkOp{
				Name:   tt.bookmark,
				Old:    f.root,
				New:    sideways.MustID(),
				Reason: ir.ReasonPush,
				Policy: tt.policy,
			}.Run(ctx, f.repo)
			got, _ := f.target(t, tt.bookmark)
			if tt.wantErr {
				assertCode(t, err, ErrCodeNonFastForward)
				assert.True(t, IsNonFastForward(err))
				assert.Equal(t, f.root, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sideways.MustID(), got)
		})
	}
}

func TestUpdateBookmarkOp_StaleOldLosesRace(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	a := commit("a", "a", f.root)
	b := commit("b", "b", a.MustID())
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{a, b}))

	err := UpdateBookmarkOp{Name: "main", Old: a.MustID(), New: b.MustID(), Reason: ir.ReasonPush}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeRaceLost)
	assert.True(t, IsRaceLost(err))
}

func TestUpdateBookmarkOp_ConcurrentMovesFromSameOld(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	const pushers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range pushers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cs := commit("racer", "file", f.root)
			cs.Extras = map[string]string{"n": string(rune('a' + i))}
			err := UpdateBookmarkOp{
				Name:          "main",
				Old:           f.root,
				New:           cs.MustID(),
				Reason:        ir.ReasonPush,
				NewChangesets: []*ir.Changeset{cs},
			}.Run(ctx, f.repo)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case IsRaceLost(err):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, pushers-1, lost)

	history, err := f.store.BookmarkHistory(ctx, "main", 100)
	require.NoError(t, err)
	assert.Len(t, history, 2, "initial create plus exactly one move")
}

func TestUpdateBookmarkOp_HookVetoWritesNothing(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	bad := commit("add key", "deploy/server.key", f.root)

	err := UpdateBookmarkOp{
		Name:          "main",
		Old:           f.root,
		New:           bad.MustID(),
		Reason:        ir.ReasonPush,
		NewChangesets: []*ir.Changeset{bad},
	}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeHookFailure)
	assert.True(t, IsHookFailure(err))

	rejections := RejectionsOf(err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "no_keys", rejections[0].HookName)
	assert.Equal(t, bad.MustID(), rejections[0].ChangesetID)

	got, _ := f.target(t, "main")
	assert.Equal(t, f.root, got)
	assert.False(t, f.known(t, bad.MustID()), "vetoed changeset must not be stored")
}

func TestUpdateBookmarkOp_BypassPushvar(t *testing.T) {
	cfg := testConfig()
	cfg.Hooks[0].BypassPushvar = "ALLOW_KEYS"
	f := newFixture(t, cfg)
	bad := commit("add key", "deploy/server.key", f.root)

	err := UpdateBookmarkOp{
		Name:          "main",
		Old:           f.root,
		New:           bad.MustID(),
		Reason:        ir.ReasonPush,
		NewChangesets: []*ir.Changeset{bad},
		Pushvars:      ir.Pushvars{"ALLOW_KEYS": []byte("true")},
	}.Run(context.Background(), f.repo)
	require.NoError(t, err)
}

func TestRequirementAndPermissionChecks(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	ctx := context.Background()
	f.setBookmark(t, "release", f.root, ir.BookmarkKindPublic)
	f.setBookmark(t, "scratch/alice/wip", f.root, ir.BookmarkKindScratch)
	child := commit("c", "c", f.root)

	t.Run("public op on scratch bookmark", func(t *testing.T) {
		err := UpdateBookmarkOp{
			Name: "scratch/alice/wip", Old: f.root, New: child.MustID(),
			Requirement: ir.OnlyIfPublic, NewChangesets: []*ir.Changeset{child},
		}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodeRequirementMismatch)
	})

	t.Run("scratch op on public bookmark", func(t *testing.T) {
		err := CreateBookmarkOp{
			Name: "feature", Target: f.root, Requirement: ir.OnlyIfScratch,
		}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodeRequirementMismatch)
	})

	t.Run("user not allowed", func(t *testing.T) {
		err := UpdateBookmarkOp{
			Name: "release", Old: f.root, New: child.MustID(), Policy: ir.AnyPermittedByConfig,
			NewChangesets: []*ir.Changeset{child}, Client: ir.ClientInfo{User: "alice"},
		}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodePermissionDenied)
	})

	t.Run("user allowed", func(t *testing.T) {
		err := UpdateBookmarkOp{
			Name: "release", Old: f.root, New: child.MustID(), Policy: ir.AnyPermittedByConfig,
			NewChangesets: []*ir.Changeset{child}, Client: ir.ClientInfo{User: "releng"},
		}.Run(ctx, f.repo)
		require.NoError(t, err)
	})
}

func TestScratchWritesDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Infinitepush.AllowWrites = false
	f := newFixture(t, cfg)

	err := CreateBookmarkOp{
		Name: "scratch/bob/x", Target: f.root, Requirement: ir.OnlyIfScratch,
	}.Run(context.Background(), f.repo)
	assertCode(t, err, ErrCodeInfinitepushDisabled)
}

func TestScratchBookmarksSkipHooks(t *testing.T) {
	cfg := testConfig()
	cfg.Bookmarks = append(cfg.Bookmarks, config.BookmarkParams{Regex: "^scratch/", Hooks: []string{"no_keys"}})
	f := newFixture(t, cfg)
	draft := commit("wip key", "wip.key", f.root)

	err := CreateBookmarkOp{
		Name: "scratch/alice/keys", Target: draft.MustID(), Reason: ir.ReasonPush,
		Requirement: ir.OnlyIfScratch, NewChangesets: []*ir.Changeset{draft},
	}.Run(context.Background(), f.repo)
	require.NoError(t, err)

	history, err := f.store.BookmarkHistory(context.Background(), "scratch/alice/keys", 10)
	require.NoError(t, err)
	assert.Empty(t, history, "scratch moves are not logged")
}

func TestDeleteBookmarkOp(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.setBookmark(t, "feature", f.root, ir.BookmarkKindPublic)
	f.setBookmark(t, "scratch/alice/wip", f.root, ir.BookmarkKindScratch)

	err := DeleteBookmarkOp{Name: "main", Old: f.root, Reason: ir.ReasonPush}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeDeletionProhibited)

	err = DeleteBookmarkOp{Name: "scratch/alice/wip", Old: f.root, Requirement: ir.OnlyIfScratch}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeDeletionProhibited)

	err = DeleteBookmarkOp{Name: "feature", Old: f.root, Reason: ir.ReasonPush}.Run(ctx, f.repo)
	require.NoError(t, err)
	_, found := f.target(t, "feature")
	assert.False(t, found)

	err = DeleteBookmarkOp{Name: "feature", Old: f.root, Reason: ir.ReasonPush}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeRaceLost)
}

func TestDeleteBookmarkOp_StaleOld(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	moved := commit("moved", "moved.go", f.root)
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{moved}))
	f.setBookmark(t, "feature", moved.MustID(), ir.BookmarkKindPublic)

	err := DeleteBookmarkOp{Name: "feature", Old: f.root, Reason: ir.ReasonPush}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeRaceLost)
	assert.True(t, IsRaceLost(err))

	got, found := f.target(t, "feature")
	require.True(t, found)
	assert.Equal(t, moved.MustID(), got)
}

func TestPushrebaseOntoBookmarkOp(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	server := commit("server", "server.go", f.root)
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{server}))
	require.NoError(t, UpdateBookmarkOp{
		Name: "main", Old: f.root, New: server.MustID(), Reason: ir.ReasonPush,
	}.Run(ctx, f.repo))

	client := commit("client", "client.go", f.root)
	out, err := PushrebaseOntoBookmarkOp{
		Name:       "main",
		Changesets: []*ir.Changeset{client},
	}.Run(ctx, f.repo)
	require.NoError(t, err)
	assert.Equal(t, server.MustID(), out.OldHead)
	require.Len(t, out.RebasedChangesets, 1)
	assert.Equal(t, client.MustID(), out.RebasedChangesets[0].OldID)

	got, _ := f.target(t, "main")
	assert.Equal(t, out.Head, got)
}

func TestPushrebaseOntoBookmarkOp_Failures(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	server := commit("server", "shared.go", f.root)
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{server}))
	require.NoError(t, UpdateBookmarkOp{
		Name: "main", Old: f.root, New: server.MustID(), Reason: ir.ReasonPush,
	}.Run(ctx, f.repo))

	t.Run("conflict", func(t *testing.T) {
		client := commit("client", "shared.go", f.root)
		_, err := PushrebaseOntoBookmarkOp{Name: "main", Changesets: []*ir.Changeset{client}}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodePushrebaseFailed)
		assert.True(t, pushrebase.IsConflicts(err))
	})

	t.Run("hook veto", func(t *testing.T) {
		client := commit("client", "id.key", f.root)
		_, err := PushrebaseOntoBookmarkOp{Name: "main", Changesets: []*ir.Changeset{client}}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodeHookFailure)
	})

	t.Run("scratch bookmark", func(t *testing.T) {
		client := commit("client", "c.go", f.root)
		_, err := PushrebaseOntoBookmarkOp{Name: "scratch/x", Changesets: []*ir.Changeset{client}}.Run(ctx, f.repo)
		assertCode(t, err, ErrCodeRequirementMismatch)
	})

	got, _ := f.target(t, "main")
	assert.Equal(t, server.MustID(), got)
}

func TestPushrebaseOntoBookmarkOp_CommitHookRejection(t *testing.T) {
	cfg := testConfig()
	cfg.Pushrebase.BlockMerges = true
	f := newFixture(t, cfg)
	ctx := context.Background()

	other := commit("other", "other.go")
	require.NoError(t, f.store.SaveChangesets(ctx, []*ir.Changeset{other}))

	base := commit("base", "base.go", f.root)
	merge := commit("merge", "merge.go", base.MustID(), other.MustID())
	_, err := PushrebaseOntoBookmarkOp{
		Name:       "main",
		Changesets: []*ir.Changeset{base, merge},
	}.Run(ctx, f.repo)
	assertCode(t, err, ErrCodeHookFailure)
	assert.True(t, IsHookFailure(err))
	assert.True(t, pushrebase.IsHookRejected(err))

	rejections := RejectionsOf(err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "block_merges", rejections[0].HookName)
	assert.Equal(t, merge.MustID(), rejections[0].ChangesetID)

	got, _ := f.target(t, "main")
	assert.Equal(t, f.root, got)
}
