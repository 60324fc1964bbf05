package engine

import (
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
)

// Strategy names, used as response tags and metric labels.
const (
	StrategyPush                   = "push"
	StrategyInfinitePush           = "infinitepush"
	StrategyPushRebase             = "pushrebase"
	StrategyBookmarkOnlyPushRebase = "bookmark_only_pushrebase"
)

// PostResolveAction is one resolved push intent. It is one of
// PostResolvePush, PostResolveInfinitePush, PostResolvePushRebase or
// PostResolveBookmarkOnlyPushRebase.
type PostResolveAction interface {
	strategy() string
	uploaded() []*ir.Changeset
}

// PlainBookmarkPush is a public bookmark move. A zero Old creates the
// bookmark, a zero New deletes it, both zero is a no-op.
type PlainBookmarkPush struct {
	PartID ir.PartID
	Name   ir.BookmarkName
	Old    ir.ChangesetID
	New    ir.ChangesetID
}

// InfiniteBookmarkPush is a scratch bookmark move. Creating a bookmark
// that does not exist requires Create; moving it backwards or sideways
// requires Force.
type InfiniteBookmarkPush struct {
	Name   ir.BookmarkName
	Old    ir.ChangesetID
	New    ir.ChangesetID
	Create bool
	Force  bool
}

// PostResolvePush is a plain push.
type PostResolvePush struct {
	ChangegroupID         ir.PartID
	BookmarkPushes        []PlainBookmarkPush
	Mutations             []ir.MutationEntry
	RawBundleID           ir.RawBundleID
	Pushvars              ir.Pushvars
	NonFastForwardPolicy  ir.NonFastForwardPolicy
	UploadedChangesets    []*ir.Changeset
	UploadedNativeIDs     []ir.NativeID
	HookRejectionRemapper HookRejectionRemapper
}

// PostResolveInfinitePush is a scratch push.
type PostResolveInfinitePush struct {
	ChangegroupID      ir.PartID
	BookmarkPush       *InfiniteBookmarkPush
	Mutations          []ir.MutationEntry
	RawBundleID        ir.RawBundleID
	UploadedChangesets []*ir.Changeset
	UploadedNativeIDs  []ir.NativeID
	// IsCrossBackendSync marks pushes replayed from another backend; their
	// bundles are not preserved again.
	IsCrossBackendSync bool
}

// PushrebaseBookmarkSpec selects the pushrebase sub-mode: NormalPushrebase
// or ForcePushrebase.
type PushrebaseBookmarkSpec interface {
	BookmarkName() ir.BookmarkName
}

// NormalPushrebase rebases the uploaded commits onto Onto.
type NormalPushrebase struct {
	Onto ir.BookmarkName
}

// BookmarkName implements PushrebaseBookmarkSpec.
func (s NormalPushrebase) BookmarkName() ir.BookmarkName { return s.Onto }

// ForcePushrebase moves a bookmark to an explicit target without
// rebasing anything.
type ForcePushrebase struct {
	Push PlainBookmarkPush
}

// BookmarkName implements PushrebaseBookmarkSpec.
func (s ForcePushrebase) BookmarkName() ir.BookmarkName { return s.Push.Name }

// PostResolvePushRebase is a pushrebase.
type PostResolvePushRebase struct {
	BookmarkPushPartID    *ir.PartID
	BookmarkSpec          PushrebaseBookmarkSpec
	ReplayData            *replay.Data
	Pushvars              ir.Pushvars
	CommonHeads           []ir.NativeID
	UploadedChangesets    []*ir.Changeset
	HookRejectionRemapper HookRejectionRemapper
}

// PostResolveBookmarkOnlyPushRebase moves a bookmark during a pushrebase
// that carries no commits.
type PostResolveBookmarkOnlyPushRebase struct {
	BookmarkPush          PlainBookmarkPush
	RawBundleID           ir.RawBundleID
	Pushvars              ir.Pushvars
	NonFastForwardPolicy  ir.NonFastForwardPolicy
	HookRejectionRemapper HookRejectionRemapper
}

func (PostResolvePush) strategy() string { return StrategyPush }
func (PostResolveInfinitePush) strategy() string { return StrategyInfinitePush }
func (PostResolvePushRebase) strategy() string { return StrategyPushRebase }
func (PostResolveBookmarkOnlyPushRebase) strategy() string { return StrategyBookmarkOnlyPushRebase }

func (a PostResolvePush) uploaded() []*ir.Changeset { return a.UploadedChangesets }
func (a PostResolveInfinitePush) uploaded() []*ir.Changeset { return a.UploadedChangesets }
func (a PostResolvePushRebase) uploaded() []*ir.Changeset { return a.UploadedChangesets }
func (PostResolveBookmarkOnlyPushRebase) uploaded() []*ir.Changeset { return nil }

// replayDataFor wraps a raw bundle id as replay data.
func replayDataFor(id ir.RawBundleID) *replay.Data {
	if id == "" {
		return nil
	}
	return &replay.Data{RawBundleID: id}
}
