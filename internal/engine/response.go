package engine

import "github.com/roach88/unbundle/internal/ir"

// UnbundleResponse is the outcome of one action. Strategy reports which
// strategy produced it.
type UnbundleResponse interface {
	Strategy() string
}

// PushResponse answers a plain push.
type PushResponse struct {
	ChangegroupID ir.PartID   `json:"changegroup_id"`
	BookmarkIDs   []ir.PartID `json:"bookmark_ids"`
}

// InfinitePushResponse answers a scratch push.
type InfinitePushResponse struct {
	ChangegroupID ir.PartID `json:"changegroup_id"`
}

// PushRebaseResponse answers a pushrebase. PushrebasedChangesets is empty
// for a force pushrebase.
type PushRebaseResponse struct {
	CommonHeads           []ir.NativeID   `json:"common_heads"`
	PushrebasedRev        ir.ChangesetID  `json:"pushrebased_rev"`
	PushrebasedChangesets []ir.RebasePair `json:"pushrebased_changesets"`
	Onto                  ir.BookmarkName `json:"onto"`
	BookmarkPushPartID    *ir.PartID      `json:"bookmark_push_part_id,omitempty"`
}

// BookmarkOnlyPushRebaseResponse answers a bookmark-only pushrebase.
type BookmarkOnlyPushRebaseResponse struct {
	BookmarkPushPartID ir.PartID `json:"bookmark_push_part_id"`
}

// Strategy implements UnbundleResponse.
func (*PushResponse) Strategy() string { return StrategyPush }

// Strategy implements UnbundleResponse.
func (*InfinitePushResponse) Strategy() string { return StrategyInfinitePush }

// Strategy implements UnbundleResponse.
func (*PushRebaseResponse) Strategy() string { return StrategyPushRebase }

// Strategy implements UnbundleResponse.
func (*BookmarkOnlyPushRebaseResponse) Strategy() string { return StrategyBookmarkOnlyPushRebase }
