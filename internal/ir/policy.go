package ir

import "fmt"

// NonFastForwardPolicy is the client's declared willingness to move a
// bookmark backwards or sideways (the NON_FAST_FORWARD pushvar).
type NonFastForwardPolicy int

const (
	// NonFastForwardOnlyFastForward rejects moves where the new target is
	// not a descendant of the old one.
	NonFastForwardOnlyFastForward NonFastForwardPolicy = iota
	// NonFastForwardAllowed permits any move the repository config allows.
	NonFastForwardAllowed
)

func (p NonFastForwardPolicy) String() string {
	switch p {
	case NonFastForwardAllowed:
		return "allowed"
	default:
		return "only_fast_forward"
	}
}

// BookmarkUpdatePolicy is the policy a bookmark update is checked against.
type BookmarkUpdatePolicy int

const (
	// FastForwardOnly requires the new target to descend from the old one.
	FastForwardOnly BookmarkUpdatePolicy = iota
	// AnyPermittedByConfig allows arbitrary moves unless the bookmark's
	// attributes say it is fast-forward only.
	AnyPermittedByConfig
)

func (p BookmarkUpdatePolicy) String() string {
	switch p {
	case AnyPermittedByConfig:
		return "any_permitted_by_config"
	default:
		return "fast_forward_only"
	}
}

// UpdatePolicyFor maps the client's non-fast-forward policy to the policy a
// bookmark update is checked against.
func UpdatePolicyFor(p NonFastForwardPolicy) BookmarkUpdatePolicy {
	if p == NonFastForwardAllowed {
		return AnyPermittedByConfig
	}
	return FastForwardOnly
}

// VisibilityRequirement restricts which class of bookmark an operation may
// target. It prevents published and ephemeral history from being mixed up.
type VisibilityRequirement int

const (
	// OnlyIfPublic rejects operations on scratch bookmarks.
	OnlyIfPublic VisibilityRequirement = iota
	// OnlyIfScratch rejects operations on public bookmarks.
	OnlyIfScratch
)

func (r VisibilityRequirement) String() string {
	if r == OnlyIfScratch {
		return "only_if_scratch"
	}
	return "only_if_public"
}

// Permits reports whether a bookmark of the given kind satisfies r.
func (r VisibilityRequirement) Permits(kind BookmarkKind) bool {
	if r == OnlyIfScratch {
		return kind == BookmarkKindScratch
	}
	return kind == BookmarkKindPublic
}

// Kind returns the bookmark kind that r targets.
func (r VisibilityRequirement) Kind() BookmarkKind {
	if r == OnlyIfScratch {
		return BookmarkKindScratch
	}
	return BookmarkKindPublic
}

// BookmarkUpdateReason classifies a bookmark transition for the update log
// and for downstream replication.
type BookmarkUpdateReason string

const (
	ReasonPush       BookmarkUpdateReason = "push"
	ReasonPushrebase BookmarkUpdateReason = "pushrebase"
	ReasonManualMove BookmarkUpdateReason = "manualmove"
	ReasonBacksyncer BookmarkUpdateReason = "backsyncer"
)

// ParseBookmarkUpdateReason parses a stored reason value.
func ParseBookmarkUpdateReason(s string) (BookmarkUpdateReason, error) {
	switch r := BookmarkUpdateReason(s); r {
	case ReasonPush, ReasonPushrebase, ReasonManualMove, ReasonBacksyncer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown bookmark update reason %q", s)
	}
}
