package pushrebase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/ir"
)

// Conflict is a pair of overlapping paths: Left is changed by the pushed
// commits, Right was changed on the server since the stack's base.
type Conflict struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// ConflictsError reports file-level conflicts blocking a pushrebase.
// Conflicts are sorted and never resolved automatically.
type ConflictsError struct {
	Conflicts []Conflict
}

func (e *ConflictsError) Error() string {
	paths := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		if c.Left == c.Right {
			paths[i] = c.Left
		} else {
			paths[i] = c.Left + " <-> " + c.Right
		}
	}
	return fmt.Sprintf("pushrebase conflicts: %s", strings.Join(paths, ", "))
}

// HookRejectedError is returned when a pushrebase commit hook refuses to
// rewrite a changeset.
type HookRejectedError struct {
	Hook        string
	ChangesetID ir.ChangesetID
	Reason      string
}

func (e *HookRejectedError) Error() string {
	return fmt.Sprintf("pushrebase hook %s rejected %s: %s", e.Hook, e.ChangesetID.Short(), e.Reason)
}

// RaceError is returned when the onto bookmark moved, or a globalrev was
// taken, between computing the rebase and committing it. Pushrebase does
// not retry; the caller must resubmit.
type RaceError struct {
	Bookmark ir.BookmarkName
	Expected ir.ChangesetID
}

func (e *RaceError) Error() string {
	return fmt.Sprintf("bookmark %s moved from %s during pushrebase", e.Bookmark, e.Expected.Short())
}

// IsConflicts reports whether err is (or wraps) a ConflictsError.
func IsConflicts(err error) bool {
	var e *ConflictsError
	return errors.As(err, &e)
}

// IsHookRejected reports whether err is (or wraps) a HookRejectedError.
func IsHookRejected(err error) bool {
	var e *HookRejectedError
	return errors.As(err, &e)
}

// IsRace reports whether err is (or wraps) a RaceError.
func IsRace(err error) bool {
	var e *RaceError
	return errors.As(err, &e)
}
