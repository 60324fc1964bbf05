package bookmarks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/hooks"
	"github.com/roach88/unbundle/internal/ir"
)

// ErrorCode categorizes bookmark movement failures.
type ErrorCode string

const (
	// ErrCodeHookFailure indicates one or more hooks vetoed the move.
	ErrCodeHookFailure ErrorCode = "HOOK_FAILURE"

	// ErrCodeNonFastForward indicates the new target does not descend from
	// the old one under a fast-forward-only policy.
	ErrCodeNonFastForward ErrorCode = "NON_FAST_FORWARD"

	// ErrCodeRaceLost indicates the bookmark no longer matched the expected
	// value when the transaction committed.
	ErrCodeRaceLost ErrorCode = "RACE_LOST"

	// ErrCodeRequirementMismatch indicates the bookmark is of the wrong
	// kind (public vs scratch) for the operation.
	ErrCodeRequirementMismatch ErrorCode = "REQUIREMENT_MISMATCH"

	// ErrCodePermissionDenied indicates the user may not move the bookmark.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeDeletionProhibited indicates the bookmark cannot be deleted.
	ErrCodeDeletionProhibited ErrorCode = "DELETION_PROHIBITED"

	// ErrCodeInfinitepushDisabled indicates scratch writes are disabled.
	ErrCodeInfinitepushDisabled ErrorCode = "INFINITEPUSH_DISABLED"

	// ErrCodePushrebaseFailed indicates the rebaser failed; the cause is
	// wrapped and may be a pushrebase.ConflictsError.
	ErrCodePushrebaseFailed ErrorCode = "PUSHREBASE_FAILED"

	// ErrCodeInvalidChangeset indicates a target that is neither stored nor
	// part of the push.
	ErrCodeInvalidChangeset ErrorCode = "INVALID_CHANGESET"
)

// Error is a structured bookmark movement failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Bookmark is the bookmark being moved.
	Bookmark ir.BookmarkName

	// Rejections lists hook vetoes for ErrCodeHookFailure.
	Rejections []hooks.Rejection

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Bookmark != "" {
		fmt.Fprintf(&b, " (bookmark=%s)", e.Bookmark)
	}
	for _, r := range e.Rejections {
		fmt.Fprintf(&b, "\n  %s for %s: %s", r.HookName, r.ChangesetID.Short(), r.Description)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a bookmark Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsHookFailure reports whether err is a hook veto.
func IsHookFailure(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeHookFailure
}

// IsRaceLost reports whether err is a lost compare-and-swap.
func IsRaceLost(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeRaceLost
}

// IsNonFastForward reports whether err is a rejected non-fast-forward move.
func IsNonFastForward(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeNonFastForward
}

// RejectionsOf returns the hook rejections carried by err, if any.
func RejectionsOf(err error) []hooks.Rejection {
	var e *Error
	if errors.As(err, &e) {
		return e.Rejections
	}
	return nil
}

func newError(code ErrorCode, name ir.BookmarkName, format string, args ...any) *Error {
	return &Error{Code: code, Bookmark: name, Message: fmt.Sprintf(format, args...)}
}
