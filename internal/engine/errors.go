package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/pushrebase"
	"github.com/roach88/unbundle/internal/ratelimit"
)

// ResolverErrorCode categorizes a failed unbundle.
type ResolverErrorCode string

const (
	// ErrCodePushrebaseConflicts indicates file conflicts blocked a
	// pushrebase. Conflicts lists them.
	ErrCodePushrebaseConflicts ResolverErrorCode = "PUSHREBASE_CONFLICTS"

	// ErrCodeHookError indicates hooks vetoed the push. Rejections lists
	// the remapped vetoes.
	ErrCodeHookError ResolverErrorCode = "HOOK_ERROR"

	// ErrCodeRateLimited indicates admission control rejected the push
	// before any work began.
	ErrCodeRateLimited ResolverErrorCode = "RATE_LIMITED"

	// ErrCodeRace indicates a bookmark moved concurrently. The client may
	// re-resolve and retry.
	ErrCodeRace ResolverErrorCode = "RACE"

	// ErrCodeError is any other failure.
	ErrCodeError ResolverErrorCode = "ERROR"
)

// ResolverError is the error returned by ResolveAndApply. Callers branch
// on Code; the message of ERROR and RACE errors is diagnostic only.
type ResolverError struct {
	// Code identifies the error category.
	Code ResolverErrorCode

	// Conflicts is set for ErrCodePushrebaseConflicts.
	Conflicts []pushrebase.Conflict

	// Rejections is set for ErrCodeHookError.
	Rejections []HookRejection

	// Err is the wrapped cause, with context.
	Err error
}

// Error implements the error interface.
func (e *ResolverError) Error() string {
	switch e.Code {
	case ErrCodePushrebaseConflicts:
		parts := make([]string, len(e.Conflicts))
		for i, c := range e.Conflicts {
			parts[i] = c.Left + " vs " + c.Right
		}
		return fmt.Sprintf("Conflicts while pushrebasing: %s", strings.Join(parts, ", "))
	case ErrCodeHookError:
		var b strings.Builder
		b.WriteString("hooks failed:")
		for _, r := range e.Rejections {
			fmt.Fprintf(&b, "\n%s for %s: %s", r.HookName, r.NativeID, r.Description)
		}
		return b.String()
	default:
		if e.Err == nil {
			return string(e.Code)
		}
		return e.Err.Error()
	}
}

// Unwrap returns the underlying cause.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the ResolverError in err's chain, or
// ErrCodeError if there is none.
func CodeOf(err error) ResolverErrorCode {
	var re *ResolverError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeError
}

// IsPushrebaseConflicts reports whether err is a pushrebase conflict.
func IsPushrebaseConflicts(err error) bool {
	return err != nil && CodeOf(err) == ErrCodePushrebaseConflicts
}

// IsHookError reports whether err is a hook veto.
func IsHookError(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeHookError
}

// IsRateLimited reports whether err is an admission rejection.
func IsRateLimited(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeRateLimited
}

// IsRace reports whether err is a lost bookmark race.
func IsRace(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeRace
}

// errorf builds an ErrCodeError.
func errorf(format string, args ...any) *ResolverError {
	return &ResolverError{Code: ErrCodeError, Err: fmt.Errorf(format, args...)}
}

// withContext adds a diagnostic prefix to err. Conflicts, hook vetoes
// and rate limiting are returned unchanged so they render verbatim.
func withContext(err error, msg string) error {
	if err == nil {
		return nil
	}
	re := asResolverError(err)
	switch re.Code {
	case ErrCodePushrebaseConflicts, ErrCodeHookError, ErrCodeRateLimited:
		return re
	}
	return &ResolverError{Code: re.Code, Err: fmt.Errorf("%s: %w", msg, re.Err)}
}

// asResolverError classifies err without adding context. Errors that are
// not yet a ResolverError become RACE, RATE_LIMITED or ERROR.
func asResolverError(err error) *ResolverError {
	var re *ResolverError
	if errors.As(err, &re) {
		return re
	}
	code := ErrCodeError
	switch {
	case bookmarks.IsRaceLost(err), pushrebase.IsRace(err):
		code = ErrCodeRace
	case ratelimit.IsRateLimited(err):
		code = ErrCodeRateLimited
	}
	return &ResolverError{Code: code, Err: err}
}
