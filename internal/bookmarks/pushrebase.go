package bookmarks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/unbundle/internal/hooks"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/pushrebase"
	"github.com/roach88/unbundle/internal/replay"
)

// PushrebaseOntoBookmarkOp rebases pushed changesets onto a public
// bookmark and moves it to the rebased head.
type PushrebaseOntoBookmarkOp struct {
	Name       ir.BookmarkName
	Changesets []*ir.Changeset
	Pushvars   ir.Pushvars
	ReplayData *replay.Data
	Client     ir.ClientInfo
}

// Run performs the pushrebase. Hooks run against the pushed changesets
// before the rebaser is called. Rebaser failures are wrapped in an Error
// with ErrCodePushrebaseFailed (ErrCodeRaceLost for a lost race,
// ErrCodeHookFailure for a commit hook veto), so the rebaser's own error
// stays reachable with errors.As.
func (op PushrebaseOntoBookmarkOp) Run(ctx context.Context, repo *Repo) (pushrebase.Outcome, error) {
	kind, err := repo.checkKind(op.Name, ir.OnlyIfPublic)
	if err != nil {
		return pushrebase.Outcome{}, err
	}
	if err := repo.checkPermission(op.Name, op.Client); err != nil {
		return pushrebase.Outcome{}, err
	}
	if err := repo.runHooks(ctx, op.Name, kind, op.Changesets, op.Pushvars); err != nil {
		return pushrebase.Outcome{}, err
	}

	outcome, err := repo.rebaser.Rebase(ctx, pushrebase.Request{
		Onto:       op.Name,
		Changesets: op.Changesets,
		Pushvars:   op.Pushvars,
		ReplayData: op.ReplayData,
	})
	if err != nil {
		var hr *pushrebase.HookRejectedError
		if errors.As(err, &hr) {
			return pushrebase.Outcome{}, &Error{
				Code:     ErrCodeHookFailure,
				Bookmark: op.Name,
				Message:  "pushrebase hook rejected",
				Rejections: []hooks.Rejection{{
					HookName:    hr.Hook,
					ChangesetID: hr.ChangesetID,
					Description: hr.Reason,
				}},
				Err: err,
			}
		}
		code := ErrCodePushrebaseFailed
		if pushrebase.IsRace(err) {
			code = ErrCodeRaceLost
		}
		return pushrebase.Outcome{}, &Error{Code: code, Bookmark: op.Name, Message: "pushrebase failed", Err: err}
	}

	slog.Info("bookmark pushrebased",
		"repo", repo.name,
		"bookmark", op.Name,
		"from", outcome.OldHead.Short(),
		"to", outcome.Head.Short(),
		"commits", len(outcome.RebasedChangesets),
	)
	return outcome, nil
}
