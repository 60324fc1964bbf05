package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/unbundle/internal/engine"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
	"github.com/roach88/unbundle/internal/testutil"
)

// Labels maps scenario labels to changesets and back.
type Labels struct {
	changesets map[string]*ir.Changeset
	ids        map[string]ir.ChangesetID
	names      map[ir.ChangesetID]string
}

// NewLabels builds every declared changeset. Authors default to alice.
func NewLabels(specs []CommitSpec) (*Labels, error) {
	l := &Labels{
		changesets: make(map[string]*ir.Changeset, len(specs)),
		ids:        make(map[string]ir.ChangesetID, len(specs)),
		names:      make(map[ir.ChangesetID]string, len(specs)),
	}
	for _, spec := range specs {
		parents := make([]ir.ChangesetID, 0, len(spec.Parents))
		for _, p := range spec.Parents {
			id, err := l.Resolve(p)
			if err != nil {
				return nil, fmt.Errorf("commit %s: %w", spec.Label, err)
			}
			parents = append(parents, id)
		}

		message := spec.Message
		if message == "" {
			message = spec.Label
		}
		cs := testutil.Changeset(message, parents, spec.Files...)
		if spec.Author != "" {
			cs.Author = spec.Author
		}
		id, err := cs.ID()
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", spec.Label, err)
		}
		if other, dup := l.names[id]; dup {
			return nil, fmt.Errorf("commits %s and %s are identical", other, spec.Label)
		}
		l.changesets[spec.Label] = cs
		l.Add(spec.Label, id)
	}
	return l, nil
}

// Add names id.
func (l *Labels) Add(label string, id ir.ChangesetID) {
	l.ids[label] = id
	l.names[id] = label
}

// Resolve returns the id of a label. The empty label is the zero id.
func (l *Labels) Resolve(label string) (ir.ChangesetID, error) {
	if label == "" {
		return "", nil
	}
	id, ok := l.ids[label]
	if !ok {
		return "", fmt.Errorf("unknown commit %q", label)
	}
	return id, nil
}

// Name returns the label of id, or its short form if it has none.
func (l *Labels) Name(id ir.ChangesetID) string {
	if id.IsZero() {
		return ""
	}
	if name, ok := l.names[id]; ok {
		return name
	}
	return id.Short()
}

// Changesets returns the declared changesets for labels.
func (l *Labels) Changesets(labels []string) ([]*ir.Changeset, error) {
	out := make([]*ir.Changeset, 0, len(labels))
	for _, label := range labels {
		cs, ok := l.changesets[label]
		if !ok {
			return nil, fmt.Errorf("unknown commit %q", label)
		}
		out = append(out, cs)
	}
	return out, nil
}

// NativeID implements engine.HookRejectionRemapper: hook rejections are
// reported by label.
func (l *Labels) NativeID(_ context.Context, id ir.ChangesetID) (ir.NativeID, error) {
	return ir.NativeID(l.Name(id)), nil
}

// BuildAction turns a step into the engine action it describes.
func BuildAction(step Step, labels *Labels) (engine.PostResolveAction, error) {
	uploaded, err := labels.Changesets(step.Commits)
	if err != nil {
		return nil, err
	}
	old, err := labels.Resolve(step.Old)
	if err != nil {
		return nil, err
	}
	target, err := labels.Resolve(step.New)
	if err != nil {
		return nil, err
	}
	name, err := bookmarkName(step.Bookmark)
	if err != nil {
		return nil, err
	}

	natives := make([]ir.NativeID, len(step.Commits))
	for i, label := range step.Commits {
		natives[i] = ir.NativeID(label)
	}
	var pushvars ir.Pushvars
	if len(step.Pushvars) > 0 {
		pushvars = make(ir.Pushvars, len(step.Pushvars))
		for k, v := range step.Pushvars {
			pushvars[k] = []byte(v)
		}
	}
	policy := ir.NonFastForwardOnlyFastForward
	if step.NonFastForward {
		policy = ir.NonFastForwardAllowed
	}
	bundle := ir.RawBundleID(step.Bundle)
	plain := engine.PlainBookmarkPush{PartID: 1, Name: name, Old: old, New: target}

	switch step.Action {
	case ActionPush:
		action := engine.PostResolvePush{
			RawBundleID:           bundle,
			Pushvars:              pushvars,
			NonFastForwardPolicy:  policy,
			Mutations:             step.Mutations,
			UploadedChangesets:    uploaded,
			UploadedNativeIDs:     natives,
			HookRejectionRemapper: labels,
		}
		if name != "" {
			action.BookmarkPushes = []engine.PlainBookmarkPush{plain}
		}
		return action, nil

	case ActionInfinitepush:
		action := engine.PostResolveInfinitePush{
			RawBundleID:        bundle,
			Mutations:          step.Mutations,
			UploadedChangesets: uploaded,
			UploadedNativeIDs:  natives,
			IsCrossBackendSync: step.CrossBackendSync,
		}
		if name != "" {
			action.BookmarkPush = &engine.InfiniteBookmarkPush{
				Name:   name,
				Old:    old,
				New:    target,
				Create: step.Create,
				Force:  step.Force,
			}
		}
		return action, nil

	case ActionPushrebase, ActionForcePushrebase:
		var spec engine.PushrebaseBookmarkSpec = engine.NormalPushrebase{Onto: name}
		if step.Action == ActionForcePushrebase {
			spec = engine.ForcePushrebase{Push: plain}
		}
		var data *replay.Data
		if bundle != "" {
			data = &replay.Data{RawBundleID: bundle}
		}
		part := ir.PartID(1)
		return engine.PostResolvePushRebase{
			BookmarkPushPartID:    &part,
			BookmarkSpec:          spec,
			ReplayData:            data,
			Pushvars:              pushvars,
			UploadedChangesets:    uploaded,
			HookRejectionRemapper: labels,
		}, nil

	case ActionBookmarkOnlyPushrebase:
		return engine.PostResolveBookmarkOnlyPushRebase{
			BookmarkPush:          plain,
			RawBundleID:           bundle,
			Pushvars:              pushvars,
			NonFastForwardPolicy:  policy,
			HookRejectionRemapper: labels,
		}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

func bookmarkName(s string) (ir.BookmarkName, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return ir.NewBookmarkName(s)
}
