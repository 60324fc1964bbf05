package hooks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Built-in hook types.
const (
	TypeBlockEmptyCommit          = "block_empty_commit"
	TypeLimitFilesize             = "limit_filesize"
	TypeDenyFiles                 = "deny_files"
	TypeLimitPathLength           = "limit_path_length"
	TypeBlockCommitMessagePattern = "block_commit_message_pattern"
)

// NewBuiltin constructs a built-in hook from its type and string config.
func NewBuiltin(typ string, cfg map[string]string) (Hook, error) {
	switch typ {
	case TypeBlockEmptyCommit:
		return HookFunc(blockEmptyCommit), nil
	case TypeLimitFilesize:
		limit, err := intParam(cfg, "max_bytes")
		if err != nil {
			return nil, err
		}
		return limitFilesize{maxBytes: limit}, nil
	case TypeDenyFiles:
		re, err := regexParam(cfg, "pattern")
		if err != nil {
			return nil, err
		}
		return denyFiles{pattern: re}, nil
	case TypeLimitPathLength:
		limit, err := intParam(cfg, "max_length")
		if err != nil {
			return nil, err
		}
		return limitPathLength{maxLength: int(limit)}, nil
	case TypeBlockCommitMessagePattern:
		re, err := regexParam(cfg, "pattern")
		if err != nil {
			return nil, err
		}
		return blockMessage{pattern: re, message: cfg["message"]}, nil
	default:
		return nil, fmt.Errorf("unknown hook type %q", typ)
	}
}

func intParam(cfg map[string]string, key string) (int64, error) {
	raw, ok := cfg[key]
	if !ok {
		return 0, fmt.Errorf("missing config %q", key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("config %q must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func regexParam(cfg map[string]string, key string) (*regexp.Regexp, error) {
	raw, ok := cfg[key]
	if !ok || raw == "" {
		return nil, fmt.Errorf("missing config %q", key)
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", key, err)
	}
	return re, nil
}

func blockEmptyCommit(_ context.Context, in Input) (Verdict, error) {
	if len(in.Changeset.FileChanges) == 0 {
		return Reject("Empty commits are not allowed",
			"Commit "+in.ChangesetID.Short()+" changes no files."), nil
	}
	return Accept(), nil
}

type limitFilesize struct {
	maxBytes int64
}

func (h limitFilesize) Run(_ context.Context, in Input) (Verdict, error) {
	for _, path := range in.Changeset.ChangedPaths() {
		fc := in.Changeset.FileChanges[path]
		if !fc.Deleted && fc.Size > h.maxBytes {
			return Reject("File too large",
				fmt.Sprintf("File size limit is %d bytes. You tried to push file %s that is over the limit (%d bytes).", h.maxBytes, path, fc.Size)), nil
		}
	}
	return Accept(), nil
}

type denyFiles struct {
	pattern *regexp.Regexp
}

func (h denyFiles) Run(_ context.Context, in Input) (Verdict, error) {
	for _, path := range in.Changeset.ChangedPaths() {
		if in.Changeset.FileChanges[path].Deleted {
			continue
		}
		if h.pattern.MatchString(path) {
			return Reject("Denied filename",
				fmt.Sprintf("Denied filename '%s' matched name pattern '%s'. Rename or remove this file and try again.", path, h.pattern)), nil
		}
	}
	return Accept(), nil
}

type limitPathLength struct {
	maxLength int
}

func (h limitPathLength) Run(_ context.Context, in Input) (Verdict, error) {
	for _, path := range in.Changeset.ChangedPaths() {
		if len(path) > h.maxLength {
			return Reject("Path too long",
				fmt.Sprintf("Path length for '%s' (%d) exceeds length limit (>= %d)", path, len(path), h.maxLength)), nil
		}
	}
	return Accept(), nil
}

type blockMessage struct {
	pattern *regexp.Regexp
	message string
}

func (h blockMessage) Run(_ context.Context, in Input) (Verdict, error) {
	if !h.pattern.MatchString(in.Changeset.Message) {
		return Accept(), nil
	}
	long := h.message
	if long == "" {
		long = fmt.Sprintf("Commit message matches blocked pattern '%s'.", h.pattern)
	}
	return Reject("Blocked commit message", long), nil
}
