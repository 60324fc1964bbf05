// Package config loads repository push configuration and runtime tunables.
//
// Repository config is written in YAML or CUE. Either way it is unified
// with the embedded CUE schema (#RepoConfig) and must be concrete before
// it is decoded, so typos and type errors are reported with positions
// instead of being silently ignored.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// RepoConfig is the push-related configuration of one repository.
type RepoConfig struct {
	Name               string             `json:"name" yaml:"name"`
	ReverseFillerQueue bool               `json:"reverse_filler_queue" yaml:"reverse_filler_queue"`
	Push               PushParams         `json:"push" yaml:"push"`
	Pushrebase         PushrebaseParams   `json:"pushrebase" yaml:"pushrebase"`
	Infinitepush       InfinitepushParams `json:"infinitepush" yaml:"infinitepush"`
	Bookmarks          []BookmarkParams   `json:"bookmarks" yaml:"bookmarks"`
	Hooks              []HookParams       `json:"hooks" yaml:"hooks"`
	RateLimits         RateLimits         `json:"rate_limits" yaml:"rate_limits"`
}

// PushParams configures plain pushes.
type PushParams struct {
	CommitScribeCategory string `json:"commit_scribe_category" yaml:"commit_scribe_category"`
}

// PushrebaseParams configures pushrebase and its rewrite hooks.
type PushrebaseParams struct {
	CommitScribeCategory string `json:"commit_scribe_category" yaml:"commit_scribe_category"`
	AssignGlobalrevs     bool   `json:"assign_globalrevs" yaml:"assign_globalrevs"`
	GlobalrevStart       int64  `json:"globalrev_start" yaml:"globalrev_start"`
	BlockMerges          bool   `json:"block_merges" yaml:"block_merges"`
}

// InfinitepushParams configures scratch pushes.
type InfinitepushParams struct {
	AllowWrites          bool   `json:"allow_writes" yaml:"allow_writes"`
	Namespace            string `json:"namespace" yaml:"namespace"`
	CommitScribeCategory string `json:"commit_scribe_category" yaml:"commit_scribe_category"`
}

// BookmarkParams attaches attributes and hooks to bookmarks matched by
// exact name or by regex.
type BookmarkParams struct {
	Name            string   `json:"name" yaml:"name"`
	Regex           string   `json:"regex" yaml:"regex"`
	OnlyFastForward bool     `json:"only_fast_forward" yaml:"only_fast_forward"`
	AllowedUsers    string   `json:"allowed_users" yaml:"allowed_users"`
	Hooks           []string `json:"hooks" yaml:"hooks"`
}

// HookParams declares one hook instance.
type HookParams struct {
	Name                string            `json:"name" yaml:"name"`
	Type                string            `json:"type" yaml:"type"`
	Config              map[string]string `json:"config" yaml:"config"`
	BypassCommitMessage string            `json:"bypass_commit_message" yaml:"bypass_commit_message"`
	BypassPushvar       string            `json:"bypass_pushvar" yaml:"bypass_pushvar"`
}

// RateLimits configures admission control.
type RateLimits struct {
	CommitsPerAuthor *RateLimit `json:"commits_per_author" yaml:"commits_per_author"`
}

// RateLimit allows Limit commits per Window.
type RateLimit struct {
	Limit  int    `json:"limit" yaml:"limit"`
	Window string `json:"window" yaml:"window"`
}

// WindowDuration parses Window.
func (r RateLimit) WindowDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.Window)
	if err != nil {
		return 0, fmt.Errorf("rate limit window: %w", err)
	}
	return d, nil
}

// NamespaceRegexp compiles the scratch bookmark namespace. A nil result
// means infinitepush has no namespace and no bookmark is scratch.
func (p InfinitepushParams) NamespaceRegexp() (*regexp.Regexp, error) {
	if p.Namespace == "" {
		return nil, nil
	}
	re, err := regexp.Compile(p.Namespace)
	if err != nil {
		return nil, &Error{Field: "infinitepush.namespace", Message: err.Error()}
	}
	return re, nil
}

// Load reads a repository config from a .yaml, .yml or .cue file.
func Load(path string) (*RepoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("load config %s: unsupported extension %q", path, ext)
	}
}

// ParseYAML decodes YAML config and validates it against the schema.
func ParseYAML(data []byte) (*RepoConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decode(ctx, v)
}

// ParseCUE compiles CUE config and validates it against the schema.
func ParseCUE(data []byte, filename string) (*RepoConfig, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decode(ctx, v)
}

func decode(ctx *cue.Context, v cue.Value) (*RepoConfig, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#RepoConfig")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg RepoConfig
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints the schema cannot express: regexes compile,
// bookmark entries name exactly one matcher, hook references resolve.
func (c *RepoConfig) Validate() error {
	if _, err := c.Infinitepush.NamespaceRegexp(); err != nil {
		return err
	}

	hooks := make(map[string]bool, len(c.Hooks))
	for i, h := range c.Hooks {
		if hooks[h.Name] {
			return &Error{Field: fmt.Sprintf("hooks[%d].name", i), Message: fmt.Sprintf("duplicate hook %q", h.Name)}
		}
		hooks[h.Name] = true
	}

	for i, b := range c.Bookmarks {
		field := fmt.Sprintf("bookmarks[%d]", i)
		if (b.Name == "") == (b.Regex == "") {
			return &Error{Field: field, Message: "exactly one of name or regex is required"}
		}
		if b.Regex != "" {
			if _, err := regexp.Compile(b.Regex); err != nil {
				return &Error{Field: field + ".regex", Message: err.Error()}
			}
		}
		if b.AllowedUsers != "" {
			if _, err := regexp.Compile(b.AllowedUsers); err != nil {
				return &Error{Field: field + ".allowed_users", Message: err.Error()}
			}
		}
		for _, name := range b.Hooks {
			if !hooks[name] {
				return &Error{Field: field + ".hooks", Message: fmt.Sprintf("unknown hook %q", name)}
			}
		}
	}

	if rl := c.RateLimits.CommitsPerAuthor; rl != nil {
		if _, err := rl.WindowDuration(); err != nil {
			return &Error{Field: "rate_limits.commits_per_author.window", Message: err.Error()}
		}
	}
	return nil
}
