package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/engine"
	"github.com/roach88/unbundle/internal/ir"
)

// Scenario is an end-to-end unbundle test: a repository config, a commit
// graph, an initial state and a sequence of resolved pushes with their
// expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the repository config, in the same shape as a config file.
	Config yaml.Node `yaml:"config"`

	// Commits declares every changeset the scenario refers to, by label.
	// Parents must be declared before their children.
	Commits []CommitSpec `yaml:"commits"`

	// Setup is stored before the first step runs.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final repository state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RequestID fixes the request id of every step. Defaults to
	// "test-request".
	RequestID string `yaml:"request_id,omitempty"`
}

// CommitSpec declares one changeset.
type CommitSpec struct {
	Label   string   `yaml:"label"`
	Parents []string `yaml:"parents,omitempty"`
	Files   []string `yaml:"files,omitempty"`
	Message string   `yaml:"message,omitempty"`
	Author  string   `yaml:"author,omitempty"`
}

// Setup is the repository state before the first step. Public commits
// (and their ancestors) are stored as published history; bookmarks map
// names to commit labels.
type Setup struct {
	Public    []string          `yaml:"public,omitempty"`
	Bookmarks map[string]string `yaml:"bookmarks,omitempty"`
}

// Step is one resolved push. Commit references are labels; a label with a
// trailing quote names the pushrebased copy of a commit once a pushrebase
// step has produced it.
type Step struct {
	// Action is one of push, infinitepush, pushrebase, force_pushrebase
	// or bookmark_only_pushrebase.
	Action string `yaml:"action"`

	User     string `yaml:"user,omitempty"`
	Hostname string `yaml:"hostname,omitempty"`

	// Bookmark is the moved bookmark (the onto bookmark for pushrebase).
	Bookmark string `yaml:"bookmark,omitempty"`
	Old      string `yaml:"old,omitempty"`
	New      string `yaml:"new,omitempty"`

	// Create and Force are infinitepush flags.
	Create bool `yaml:"create,omitempty"`
	Force  bool `yaml:"force,omitempty"`

	// NonFastForward allows non-fast-forward moves for push and
	// bookmark-only pushrebase.
	NonFastForward bool `yaml:"non_fast_forward,omitempty"`

	// Commits are the uploaded changesets.
	Commits []string `yaml:"commits,omitempty"`

	Pushvars  map[string]string  `yaml:"pushvars,omitempty"`
	Bundle    string             `yaml:"bundle,omitempty"`
	Mutations []ir.MutationEntry `yaml:"mutations,omitempty"`

	// CrossBackendSync marks an infinitepush replayed from another backend.
	CrossBackendSync bool `yaml:"cross_backend_sync,omitempty"`

	// Expect is the expected outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step outcome.
type Expect struct {
	// Outcome is OK or a resolver error code such as RACE.
	Outcome string `yaml:"outcome"`

	// Contains is a substring of the error message.
	Contains string `yaml:"contains,omitempty"`
}

// OutcomeOK is the outcome of a successful step.
const OutcomeOK = "OK"

// Step actions.
const (
	ActionPush                   = "push"
	ActionInfinitepush           = "infinitepush"
	ActionPushrebase             = "pushrebase"
	ActionForcePushrebase        = "force_pushrebase"
	ActionBookmarkOnlyPushrebase = "bookmark_only_pushrebase"
)

// Assertion validates the final repository state.
type Assertion struct {
	// Type is one of bookmark, history, public or stored.
	Type string `yaml:"type"`

	// Bookmark names the bookmark for bookmark and history assertions.
	Bookmark string `yaml:"bookmark,omitempty"`

	// At is the expected bookmark target label.
	At string `yaml:"at,omitempty"`

	// Commit is the commit label for public and stored assertions.
	Commit string `yaml:"commit,omitempty"`

	// Absent inverts bookmark, public and stored assertions.
	Absent bool `yaml:"absent,omitempty"`

	// Reasons are the expected history reasons, newest first.
	Reasons []string `yaml:"reasons,omitempty"`
}

// Assertion type constants.
const (
	AssertBookmark = "bookmark"
	AssertHistory  = "history"
	AssertPublic   = "public"
	AssertStored   = "stored"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// RepoConfig decodes the scenario's config through the normal config
// loader, so scenarios are validated against the same schema.
func (s *Scenario) RepoConfig() (*config.RepoConfig, error) {
	data, err := yaml.Marshal(&s.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: config: %w", s.Name, err)
	}
	return config.ParseYAML(data)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config.Kind != yaml.MappingNode {
		return fmt.Errorf("config mapping is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool, len(s.Commits))
	for i, c := range s.Commits {
		if c.Label == "" {
			return fmt.Errorf("commits[%d]: label is required", i)
		}
		if labels[c.Label] {
			return fmt.Errorf("commits[%d]: duplicate label %q", i, c.Label)
		}
		for _, p := range c.Parents {
			if !labels[p] {
				return fmt.Errorf("commits[%d]: parent %q must be declared first", i, p)
			}
		}
		labels[c.Label] = true
	}
	for _, label := range s.Setup.Public {
		if !labels[label] {
			return fmt.Errorf("setup.public: unknown commit %q", label)
		}
	}
	for name, label := range s.Setup.Bookmarks {
		if !labels[label] {
			return fmt.Errorf("setup.bookmarks.%s: unknown commit %q", name, label)
		}
	}

	for i, step := range s.Steps {
		switch step.Action {
		case ActionPush, ActionInfinitepush, ActionPushrebase, ActionForcePushrebase, ActionBookmarkOnlyPushrebase:
		case "":
			return fmt.Errorf("steps[%d]: action is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		for _, label := range step.Commits {
			if !labels[label] {
				return fmt.Errorf("steps[%d]: unknown commit %q", i, label)
			}
		}
		if step.Expect != nil {
			if err := validateOutcome(step.Expect.Outcome); err != nil {
				return fmt.Errorf("steps[%d].expect: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateOutcome(outcome string) error {
	switch engine.ResolverErrorCode(outcome) {
	case OutcomeOK, engine.ErrCodePushrebaseConflicts, engine.ErrCodeHookError,
		engine.ErrCodeRateLimited, engine.ErrCodeRace, engine.ErrCodeError:
		return nil
	case "":
		return fmt.Errorf("outcome is required")
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertBookmark:
		if a.Bookmark == "" {
			return fmt.Errorf("assertions[%d]: bookmark is required for bookmark", index)
		}
		if (a.At == "") != a.Absent {
			return fmt.Errorf("assertions[%d]: exactly one of at or absent is required", index)
		}
	case AssertHistory:
		if a.Bookmark == "" {
			return fmt.Errorf("assertions[%d]: bookmark is required for history", index)
		}
	case AssertPublic, AssertStored:
		if a.Commit == "" {
			return fmt.Errorf("assertions[%d]: commit is required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
