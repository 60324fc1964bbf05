package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/unbundle/internal/bookmarks"
	"github.com/roach88/unbundle/internal/config"
	"github.com/roach88/unbundle/internal/engine"
	"github.com/roach88/unbundle/internal/harness"
	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/metrics"
	"github.com/roach88/unbundle/internal/scribe"
	"github.com/roach88/unbundle/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database  string
	Config    string
	Tunables  string
	ScribeDir string
	User      string
	Hostname  string
}

// ActionFile is a sequence of resolved pushes. Commits are declared by
// label; changeset ids are content addressed, so redeclaring a commit
// stored by an earlier apply refers to the stored commit.
type ActionFile struct {
	Commits []harness.CommitSpec `yaml:"commits"`
	Steps   []harness.Step       `yaml:"steps"`
}

// StepResult is the outcome of one applied step.
type StepResult struct {
	Step     int                     `json:"step"`
	Action   string                  `json:"action"`
	Outcome  string                  `json:"outcome"`
	Response engine.UnbundleResponse `json:"response,omitempty"`
	Rebased  []RebasedCommit         `json:"rebased,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// RebasedCommit pairs an uploaded commit label with the id of its
// pushrebased copy.
type RebasedCommit struct {
	Old string         `json:"old"`
	New ir.ChangesetID `json:"new"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <actions.yaml>",
		Short: "Apply resolved pushes to a repository",
		Long: `Apply the resolved pushes of an action file to a repository.

The database is created if it does not exist. Steps run in order and
stop at the first rejected push. Side effects (commit audit logging and
bundle preservation) are drained before the command exits.

Exit codes:
  0 - All steps applied
  1 - A step was rejected
  2 - Command error (unreadable config, invalid action file, etc.)

Examples:
  unbundle apply --db ./repo.db --config ./repo.yaml ./actions.yaml
  unbundle apply --db ./repo.db --config ./repo.cue --scribe-dir ./scribe ./actions.yaml
  unbundle apply --db ./repo.db --config ./repo.yaml --tunables ./tunables.yaml --format json ./actions.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "repository config, .yaml or .cue (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Tunables, "tunables", "", "tunables YAML file")
	cmd.Flags().StringVar(&opts.ScribeDir, "scribe-dir", "", "directory commit audit records are appended to")
	cmd.Flags().StringVar(&opts.User, "user", "", "pushing user for steps that name none (default $USER)")
	cmd.Flags().StringVar(&opts.Hostname, "hostname", "", "client hostname for steps that name none")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actions, err := loadActionFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load action file", err)
	}
	labels, err := harness.NewLabels(actions.Commits)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid commits", err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	tunables := config.NewTunablesStore(config.DefaultTunables())
	if opts.Tunables != "" {
		if err := tunables.Reload(opts.Tunables); err != nil {
			return WrapExitError(ExitCommandError, "failed to load tunables", err)
		}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	repo, err := bookmarks.NewRepo(cfg, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open repository", err)
	}
	engineOpts := []engine.Option{
		engine.WithMetrics(metrics.New()),
		engine.WithTunables(tunables.Get),
	}
	if opts.ScribeDir != "" {
		client, err := scribe.NewFileClient(opts.ScribeDir)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open scribe directory", err)
		}
		engineOpts = append(engineOpts, engine.WithScribe(client))
	}
	eng, err := engine.New(repo, cfg, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	defer eng.Wait()

	results := make([]StepResult, 0, len(actions.Steps))
	var failure error
	for i, step := range actions.Steps {
		result, err := applyStep(ctx, eng, labels, opts, i+1, step)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("step %d", i+1), err)
		}
		results = append(results, result)
		if result.Outcome != harness.OutcomeOK {
			failure = NewExitError(ExitFailure, fmt.Sprintf("step %d (%s) rejected: %s", i+1, step.Action, result.Error))
			break
		}
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: results}
		if failure != nil {
			last := results[len(results)-1]
			response.Status = "error"
			response.Error = &CLIError{Code: last.Outcome, Message: last.Error}
		}
		if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
			return err
		}
		return failure
	}

	w := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(w, "step %d %s: %s\n", r.Step, r.Action, r.Outcome)
		if r.Error != "" {
			fmt.Fprintf(w, "  %s\n", r.Error)
		}
		for _, rc := range r.Rebased {
			fmt.Fprintf(w, "  rebased %s -> %s\n", rc.Old, rc.New)
		}
	}
	return failure
}

// applyStep runs one step. Rejected pushes are reported in the result;
// only malformed steps are returned as errors.
func applyStep(ctx context.Context, eng *engine.Engine, labels *harness.Labels, opts *ApplyOptions, n int, step harness.Step) (StepResult, error) {
	action, err := harness.BuildAction(step, labels)
	if err != nil {
		return StepResult{}, err
	}

	client := ir.ClientInfo{User: step.User, Hostname: step.Hostname}
	if client.User == "" {
		client.User = opts.User
	}
	if client.User == "" {
		client.User = os.Getenv("USER")
	}
	if client.Hostname == "" {
		client.Hostname = opts.Hostname
	}

	resp, err := eng.ResolveAndApply(engine.WithClientInfo(ctx, client), action)
	result := StepResult{Step: n, Action: step.Action, Outcome: harness.OutcomeOK}
	if err != nil {
		result.Outcome = string(engine.CodeOf(err))
		result.Error = err.Error()
		return result, nil
	}
	result.Response = resp

	if pr, ok := resp.(*engine.PushRebaseResponse); ok {
		for _, pair := range pr.PushrebasedChangesets {
			result.Rebased = append(result.Rebased, RebasedCommit{Old: labels.Name(pair.OldID), New: pair.NewID})
		}
	}
	return result, nil
}

func loadActionFile(path string) (*ActionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var actions ActionFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&actions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(actions.Steps) == 0 {
		return nil, fmt.Errorf("%s: steps list is required and must be non-empty", path)
	}
	return &actions, nil
}
