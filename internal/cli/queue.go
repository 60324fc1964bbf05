package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/unbundle/internal/store"
)

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	Database string
	Repo     string
	Limit    int
	Ack      bool
}

// QueueResult holds the listed bundles and how many were acknowledged.
type QueueResult struct {
	Bundles []store.QueuedBundle `json:"bundles"`
	Removed int64                `json:"removed"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the reverse filler queue",
		Long: `List raw bundles preserved by infinitepush for replay into another
backend, oldest first. With --ack the listed bundles are removed once
printed.

Examples:
  unbundle queue --db ./repo.db
  unbundle queue --db ./repo.db --repo fbsource --limit 10 --ack`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "only list bundles of this repository")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of bundles (0 for all)")
	cmd.Flags().BoolVar(&opts.Ack, "ack", false, "remove the listed bundles")

	return cmd
}

func runQueue(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	bundles, err := st.QueuedBundles(ctx, opts.Repo, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}
	result := QueueResult{Bundles: bundles}
	if result.Bundles == nil {
		result.Bundles = []store.QueuedBundle{}
	}

	if opts.Ack && len(bundles) > 0 {
		ids := make([]int64, len(bundles))
		for i, b := range bundles {
			ids[i] = b.ID
		}
		result.Removed, err = st.RemoveBundles(ctx, ids...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to remove bundles", err)
		}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	w := cmd.OutOrStdout()
	if len(bundles) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return nil
	}
	for _, b := range bundles {
		fmt.Fprintf(w, "%d\t%s\t%s\n", b.ID, b.RepoName, b.BundleID)
	}
	if opts.Ack {
		fmt.Fprintf(w, "Removed %d bundle(s).\n", result.Removed)
	}
	return nil
}
