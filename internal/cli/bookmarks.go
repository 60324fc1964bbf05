package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/store"
)

// BookmarksOptions holds flags for the bookmarks command.
type BookmarksOptions struct {
	*RootOptions
	Database string
	Kind     string
	Prefix   string
}

// NewBookmarksCommand creates the bookmarks command.
func NewBookmarksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BookmarksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "List bookmarks",
		Long: `List the bookmarks of a repository, ordered by name.

Examples:
  unbundle bookmarks --db ./repo.db
  unbundle bookmarks --db ./repo.db --kind scratch --prefix scratch/alice/
  unbundle bookmarks --db ./repo.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookmarks(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only list bookmarks of this kind (public|scratch)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only list bookmarks with this name prefix")

	return cmd
}

func runBookmarks(opts *BookmarksOptions, cmd *cobra.Command) error {
	var kind ir.BookmarkKind
	if opts.Kind != "" {
		k, err := ir.ParseBookmarkKind(opts.Kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
		kind = k
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListBookmarks(context.Background(), kind, opts.Prefix)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list bookmarks", err)
	}
	if list == nil {
		list = []store.Bookmark{}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: list})
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "No bookmarks.")
		return nil
	}
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.Target, b.Kind)
	}
	return nil
}

// openExistingStore opens a database that must already exist. Inspection
// commands never create one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
