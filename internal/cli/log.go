package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/unbundle/internal/ir"
	"github.com/roach88/unbundle/internal/replay"
	"github.com/roach88/unbundle/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Bookmark string
	After    int64
	Limit    int
}

// LogLine is one bookmark update log entry with its replay data decoded.
type LogLine struct {
	ID         int64                    `json:"id"`
	Bookmark   ir.BookmarkName          `json:"bookmark"`
	From       ir.ChangesetID           `json:"from,omitempty"`
	To         ir.ChangesetID           `json:"to,omitempty"`
	Reason     ir.BookmarkUpdateReason  `json:"reason"`
	Bundle     ir.RawBundleID           `json:"bundle,omitempty"`
	Timestamps map[ir.ChangesetID]int64 `json:"timestamps,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the bookmark update log",
		Long: `Show the bookmark update log that downstream replayers tail.

Without --bookmark, entries are listed oldest first starting after --after.
With --bookmark, the history of that bookmark is listed newest first.
Scratch bookmark moves are not logged.

Examples:
  unbundle log --db ./repo.db
  unbundle log --db ./repo.db --after 120 --limit 50
  unbundle log --db ./repo.db --bookmark main --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Bookmark, "bookmark", "", "show the history of one bookmark")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only show entries with a larger id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 for all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var entries []store.LogEntry
	if opts.Bookmark != "" {
		name, err := ir.NewBookmarkName(opts.Bookmark)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --bookmark", err)
		}
		entries, err = st.BookmarkHistory(ctx, name, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read bookmark history", err)
		}
	} else {
		entries, err = st.ReadBookmarkLog(ctx, opts.After, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read bookmark log", err)
		}
	}

	lines := make([]LogLine, 0, len(entries))
	for _, e := range entries {
		line, err := decodeLogEntry(e)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("log entry %d", e.ID), err)
		}
		lines = append(lines, line)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: lines})
	}
	w := cmd.OutOrStdout()
	if len(lines) == 0 {
		fmt.Fprintln(w, "No log entries.")
		return nil
	}
	for _, l := range lines {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s -> %s", l.ID, l.Reason, l.Bookmark, shortOrNone(l.From), shortOrNone(l.To))
		if l.Bundle != "" {
			fmt.Fprintf(w, "\tbundle=%s", l.Bundle)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func decodeLogEntry(e store.LogEntry) (LogLine, error) {
	line := LogLine{
		ID:        e.ID,
		Bookmark:  e.Name,
		From:      e.From,
		To:        e.To,
		Reason:    e.Reason,
		CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
	}
	data, err := replay.Decode(e.ReplayData)
	if err != nil {
		return LogLine{}, err
	}
	if data != nil {
		line.Bundle = data.RawBundleID
		line.Timestamps = data.Timestamps
	}
	return line, nil
}

func shortOrNone(id ir.ChangesetID) string {
	if id.IsZero() {
		return "-"
	}
	return id.Short()
}
