package cmd

import (
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/content-control-plane/ccp/internal/journal"
	"github.com/content-control-plane/ccp/pkg/vcs"
)

type logParams struct {
	commonParams
	limit   int
	journal bool
}

func newLogCommand() *cobra.Command {
	params := logParams{commonParams: newCommonParams()}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the recent commits of the content branch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := params.open(ctx, params.logger())
			if err != nil {
				return err
			}
			defer svc.Close()

			limit := params.limit
			if limit <= 0 {
				limit = svc.CommitLimit()
			}

			if params.journal {
				entries, err := svc.Journal().List(ctx, limit)
				if err != nil {
					return err
				}
				return printJournal(cmd.OutOrStdout(), entries)
			}

			return printCommits(cmd.OutOrStdout(), svc.RecentCommits(ctx, limit))
		},
	}

	params.register(cmd.Flags())
	cmd.Flags().IntVarP(&params.limit, "limit", "n", 0, "number of commits to list, defaults to repository.commit_limit")
	cmd.Flags().BoolVar(&params.journal, "journal", false, "list the commit journal instead of the repository history")

	return cmd
}

func printCommits(w io.Writer, commits []vcs.Commit) error {
	rows := make([][]string, 0, len(commits))
	for _, c := range commits {
		rows = append(rows, []string{short(c.Revision), c.Author, formatTime(c.Date), subject(c.Message)})
	}
	return printTable(w, []string{"Revision", "Author", "Date", "Message"}, rows)
}

func printJournal(w io.Writer, entries []journal.Entry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{short(e.Revision), e.Branch, formatTime(e.CommittedAt), subject(e.Message)})
	}
	return printTable(w, []string{"Revision", "Branch", "Committed", "Message"}, rows)
}

func printTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func short(revision string) string {
	if len(revision) > 8 {
		return revision[:8]
	}
	return revision
}

func subject(message string) string {
	s, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
