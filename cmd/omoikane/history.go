// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isol178/agent-omoikane/internal/model"
)

func newHistoryCmd(f *flags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show past queries",
		Long:  "Show past queries, most recent first. With an ID, print that query with its tool calls as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := createApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.Close()

			hs, err := app.deps.OpenHistoryReader()
			if err != nil {
				return err
			}
			defer hs.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid query ID %q", args[0])
				}
				r, err := hs.GetQuery(id)
				if err != nil {
					return err
				}
				raw, err := json.MarshalIndent(r, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal query: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}

			records, err := hs.ListQueries(limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of queries to show (1-100)")
	return cmd
}

func printHistory(out io.Writer, records []*model.QueryRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "No queries recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tPROVIDER\tSERVER\tTOOLS\tSTATUS\tQUERY")
	for _, r := range records {
		status := "ok"
		if r.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Provider,
			r.Server,
			len(r.ToolCalls),
			status,
			truncate(r.Query, 60),
		)
	}
	return tw.Flush()
}

// truncate shortens s to at most n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
