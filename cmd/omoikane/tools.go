// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isol178/agent-omoikane/internal/agent"
	"github.com/isol178/agent-omoikane/internal/model"
)

func newToolsCmd(f *flags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools <server>",
		Short: "List the tools a server offers",
		Long:  "List the tools a server offers. --format anthropic or --format openai prints the catalog exactly as it is sent to that provider.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := createApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, tools, err := app.connect(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close()

			return printTools(cmd.OutOrStdout(), tools, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, anthropic or openai")
	return cmd
}

func printTools(out io.Writer, tools []model.ToolDefinition, format string) error {
	if format == "text" {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION")
		for _, t := range tools {
			fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
		}
		return tw.Flush()
	}

	profile, err := agent.ParseProfile(format)
	if err != nil {
		return err
	}
	specs, err := agent.FormatTools(tools, profile)
	if err != nil {
		return err
	}

	var v interface{} = specs.OpenAI
	if profile == agent.ProfileAnthropic {
		v = specs.Anthropic
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tool catalog: %w", err)
	}
	fmt.Fprintln(out, string(raw))
	return nil
}
