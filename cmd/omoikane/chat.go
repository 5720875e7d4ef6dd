// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/isol178/agent-omoikane/internal/shell"
)

func newChatCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <server>",
		Short: "Start an interactive session with a tool server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := createApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ag, sess, err := app.startAgent(ctx, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			return shell.New(cmd.InOrStdin(), cmd.OutOrStdout(), ag, app.logger).Run(ctx)
		},
	}
}

func newAskCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <server> <query>...",
		Short: "Answer a single query and exit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := createApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ag, sess, err := app.startAgent(ctx, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close()

			answer, err := ag.ProcessQuery(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}
