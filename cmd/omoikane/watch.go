// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/isol178/agent-omoikane/internal/agent"
	"github.com/isol178/agent-omoikane/internal/scheduler"
	"github.com/isol178/agent-omoikane/internal/sleep"
)

func newWatchCmd(f *flags) *cobra.Command {
	var (
		schedule  string
		watchID   string
		keepAwake bool
	)

	cmd := &cobra.Command{
		Use:   "watch <server> <query>...",
		Short: "Re-run a query on a cron schedule until interrupted",
		Example: `  omoikane watch math "What is 2+2?" --schedule "*/5 * * * *"
  omoikane watch status "Summarize open incidents" --schedule "@every 1h"`,
		Args: cobra.MinimumNArgs(2),
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

			sched := scheduler.NewScheduler(&app.cfg.Agent, app.logger)
			sched.SetExecutor(agent.NewAgentExecutor(ag, cmd.OutOrStdout(), app.logger))
			if err := sched.AddWatch(scheduler.NewWatch(watchID, schedule, strings.Join(args[1:], " "))); err != nil {
				return err
			}

			if keepAwake {
				release, err := sleep.Prevent("omoikane watch " + watchID)
				if err != nil {
					app.logger.Warnf("Could not prevent system sleep: %v", err)
				} else {
					defer release()
				}
			}

			return runWatches(ctx, sched, cmd)
		},
	}

	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "Cron expression (seconds optional) or descriptor such as @every 10m")
	cmd.Flags().StringVar(&watchID, "id", "watch", "Name shown next to each answer")
	cmd.Flags().BoolVar(&keepAwake, "keep-awake", false, "Keep the system from idle sleeping while watching")
	_ = cmd.MarkFlagRequired("schedule")

	return cmd
}

// runWatches runs the scheduler until ctx is cancelled, then waits for a
// running query to finish.
func runWatches(ctx context.Context, sched *scheduler.Scheduler, cmd *cobra.Command) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(gctx)
		for _, w := range sched.ListWatches() {
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %q on schedule %q. Press Ctrl+C to stop.\n", w.ID, w.Schedule)
		}
		<-gctx.Done()
		return sched.Stop()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
