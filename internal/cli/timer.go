package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"focustrack/internal/app"
)

var startCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Start timing a task, stopping any running timer first",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running timer and unflushed time",
	RunE:  runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Record the running timer's live total without stopping it",
	RunE:  runSync,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Write unflushed task time to the database",
	RunE:  runFlush,
}

func init() {
	stopCmd.Flags().Bool("split", false, "Split time across days when the timer ran past midnight")
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.StartTimer(ctx, id); err != nil {
			return err
		}
		status := a.Status()
		fmt.Fprintf(cmd.OutOrStdout(), "Started task %d (%s already recorded)\n",
			id, formatSeconds(status.BaseSeconds))
		return nil
	})
}

func runStop(cmd *cobra.Command, args []string) error {
	split, _ := cmd.Flags().GetBool("split")
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		before := a.Status()
		if !before.Running {
			fmt.Fprintln(cmd.OutOrStdout(), "No timer running.")
			return nil
		}
		if err := a.StopTimer(ctx, split); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped task %d after %s\n",
			before.TaskID, formatSeconds(before.TotalSeconds-before.BaseSeconds))
		return nil
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		printStatus(cmd, a)
		return nil
	})
}

func printStatus(cmd *cobra.Command, a *app.App) {
	out := cmd.OutOrStdout()
	status := a.Status()
	if !status.Running {
		fmt.Fprintln(out, "No timer running.")
	} else {
		title := ""
		for _, task := range a.Tasks() {
			if task.ID == status.TaskID {
				title = task.Title
				break
			}
		}
		started := time.UnixMilli(status.StartedAt).Local()
		fmt.Fprintf(out, "Running: task %d %q\n", status.TaskID, title)
		fmt.Fprintf(out, "  started  %s\n", started.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  segment  %s\n", formatSeconds(status.TotalSeconds-status.BaseSeconds))
		fmt.Fprintf(out, "  total    %s\n", formatSeconds(status.TotalSeconds))
	}
	if status.PendingTasks > 0 {
		fmt.Fprintf(out, "Unflushed tasks: %d\n", status.PendingTasks)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		a.SyncTimer()
		printStatus(cmd, a)
		return nil
	})
}

func runFlush(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		pending := len(a.DirtySnapshot())
		if err := a.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Flushed %d task(s).\n", pending-len(a.DirtySnapshot()))
		return nil
	})
}
