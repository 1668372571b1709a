package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"focustrack/internal/app"
	"focustrack/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tasks occurring on a day",
	RunE:  runTaskList,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a task and its recorded time",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDeleteCmd)

	taskAddCmd.Flags().Duration("goal", 0, "Time goal, e.g. 45m (0 for a quick task)")
	taskAddCmd.Flags().String("category", "", "Category")
	taskAddCmd.Flags().String("description", "", "Description")
	taskAddCmd.Flags().String("rrule", "", "Recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO,WE")
	taskAddCmd.Flags().String("anchor", "", "First day of the task (YYYY-MM-DD, default today)")

	taskListCmd.Flags().String("date", "", "Day to list (YYYY-MM-DD, default today)")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	goal, _ := cmd.Flags().GetDuration("goal")
	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")
	rrule, _ := cmd.Flags().GetString("rrule")
	anchor, _ := cmd.Flags().GetString("anchor")

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		task, err := a.CreateTask(ctx, types.NewEvent{
			Title:       args[0],
			TimeGoal:    int64(goal / time.Second),
			Category:    category,
			Description: description,
			RRule:       rrule,
			AnchorDate:  anchor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %d %q\n", task.ID, task.Title)
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	day, err := dayFlag(cmd, "date")
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		occurrences, err := a.TasksForDate(ctx, day)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(occurrences) == 0 {
			fmt.Fprintf(out, "No tasks on %s.\n", types.DateKey(day))
			return nil
		}

		running := a.Status()
		fmt.Fprintf(out, "Tasks on %s:\n\n", types.DateKey(day))
		for _, o := range occurrences {
			marker := " "
			if running.Running && running.TaskID == o.ID {
				marker = "*"
			}
			goal := "-"
			if o.TimeGoal > 0 {
				goal = formatSeconds(o.TimeGoal)
			}
			fmt.Fprintf(out, "%s %4d  %-30s  %9s / %-9s %3d%%  %s\n",
				marker, o.ID, truncate(o.Title, 30), formatSeconds(o.TimeSpent), goal, o.PercentComplete, o.Category)
		}
		return nil
	})
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
		return nil
	})
}

func dayFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Now(), nil
	}
	day, err := time.ParseInLocation(types.DateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", name, raw)
	}
	return day, nil
}
