package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/scheduler"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/telegram"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskEnableCmd, taskDisableCmd, taskRunCmd)

	taskAddCmd.Flags().String("name", "", "task name (required)")
	taskAddCmd.Flags().String("prompt", "", "prompt text (required)")
	taskAddCmd.Flags().String("schedule", "", "cron schedule expression, e.g. \"0 8 * * *\"")
	taskAddCmd.Flags().String("target", "log:", "delivery target: log:, file:<path> or telegram:<chat id>")
	taskAddCmd.Flags().Bool("search", false, "enable web search for this prompt")
	_ = taskAddCmd.MarkFlagRequired("name")
	_ = taskAddCmd.MarkFlagRequired("prompt")
}

func taskStore() *state.TaskStore {
	return state.NewTaskStore(loadConfig().TasksPath())
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled research prompts",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		prompt, _ := cmd.Flags().GetString("prompt")
		schedule, _ := cmd.Flags().GetString("schedule")
		target, _ := cmd.Flags().GetString("target")
		search, _ := cmd.Flags().GetBool("search")

		if schedule != "" {
			if err := scheduler.Validate(schedule); err != nil {
				return err
			}
		}

		task := &state.Task{
			Name:     name,
			Prompt:   prompt,
			Schedule: schedule,
			Target:   target,
			Search:   search,
			Enabled:  true,
		}
		if err := taskStore().Add(task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q added.\n", name)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := taskStore().List()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tNEXT RUN\tENABLED\tSEARCH\tTARGET")
		now := time.Now()
		for _, t := range tasks {
			schedule, next := "(webhook only)", "-"
			if t.Schedule != "" {
				schedule = t.Schedule
				if at, err := scheduler.NextRun(t.Schedule, now); err == nil && t.Enabled {
					next = at.Format("2006-01-02 15:04")
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
				t.Name,
				schedule,
				next,
				t.Enabled,
				t.Search,
				t.Target,
			)
		}
		return w.Flush()
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := taskStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q removed.\n", args[0])
		return nil
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], false)
	},
}

func setTaskEnabled(name string, enabled bool) error {
	if err := taskStore().SetEnabled(name, enabled); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	word := "disabled"
	if enabled {
		word = "enabled"
	}
	fmt.Fprintf(os.Stdout, "Task %q %s.\n", name, word)
	fmt.Fprintln(os.Stdout, "Run `aletheia reload` to apply it to a running daemon.")
	return nil
}

var taskRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a task once now and deliver its reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		ctx := cmd.Context()

		task, err := state.NewTaskStore(cfg.TasksPath()).Get(args[0])
		if err != nil {
			return err
		}

		var tg *telegram.Adapter
		if cfg.Telegram.Token != "" {
			if tg, err = telegram.New(cfg.Telegram.Token, nil); err != nil {
				return fmt.Errorf("create telegram adapter: %w", err)
			}
		}
		registry := newDeliveryRegistry(tg)
		runner := scheduler.NewRunner(newBackend(cfg), newSupplier(cfg), registry, 1, slog.Default())
		ex, err := runner.Run(ctx, *task)
		if ex != nil && ex.Status != chat.ExchangeRejected && task.Target == "" {
			render.NewRenderer(os.Stdout, nil, true).Message(ex.Reply)
		}
		return err
	},
}
