package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"taskflow/internal/config"
	"taskflow/internal/gitguard"
	"taskflow/internal/task"
	"taskflow/internal/ui"
	"taskflow/internal/ui/textutil"
)

func newInitCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .taskflow workspace and default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(flags.root)
			if err != nil {
				return err
			}
			if err := config.Init(root); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Styles.Success.Render("initialized"), config.Path(root))
			return nil
		},
	}
}

func newListCommand(flags *globalFlags) *cobra.Command {
	var (
		stageName string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with their stage and audit attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(flags, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			tasks, err := ws.store.List()
			if err != nil {
				return err
			}
			if stageName != "" {
				stage, err := task.ParseStage(stageName)
				if err != nil {
					return err
				}
				tasks = task.OrderForStage(tasks, stage)
			}
			if asJSON {
				return writeTasksJSON(cmd.OutOrStdout(), tasks)
			}
			writeTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "only list tasks in this stage, in run order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

type taskJSON struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Stage         task.Stage `json:"stage"`
	Agent         string     `json:"agent,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	AuditAttempts int        `json:"audit_attempts"`
	Order         int        `json:"order,omitempty"`
	Path          string     `json:"path"`
}

func writeTasksJSON(w io.Writer, tasks []*task.Task) error {
	out := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		out[i] = taskJSON{
			ID:            t.ID,
			Title:         t.Title,
			Stage:         t.Stage,
			Agent:         t.Agent,
			Provider:      t.Provider,
			AuditAttempts: t.AuditAttempts,
			Order:         t.Order,
			Path:          t.Path,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTaskTable(w io.Writer, tasks []*task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, ui.Styles.Muted.Render("no tasks"))
		return
	}
	idWidth := len("ID")
	for _, t := range tasks {
		if n := textutil.VisualWidth(t.ID); n > idWidth {
			idWidth = n
		}
	}
	fmt.Fprintf(w, "%s  %s  %s  %s\n",
		textutil.PadRightVisual("ID", idWidth), textutil.PadRightVisual("STAGE", 6), "AUDITS", "TITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			textutil.PadRightVisual(t.ID, idWidth),
			ui.Styles.Stage.Render(textutil.PadRightVisual(t.Stage.String(), 6)),
			textutil.PadRightVisual(strconv.Itoa(t.AuditAttempts), 6),
			textutil.Truncate(t.Title, 60))
	}
}

func newMoveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task> <stage>",
		Short: "Move a task to a stage by hand",
		Long: `Move a task to a stage by hand. Moving a task into audit from an earlier
stage resets its audit attempt counter.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := task.ParseStage(args[1])
			if err != nil {
				return err
			}
			ws, err := openWorkspace(flags, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			before, err := ws.store.ReadCurrent(args[0])
			if err != nil {
				return err
			}
			moved, err := ws.store.Move(args[0], stage)
			if err != nil {
				return fmt.Errorf("move %s: %w", before.ID, err)
			}
			ws.logger.Info("task moved", "task_id", moved.ID, "from", before.Stage.String(), "to", moved.Stage.String())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s → %s\n", moved.ID, before.Stage, ui.Styles.Stage.Render(moved.Stage.String()))
			if moved.AuditAttempts != before.AuditAttempts {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Styles.Muted.Render("audit attempts reset"))
			}
			return nil
		},
	}
}

func newCheckpointCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint [task]",
		Short: "Commit all working tree changes as a recovery point",
		Long: `Stage and commit every change in the working tree. The commit message
names the task, so the checkpoint can be found and reverted later.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(flags, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			title := ""
			if len(args) == 1 {
				t, err := ws.store.ReadCurrent(args[0])
				if err != nil {
					return err
				}
				title = t.DisplayTitle()
			}
			hash, err := ws.guard.RecoveryCommit(cmd.Context(), title)
			if err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			ws.logger.Info("recovery commit created", "commit", hash, "title", title)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ui.Styles.Success.Render("committed"), hash,
				ui.Styles.Muted.Render(strconv.Quote(gitguard.CommitMessage(title))))
			return nil
		},
	}
}
