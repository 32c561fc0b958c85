package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"taskflow/internal/config"
	"taskflow/internal/gitguard"
	"taskflow/internal/task"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	root    string
	verbose bool
	logFile string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Run tasks through a plan, code and audit agent pipeline",
		Long: `taskflow keeps tasks as markdown files under .taskflow/tasks and moves
them through plan, code and audit stages by invoking agent CLIs
(claude, codex, gemini, opencode) configured in .taskflow/config.yaml.

Examples:
  taskflow init                  # create .taskflow/ with a default config
  taskflow run add-login         # run one task from its current stage
  taskflow run-column audit      # run every task currently in audit
  taskflow move add-login audit  # move a task by hand
  taskflow checkpoint add-login  # commit all changes as a recovery point`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.root, "root", "", "project root (default: $"+config.RootEnv+" or the current directory)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug details and echo agent output")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "log file (default: .taskflow/logs/taskflow.log)")

	cmd.AddCommand(
		newInitCommand(flags),
		newRunCommand(flags),
		newRunColumnCommand(flags),
		newListCommand(flags),
		newMoveCommand(flags),
		newCheckpointCommand(flags),
	)
	return cmd
}

// resolveRoot picks the project root: flag, then environment, then cwd.
func resolveRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = os.Getenv(config.RootEnv)
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %q is not a directory", abs)
	}
	return abs, nil
}

// workspace is the loaded project state shared by the subcommands.
type workspace struct {
	root   string
	cfg    *config.Config
	store  *task.FileStore
	guard  *gitguard.Guard
	logger *slog.Logger
	closer io.Closer
}

// openWorkspace resolves the root, loads its configuration and sets up
// logging. quietStderr keeps log records off the terminal (for the TUI).
func openWorkspace(flags *globalFlags, quietStderr bool) (*workspace, error) {
	root, err := resolveRoot(flags.root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	logger, closer := newLogger(root, flags, quietStderr)
	return &workspace{
		root:   root,
		cfg:    cfg,
		store:  task.NewFileStore(config.TasksDir(root)),
		guard:  gitguard.New(root),
		logger: logger,
		closer: closer,
	}, nil
}

func (w *workspace) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
