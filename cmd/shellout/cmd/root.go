// Package cmd implements the shellout command line.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/deixis/shellout/internal/config"
	"github.com/deixis/shellout/internal/logging"
	"github.com/deixis/shellout/internal/report"
	"github.com/deixis/shellout/internal/runner"
	"github.com/deixis/shellout/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ExitError carries a child's exit status out of a command so that
// shellout can exit with the same status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		fmt.Fprintln(root.ErrOrStderr(), "shellout:", err)
		return 1
	}
	return 0
}

// app holds the dependencies shared by all subcommands. It is populated
// by the root command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *runner.Runner
	db     *report.SQLiteStore
	store  *report.LRUStore
	engine *workflow.Engine
}

// close releases the run database, if one was opened.
func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// persistent flags, also readable as SHELLOUT_* environment variables
var rootFlags = []string{"config", "log-level", "log-format", "max-output", "runs-dir"}

// NewRootCmd builds the shellout command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	a := &app{}

	root := &cobra.Command{
		Use:   "shellout",
		Short: "Run programs to completion and capture their output",
		Long: `shellout runs a program, drains its stdout and stderr concurrently, waits for it
to exit and reports the exit status and everything it wrote.

Common workflows:

  Run a program directly (arguments are never interpreted by a shell):
    shellout run -- /usr/bin/git status --short

  Feed text on stdin:
    shellout run --input "hello" -- /bin/cat

  Run a command or pipeline from the .shellout file:
    shellout exec build
    shellout pipeline ci

  Look at earlier runs:
    shellout history
    shellout inspect <run-id> --stream stderr --tail 20

  Serve the tools to an MCP client:
    shellout mcp

Configuration:
  A .shellout YAML file is searched for upward from the working directory.
  Flags override the file, and every flag can also be set from the environment:
    SHELLOUT_LOG_LEVEL, SHELLOUT_LOG_FORMAT, SHELLOUT_MAX_OUTPUT, SHELLOUT_RUNS_DIR`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, v)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a .shellout file (default: search upward from the working directory)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.Int("max-output", 0, "per-stream output cap in bytes (0 = unlimited)")
	pf.String("runs-dir", "", "directory holding the runs.db record database (default: user cache directory)")
	for _, name := range rootFlags {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	v.SetEnvPrefix("SHELLOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newRunCmd(a),
		newExecCmd(a),
		newPipelineCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads the configuration, applies flag and environment overrides,
// and wires the logger, runner, store and engine.
func (a *app) init(cmd *cobra.Command, v *viper.Viper) error {
	var (
		loaded *config.LoadResult
		err    error
	)
	if path := v.GetString("config"); path != "" {
		loaded, err = config.LoadFile(path)
	} else {
		wd, werr := os.Getwd()
		if werr != nil {
			return fmt.Errorf("determining working directory: %w", werr)
		}
		loaded, err = config.Load(wd)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg := loaded.Config
	if s := v.GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	if s := v.GetString("log-format"); s != "" {
		cfg.LogFormat = s
	}
	// 0 is meaningful here: it lifts a cap set in the file.
	if v.IsSet("max-output") {
		cfg.MaxOutput = v.GetInt("max-output")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Level())
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level, cfg.Format())
	if err != nil {
		return err
	}

	runsDir := v.GetString("runs-dir")
	if runsDir == "" {
		runsDir = defaultRunsDir()
	}
	dbPath := ""
	if runsDir != "" {
		dbPath = filepath.Join(runsDir, "runs.db")
	}
	a.db = report.NewSQLiteStore(dbPath)

	a.cfg = cfg
	a.logger = logger
	a.runner = &runner.Runner{Logger: logger, MaxOutput: cfg.MaxOutputBytes()}
	a.store = report.NewLRUStore(cfg.HistorySize(), a.db)
	a.engine = &workflow.Engine{
		Config: cfg,
		Runner: a.runner,
		Store:  a.store,
		Logger: logger,
	}
	return nil
}

// defaultRunsDir returns the per-user directory for run records, or ""
// to fall back to a temporary directory.
func defaultRunsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "shellout", "runs")
}
