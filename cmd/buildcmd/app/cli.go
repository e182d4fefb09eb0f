package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Domain: CLI Application Structure
// This file contains the main CLI application setup with Cobra commands and flags

// App represents the CLI application
type App struct {
	version string
	commit  string
	date    string

	rootCmd *cobra.Command
	stdout  io.Writer
	stderr  io.Writer

	// Flags
	configFile string
	verbose    bool
	jobs       int
	keepGoing  bool
	noCache    bool
}

// NewApp creates a new CLI application
func NewApp(version, commit, date string) *App {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	app.rootCmd = &cobra.Command{
		Use:   "buildcmd [targets...]",
		Short: "Run build tasks declared as command pipelines",
		Long: `buildcmd runs the tasks declared in buildcmd.yml.

Each task is a command pipeline template. Placeholders such as ${CC},
${SRC} and ${TGT[0]} are replaced with build variables and the task's
input and output files, then the pipeline runs without a shell.

Examples:
  buildcmd                       # Build every task
  buildcmd build app             # Build 'app' and the tasks it needs
  buildcmd build -j 8 -k         # 8 parallel jobs, keep going after failures
  buildcmd explain compile       # Show the substituted pipeline of a task
  buildcmd list                  # List tasks
  buildcmd watch                 # Rebuild when sources change`,
		RunE:              app.runBuild,
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: app.completeTargets,
		SilenceErrors:     true,
		SilenceUsage:      true,
	}

	app.setupFlags()
	app.setupCommands()

	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetArgs overrides the command line arguments
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// SetOutput redirects everything the application prints
func (a *App) SetOutput(stdout, stderr io.Writer) {
	a.stdout = stdout
	a.stderr = stderr
	a.rootCmd.SetOut(stdout)
	a.rootCmd.SetErr(stderr)
}

// setupFlags sets up all command-line flags
func (a *App) setupFlags() {
	flags := a.rootCmd.PersistentFlags()

	flags.StringVarP(&a.configFile, "file", "f", "", "Build file (default: buildcmd.yml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log every pipeline stage")
	flags.IntVarP(&a.jobs, "jobs", "j", 0, "Number of parallel jobs (default: number of CPUs)")
	flags.BoolVarP(&a.keepGoing, "keep-going", "k", false, "Keep building independent tasks after a failure")
	flags.BoolVar(&a.noCache, "no-cache", false, "Run every task even if it is up to date")
}

// setupCommands sets up subcommands
func (a *App) setupCommands() {
	a.rootCmd.AddCommand(
		a.createBuildCommand(),
		a.createListCommand(),
		a.createExplainCommand(),
		a.createWatchCommand(),
		a.createCleanCommand(),
		a.createInitCommand(),
		a.createVersionCommand(),
	)
}

func (a *App) createBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "build [targets...]",
		Short:             "Build targets (default: every task)",
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: a.completeTargets,
		RunE:              a.runBuild,
	}
}

func (a *App) createListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks in execution order",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	}
}

func (a *App) createExplainCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "explain <task>",
		Short:             "Show the substituted pipeline of a task without running it",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeTargets,
		RunE:              a.runExplain,
	}
}

func (a *App) createWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "watch [targets...]",
		Short:             "Rebuild whenever a source file or the build file changes",
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: a.completeTargets,
		RunE:              a.runWatch,
	}
}

func (a *App) createCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove declared outputs and the signature cache",
		Args:  cobra.NoArgs,
		RunE:  a.runClean,
	}
}

func (a *App) createInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a starter build file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
}

func (a *App) createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowVersion(a.stdout, a.version, a.commit, a.date)
		},
	}
}
