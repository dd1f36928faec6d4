package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/analyzer"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/config"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/session"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/tail"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	ConfigPath    string
	RecordingsDir string
	ServicesDir   string
	AnalyzersDir  string

	// Config is the loaded configuration with flag overrides applied. It is
	// set before any subcommand runs.
	Config *config.Config

	// Logger receives diagnostics. If nil, a text handler on the command's
	// stderr is installed.
	Logger *slog.Logger

	// Interrupts replaces SIGINT/SIGTERM delivery (for testing).
	Interrupts <-chan os.Signal

	// ForceExit replaces the process exit after repeated interrupts (for
	// testing).
	ForceExit func(count int)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ipcrecord CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipcrecord",
		Short: "Record, inspect and replay service transactions",
		Long: `ipcrecord captures the transactions a service handles into a log,
prints logs through per-interface analyzers, and replays logs against a live
service to check that every call returns the status it returned when recorded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := opts.loadConfig(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Logger == nil {
				opts.Logger = newLogger(cmd.ErrOrStderr(), opts.logLevel())
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	pf.StringVar(&opts.RecordingsDir, "recordings-dir", "", "directory holding recordings (default "+config.DefaultRecordingsDir+")")
	pf.StringVar(&opts.ServicesDir, "services-dir", "", "directory of service sockets (default "+config.DefaultServicesDir+")")
	pf.StringVar(&opts.AnalyzersDir, "analyzers-dir", "", "directory of CUE interface definitions (default "+config.DefaultAnalyzersDir+")")

	// Add subcommands
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewServicesCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	ReportError(stderr, opts.Format, err)
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig reads the config file and applies directory flags over it.
func (o *RootOptions) loadConfig() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.RecordingsDir != "" {
		cfg.RecordingsDir = o.RecordingsDir
	}
	if o.ServicesDir != "" {
		cfg.ServicesDir = o.ServicesDir
	}
	if o.AnalyzersDir != "" {
		cfg.AnalyzersDir = o.AnalyzersDir
	}
	o.Config = cfg
	return nil
}

func (o *RootOptions) logLevel() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	return o.Config.Level()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// directory returns the service directory.
func (o *RootOptions) directory() ipc.Directory {
	return ipc.Directory{Root: o.Config.ServicesDir}
}

// controller returns the session controller for the recordings directory.
func (o *RootOptions) controller() *session.Controller {
	return session.New(o.Config.RecordingsDir, o.Logger)
}

// registry builds the analyzer registry: the raw analyzer plus every
// interface defined in the analyzers directory.
func (o *RootOptions) registry() (*analyzer.Registry, error) {
	reg := analyzer.NewRegistry()
	if err := reg.Register(analyzer.Raw{}); err != nil {
		return nil, err
	}
	n, err := analyzer.RegisterDir(reg, o.Config.AnalyzersDir, o.Config.ProtoPaths)
	if err != nil {
		return nil, err
	}
	o.Logger.Debug("analyzers loaded", "dir", o.Config.AnalyzersDir, "count", n)
	return reg, nil
}

// lookupAnalyzer finds the analyzer for iface and announces it on w.
func (o *RootOptions) lookupAnalyzer(w io.Writer, iface string) (analyzer.Analyzer, error) {
	reg, err := o.registry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load analyzers", err)
	}
	a, err := reg.Lookup(iface)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "Failed to find analyzer for interface: "+iface, err)
	}
	if o.Format == "text" {
		fmt.Fprintf(w, "Found matching analyzer for interface: %s\n", iface)
	}
	return a, nil
}

// logPath resolves a recording file name. Relative names are taken from the
// recordings directory.
func (o *RootOptions) logPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Config.RecordingsDir, name)
}

// interruptPolicy returns the escalation policy for long-running commands.
func (o *RootOptions) interruptPolicy(stderr io.Writer) tail.InterruptPolicy {
	force := o.ForceExit
	if force == nil {
		force = tail.ForceExit(stderr)
	}
	return tail.InterruptPolicy{Limit: o.Config.InterruptLimit, Force: force}
}

// interrupts returns the signal channel for long-running commands and a
// function releasing it.
func (o *RootOptions) interrupts() (<-chan os.Signal, func()) {
	if o.Interrupts != nil {
		return o.Interrupts, func() {}
	}
	return tail.NotifyInterrupts(o.Config.InterruptLimit)
}
