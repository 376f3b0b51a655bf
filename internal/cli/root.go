// Package cli implements the loopviz command line: an interactive shell, a
// batch runner, the web view, and verification against real script
// execution.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/joeycumines/loopviz/internal/config"
	"github.com/spf13/cobra"
)

// Output formats.
const (
	FormatText = `text`
	FormatJSON = `json`
)

// RootOptions holds the global flags. Flags override the configuration
// file and environment only if set.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	Format     string
	Color      string
	Scenario   string
	LogLevel   string
	LogFile    string
	Initial    []string
	TimerDelay time.Duration
	Capacity   int
	Width      int

	// LookupEnv overrides os.LookupEnv, for tests.
	LookupEnv func(key string) (string, bool)
}

var validFormats = []string{FormatText, FormatJSON}

// NewRootCommand returns the loopviz command tree. Without a subcommand, the
// interactive shell is started.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   `loopviz`,
		Short: `Visualize the order in which event loop tasks run`,
		Long: `loopviz schedules a list of events (synchronous code, promises, timeouts,
intervals) on a real event loop, and shows the order in which they complete,
split into synchronous and asynchronous logs.

Configuration is read from loopviz.toml, .env, and LOOPVIZ_* environment
variables, in increasing precedence. Flags take precedence over all three.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf(`invalid format %q: must be one of %v`, opts.Format, validFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, `config`, `c`, ``, `TOML configuration file (default "`+config.DefaultFile+`", if present)`)
	flags.StringVar(&opts.EnvFile, `env-file`, ``, `dotenv file (default "`+config.DefaultEnvFile+`", if present)`)
	flags.StringVar(&opts.Format, `format`, FormatText, `output format (text|json)`)
	flags.StringVar(&opts.Color, `color`, config.ColorAuto, `colorize output (auto|always|never)`)
	flags.StringVarP(&opts.Scenario, `scenario`, `s`, ``, `YAML scenario to preload`)
	flags.StringVar(&opts.LogLevel, `log-level`, ``, `log level (trace|debug|info|warning|error|disabled)`)
	flags.StringVar(&opts.LogFile, `log-file`, ``, `write logs to this file, instead of stderr`)
	flags.StringSliceVar(&opts.Initial, `initial`, nil, `template ids making up the initial list`)
	flags.DurationVar(&opts.TimerDelay, `timer-delay`, 0, `delay requested for every timeout and interval`)
	flags.IntVar(&opts.Capacity, `capacity`, 0, `maximum number of events`)
	flags.IntVar(&opts.Width, `width`, 0, `width of the log columns (default 120)`)

	cmd.AddCommand(NewShellCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

// Execute runs the command line with args, returning the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, `loopviz:`, err)
	}
	return ExitCode(err)
}

// loadConfig resolves the configuration, then applies any flags that were
// set on cmd.
func (x *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Sources{
		File:      x.ConfigFile,
		EnvFile:   x.EnvFile,
		LookupEnv: x.LookupEnv,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `failed to load configuration`, err)
	}

	if changed(cmd, `color`) {
		cfg.Color = x.Color
	}
	if changed(cmd, `scenario`) {
		cfg.Scenario = x.Scenario
	}
	if changed(cmd, `log-level`) {
		cfg.Log.Level = x.LogLevel
	}
	if changed(cmd, `log-file`) {
		cfg.Log.File = x.LogFile
	}
	if changed(cmd, `initial`) {
		cfg.Initial = append([]string{}, x.Initial...)
	}
	if changed(cmd, `timer-delay`) {
		cfg.TimerDelay.Duration = x.TimerDelay
	}
	if changed(cmd, `capacity`) {
		cfg.Capacity = x.Capacity
	}
	if changed(cmd, `width`) {
		cfg.Width = x.Width
	}

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, `invalid configuration`, err)
	}
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}
