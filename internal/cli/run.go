package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/render"
	"github.com/spf13/cobra"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	*RootOptions
	Runs int
	// Check enables the scenario's expectations, if it has any.
	Check bool
}

// NewRunCommand returns the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   `run`,
		Short: `Run the event list, and print the result`,
		Long: `Run the initial event list (from the configuration, or a scenario) to
completion, then print the list ranked by firing order, and the logs.

If the scenario declares expectations, they are checked, and the command fails
if any are not met.

Example:
  loopviz run --initial 4,1,2
  loopviz run --scenario testdata/promise-before-timeout.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Runs, `runs`, `n`, 1, `number of times to run the list`)
	cmd.Flags().BoolVar(&opts.Check, `check`, true, `check the scenario's expectations`)

	return cmd
}

func runList(cmd *cobra.Command, opts *RunOptions) (err error) {
	if opts.Runs < 1 {
		return NewExitError(ExitCommandError, `--runs must be at least 1`)
	}

	e, err := newEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	ctx := cmd.Context()

	var snapshots []*loopviz.Snapshot
	for range opts.Runs {
		h, err := e.viz.Run(ctx)
		if errors.Is(err, loopviz.ErrEmptyExecutionList) {
			return WrapExitError(ExitFailure, e.viz.Snapshot().Banners.EmptyExecutionList, err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, `failed to start run`, err)
		}
		s, err := h.Wait(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, `failed to wait for run`, err)
		}
		if err := h.Err(); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf(`run %d`, h.Number()), err)
		}
		snapshots = append(snapshots, s)
	}

	if err := writeSnapshots(e.out, opts.Format, e.renderer, snapshots); err != nil {
		return err
	}

	if opts.Check && e.scenario != nil && e.scenario.Expect != nil {
		for _, s := range snapshots {
			if err := e.scenario.Check(s); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf(`scenario %q`, e.scenario.Name), err)
			}
		}
	}

	return nil
}

func writeSnapshots(w io.Writer, format string, r *render.Renderer, snapshots []*loopviz.Snapshot) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent(``, `  `)
		if len(snapshots) == 1 {
			return enc.Encode(snapshots[0])
		}
		return enc.Encode(snapshots)
	}
	for i, s := range snapshots {
		if i != 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Snapshot(w, s); err != nil {
			return err
		}
	}
	return nil
}
