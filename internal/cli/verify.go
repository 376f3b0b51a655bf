package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/jsoracle"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// VerifyOptions holds the flags of the verify command.
type VerifyOptions struct {
	*RootOptions
	IntervalTicks int
}

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Snapshot *loopviz.Snapshot `json:"snapshot"`
	Trace    *jsoracle.Trace   `json:"trace"`
	// ScriptOrder ranks each event by its first console output.
	ScriptOrder map[string]int `json:"scriptOrder"`
	Errors      []string       `json:"errors,omitempty"`
	Violations  []string       `json:"violations,omitempty"`
}

// NewVerifyCommand returns the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   `verify`,
		Short: `Check the visualizer against real execution of each event's code`,
		Long: `Run the event list in the visualizer, and separately execute the sample code
of every event, in a JavaScript engine driven by its own event loop. Both
orders are checked against the guarantees of the loop: synchronous code first,
then microtasks, then timers.

The command fails if either order violates them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verify(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.IntervalTicks, `interval-ticks`, 0, `times each interval may fire, before it is cleared (default 1)`)

	return cmd
}

func verify(cmd *cobra.Command, opts *VerifyOptions) (err error) {
	e, err := newEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	if changed(cmd, `interval-ticks`) {
		e.cfg.IntervalTicks = opts.IntervalTicks
	}
	oracle, err := e.newOracle()
	if err != nil {
		return WrapExitError(ExitCommandError, `invalid oracle configuration`, err)
	}

	items := e.viz.Snapshot().Items
	if len(items) == 0 {
		return NewExitError(ExitFailure, e.viz.Snapshot().Banners.EmptyExecutionList)
	}

	var result VerifyResult

	// the oracle runs on its own loop, concurrently with the visualizer
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		h, err := e.viz.Run(ctx)
		if err != nil {
			return err
		}
		if result.Snapshot, err = h.Wait(ctx); err != nil {
			return err
		}
		return h.Err()
	})
	g.Go(func() error {
		var err error
		result.Trace, err = oracle.Run(ctx, items)
		return err
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, `verification did not complete`, err)
	}

	result.ScriptOrder = result.Trace.Order()
	for _, err := range result.Trace.Errors {
		result.Errors = append(result.Errors, err.Error())
	}
	for _, v := range jsoracle.Check(items, result.Snapshot.Order) {
		result.Violations = append(result.Violations, `visualizer: `+v.String())
	}
	for _, v := range jsoracle.Check(items, result.ScriptOrder) {
		result.Violations = append(result.Violations, `script: `+v.String())
	}

	if err := writeVerifyResult(e.out, opts.Format, e, &result); err != nil {
		return err
	}

	if len(result.Violations) != 0 {
		return NewExitError(ExitFailure, fmt.Sprintf(`%d ordering violation(s)`, len(result.Violations)))
	}
	return nil
}

func writeVerifyResult(w io.Writer, format string, e *env, result *VerifyResult) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent(``, `  `)
		return enc.Encode(result)
	}

	if err := e.renderer.Snapshot(w, result.Snapshot); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, `Script output`)
	writeTrace(w, result.Trace)
	_, _ = fmt.Fprintln(w)
	for _, v := range result.Violations {
		_, _ = fmt.Fprintf(w, "! %s\n", v)
	}
	if len(result.Violations) == 0 {
		_, err := fmt.Fprintf(w, "ok: %d events fired in a valid order\n", len(result.Snapshot.Items))
		return err
	}
	return nil
}
