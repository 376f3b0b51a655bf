package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/internal/config"
	"github.com/joeycumines/loopviz/internal/logging"
	"github.com/joeycumines/loopviz/jsoracle"
	"github.com/joeycumines/loopviz/render"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const loopShutdownTimeout = 5 * time.Second

// env is the state shared by every command: configuration, logging, and a
// visualizer on a running loop.
type env struct {
	cfg      *config.Config
	logger   logging.Logger
	loop     *eventloop.Loop
	viz      *loopviz.Visualizer
	scenario *loopviz.Scenario
	out      io.Writer
	renderer *render.Renderer
	group    *errgroup.Group
	stopLoop context.CancelFunc
	closeLog func() error
}

// newEnv loads the configuration, and starts the loop. The caller must call
// close.
func newEnv(cmd *cobra.Command, opts *RootOptions) (_ *env, err error) {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	x := &env{cfg: cfg}
	defer func() {
		if err != nil {
			_ = x.close()
		}
	}()

	if x.logger, x.closeLog, err = logging.Open(cfg.Log, cmd.ErrOrStderr()); err != nil {
		return nil, WrapExitError(ExitCommandError, `failed to open log`, err)
	}

	if cfg.Scenario != `` {
		if x.scenario, err = loopviz.LoadScenarioFile(cfg.Scenario); err != nil {
			return nil, WrapExitError(ExitCommandError, `failed to load scenario`, err)
		}
	}

	x.out, x.renderer = newOutput(cmd.OutOrStdout(), cfg)

	var loopOpts []eventloop.LoopOption
	loopOpts = append(loopOpts, eventloop.WithStrictMicrotaskOrdering(true))
	if x.logger != nil {
		loopOpts = append(loopOpts, eventloop.WithLogger(x.logger))
	}
	if x.loop, err = eventloop.New(loopOpts...); err != nil {
		return nil, fmt.Errorf(`failed to create event loop: %w`, err)
	}

	var loopCtx context.Context
	loopCtx, x.stopLoop = context.WithCancel(context.Background())
	x.group = new(errgroup.Group)
	loop := x.loop
	x.group.Go(func() error { return loop.Run(loopCtx) })

	vizOpts, err := x.visualizerOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `invalid scenario`, err)
	}
	if x.viz, err = loopviz.New(x.loop, vizOpts...); err != nil {
		return nil, WrapExitError(ExitCommandError, `failed to create visualizer`, err)
	}

	return x, nil
}

// visualizerOptions layers the scenario over the configuration. An explicit
// initial list replaces the scenario's.
func (x *env) visualizerOptions() ([]loopviz.Option, error) {
	opts := []loopviz.Option{
		loopviz.WithLogger(x.logger),
		loopviz.WithCapacity(x.cfg.Capacity),
		loopviz.WithTimerDelay(x.cfg.TimerDelay.Duration),
	}
	if x.scenario != nil {
		scenarioOpts, err := x.scenario.Options()
		if err != nil {
			return nil, err
		}
		opts = append(opts, scenarioOpts...)
	}
	if x.cfg.Initial != nil {
		opts = append(opts, loopviz.WithInitialTemplates(x.cfg.Initial...))
	}
	return opts, nil
}

func (x *env) newOracle() (*jsoracle.Oracle, error) {
	return jsoracle.New(
		jsoracle.WithLogger(x.logger),
		jsoracle.WithIntervalTicks(x.cfg.IntervalTicks),
	)
}

// close stops the visualizer and the loop, then closes the log.
func (x *env) close() error {
	var errs []error
	if x.viz != nil {
		_ = x.viz.Close()
	}
	if x.loop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), loopShutdownTimeout)
		if err := x.loop.Shutdown(ctx); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
			errs = append(errs, fmt.Errorf(`loop shutdown: %w`, err))
		}
		cancel()
	}
	if x.stopLoop != nil {
		x.stopLoop()
	}
	if x.group != nil {
		if err := x.group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, eventloop.ErrLoopTerminated) {
			errs = append(errs, fmt.Errorf(`loop: %w`, err))
		}
	}
	if x.closeLog != nil {
		if err := x.closeLog(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newOutput decides whether to colorize w. Colour is enabled for terminals
// in auto mode, in which case w is wrapped to translate escape sequences on
// Windows.
func newOutput(w io.Writer, cfg *config.Config) (io.Writer, *render.Renderer) {
	f, isFile := w.(*os.File)
	var color bool
	switch cfg.Color {
	case config.ColorAlways:
		color = true
	case config.ColorAuto:
		color = isFile && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	}
	if color && isFile {
		w = colorable.NewColorable(f)
	}
	return w, render.New(render.WithColor(color), render.WithWidth(cfg.Width))
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
