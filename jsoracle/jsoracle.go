// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package jsoracle executes the sample code of event instances, in an
// embedded JavaScript engine (goja) driven by a private event loop, and
// records the order in which each card's console output appears.
//
// The resulting [Trace] is an independent account of the firing order, which
// may be compared with a visualizer run using [Check].
//
// Promises are native to the engine: their jobs run when the outermost script
// or timer callback returns. All cards are evaluated as one script, so that
// every card's synchronous code runs before any promise reaction, as it would
// in a browser.
package jsoracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/loopviz"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultIntervalTicks is the number of times an interval callback may
	// run, before the oracle clears it.
	DefaultIntervalTicks = 1

	// DefaultTimeout bounds a single Run.
	DefaultTimeout = 5 * time.Second
)

type (
	// Oracle runs card code. Instances are safe for concurrent use, each Run
	// uses its own loop and engine.
	Oracle struct {
		logger        *logiface.Logger[logiface.Event]
		timeout       time.Duration
		intervalTicks int
	}

	// Option configures an Oracle.
	Option interface {
		applyOracle(*Oracle) error
	}

	optionImpl struct {
		applyOracleFunc func(*Oracle) error
	}
)

func (o *optionImpl) applyOracle(x *Oracle) error { return o.applyOracleFunc(x) }

// WithLogger configures logging, for both the oracle, and its loop.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(x *Oracle) error {
		x.logger = logger
		return nil
	}}
}

// WithTimeout bounds the time a Run may take, including all timers.
func WithTimeout(timeout time.Duration) Option {
	return &optionImpl{func(x *Oracle) error {
		if timeout <= 0 {
			return errors.New(`jsoracle: timeout must be positive`)
		}
		x.timeout = timeout
		return nil
	}}
}

// WithIntervalTicks sets how many times each interval may fire, before it is
// cleared automatically.
func WithIntervalTicks(ticks int) Option {
	return &optionImpl{func(x *Oracle) error {
		if ticks <= 0 {
			return errors.New(`jsoracle: interval ticks must be positive`)
		}
		x.intervalTicks = ticks
		return nil
	}}
}

// New returns an Oracle.
func New(opts ...Option) (*Oracle, error) {
	x := &Oracle{
		timeout:       DefaultTimeout,
		intervalTicks: DefaultIntervalTicks,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOracle(x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Run evaluates the code of every item, in order, and waits until no timers
// remain. On timeout, the partial trace is returned, with the error.
func (x *Oracle) Run(ctx context.Context, items []loopviz.Instance) (*Trace, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var loopOpts []eventloop.LoopOption
	loopOpts = append(loopOpts, eventloop.WithStrictMicrotaskOrdering(true))
	if x.logger != nil {
		loopOpts = append(loopOpts, eventloop.WithLogger(x.logger))
	}
	loop, err := eventloop.New(loopOpts...)
	if err != nil {
		return nil, fmt.Errorf(`jsoracle: new loop: %w`, err)
	}

	js, err := eventloop.NewJS(loop)
	if err != nil {
		return nil, fmt.Errorf(`jsoracle: new js adapter: %w`, err)
	}

	s := newSession(x, js, items)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	var g errgroup.Group
	g.Go(func() error { return loop.Run(runCtx) })

	var runErr error
	if err := loop.Submit(s.start); err != nil {
		runErr = fmt.Errorf(`jsoracle: submit: %w`, err)
	} else {
		select {
		case <-s.done:
		case <-ctx.Done():
			runErr = fmt.Errorf(`jsoracle: %w`, ctx.Err())
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := loop.Shutdown(shutdownCtx); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		x.logger.Warning().Err(err).Log(`jsoracle: loop shutdown failed`)
	}
	stop()
	// the loop goroutine has exited, so the trace may be read
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, eventloop.ErrLoopTerminated) {
		x.logger.Warning().Err(err).Log(`jsoracle: loop exited with error`)
	}

	x.logger.Debug().
		Int(`items`, len(items)).
		Int(`entries`, len(s.trace.Entries)).
		Int(`errors`, len(s.trace.Errors)).
		Log(`jsoracle: run complete`)

	return s.trace, runErr
}
