// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopviz

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultCapacity is the maximum number of events in the list, by default.
const DefaultCapacity = 10

// visualizerOptions holds configuration options for Visualizer creation.
type visualizerOptions struct {
	logger     *logiface.Logger[logiface.Event]
	catalog    *Catalog
	clock      func() time.Time
	initial    []string
	capacity   int
	timerDelay time.Duration
	hasInitial bool
}

// Option configures a Visualizer instance.
type Option interface {
	applyVisualizer(*visualizerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyVisualizerFunc func(*visualizerOptions) error
}

func (o *optionImpl) applyVisualizer(opts *visualizerOptions) error {
	return o.applyVisualizerFunc(opts)
}

// WithLogger configures structured logging. The same logger type is accepted
// by [eventloop.WithLogger]. A nil logger disables logging (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithCatalog replaces the default catalog. Unless WithInitialTemplates is
// also provided, the catalog's initial list is used.
func WithCatalog(catalog *Catalog) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		if catalog == nil {
			return errors.New(`loopviz: nil catalog`)
		}
		opts.catalog = catalog
		return nil
	}}
}

// WithCapacity sets the maximum number of events in the list.
// Defaults to [DefaultCapacity].
func WithCapacity(capacity int) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		if capacity <= 0 {
			return errors.New(`loopviz: capacity must be positive`)
		}
		opts.capacity = capacity
		return nil
	}}
}

// WithClock sets the time source used to derive instance ids.
func WithClock(clock func() time.Time) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		if clock == nil {
			return errors.New(`loopviz: nil clock`)
		}
		opts.clock = clock
		return nil
	}}
}

// WithInitialTemplates sets the template ids the list starts with, in order.
// No arguments means an empty list.
func WithInitialTemplates(ids ...string) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		opts.initial = append([]string(nil), ids...)
		opts.hasInitial = true
		return nil
	}}
}

// WithTimerDelay sets the delay requested for timeouts and intervals.
// Defaults to zero, which is what the visualization is about, but a small
// delay can make the asynchronous phase easier to follow.
func WithTimerDelay(delay time.Duration) Option {
	return &optionImpl{func(opts *visualizerOptions) error {
		if delay < 0 {
			return errors.New(`loopviz: negative timer delay`)
		}
		opts.timerDelay = delay
		return nil
	}}
}

// resolveOptions applies Option instances to visualizerOptions.
func resolveOptions(opts []Option) (*visualizerOptions, error) {
	cfg := &visualizerOptions{
		capacity: DefaultCapacity,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyVisualizer(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.catalog == nil {
		cfg.catalog = DefaultCatalog()
	}
	if !cfg.hasInitial {
		cfg.initial = cfg.catalog.Initial()
	}
	if len(cfg.initial) > cfg.capacity {
		return nil, ErrCapacityExceeded
	}
	return cfg, nil
}
