// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopviz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
)

// Visualizer is the event list, and the run state machine (Idle, Running),
// bound to an event loop. Instances must be initialized using New.
type Visualizer struct {
	// Prevent copying
	_ [0]func()

	loop    *eventloop.Loop
	js      *eventloop.JS
	logger  *logiface.Logger[logiface.Event]
	catalog *Catalog

	// current is the most recent run, nil until the first run
	current *RunHandle

	snapshot  atomic.Pointer[Snapshot]
	observers observers

	list    eventList
	sink    executionSink
	banners Banners

	version    uint64
	capacity   int
	timerDelay time.Duration
	runCount   int

	// pending is the number of unsettled completions in the current run
	pending   int
	executing bool

	closed atomic.Bool
}

// RunHandle tracks a single run, from submission until every completion has
// fired. Methods other than Done and Wait must only be used after Done is
// closed, except ID, Number and Items.
type RunHandle struct {
	settled *Snapshot
	done    chan struct{}
	id      string
	items   []Instance
	errs    []error
	number  int
}

// New creates a Visualizer bound to loop. The loop may already be running,
// but this must not be called from the loop goroutine.
func New(loop *eventloop.Loop, opts ...Option) (*Visualizer, error) {
	if loop == nil {
		return nil, errors.New(`loopviz: nil loop`)
	}

	options, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	js, err := eventloop.NewJS(loop)
	if err != nil {
		return nil, fmt.Errorf(`loopviz: new js adapter: %w`, err)
	}

	x := &Visualizer{
		loop:       loop,
		js:         js,
		logger:     options.logger,
		catalog:    options.catalog,
		capacity:   options.capacity,
		timerDelay: options.timerDelay,
		list:       eventList{clock: options.clock},
	}

	for _, id := range options.initial {
		t, ok := x.catalog.Lookup(id)
		if !ok {
			return nil, fmt.Errorf(`loopviz: initial template %q: %w`, id, ErrUnknownTemplate)
		}
		x.list.append(t)
	}

	x.sink.reset()
	x.publish()

	return x, nil
}

// Catalog returns the catalog instances are created from.
func (x *Visualizer) Catalog() *Catalog {
	return x.catalog
}

// Snapshot returns the most recently published snapshot. It is safe to call
// from any goroutine, and never blocks.
func (x *Visualizer) Snapshot() *Snapshot {
	return x.snapshot.Load()
}

// Subscribe registers an observer, which will be called on the loop
// goroutine, with every snapshot published after Subscribe returns. The
// returned function unregisters the observer.
func (x *Visualizer) Subscribe(o Observer) (unsubscribe func()) {
	if o == nil {
		panic(`loopviz: nil observer`)
	}
	return x.observers.add(o)
}

// Add appends a new instance of the given template. It fails with
// ErrBusyWhileRunning during a run, and ErrCapacityExceeded if the list is
// full, setting the corresponding banner. Success clears all banners.
func (x *Visualizer) Add(ctx context.Context, templateID string) (v Instance, err error) {
	if callErr := x.call(ctx, func() { v, err = x.add(templateID) }); callErr != nil {
		return Instance{}, callErr
	}
	return v, err
}

// Remove deletes the instance with the given id, reporting whether it was
// present. Removal is permitted during a run: a completion already submitted
// for the instance still fires, and is still logged.
func (x *Visualizer) Remove(ctx context.Context, id string) (removed bool, err error) {
	if callErr := x.call(ctx, func() { removed = x.remove(id) }); callErr != nil {
		return false, callErr
	}
	return removed, nil
}

// Reorder moves the instance fromID to the position of toID, as a drag and
// drop of fromID onto toID would. Unknown or equal ids are a no-op.
func (x *Visualizer) Reorder(ctx context.Context, fromID, toID string) error {
	return x.call(ctx, func() { x.reorder(fromID, toID) })
}

// Clear removes every instance. It fails with ErrBusyWhileRunning during a
// run.
func (x *Visualizer) Clear(ctx context.Context) (err error) {
	if callErr := x.call(ctx, func() { err = x.clear() }); callErr != nil {
		return callErr
	}
	return err
}

// Run starts a run, submitting one scheduling request per instance, in
// display order. It returns as soon as everything is submitted, see
// RunHandle.Wait. Fails with ErrEmptyExecutionList (setting the banner) if
// there is nothing to run, or ErrBusyWhileRunning if a run is in progress.
func (x *Visualizer) Run(ctx context.Context) (h *RunHandle, err error) {
	if callErr := x.call(ctx, func() { h, err = x.run() }); callErr != nil {
		return nil, callErr
	}
	return h, err
}

// Close detaches every observer, and causes further operations to fail with
// ErrClosed. The loop is not stopped, it remains owned by the caller.
func (x *Visualizer) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	x.observers.mu.Lock()
	x.observers.m = nil
	x.observers.mu.Unlock()
	return nil
}

// call runs fn on the loop goroutine, and waits for it to return. An error
// from ctx means fn did not run, and never will. Once fn has started, call
// waits for it regardless of ctx.
func (x *Visualizer) call(ctx context.Context, fn func()) error {
	if x.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	const (
		callPending int32 = iota
		callStarted
		callAbandoned
	)
	var state atomic.Int32
	done := make(chan struct{})
	if err := x.loop.Submit(func() {
		defer close(done)
		if ctx.Err() != nil || !state.CompareAndSwap(callPending, callStarted) {
			return
		}
		fn()
	}); err != nil {
		return fmt.Errorf(`loopviz: submit to loop: %w`, err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callAbandoned) {
			return ctx.Err()
		}
		<-done
	}
	if state.Load() != callStarted {
		return ctx.Err()
	}
	return nil
}

func (x *Visualizer) add(templateID string) (Instance, error) {
	t, ok := x.catalog.Lookup(templateID)
	if !ok {
		return Instance{}, fmt.Errorf(`%w: %q`, ErrUnknownTemplate, templateID)
	}

	if x.executing {
		x.banners.CantAddWhileRunning = msgCantAddWhileRunning
		x.publish()
		x.logger.Warning().
			Str(`template`, templateID).
			Log(`add rejected: run in progress`)
		return Instance{}, ErrBusyWhileRunning
	}

	if x.list.len() >= x.capacity {
		x.banners.EventLimit = msgEventLimit(x.capacity)
		x.publish()
		x.logger.Warning().
			Str(`template`, templateID).
			Int(`capacity`, x.capacity).
			Log(`add rejected: event limit reached`)
		return Instance{}, ErrCapacityExceeded
	}

	v := x.list.append(t)
	x.banners = Banners{}
	x.publish()

	x.logger.Debug().
		Str(`id`, v.ID).
		Stringer(`kind`, v.Kind).
		Log(`event added`)

	return v, nil
}

func (x *Visualizer) remove(id string) bool {
	if !x.list.remove(id) {
		return false
	}
	x.publish()
	x.logger.Debug().
		Str(`id`, id).
		Bool(`executing`, x.executing).
		Log(`event removed`)
	return true
}

func (x *Visualizer) reorder(fromID, toID string) {
	if !x.list.reorder(fromID, toID) {
		return
	}
	x.publish()
	x.logger.Debug().
		Str(`from`, fromID).
		Str(`to`, toID).
		Log(`event moved`)
}

func (x *Visualizer) clear() error {
	if x.executing {
		return ErrBusyWhileRunning
	}
	if x.list.len() == 0 {
		return nil
	}
	x.list.clear()
	x.publish()
	x.logger.Debug().Log(`events cleared`)
	return nil
}

func (x *Visualizer) run() (*RunHandle, error) {
	if x.executing {
		return nil, ErrBusyWhileRunning
	}

	if x.list.len() == 0 {
		x.banners.EmptyExecutionList = msgEmptyExecutionList
		x.publish()
		x.logger.Warning().Log(`run rejected: execution list is empty`)
		return nil, ErrEmptyExecutionList
	}

	x.banners.EmptyExecutionList = ``
	x.runCount++
	x.sink.reset()

	h := &RunHandle{
		id:     uuid.NewString(),
		number: x.runCount,
		items:  x.list.clone(),
		done:   make(chan struct{}),
	}
	x.current = h
	x.executing = true
	x.pending = len(h.items)
	x.publish()

	x.logger.Info().
		Str(`run_id`, h.id).
		Int(`run`, h.number).
		Int(`events`, len(h.items)).
		Log(`run started`)

	for _, v := range h.items {
		x.submit(h, v)
	}

	return h, nil
}

// settle accounts for one completion (or submission failure) of h.
func (x *Visualizer) settle(h *RunHandle) {
	if h != x.current || !x.executing {
		return
	}
	x.pending--
	if x.pending > 0 {
		x.publish()
		return
	}
	x.executing = false
	h.settled = x.publish()
	close(h.done)
	x.logger.Info().
		Str(`run_id`, h.id).
		Int(`run`, h.number).
		Int(`sync`, len(h.settled.SyncLog)).
		Int(`async`, len(h.settled.AsyncLog)).
		Log(`run settled`)
}

// publish stores and broadcasts a new snapshot of the current state.
func (x *Visualizer) publish() *Snapshot {
	x.version++
	s := &Snapshot{
		Version:   x.version,
		Items:     x.list.clone(),
		Banners:   x.banners,
		RunCount:  x.runCount,
		Capacity:  x.capacity,
		Executing: x.executing,
	}
	if s.Items == nil {
		s.Items = []Instance{}
	}
	if x.current != nil {
		s.RunID = x.current.id
	}
	x.sink.copyTo(s)
	x.snapshot.Store(s)
	x.observers.notify(s)
	return s
}

// ID is a unique identifier for the run.
func (x *RunHandle) ID() string { return x.id }

// Number is the run count, at the start of this run (1 for the first run).
func (x *RunHandle) Number() int { return x.number }

// Items returns the instances submitted, in display order at submission.
func (x *RunHandle) Items() []Instance { return slices.Clone(x.items) }

// Done is closed once every completion of the run has fired.
func (x *RunHandle) Done() <-chan struct{} { return x.done }

// Wait blocks until the run settles, returning the snapshot published at
// that point, or until ctx is canceled.
func (x *RunHandle) Wait(ctx context.Context) (*Snapshot, error) {
	select {
	case <-x.done:
		return x.settled, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the submission failures of the run, if any, as a joined error
// of *SubmitError values. Only valid once Done is closed.
func (x *RunHandle) Err() error {
	return errors.Join(x.errs...)
}
