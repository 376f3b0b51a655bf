// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package loopviz visualizes the order in which a JavaScript-style event loop
// actually fires callbacks, compared with the order they were arranged in.
//
// # Architecture
//
// A [Visualizer] owns an ordered list of event [Instance] values, created
// from the [Template] entries of a [Catalog]. Each instance has a [Kind],
// selecting the host primitive used to defer it:
//
//   - [Immediate]: invoked inline, on the current call stack
//   - [DeferredTimer]: [eventloop.JS.SetTimeout] with a zero delay
//   - [MicrotaskPromise]: a reaction on an already-resolved promise
//   - [MicrotaskThenTimer]: a promise reaction that schedules a timeout
//   - [RepeatingTimer]: [eventloop.JS.SetInterval], cleared after one tick
//
// [Visualizer.Run] submits every instance, in display order, from a single
// loop task. The loop then fires the callbacks according to its own queue
// semantics (call stack, then microtasks, then timers), and each callback
// records its rank in the execution order, appending to either the
// synchronous or the asynchronous log.
//
// # Thread Safety
//
// All state is owned by the [eventloop.Loop] goroutine. Public methods marshal
// onto the loop via [eventloop.Loop.Submit], and block until the operation
// completes, or the context is canceled. They must not be called from the
// loop goroutine itself.
//
// Every mutation publishes a new immutable [Snapshot], available via
// [Visualizer.Snapshot], and delivered to observers registered with
// [Visualizer.Subscribe].
//
// # Usage
//
//	loop, err := eventloop.New(eventloop.WithStrictMicrotaskOrdering(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go loop.Run(ctx)
//
//	viz, err := loopviz.New(loop)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := viz.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	snapshot, err := run.Wait(ctx)
package loopviz
