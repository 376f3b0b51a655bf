// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopviz

import (
	"fmt"
	"strings"
)

// Kind identifies the host primitive used to defer an event.
type Kind uint8

const (
	// Immediate events run synchronously, on the current call stack.
	Immediate Kind = iota + 1
	// DeferredTimer events are queued as a zero delay timeout (macrotask).
	DeferredTimer
	// MicrotaskPromise events are promise reactions (microtask).
	MicrotaskPromise
	// MicrotaskThenTimer events are promise reactions, that queue a timeout.
	MicrotaskThenTimer
	// RepeatingTimer events are zero delay intervals, cleared after the first
	// tick.
	RepeatingTimer
)

var kindNames = [...]string{
	Immediate:          `Synchronous`,
	DeferredTimer:      `setTimeout`,
	MicrotaskPromise:   `Promise`,
	MicrotaskThenTimer: `Promise with Timeout`,
	RepeatingTimer:     `setInterval`,
}

var kindIdents = [...]string{
	Immediate:          `Immediate`,
	DeferredTimer:      `DeferredTimer`,
	MicrotaskPromise:   `MicrotaskPromise`,
	MicrotaskThenTimer: `MicrotaskThenTimer`,
	RepeatingTimer:     `RepeatingTimer`,
}

// Kinds returns every valid Kind, in declaration order.
func Kinds() []Kind {
	return []Kind{Immediate, DeferredTimer, MicrotaskPromise, MicrotaskThenTimer, RepeatingTimer}
}

// Valid reports whether x is one of the declared kinds.
func (x Kind) Valid() bool {
	return x >= Immediate && x <= RepeatingTimer
}

// String returns the display name, e.g. "setTimeout".
func (x Kind) String() string {
	if x.Valid() {
		return kindNames[x]
	}
	return fmt.Sprintf(`Kind(%d)`, uint8(x))
}

// Async reports whether events of this kind are logged asynchronously.
func (x Kind) Async() bool {
	return x.Valid() && x != Immediate
}

// Phase is the coarse queue an event of this kind completes from: 0 for the
// call stack, 1 for the microtask queue, 2 for the timer queue. The host loop
// guarantees that a lower phase completes before a higher one, within a run.
func (x Kind) Phase() int {
	switch x {
	case Immediate:
		return 0
	case MicrotaskPromise:
		return 1
	default:
		return 2
	}
}

// MarshalText implements encoding.TextMarshaler, using the display name.
func (x Kind) MarshalText() ([]byte, error) {
	if !x.Valid() {
		return nil, fmt.Errorf(`loopviz: invalid kind: %d`, uint8(x))
	}
	return []byte(kindNames[x]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, see also ParseKind.
func (x *Kind) UnmarshalText(text []byte) error {
	k, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*x = k
	return nil
}

// ParseKind accepts either the display name (e.g. "Promise with Timeout") or
// the identifier (e.g. "MicrotaskThenTimer"), ignoring case.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds() {
		if strings.EqualFold(s, kindNames[k]) || strings.EqualFold(s, kindIdents[k]) {
			return k, nil
		}
	}
	return 0, fmt.Errorf(`loopviz: unknown kind: %q`, s)
}
