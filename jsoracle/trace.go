package jsoracle

import (
	"fmt"

	"github.com/joeycumines/loopviz"
)

type (
	// Trace is the console output of a Run, in the order it was written.
	Trace struct {
		Entries []Entry `json:"entries"`
		// Errors are card or callback exceptions, and compile failures.
		// They do not stop the run.
		Errors []error `json:"-"`
	}

	// Entry is a single console.log call.
	Entry struct {
		InstanceID string `json:"instanceId"`
		Message    string `json:"message"`
		// Index is the position of the card in the run.
		Index int `json:"index"`
		// Seq is the 1-based position of the entry in the trace.
		Seq int `json:"seq"`
	}

	// CardError is an exception or compile failure, attributed to a card.
	CardError struct {
		Err        error
		InstanceID string
		Index      int
	}

	// Violation is a pair of instances that fired in an order the host loop
	// never produces, or an instance that never fired.
	Violation struct {
		Before loopviz.Instance
		After  loopviz.Instance
		// Missing is set if Before never fired, in which case After is unset.
		Missing bool
	}
)

func (e *CardError) Error() string {
	return fmt.Sprintf(`jsoracle: card %d (%s): %v`, e.Index, e.InstanceID, e.Err)
}

func (e *CardError) Unwrap() error { return e.Err }

func (x Violation) String() string {
	if x.Missing {
		return fmt.Sprintf(`%s (%s) never fired`, x.Before.ID, x.Before.Kind)
	}
	return fmt.Sprintf(`%s (%s) should fire before %s (%s)`, x.Before.ID, x.Before.Kind, x.After.ID, x.After.Kind)
}

// Order ranks instances by their first console output, from 1. Instances
// without output are absent.
func (x *Trace) Order() map[string]int {
	order := make(map[string]int)
	for _, entry := range x.Entries {
		if _, ok := order[entry.InstanceID]; !ok {
			order[entry.InstanceID] = len(order) + 1
		}
	}
	return order
}

// Messages returns the console output of one instance.
func (x *Trace) Messages(instanceID string) (messages []string) {
	for _, entry := range x.Entries {
		if entry.InstanceID == instanceID {
			messages = append(messages, entry.Message)
		}
	}
	return
}

// Check reports every pair of items, ranked by order, that contradicts the
// phase guarantees of the host loop: synchronous work before microtasks,
// before timers. Items within a phase are not compared. Works with both
// [Trace.Order] and [loopviz.Snapshot] order maps.
func Check(items []loopviz.Instance, order map[string]int) (violations []Violation) {
	for _, a := range items {
		ra, ok := order[a.ID]
		if !ok {
			violations = append(violations, Violation{Before: a, Missing: true})
			continue
		}
		for _, b := range items {
			if a.Kind.Phase() >= b.Kind.Phase() {
				continue
			}
			if rb, ok := order[b.ID]; ok && ra > rb {
				violations = append(violations, Violation{Before: a, After: b})
			}
		}
	}
	return
}
