package jsoracle

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/loopviz"
)

// session is the state of a single Run, owned by the loop goroutine.
type session struct {
	oracle    *Oracle
	js        *eventloop.JS
	vm        *goja.Runtime
	trace     *Trace
	done      chan struct{}
	timeouts  map[uint64]struct{}
	intervals map[uint64]*interval
	items     []loopviz.Instance
	// pending counts timers and microtasks that have yet to run
	pending  int
	started  bool
	finished bool
}

type interval struct {
	id      uint64
	ticks   int
	cleared bool
}

func newSession(oracle *Oracle, js *eventloop.JS, items []loopviz.Instance) *session {
	return &session{
		oracle:    oracle,
		js:        js,
		trace:     &Trace{},
		done:      make(chan struct{}),
		timeouts:  make(map[uint64]struct{}),
		intervals: make(map[uint64]*interval),
		items:     items,
	}
}

func (s *session) start() {
	s.vm = goja.New()
	s.bind()

	script := s.script()
	if _, err := s.vm.RunString(script); err != nil {
		s.trace.Errors = append(s.trace.Errors, fmt.Errorf(`jsoracle: script: %w`, err))
	}

	s.started = true
	s.settle()
}

// settle closes done, once the script has run, and nothing is pending.
func (s *session) settle() {
	if s.started && !s.finished && s.pending <= 0 {
		s.finished = true
		close(s.done)
	}
}

// script wraps each card in a function receiving its own console. Cards that
// fail to compile are replaced with an empty body, and reported.
func (s *session) script() string {
	var b strings.Builder
	for i, v := range s.items {
		card := fmt.Sprintf("__card(%d, function (console) {\n%s\n});\n", i, v.Code)
		if _, err := goja.Compile(v.ID, card, false); err != nil {
			s.trace.Errors = append(s.trace.Errors, &CardError{InstanceID: v.ID, Index: i, Err: err})
			card = fmt.Sprintf("__card(%d, function () {});\n", i)
		}
		b.WriteString(card)
	}
	return b.String()
}

func (s *session) bind() {
	s.vm.Set(`__card`, s.card)
	s.vm.Set(`setTimeout`, s.setTimeout)
	s.vm.Set(`clearTimeout`, s.clearTimeout)
	s.vm.Set(`setInterval`, s.setInterval)
	s.vm.Set(`clearInterval`, s.clearInterval)
	s.vm.Set(`queueMicrotask`, s.queueMicrotask)
}

func (s *session) card(call goja.FunctionCall) goja.Value {
	i := int(call.Argument(0).ToInteger())
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok || i < 0 || i >= len(s.items) {
		panic(s.vm.NewTypeError(`invalid card`))
	}
	if _, err := fn(goja.Undefined(), s.console(i)); err != nil {
		s.trace.Errors = append(s.trace.Errors, &CardError{InstanceID: s.items[i].ID, Index: i, Err: err})
	}
	return goja.Undefined()
}

func (s *session) console(i int) *goja.Object {
	console := s.vm.NewObject()
	_ = console.Set(`log`, func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for j, arg := range call.Arguments {
			parts[j] = arg.String()
		}
		s.record(i, strings.Join(parts, ` `))
		return goja.Undefined()
	})
	return console
}

func (s *session) record(i int, message string) {
	entry := Entry{
		InstanceID: s.items[i].ID,
		Index:      i,
		Message:    message,
		Seq:        len(s.trace.Entries) + 1,
	}
	s.trace.Entries = append(s.trace.Entries, entry)
	s.oracle.logger.Debug().
		Str(`id`, entry.InstanceID).
		Int(`seq`, entry.Seq).
		Str(`message`, message).
		Log(`jsoracle: console.log`)
}

func (s *session) callable(call goja.FunctionCall, name string) goja.Callable {
	fn := call.Argument(0)
	if fn.Export() == nil {
		panic(s.vm.NewTypeError(name + ` requires a function as first argument`))
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		panic(s.vm.NewTypeError(name + ` requires a function as first argument`))
	}
	return callable
}

func (s *session) delay(call goja.FunctionCall) int {
	delayMs := int(call.Argument(1).ToInteger())
	if delayMs < 0 {
		delayMs = 0
	}
	return delayMs
}

// invoke calls fn as a timer or microtask callback, at the top of the stack,
// so promise jobs it creates run before it returns.
func (s *session) invoke(fn goja.Callable) {
	if _, err := fn(goja.Undefined()); err != nil {
		s.trace.Errors = append(s.trace.Errors, fmt.Errorf(`jsoracle: callback: %w`, err))
	}
}

func (s *session) setTimeout(call goja.FunctionCall) goja.Value {
	fn := s.callable(call, `setTimeout`)
	var id uint64
	id, err := s.js.SetTimeout(func() {
		if _, ok := s.timeouts[id]; !ok {
			return
		}
		delete(s.timeouts, id)
		s.invoke(fn)
		s.pending--
		s.settle()
	}, s.delay(call))
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
	s.timeouts[id] = struct{}{}
	s.pending++
	return s.vm.ToValue(id)
}

func (s *session) clearTimeout(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	if _, ok := s.timeouts[id]; ok {
		delete(s.timeouts, id)
		_ = s.js.ClearTimeout(id)
		s.pending--
	}
	return goja.Undefined()
}

func (s *session) setInterval(call goja.FunctionCall) goja.Value {
	fn := s.callable(call, `setInterval`)
	state := new(interval)
	id, err := s.js.SetInterval(func() {
		if state.cleared {
			return
		}
		state.ticks++
		s.invoke(fn)
		if !state.cleared && state.ticks >= s.oracle.intervalTicks {
			s.stopInterval(state)
		}
		s.settle()
	}, s.delay(call))
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
	state.id = id
	s.intervals[id] = state
	s.pending++
	return s.vm.ToValue(id)
}

func (s *session) clearInterval(call goja.FunctionCall) goja.Value {
	id := uint64(call.Argument(0).ToInteger())
	if state, ok := s.intervals[id]; ok {
		s.stopInterval(state)
	}
	return goja.Undefined()
}

func (s *session) stopInterval(state *interval) {
	state.cleared = true
	delete(s.intervals, state.id)
	_ = s.js.ClearInterval(state.id)
	s.pending--
}

func (s *session) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn := s.callable(call, `queueMicrotask`)
	if err := s.js.QueueMicrotask(func() {
		s.invoke(fn)
		s.pending--
		s.settle()
	}); err != nil {
		panic(s.vm.NewGoError(err))
	}
	s.pending++
	return goja.Undefined()
}
