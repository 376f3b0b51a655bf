package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	prompt "github.com/joeycumines/go-prompt"
	pstrings "github.com/joeycumines/go-prompt/strings"
	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/jsoracle"
	"github.com/joeycumines/loopviz/render"
	"github.com/spf13/cobra"
)

type (
	// Shell interprets the interactive commands. It is not safe for
	// concurrent use.
	Shell struct {
		viz      *loopviz.Visualizer
		renderer *render.Renderer
		oracle   *jsoracle.Oracle
		out      io.Writer
		// run is the most recently started run
		run    *loopviz.RunHandle
		exited bool
	}

	shellCommand struct {
		fn    func(x *Shell, ctx context.Context, args []string) error
		name  string
		usage string
		desc  string
	}
)

var shellCommands []shellCommand

func init() {
	// assigned in init, as the commands refer to shellCommands (help)
	shellCommands = []shellCommand{
		{name: `help`, desc: `Show this help`, fn: (*Shell).help},
		{name: `ls`, desc: `Show the list and the logs of the last run`, fn: (*Shell).show},
		{name: `catalog`, desc: `List the templates that can be added`, fn: (*Shell).catalog},
		{name: `add`, usage: `<template>...`, desc: `Add events, by template id`, fn: (*Shell).add},
		{name: `rm`, usage: `<event>`, desc: `Remove an event, by id or position`, fn: (*Shell).remove},
		{name: `mv`, usage: `<event> <event>`, desc: `Move an event to the position of another`, fn: (*Shell).move},
		{name: `clear`, desc: `Remove every event`, fn: (*Shell).clear},
		{name: `run`, desc: `Run the list, and wait for every event to fire`, fn: (*Shell).runAndWait},
		{name: `start`, desc: `Run the list, without waiting`, fn: (*Shell).start},
		{name: `wait`, desc: `Wait for the last run to settle`, fn: (*Shell).wait},
		{name: `verify`, desc: `Execute the code of each event, and compare the order`, fn: (*Shell).verify},
		{name: `save`, usage: `<file>`, desc: `Save the list as a scenario`, fn: (*Shell).save},
		{name: `exit`, desc: `Leave the shell`, fn: (*Shell).exit},
	}
}

// NewShell returns a Shell writing to out. The oracle may be nil, disabling
// the verify command.
func NewShell(viz *loopviz.Visualizer, renderer *render.Renderer, oracle *jsoracle.Oracle, out io.Writer) *Shell {
	return &Shell{
		viz:      viz,
		renderer: renderer,
		oracle:   oracle,
		out:      out,
	}
}

// Exited reports whether the exit command has been executed.
func (x *Shell) Exited() bool {
	return x.exited
}

// Execute runs a single line of input. Rejected operations print their
// banner, and the shell continues.
func (x *Shell) Execute(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]
	switch name {
	case `quit`:
		name = `exit`
	case `show`:
		name = `ls`
	}
	for _, c := range shellCommands {
		if c.name == name {
			if err := c.fn(x, ctx, args); err != nil {
				x.report(c.name, err)
			}
			return
		}
	}
	x.printf("unknown command %q, try help\n", name)
}

// Complete suggests commands, then template ids or event ids, depending on
// the command.
func (x *Shell) Complete(d prompt.Document) ([]prompt.Suggest, pstrings.RuneNumber, pstrings.RuneNumber) {
	endIndex := d.CurrentRuneIndex()
	w := d.GetWordBeforeCursor()
	startIndex := endIndex - pstrings.RuneCountInString(w)

	fields := strings.Fields(d.TextBeforeCursor())
	position := len(fields)
	if w != `` {
		position--
	}

	var suggestions []prompt.Suggest
	switch {
	case position <= 0:
		for _, c := range shellCommands {
			suggestions = append(suggestions, prompt.Suggest{Text: c.name, Description: c.desc})
		}
	case fields[0] == `add`:
		for _, t := range x.viz.Catalog().Templates() {
			suggestions = append(suggestions, prompt.Suggest{Text: t.ID, Description: t.Label})
		}
	case fields[0] == `rm` || (fields[0] == `mv` && position <= 2):
		for _, v := range x.viz.Snapshot().Items {
			suggestions = append(suggestions, prompt.Suggest{Text: v.ID, Description: v.Label})
		}
	}

	return prompt.FilterHasPrefix(suggestions, w, true), startIndex, endIndex
}

func (x *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(x.out, format, args...)
}

// report prints the banner associated with err, if it is set, otherwise the
// error itself. The busy banner only describes a rejected add.
func (x *Shell) report(command string, err error) {
	banners := x.viz.Snapshot().Banners
	var msg string
	switch {
	case errors.Is(err, loopviz.ErrCapacityExceeded):
		msg = banners.EventLimit
	case errors.Is(err, loopviz.ErrEmptyExecutionList):
		msg = banners.EmptyExecutionList
	case command == `add` && errors.Is(err, loopviz.ErrBusyWhileRunning):
		msg = banners.CantAddWhileRunning
	}
	if msg == `` {
		msg = err.Error()
	}
	x.printf("! %s\n", msg)
}

func (x *Shell) help(ctx context.Context, args []string) error {
	for _, c := range shellCommands {
		usage := c.name
		if c.usage != `` {
			usage += ` ` + c.usage
		}
		x.printf("  %-24s %s\n", usage, c.desc)
	}
	return nil
}

func (x *Shell) show(ctx context.Context, args []string) error {
	return x.renderer.Snapshot(x.out, x.viz.Snapshot())
}

func (x *Shell) catalog(ctx context.Context, args []string) error {
	return x.renderer.Catalog(x.out, x.viz.Catalog())
}

func (x *Shell) add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(`usage: add <template>...`)
	}
	for _, id := range args {
		v, err := x.viz.Add(ctx, id)
		if err != nil {
			return err
		}
		x.printf("added %s: %s\n", v.ID, v.Label)
	}
	return nil
}

// resolve maps an event id, or a 1-based position, to an event id.
func (x *Shell) resolve(ref string) (string, error) {
	items := x.viz.Snapshot().Items
	for _, v := range items {
		if v.ID == ref {
			return v.ID, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(items) {
		return items[n-1].ID, nil
	}
	return ``, fmt.Errorf(`no event %q`, ref)
}

func (x *Shell) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New(`usage: rm <event>`)
	}
	id, err := x.resolve(args[0])
	if err != nil {
		return err
	}
	if _, err := x.viz.Remove(ctx, id); err != nil {
		return err
	}
	x.printf("removed %s\n", id)
	return nil
}

func (x *Shell) move(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New(`usage: mv <event> <event>`)
	}
	from, err := x.resolve(args[0])
	if err != nil {
		return err
	}
	to, err := x.resolve(args[1])
	if err != nil {
		return err
	}
	if err := x.viz.Reorder(ctx, from, to); err != nil {
		return err
	}
	return x.renderer.Items(x.out, x.viz.Snapshot())
}

func (x *Shell) clear(ctx context.Context, args []string) error {
	if err := x.viz.Clear(ctx); err != nil {
		return err
	}
	x.printf("cleared\n")
	return nil
}

func (x *Shell) start(ctx context.Context, args []string) error {
	h, err := x.viz.Run(ctx)
	if err != nil {
		return err
	}
	x.run = h
	x.printf("run %d started\n", h.Number())
	return nil
}

func (x *Shell) wait(ctx context.Context, args []string) error {
	if x.run == nil {
		return errors.New(`nothing to wait for`)
	}
	s, err := x.run.Wait(ctx)
	if err != nil {
		return err
	}
	if err := x.run.Err(); err != nil {
		x.report(`wait`, err)
	}
	return x.renderer.Snapshot(x.out, s)
}

func (x *Shell) runAndWait(ctx context.Context, args []string) error {
	h, err := x.viz.Run(ctx)
	if err != nil {
		return err
	}
	x.run = h
	return x.wait(ctx, nil)
}

func (x *Shell) verify(ctx context.Context, args []string) error {
	if x.oracle == nil {
		return errors.New(`verify is unavailable`)
	}
	items := x.viz.Snapshot().Items
	if len(items) == 0 {
		return loopviz.ErrEmptyExecutionList
	}
	trace, err := x.oracle.Run(ctx, items)
	if err != nil {
		return err
	}
	writeTrace(x.out, trace)
	if violations := jsoracle.Check(items, trace.Order()); len(violations) != 0 {
		for _, v := range violations {
			x.printf("! %s\n", v)
		}
		return nil
	}
	x.printf("ok: %d events fired in a valid order\n", len(items))
	return nil
}

func (x *Shell) save(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New(`usage: save <file>`)
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := currentScenario(x.viz, args[0]).Save(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	x.printf("saved %s\n", args[0])
	return nil
}

func (x *Shell) exit(ctx context.Context, args []string) error {
	x.exited = true
	return nil
}

// currentScenario captures the list, and the catalog, as a scenario.
func currentScenario(viz *loopviz.Visualizer, name string) *loopviz.Scenario {
	s := viz.Snapshot()
	scenario := &loopviz.Scenario{
		Name:      name,
		Templates: viz.Catalog().Templates(),
		Events:    make([]string, len(s.Items)),
		Capacity:  s.Capacity,
	}
	for i, v := range s.Items {
		scenario.Events[i] = v.TemplateID
	}
	return scenario
}

func writeTrace(w io.Writer, trace *jsoracle.Trace) {
	for _, e := range trace.Entries {
		_, _ = fmt.Fprintf(w, "%3d. %s: %s\n", e.Seq, e.InstanceID, e.Message)
	}
	for _, err := range trace.Errors {
		_, _ = fmt.Fprintf(w, "! %v\n", err)
	}
}

// NewShellCommand returns the shell command, which is also the default.
func NewShellCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     `shell`,
		Aliases: []string{`repl`},
		Short:   `Edit and run the event list interactively`,
		Long: `Start an interactive shell. Events are added from the catalog, reordered,
and run, after which the synchronous and asynchronous logs are shown, each
event labelled with its rank in the firing order.

If standard input is not a terminal, commands are read one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}
}

func runShell(cmd *cobra.Command, opts *RootOptions) (err error) {
	e, err := newEnv(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	oracle, err := e.newOracle()
	if err != nil {
		return WrapExitError(ExitCommandError, `invalid oracle configuration`, err)
	}

	ctx := cmd.Context()
	shell := NewShell(e.viz, e.renderer, oracle, e.out)

	in := cmd.InOrStdin()
	if !isTerminal(in) {
		return readLines(ctx, shell, in)
	}

	if err := shell.show(ctx, nil); err != nil {
		return err
	}
	p := prompt.New(
		func(line string) { shell.Execute(ctx, line) },
		prompt.WithTitle(`loopviz`),
		prompt.WithPrefix(`loopviz> `),
		prompt.WithCompleter(shell.Complete),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && shell.Exited()
		}),
	)
	if code := p.RunNoExit(); code > 0 {
		return NewExitError(code, `shell terminated`)
	}
	return nil
}

// readLines executes each line of r, until EOF, or the exit command.
func readLines(ctx context.Context, shell *Shell, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for !shell.Exited() && scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		shell.Execute(ctx, scanner.Text())
	}
	return scanner.Err()
}
