// Package render implements the text presentation of visualizer snapshots.
// Every function is a pure function of its inputs.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joeycumines/loopviz"
	"github.com/mattn/go-runewidth"
)

// DefaultWidth is the terminal width assumed if none is configured.
const DefaultWidth = 120

const (
	minColumnWidth = 12
	columnSep      = ` | `
	truncateTail   = `...`
)

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var kindGlyphs = map[loopviz.Kind]string{
	loopviz.Immediate:          `▶`,
	loopviz.MicrotaskPromise:   `◆`,
	loopviz.DeferredTimer:      `◷`,
	loopviz.MicrotaskThenTimer: `◇`,
	loopviz.RepeatingTimer:     `↻`,
}

var kindColors = map[loopviz.Kind]string{
	loopviz.Immediate:          ansiGreen,
	loopviz.MicrotaskPromise:   ansiMagenta,
	loopviz.DeferredTimer:      ansiYellow,
	loopviz.MicrotaskThenTimer: ansiCyan,
	loopviz.RepeatingTimer:     ansiBlue,
}

type (
	// Renderer writes snapshots as text. The zero value is not usable, use
	// New.
	Renderer struct {
		cond  *runewidth.Condition
		width int
		color bool
	}

	// Option configures a Renderer.
	Option interface {
		applyRenderer(*Renderer)
	}

	optionImpl struct {
		applyRendererFunc func(*Renderer)
	}

	// cell is a single log column entry. The glyph is kept separate, so it
	// can be coloured without affecting the width calculation.
	cell struct {
		glyph string
		text  string
		kind  loopviz.Kind
	}
)

func (o *optionImpl) applyRenderer(r *Renderer) { o.applyRendererFunc(r) }

// WithColor enables ANSI colour, per kind.
func WithColor(enabled bool) Option {
	return &optionImpl{func(r *Renderer) { r.color = enabled }}
}

// WithWidth sets the total width of the log columns. Values <= 0 select
// DefaultWidth.
func WithWidth(width int) Option {
	return &optionImpl{func(r *Renderer) { r.width = width }}
}

// New returns a Renderer, without colour, at DefaultWidth, by default.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		// ambiguous width runes (the glyphs) are always a single column
		cond:  &runewidth.Condition{EastAsianWidth: false},
		width: DefaultWidth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRenderer(r)
		}
	}
	if r.width <= 0 {
		r.width = DefaultWidth
	}
	return r
}

// Glyph returns the icon used for kind in log lines.
func Glyph(kind loopviz.Kind) string {
	if g, ok := kindGlyphs[kind]; ok {
		return g
	}
	return `?`
}

// Snapshot writes the full view: header, banners, the event list, and the
// two log columns.
func (r *Renderer) Snapshot(w io.Writer, s *loopviz.Snapshot) error {
	var b strings.Builder
	r.header(&b, s)
	b.WriteByte('\n')
	r.items(&b, s)
	b.WriteByte('\n')
	r.logs(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

// Items writes the banners and the event list.
func (r *Renderer) Items(w io.Writer, s *loopviz.Snapshot) error {
	var b strings.Builder
	r.items(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

// Logs writes the sync and async logs, side by side.
func (r *Renderer) Logs(w io.Writer, s *loopviz.Snapshot) error {
	var b strings.Builder
	r.logs(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

// Catalog writes the templates available to add, as a table.
func (r *Renderer) Catalog(w io.Writer, c *loopviz.Catalog) error {
	templates := c.Templates()
	idWidth, kindWidth := r.cond.StringWidth(`ID`), r.cond.StringWidth(`Kind`)
	for _, t := range templates {
		idWidth = max(idWidth, r.cond.StringWidth(t.ID))
		kindWidth = max(kindWidth, r.cond.StringWidth(t.Kind.String()))
	}

	var b strings.Builder
	row := func(id, kind, label string) {
		line := r.cond.FillRight(id, idWidth) + `  ` + r.cond.FillRight(kind, kindWidth) + `  ` + label
		b.WriteString(strings.TrimRight(line, ` `))
		b.WriteByte('\n')
	}
	row(`ID`, `Kind`, `Label`)
	for _, t := range templates {
		row(t.ID, t.Kind.String(), t.Label)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) header(b *strings.Builder, s *loopviz.Snapshot) {
	b.WriteString(r.paint(ansiBold, `Event Loop Visualizer`))
	b.WriteByte('\n')
	b.WriteString(`Runs: `)
	b.WriteString(strconv.Itoa(s.RunCount))
	if s.Executing {
		b.WriteString(`  `)
		b.WriteString(r.paint(ansiYellow, `running...`))
	}
	b.WriteByte('\n')
}

func (r *Renderer) items(b *strings.Builder, s *loopviz.Snapshot) {
	fmt.Fprintf(b, "Events %d/%d\n", len(s.Items), s.Capacity)

	for _, msg := range [...]string{s.Banners.EventLimit, s.Banners.CantAddWhileRunning} {
		if msg != `` {
			r.banner(b, msg)
		}
	}

	// the empty list banner replaces the list
	if s.Banners.EmptyExecutionList != `` {
		r.banner(b, s.Banners.EmptyExecutionList)
		return
	}

	if len(s.Items) == 0 {
		b.WriteString("  (no events)\n")
		return
	}

	for i, v := range s.Items {
		var rank string
		if n, ok := s.Rank(v.ID); ok {
			rank = `#` + strconv.Itoa(n) + ` `
		}
		fmt.Fprintf(b, "%3d. %s%s %s\n", i+1, rank, v.Label, r.paint(kindColors[v.Kind], `[`+v.Kind.String()+`]`))
		if v.Code != `` {
			b.WriteString(`       `)
			b.WriteString(v.Code)
			b.WriteByte('\n')
		}
	}
}

func (r *Renderer) banner(b *strings.Builder, msg string) {
	b.WriteString(r.paint(ansiRed, `! `+msg))
	b.WriteByte('\n')
}

func (r *Renderer) logs(b *strings.Builder, s *loopviz.Snapshot) {
	cw := max((r.width-len(columnSep))/2, minColumnWidth)

	left := toCells(s.SyncLog, `No sync logs`)
	right := toCells(s.AsyncLog, `No async logs`)

	r.row(b, cw, cell{text: `Sync logs`}, cell{text: `Async logs`})
	b.WriteString(strings.Repeat(`-`, cw))
	b.WriteString(`-+-`)
	b.WriteString(strings.Repeat(`-`, cw))
	b.WriteByte('\n')

	for i := range max(len(left), len(right)) {
		var l, rr cell
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			rr = right[i]
		}
		r.row(b, cw, l, rr)
	}
}

func (r *Renderer) row(b *strings.Builder, cw int, left, right cell) {
	line := r.cell(left, cw) + columnSep + r.cell(right, cw)
	b.WriteString(strings.TrimRight(line, ` `))
	b.WriteByte('\n')
}

// cell renders c padded to exactly width columns.
func (r *Renderer) cell(c cell, width int) string {
	if c.glyph == `` {
		return r.cond.FillRight(r.cond.Truncate(c.text, width, truncateTail), width)
	}
	glyphWidth := r.cond.StringWidth(c.glyph) + 1
	text := r.cond.FillRight(r.cond.Truncate(c.text, width-glyphWidth, truncateTail), width-glyphWidth)
	return r.paint(kindColors[c.kind], c.glyph) + ` ` + text
}

func (r *Renderer) paint(code, s string) string {
	if !r.color || code == `` {
		return s
	}
	return code + s + ansiReset
}

func toCells(entries []loopviz.LogEntry, placeholder string) []cell {
	if len(entries) == 0 {
		return []cell{{text: placeholder}}
	}
	cells := make([]cell, len(entries))
	for i, entry := range entries {
		cells[i] = cell{
			glyph: Glyph(entry.Kind),
			text:  `#` + strconv.Itoa(entry.Rank) + ` ` + entry.Message(),
			kind:  entry.Kind,
		}
	}
	return cells
}
