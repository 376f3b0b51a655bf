// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopviz

import (
	"errors"
	"fmt"
)

type (
	// Template is a selectable event, from which instances are created.
	Template struct {
		ID    string `json:"id" yaml:"id"`
		Label string `json:"label" yaml:"label"`
		Code  string `json:"code" yaml:"code"`
		Kind  Kind   `json:"kind" yaml:"kind"`
	}

	// Catalog is an immutable, ordered set of templates, and the subset that
	// makes up the initial list. Use NewCatalog or DefaultCatalog.
	Catalog struct {
		index     map[string]int
		templates []Template
		initial   []string
	}
)

// NewCatalog validates and returns a catalog. Template ids must be unique and
// non-empty, kinds must be valid, and every initial id must be present.
func NewCatalog(templates []Template, initial ...string) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, errors.New(`loopviz: catalog must contain at least one template`)
	}
	c := Catalog{
		index:     make(map[string]int, len(templates)),
		templates: append([]Template(nil), templates...),
		initial:   append([]string(nil), initial...),
	}
	for i, t := range c.templates {
		if t.ID == `` {
			return nil, fmt.Errorf(`loopviz: catalog template %d: empty id`, i)
		}
		if !t.Kind.Valid() {
			return nil, fmt.Errorf(`loopviz: catalog template %q: invalid kind`, t.ID)
		}
		if _, ok := c.index[t.ID]; ok {
			return nil, fmt.Errorf(`loopviz: catalog template %q: duplicate id`, t.ID)
		}
		c.index[t.ID] = i
	}
	for _, id := range c.initial {
		if _, ok := c.index[id]; !ok {
			return nil, fmt.Errorf(`loopviz: catalog initial %q: %w`, id, ErrUnknownTemplate)
		}
	}
	return &c, nil
}

var defaultTemplates = []Template{
	{
		ID:    `1`,
		Kind:  MicrotaskPromise,
		Label: `Promise event (Micro Task Queue)`,
		Code:  `Promise.resolve().then(() => console.log("asynchronous execution"))`,
	},
	{
		ID:    `2`,
		Kind:  DeferredTimer,
		Label: `setTimeout event (Macro Task Queue)`,
		Code:  `setTimeout(() => console.log("asynchronous execution"), 0)`,
	},
	{
		ID:    `3`,
		Kind:  RepeatingTimer,
		Label: `setInterval event (Repeating Macro Task)`,
		Code:  `setInterval(() => console.log("asynchronous execution"), 0)`,
	},
	{
		ID:    `4`,
		Kind:  Immediate,
		Label: `Synchronous event (Immediate execution)`,
		Code:  `console.log("Synchronous execution")`,
	},
	{
		ID:    `5`,
		Kind:  MicrotaskThenTimer,
		Label: `Promise event with setTimeout`,
		Code:  `Promise.resolve().then(() => { setTimeout(() => { console.log("asynchronous execution") }, 0) })`,
	},
}

// DefaultCatalog returns the built-in catalog: one template per kind, with
// all but the promise-with-timeout template in the initial list.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultTemplates, `1`, `2`, `3`, `4`)
	if err != nil {
		panic(err)
	}
	return c
}

// Templates returns a copy of the templates, in catalog order.
func (x *Catalog) Templates() []Template {
	return append([]Template(nil), x.templates...)
}

// Initial returns a copy of the ids that make up the initial list.
func (x *Catalog) Initial() []string {
	return append([]string(nil), x.initial...)
}

// Lookup returns the template with the given id.
func (x *Catalog) Lookup(id string) (Template, bool) {
	if i, ok := x.index[id]; ok {
		return x.templates[i], true
	}
	return Template{}, false
}

// Len returns the number of templates.
func (x *Catalog) Len() int {
	return len(x.templates)
}
