package loopviz

import (
	"slices"
	"strconv"
	"time"
)

// Instance is an event in the list, created from a Template.
type Instance struct {
	ID         string `json:"id"`
	TemplateID string `json:"templateId"`
	Label      string `json:"label"`
	Code       string `json:"code"`
	Kind       Kind   `json:"kind"`
}

// eventList is the ordered list of instances, owned by the loop goroutine.
type eventList struct {
	clock     func() time.Time
	items     []Instance
	lastStamp int64
}

// newInstance derives a unique id from the template id and the creation time,
// in milliseconds. Stamps are forced to increase, so two instances created
// within the same millisecond still receive distinct ids.
func (x *eventList) newInstance(t Template) Instance {
	stamp := x.clock().UnixMilli()
	if stamp <= x.lastStamp {
		stamp = x.lastStamp + 1
	}
	x.lastStamp = stamp
	return Instance{
		ID:         t.ID + `-` + strconv.FormatInt(stamp, 10),
		TemplateID: t.ID,
		Kind:       t.Kind,
		Label:      t.Label,
		Code:       t.Code,
	}
}

func (x *eventList) append(t Template) Instance {
	v := x.newInstance(t)
	x.items = append(x.items, v)
	return v
}

func (x *eventList) index(id string) int {
	return slices.IndexFunc(x.items, func(v Instance) bool { return v.ID == id })
}

func (x *eventList) remove(id string) bool {
	i := x.index(id)
	if i < 0 {
		return false
	}
	x.items = slices.Delete(x.items, i, i+1)
	return true
}

// reorder moves fromID to the current position of toID, shifting the items in
// between by one. Returns false if nothing moved.
func (x *eventList) reorder(fromID, toID string) bool {
	if fromID == toID {
		return false
	}
	from, to := x.index(fromID), x.index(toID)
	if from < 0 || to < 0 {
		return false
	}
	x.items = arrayMove(x.items, from, to)
	return true
}

func (x *eventList) clear() {
	x.items = nil
}

func (x *eventList) len() int {
	return len(x.items)
}

func (x *eventList) clone() []Instance {
	return slices.Clone(x.items)
}

// arrayMove relocates s[from] to index to, preserving the relative order of
// every other element. The slice is modified in place.
func arrayMove[S ~[]E, E any](s S, from, to int) S {
	v := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = v
	return s
}
