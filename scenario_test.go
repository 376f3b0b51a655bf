package loopviz

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioFile(t *testing.T) {
	s, err := LoadScenarioFile(filepath.Join(`testdata`, `promise-before-timeout.yaml`))
	require.NoError(t, err)
	assert.Equal(t, `promise-before-timeout`, s.Name)
	assert.Equal(t, []string{`2`, `1`}, s.Events)
	require.NotNil(t, s.Expect)
	require.NotNil(t, s.Expect.Async)
	assert.Equal(t, 2, *s.Expect.Async)

	opts, err := s.Options()
	require.NoError(t, err)
	viz := newTestVisualizer(t, opts...)

	snapshot := runAndWait(t, viz)
	require.NoError(t, s.Check(snapshot))
}

func TestLoadScenario_customTemplates(t *testing.T) {
	const doc = `
name: custom
templates:
  - id: tick
    label: Tick
    code: setTimeout(tick, 0)
    kind: setTimeout
  - id: now
    label: Now
    code: now()
    kind: Immediate
events: [tick, now, tick]
capacity: 3
expect:
  sync: 1
  async: 2
  before:
    - [now, tick]
`
	s, err := LoadScenario(strings.NewReader(doc))
	require.NoError(t, err)

	c, err := s.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	opts, err := s.Options()
	require.NoError(t, err)
	viz := newTestVisualizer(t, opts...)
	assert.Equal(t, 3, viz.Snapshot().Capacity)

	snapshot := runAndWait(t, viz)
	require.NoError(t, s.Check(snapshot))

	// the reverse ordering does not hold
	s.Expect.Before = [][]string{{`tick`, `now`}}
	s.Expect.Sync = new(int)
	err = s.Check(snapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sync log: got 1 entries, want 0`)
	assert.Contains(t, err.Error(), `should fire before`)
}

func TestLoadScenario_invalid(t *testing.T) {
	for name, doc := range map[string]string{
		`missing name`:   `events: ["1"]`,
		`unknown field`:  "name: x\nevent: [\"1\"]",
		`unknown event`:  "name: x\nevents: [\"9\"]",
		`bad pair`:       "name: x\nevents: []\nexpect:\n  before: [[\"1\"]]",
		`self pair`:      "name: x\nevents: [\"2\", \"2\"]\nexpect:\n  before: [[\"2\", \"2\"]]",
		`bad kind`:       "name: x\ntemplates: [{id: a, kind: rAF}]\nevents: []",
		`negative limit`: "name: x\nevents: []\ncapacity: -1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(doc))
			require.Error(t, err)
		})
	}

	_, err := LoadScenario(strings.NewReader("name: x\nevents: [\"9\"]"))
	require.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestScenario_Save(t *testing.T) {
	async := 1
	in := &Scenario{
		Name:      `saved`,
		Templates: []Template{{ID: `p`, Label: `P`, Code: `p()`, Kind: MicrotaskPromise}},
		Events:    []string{`p`},
		Expect:    &ScenarioExpect{Async: &async},
	}

	var buf bytes.Buffer
	require.NoError(t, in.Save(&buf))
	assert.Contains(t, buf.String(), `kind: Promise`)

	out, err := LoadScenario(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
