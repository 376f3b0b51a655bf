package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/jsoracle"
	"github.com/joeycumines/loopviz/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T, opts ...loopviz.Option) (*Shell, *bytes.Buffer) {
	t.Helper()

	loop, err := eventloop.New(eventloop.WithStrictMicrotaskOrdering(true))
	if err != nil {
		t.Fatalf("eventloop.New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = loop.Shutdown(shutdownCtx)
		cancel()
		<-done
	})

	viz, err := loopviz.New(loop, opts...)
	if err != nil {
		t.Fatalf("loopviz.New() failed: %v", err)
	}
	oracle, err := jsoracle.New()
	require.NoError(t, err)

	var out bytes.Buffer
	return NewShell(viz, render.New(), oracle, &out), &out
}

// exec runs a line, returning only the output it produced.
func exec(t *testing.T, shell *Shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	shell.Execute(testContext(t), line)
	return out.String()
}

func TestShell_addAndRun(t *testing.T) {
	shell, out := newTestShell(t)

	s := exec(t, shell, out, `add 5`)
	assert.True(t, strings.HasPrefix(s, `added `), s)
	assert.Contains(t, s, `Promise event with setTimeout`)

	s = exec(t, shell, out, `run`)
	assert.Contains(t, s, `Runs: 1`)
	assert.Contains(t, s, `Events 5/10`)
	assert.Contains(t, s, `#1 Synchronous event (Immediate execution) executed`)
	assert.NotContains(t, s, `No async logs`)

	s = exec(t, shell, out, `ls`)
	assert.Contains(t, s, `Runs: 1`)
	assert.Equal(t, s, exec(t, shell, out, `show`))
}

func TestShell_add_usage(t *testing.T) {
	shell, out := newTestShell(t)
	assert.Equal(t, "! usage: add <template>...\n", exec(t, shell, out, `add`))
	assert.Contains(t, exec(t, shell, out, `add nope`), `unknown template`)
}

func TestShell_capacity(t *testing.T) {
	shell, out := newTestShell(t, loopviz.WithCapacity(5))
	s := exec(t, shell, out, `add 1 1`)
	assert.Equal(t, 1, strings.Count(s, `added `))
	assert.Contains(t, s, "! Max event limit is 5\n")
}

func TestShell_empty(t *testing.T) {
	shell, out := newTestShell(t)
	assert.Equal(t, "cleared\n", exec(t, shell, out, `clear`))
	assert.Equal(t, "! Add events to execute\n", exec(t, shell, out, `run`))
	assert.Equal(t, "! Add events to execute\n", exec(t, shell, out, `verify`))
}

func TestShell_busyWhileRunning(t *testing.T) {
	shell, out := newTestShell(t, loopviz.WithTimerDelay(300*time.Millisecond))

	assert.Equal(t, "run 1 started\n", exec(t, shell, out, `start`))
	assert.Equal(t, "! loopviz: run in progress\n", exec(t, shell, out, `start`))
	assert.Equal(t, "! Can't add events while function is running\n", exec(t, shell, out, `add 1`))
	// the add banner stays set, but only describes add
	assert.Equal(t, "! loopviz: run in progress\n", exec(t, shell, out, `start`))
	assert.Equal(t, "! loopviz: run in progress\n", exec(t, shell, out, `run`))
	assert.Equal(t, "! loopviz: run in progress\n", exec(t, shell, out, `clear`))

	s := exec(t, shell, out, `wait`)
	assert.Contains(t, s, `Runs: 1`)
	assert.NotContains(t, s, `running...`)
}

func TestShell_wait_nothing(t *testing.T) {
	shell, out := newTestShell(t)
	assert.Equal(t, "! nothing to wait for\n", exec(t, shell, out, `wait`))
}

func TestShell_removeAndMove(t *testing.T) {
	shell, out := newTestShell(t)
	items := shell.viz.Snapshot().Items
	require.Len(t, items, 4)

	assert.Equal(t, "removed "+items[0].ID+"\n", exec(t, shell, out, `rm 1`))
	assert.Equal(t, "removed "+items[3].ID+"\n", exec(t, shell, out, `rm `+items[3].ID))
	assert.Contains(t, exec(t, shell, out, `rm 9`), `no event "9"`)

	s := exec(t, shell, out, `mv 1 2`)
	assert.Contains(t, s, `Events 2/10`)
	got := shell.viz.Snapshot().Items
	require.Len(t, got, 2)
	assert.Equal(t, items[2].ID, got[0].ID)
	assert.Equal(t, items[1].ID, got[1].ID)

	assert.Contains(t, exec(t, shell, out, `mv 1`), `usage: mv`)
}

func TestShell_catalogAndHelp(t *testing.T) {
	shell, out := newTestShell(t)
	assert.Contains(t, exec(t, shell, out, `catalog`), `setInterval event (Repeating Macro Task)`)

	s := exec(t, shell, out, `help`)
	for _, c := range shellCommands {
		assert.Contains(t, s, c.desc)
	}

	assert.Equal(t, "unknown command \"bogus\", try help\n", exec(t, shell, out, `bogus`))
	assert.Empty(t, exec(t, shell, out, `   `))
}

func TestShell_verify(t *testing.T) {
	shell, out := newTestShell(t)
	s := exec(t, shell, out, `verify`)
	assert.Contains(t, s, `Synchronous execution`)
	assert.Contains(t, s, "ok: 4 events fired in a valid order\n")
}

func TestShell_save(t *testing.T) {
	shell, out := newTestShell(t)
	path := filepath.Join(t.TempDir(), `list.yaml`)

	exec(t, shell, out, `rm 1`)
	assert.Equal(t, "saved "+path+"\n", exec(t, shell, out, `save `+path))

	scenario, err := loopviz.LoadScenarioFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{`2`, `3`, `4`}, scenario.Events)
	assert.Equal(t, loopviz.DefaultCapacity, scenario.Capacity)
}

func TestShell_exit(t *testing.T) {
	for _, line := range []string{`exit`, `quit`} {
		shell, out := newTestShell(t)
		assert.False(t, shell.Exited())
		exec(t, shell, out, line)
		assert.True(t, shell.Exited(), line)
	}
}

func TestReadLines(t *testing.T) {
	shell, out := newTestShell(t)
	err := readLines(testContext(t), shell, strings.NewReader("clear\nadd 4\nexit\nadd 4\n"))
	require.NoError(t, err)
	assert.Len(t, shell.viz.Snapshot().Items, 1)
	assert.Contains(t, out.String(), `added `)
}
