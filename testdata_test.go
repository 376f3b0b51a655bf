package loopviz_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/loopviz"
	"github.com/joeycumines/loopviz/jsoracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) *eventloop.Loop {
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
	return loop
}

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(`testdata`, `*.yaml`))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	oracle, err := jsoracle.New()
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			scenario, err := loopviz.LoadScenarioFile(path)
			require.NoError(t, err)
			opts, err := scenario.Options()
			require.NoError(t, err)

			viz, err := loopviz.New(runLoop(t), opts...)
			require.NoError(t, err)
			defer viz.Close()

			run, err := viz.Run(ctx)
			require.NoError(t, err)
			snapshot, err := run.Wait(ctx)
			require.NoError(t, err)
			require.NoError(t, run.Err())

			assert.NoError(t, scenario.Check(snapshot))
			assert.Empty(t, jsoracle.Check(snapshot.Items, snapshot.Order), `visualizer order`)

			trace, err := oracle.Run(ctx, snapshot.Items)
			require.NoError(t, err)
			assert.Empty(t, trace.Errors)
			assert.Empty(t, jsoracle.Check(snapshot.Items, trace.Order()), `script order`)
		})
	}
}
