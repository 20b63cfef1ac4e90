package cli

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ServiceNotConfigured(t *testing.T) {
	withServices(t, Services{})

	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection service not configured")
}

func TestServe_NothingToServe(t *testing.T) {
	withServices(t, Services{Connections: &mockConnectionService{}})

	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to serve")
}

func TestServe_RunsBackgroundTasksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started atomic.Int32
	task := func(ctx context.Context) error {
		if started.Add(1) == 2 {
			cancel()
		}
		<-ctx.Done()
		return ctx.Err()
	}
	withServices(t, Services{
		Connections: &mockConnectionService{},
		Background: []BackgroundTask{
			{Name: "watcher", Run: task},
			{Name: "consumer", Run: task},
		},
	})
	resetFlags()

	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetContext(ctx)

	require.NoError(t, runServe(cmd, nil))
	assert.Equal(t, int32(2), started.Load())
	assert.Contains(t, buf.String(), "serving")
}

func TestRunTasks_FailureCancelsOthers(t *testing.T) {
	stopped := make(chan struct{})
	tasks := []serveTask{
		{name: "broken", run: func(context.Context) error {
			return errors.New("bind: address in use")
		}},
		{name: "scheduler", run: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}},
	}

	done := make(chan error, 1)
	go func() { done <- runTasks(context.Background(), tasks) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken: bind: address in use")
	case <-time.After(5 * time.Second):
		t.Fatal("runTasks did not return")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("scheduler task was not cancelled")
	}
}
