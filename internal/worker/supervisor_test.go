package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoSpawner returns a Spawner that runs a tiny `/bin/sh` echo helper as
// the worker subprocess, exercising the framing protocol without depending
// on the real sandboxed runtime binary.
func echoSpawner(t *testing.T) Spawner {
	t.Helper()
	return func(namespace, modulePath string) ([]string, string, []string) {
		// A tiny shell program that immediately announces readiness and then
		// echoes back a synthetic "result" frame for every "call" frame it
		// reads on stdin, using the same id.
		script := `
printf '{"type":"ready"}\n'
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  printf '{"type":"result","id":"%s","result":{"ok":true}}\n' "$id"
done
`
		return []string{"/bin/sh", "-c", script}, "", nil
	}
}

func TestWorkerReachesReady(t *testing.T) {
	s := New(echoSpawner(t), nil)
	w := s.Ensure("weather", "/tmp/weather.bundle.js")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.WaitForReady(ctx))
	assert.Equal(t, StatusReady, w.Status())
	s.Shutdown()
}

func TestWorkerCallFunctionRoundTrips(t *testing.T) {
	s := New(echoSpawner(t), nil)
	w := s.Ensure("weather", "/tmp/weather.bundle.js")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.WaitForReady(ctx))

	result, err := w.CallFunction(ctx, "currentConditions", json.RawMessage(`{"coords":{"lat":1,"lng":2}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	s.Shutdown()
}

func TestBackoffForGrowsExponentiallyAndCaps(t *testing.T) {
	assert.Equal(t, time.Second, backoffFor(1))
	assert.Equal(t, 2*time.Second, backoffFor(2))
	assert.Equal(t, 4*time.Second, backoffFor(3))
	assert.Equal(t, 30*time.Second, backoffFor(6)) // 32s would exceed the cap
	assert.Equal(t, 30*time.Second, backoffFor(100))
}

func TestCallFunctionRejectsWhenNotReady(t *testing.T) {
	s := New(func(namespace, modulePath string) ([]string, string, []string) {
		return []string{"/bin/sh", "-c", "sleep 5"}, "", nil
	}, nil)
	w := s.Ensure("slow", "/tmp/slow.bundle.js")
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := w.CallFunction(ctx, "fn", nil)
	require.Error(t, err)
}

func TestAttachRoutesCallsThroughExternalTransport(t *testing.T) {
	// A worker started with a spawner that never reports ready over stdio;
	// instead it becomes ready and answers calls purely through Attach, as
	// a network-attached worker would over the duplex endpoint.
	s := New(func(namespace, modulePath string) ([]string, string, []string) {
		return []string{"/bin/sh", "-c", "sleep 5"}, "", nil
	}, nil)
	w := s.Ensure("weather", "/tmp/weather.bundle.js")
	defer s.Shutdown()

	var sent [][]byte
	send := func(data []byte) error {
		sent = append(sent, data)
		return nil
	}
	onMessage, unbind := s.Attach("weather", send)
	defer unbind()

	onMessage([]byte(`{"type":"ready"}`))
	assert.Equal(t, StatusReady, w.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan struct {
		result json.RawMessage
		err    error
	}, 1)
	go func() {
		result, err := w.CallFunction(ctx, "currentConditions", json.RawMessage(`{}`))
		resultCh <- struct {
			result json.RawMessage
			err    error
		}{result, err}
	}()

	require.Eventually(t, func() bool { return len(sent) == 1 }, time.Second, 10*time.Millisecond)
	var call map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(sent[0], &call))
	var id string
	require.NoError(t, json.Unmarshal(call["id"], &id))

	onMessage([]byte(`{"type":"result","id":"` + id + `","result":{"ok":true}}`))

	out := <-resultCh
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"ok":true}`, string(out.result))
}

func TestWorkerNeverReadyLatchesFailed(t *testing.T) {
	s := New(func(namespace, modulePath string) ([]string, string, []string) {
		return []string{"/bin/sh", "-c", "exit 1"}, "", nil
	}, nil)
	w := s.Ensure("broken", "/tmp/broken.bundle.js")
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := w.WaitForReady(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, w.Status())
}

func TestWorkerPermanentFailureSurfacesCapturedStderr(t *testing.T) {
	s := New(func(namespace, modulePath string) ([]string, string, []string) {
		return []string{"/bin/sh", "-c", "echo 'module import failed: bad syntax' >&2; exit 1"}, "", nil
	}, nil)
	w := s.Ensure("broken", "/tmp/broken.bundle.js")
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := w.WaitForReady(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, w.Status())
	assert.Contains(t, err.Error(), "module import failed: bad syntax")

	_, callErr := w.CallFunction(context.Background(), "fn", nil)
	require.Error(t, callErr)
	assert.Contains(t, callErr.Error(), "module import failed: bad syntax")
}
