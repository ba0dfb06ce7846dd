package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jx-codes/lootbox/internal/toolindex"
	"github.com/jx-codes/lootbox/internal/worker"
)

const routerSampleTool = `
export function ping(args: {}): string {
  return "pong";
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

type fakeBridge struct {
	calledTool     string
	calledResource string
}

func (f *fakeBridge) CallTool(ctx context.Context, namespace, tool string, args map[string]interface{}) (interface{}, error) {
	f.calledTool = tool
	return map[string]interface{}{"ok": true, "tool": tool}, nil
}

func (f *fakeBridge) ReadResource(ctx context.Context, namespace, resource string, args map[string]interface{}) (interface{}, error) {
	f.calledResource = resource
	return map[string]interface{}{"uri": "res://" + resource}, nil
}

func echoSpawner(namespace, modulePath string) ([]string, string, []string) {
	script := `
printf '{"type":"ready"}\n'
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  printf '{"type":"result","id":"%s","result":{"ok":true}}\n' "$id"
done
`
	return []string{"/bin/sh", "-c", script}, "", nil
}

func TestRouterDispatchesToWorker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.lb.ts"), []byte(routerSampleTool), 0o644))

	idx := toolindex.New(dir, "", ".lb.ts", discardLogger())
	_, err := idx.Reconcile()
	require.NoError(t, err)

	sup := worker.New(echoSpawner, discardLogger())
	defer sup.Shutdown()

	r := New(idx, sup, &fakeBridge{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := r.Call(ctx, "weather", "ping", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestRouterRejectsUnknownNamespace(t *testing.T) {
	dir := t.TempDir()
	idx := toolindex.New(dir, "", ".lb.ts", discardLogger())
	_, err := idx.Reconcile()
	require.NoError(t, err)

	sup := worker.New(echoSpawner, discardLogger())
	defer sup.Shutdown()

	r := New(idx, sup, &fakeBridge{})
	_, err = r.Call(context.Background(), "nosuch", "ping", nil)
	require.Error(t, err)
	assert.IsType(t, ErrUnknownNamespace{}, err)
}

func TestRouterDispatchesToolCallToBridge(t *testing.T) {
	bridge := &fakeBridge{}
	idx := toolindex.New(t.TempDir(), "", ".lb.ts", discardLogger())
	_, err := idx.Reconcile()
	require.NoError(t, err)
	sup := worker.New(echoSpawner, discardLogger())
	defer sup.Shutdown()

	r := New(idx, sup, bridge)
	_, err = r.Call(context.Background(), "mcp_github", "search_issues", json.RawMessage(`{"q":"bug"}`))
	require.NoError(t, err)
	assert.Equal(t, "search_issues", bridge.calledTool)
}

func TestRouterDispatchesResourceReadToBridge(t *testing.T) {
	bridge := &fakeBridge{}
	idx := toolindex.New(t.TempDir(), "", ".lb.ts", discardLogger())
	_, err := idx.Reconcile()
	require.NoError(t, err)
	sup := worker.New(echoSpawner, discardLogger())
	defer sup.Shutdown()

	r := New(idx, sup, bridge)
	_, err = r.Call(context.Background(), "mcp_github", "resource_readme", json.RawMessage(`{"owner":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "readme", bridge.calledResource)
}
