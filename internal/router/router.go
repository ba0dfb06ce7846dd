// Package router dispatches a namespaced function call to whichever
// subsystem owns that namespace: a supervised local worker subprocess, or
// a bridged MCP server.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jx-codes/lootbox/internal/mcpbridge"
	"github.com/jx-codes/lootbox/internal/toolindex"
	"github.com/jx-codes/lootbox/internal/worker"
)

// WorkerEnsurer starts (or returns the already-running) worker for a local
// namespace. Implemented by *worker.Supervisor; narrowed to an interface so
// tests can substitute a fake.
type WorkerEnsurer interface {
	Ensure(namespace, modulePath string) *worker.WorkerState
	Get(namespace string) (*worker.WorkerState, bool)
}

// Bridge is the subset of *mcpbridge.Bridge the router calls.
type Bridge interface {
	CallTool(ctx context.Context, namespace, tool string, args map[string]interface{}) (interface{}, error)
	ReadResource(ctx context.Context, namespace, resource string, args map[string]interface{}) (interface{}, error)
}

// Router classifies and dispatches one call at a time. It holds no
// per-session state: every call carries everything needed to route it.
type Router struct {
	index   *toolindex.Index
	workers WorkerEnsurer
	bridge  Bridge
}

// New creates a Router over index (for resolving a local namespace to its
// module path), workers (for dispatching local calls), and bridge (for
// dispatching MCP calls).
func New(index *toolindex.Index, workers WorkerEnsurer, bridge Bridge) *Router {
	return &Router{index: index, workers: workers, bridge: bridge}
}

// ErrUnknownNamespace is returned when a namespace without the MCP prefix is
// not in the tool index.
type ErrUnknownNamespace struct{ Namespace string }

func (e ErrUnknownNamespace) Error() string {
	return fmt.Sprintf("unknown namespace %q", e.Namespace)
}

// Call dispatches one namespaced function invocation and returns its raw
// JSON result.
func (r *Router) Call(ctx context.Context, namespace, function string, args json.RawMessage) (json.RawMessage, error) {
	if mcpbridge.IsNamespace(namespace) {
		return r.callBridge(ctx, namespace, function, args)
	}
	return r.callWorker(ctx, namespace, function, args)
}

func (r *Router) callWorker(ctx context.Context, namespace, function string, args json.RawMessage) (json.RawMessage, error) {
	snap := r.index.Snapshot()
	entry, ok := snap.Namespace(namespace)
	if !ok {
		return nil, ErrUnknownNamespace{Namespace: namespace}
	}

	w := r.workers.Ensure(namespace, entry.Path)
	if err := w.WaitForReady(ctx); err != nil {
		return nil, fmt.Errorf("namespace %q unavailable: %w", namespace, err)
	}
	return w.CallFunction(ctx, function, args)
}

func (r *Router) callBridge(ctx context.Context, namespace, function string, args json.RawMessage) (json.RawMessage, error) {
	var argMap map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argMap); err != nil {
			return nil, fmt.Errorf("mcp call arguments must be a JSON object: %w", err)
		}
	}

	var (
		result interface{}
		err    error
	)
	if resourceName, ok := mcpbridge.IsResourceOperation(function); ok {
		result, err = r.bridge.ReadResource(ctx, namespace, resourceName, argMap)
	} else {
		result, err = r.bridge.CallTool(ctx, namespace, function, argMap)
	}
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding mcp result for %s.%s: %w", namespace, function, err)
	}
	return encoded, nil
}
