// Package duplex exposes the bidirectional channel scripts and worker
// subprocesses use to reach the rest of the runtime, plus a small
// read-only HTTP discovery surface backed by the same caches.
package duplex

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// ClientFrame is one message exchanged with an external client socket.
// A frame carrying Script is routed to the sandbox executor; one carrying
// Method (the wire form, "namespace.function") or, equivalently,
// Namespace/Function directly, is routed to a worker or MCP bridge call.
type ClientFrame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Function  string          `json:"function,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Functions []string        `json:"functions,omitempty"`

	// Script submission fields (client -> server).
	Script    string `json:"script,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// Script result fields (server -> client), set only on a script
	// submission's response frame.
	Success *bool  `json:"success,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Caller dispatches one namespaced call and returns its raw JSON result.
// Implemented by *router.Router; narrowed to an interface to avoid an
// import cycle and to keep this package testable in isolation.
type Caller interface {
	Call(ctx context.Context, namespace, function string, args json.RawMessage) (json.RawMessage, error)
}

// ScriptResult is the outcome of running one submitted script, as reported
// by a ScriptRunner. It mirrors sandboxexec.Result without importing that
// package, keeping duplex's dependency surface narrow.
type ScriptResult struct {
	Success  bool
	Output   string
	Warnings string
	Error    string
}

// ScriptRunner executes a submitted script in a fresh sandbox and returns
// its outcome. Implemented by an app-level service wrapping sandboxexec and
// runlog; narrowed to an interface here for the same reason as Caller.
type ScriptRunner interface {
	RunScript(ctx context.Context, script, sessionID string) ScriptResult
}

// clientConn is one connected external client.
type clientConn struct {
	ws *websocket.Conn
}

// Endpoint serves the client-facing WebSocket path, broadcasting namespace
// updates to every connected client and handing incoming calls to a Caller.
type Endpoint struct {
	caller  Caller
	scripts ScriptRunner
	log     *slog.Logger

	mu      sync.Mutex
	clients map[*clientConn]struct{}
}

// New creates an Endpoint that routes client calls through caller.
func New(caller Caller, log *slog.Logger) *Endpoint {
	if log == nil {
		log = slog.Default()
	}
	return &Endpoint{caller: caller, log: log, clients: map[*clientConn]struct{}{}}
}

// SetScriptRunner wires script submissions to runner. Scripts received
// before this is called are rejected with an error frame.
func (e *Endpoint) SetScriptRunner(runner ScriptRunner) {
	e.scripts = runner
}

// CurrentFunctions returns the function list sent in a "welcome" frame.
// Supplied by the caller (typically clientsynth's catalogue flattened to
// "namespace.function" strings) since Endpoint itself holds no catalogue
// state.
type FunctionLister func() []string

// ServeClient upgrades r to a WebSocket and runs the client protocol until
// the connection closes: send welcome, then loop reading call frames and
// writing result frames.
func (e *Endpoint) ServeClient(w http.ResponseWriter, r *http.Request, functions FunctionLister) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		e.log.Warn("duplex: failed to accept client connection", "error", err)
		return
	}
	conn := &clientConn{ws: ws}

	e.mu.Lock()
	e.clients[conn] = struct{}{}
	e.mu.Unlock()
	defer e.removeClient(conn)

	ctx := r.Context()
	if err := e.writeFrame(ctx, conn, ClientFrame{Type: "welcome", Functions: functions()}); err != nil {
		ws.Close(websocket.StatusInternalError, "failed to send welcome")
		return
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var req ClientFrame
		if err := json.Unmarshal(data, &req); err != nil {
			e.writeFrame(ctx, conn, ClientFrame{Error: "Invalid message format", ID: req.ID})
			continue
		}
		go e.handleFrame(ctx, conn, req)
	}
}

// handleFrame classifies req per the duplex request contract: a frame
// carrying Script runs in a fresh sandbox; otherwise Namespace/Function is
// dispatched through the caller (a worker or MCP bridge call).
func (e *Endpoint) handleFrame(ctx context.Context, conn *clientConn, req ClientFrame) {
	if req.Script != "" {
		e.handleScript(ctx, conn, req)
		return
	}
	e.handleCall(ctx, conn, req)
}

func (e *Endpoint) handleCall(ctx context.Context, conn *clientConn, req ClientFrame) {
	namespace, function := req.Namespace, req.Function
	if req.Method != "" {
		var ok bool
		namespace, function, ok = parseMethod(req.Method)
		if !ok {
			e.writeFrame(ctx, conn, ClientFrame{Type: "result", ID: req.ID, Error: "invalid method format"})
			return
		}
	}

	result, err := e.caller.Call(ctx, namespace, function, req.Args)
	resp := ClientFrame{Type: "result", ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}
	if err := e.writeFrame(ctx, conn, resp); err != nil {
		e.log.Debug("duplex: failed to write result to client", "error", err)
	}
}

// parseMethod classifies a wire-form method string into its namespace and
// function halves per C6 (spec §4.6): split on the first '.'; everything
// before it is the namespace (an "mcp_"-prefixed namespace routes to the MCP
// bridge once Caller.Call resolves it, same as a directly-addressed call),
// everything after is the function name. Either half being empty is an
// invalid method format.
func parseMethod(method string) (namespace, function string, ok bool) {
	idx := strings.IndexByte(method, '.')
	if idx <= 0 || idx == len(method)-1 {
		return "", "", false
	}
	return method[:idx], method[idx+1:], true
}

func (e *Endpoint) handleScript(ctx context.Context, conn *clientConn, req ClientFrame) {
	resp := ClientFrame{Type: "result", ID: req.ID}
	if e.scripts == nil {
		resp.Error = "script execution is not configured on this server"
		e.writeFrame(ctx, conn, resp)
		return
	}

	result := e.scripts.RunScript(ctx, req.Script, req.SessionID)
	if !result.Success {
		success := false
		resp.Success = &success
		resp.Output = result.Output
		resp.Error = result.Error
		e.writeFrame(ctx, conn, resp)
		return
	}

	encoded, err := json.Marshal(result.Output)
	if err != nil {
		resp.Error = err.Error()
		e.writeFrame(ctx, conn, resp)
		return
	}
	resp.Result = encoded
	if err := e.writeFrame(ctx, conn, resp); err != nil {
		e.log.Debug("duplex: failed to write script result to client", "error", err)
	}
}

// BroadcastFunctionsUpdated sends a "functions_updated" frame to every
// connected client, dropping (and removing) any client whose write fails.
func (e *Endpoint) BroadcastFunctionsUpdated(functions []string) {
	e.mu.Lock()
	conns := make([]*clientConn, 0, len(e.clients))
	for c := range e.clients {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	frame := ClientFrame{Type: "functions_updated", Functions: functions}
	for _, c := range conns {
		if err := e.writeFrame(context.Background(), c, frame); err != nil {
			e.removeClient(c)
		}
	}
}

func (e *Endpoint) writeFrame(ctx context.Context, conn *clientConn, f ClientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.ws.Write(ctx, websocket.MessageText, data)
}

func (e *Endpoint) removeClient(c *clientConn) {
	e.mu.Lock()
	delete(e.clients, c)
	e.mu.Unlock()
	c.ws.Close(websocket.StatusNormalClosure, "")
}
