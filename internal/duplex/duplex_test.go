package duplex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	namespace, function string
	args                json.RawMessage
	result              json.RawMessage
	err                 error
}

func (f *fakeCaller) Call(ctx context.Context, namespace, function string, args json.RawMessage) (json.RawMessage, error) {
	f.namespace, f.function, f.args = namespace, function, args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func listFunctions(names ...string) FunctionLister {
	return func() []string { return names }
}

func TestServeClientSendsWelcomeWithFunctions(t *testing.T) {
	caller := &fakeCaller{result: json.RawMessage(`"ok"`)}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions("weather.currentConditions"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	var welcome ClientFrame
	require.NoError(t, json.Unmarshal(data, &welcome))
	assert.Equal(t, "welcome", welcome.Type)
	assert.Equal(t, []string{"weather.currentConditions"}, welcome.Functions)
}

func TestServeClientDispatchesCallToCaller(t *testing.T) {
	caller := &fakeCaller{result: json.RawMessage(`{"temp":72}`)}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	call := ClientFrame{Type: "call", ID: "1", Namespace: "weather", Function: "currentConditions", Args: json.RawMessage(`{"coords":{}}`)}
	data, err := json.Marshal(call)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "result", result.Type)
	assert.Equal(t, "1", result.ID)
	assert.JSONEq(t, `{"temp":72}`, string(result.Result))

	assert.Equal(t, "weather", caller.namespace)
	assert.Equal(t, "currentConditions", caller.function)
}

func TestServeClientDispatchesMethodFrameToCaller(t *testing.T) {
	caller := &fakeCaller{result: json.RawMessage(`3`)}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	call := ClientFrame{Type: "call", ID: "1", Method: "file.add", Args: json.RawMessage(`{"a":1,"b":2}`)}
	data, err := json.Marshal(call)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "1", result.ID)
	assert.JSONEq(t, `3`, string(result.Result))

	assert.Equal(t, "file", caller.namespace)
	assert.Equal(t, "add", caller.function)
}

func TestServeClientRejectsMalformedMethod(t *testing.T) {
	caller := &fakeCaller{}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	call := ClientFrame{Type: "call", ID: "1", Method: "noDotsHere"}
	data, err := json.Marshal(call)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "invalid method format", result.Error)
	assert.Empty(t, caller.namespace)
}

func TestServeClientReturnsErrorFrameOnCallerFailure(t *testing.T) {
	caller := &fakeCaller{err: assertError("namespace not found")}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	call := ClientFrame{Type: "call", ID: "2", Namespace: "bogus", Function: "nope"}
	data, err := json.Marshal(call)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "namespace not found", result.Error)
}

func TestBroadcastFunctionsUpdatedReachesConnectedClients(t *testing.T) {
	caller := &fakeCaller{}
	e := New(caller, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	// give ServeClient's goroutine a moment to register the connection
	// before the broadcast fires.
	time.Sleep(50 * time.Millisecond)
	e.BroadcastFunctionsUpdated([]string{"weather.currentConditions", "weather.forecast"})

	_, data, err := ws.Read(ctx)
	require.NoError(t, err)
	var update ClientFrame
	require.NoError(t, json.Unmarshal(data, &update))
	assert.Equal(t, "functions_updated", update.Type)
	assert.Equal(t, []string{"weather.currentConditions", "weather.forecast"}, update.Functions)
}

type assertError string

func (e assertError) Error() string { return string(e) }

type fakeScriptRunner struct {
	gotScript, gotSession string
	result                ScriptResult
}

func (f *fakeScriptRunner) RunScript(ctx context.Context, script, sessionID string) ScriptResult {
	f.gotScript, f.gotSession = script, sessionID
	return f.result
}

func TestServeClientRunsScriptAndReturnsStdoutAsResult(t *testing.T) {
	runner := &fakeScriptRunner{result: ScriptResult{Success: true, Output: "30\n"}}
	e := New(&fakeCaller{}, nil)
	e.SetScriptRunner(runner)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	req := ClientFrame{Script: "console.log(await tools.file.add({a:10,b:20}))", ID: "y", SessionID: "sess-1"}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "y", result.ID)
	assert.JSONEq(t, `"30\n"`, string(result.Result))
	assert.Equal(t, "console.log(await tools.file.add({a:10,b:20}))", runner.gotScript)
	assert.Equal(t, "sess-1", runner.gotSession)
}

func TestServeClientReturnsScriptFailure(t *testing.T) {
	runner := &fakeScriptRunner{result: ScriptResult{Success: false, Error: "Script execution timeout (10 seconds)"}}
	e := New(&fakeCaller{}, nil)
	e.SetScriptRunner(runner)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	req := ClientFrame{Script: "while(true){}", ID: "z"}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "z", result.ID)
	require.NotNil(t, result.Success)
	assert.False(t, *result.Success)
	assert.Equal(t, "Script execution timeout (10 seconds)", result.Error)
}

func TestServeClientRejectsScriptWhenRunnerUnset(t *testing.T) {
	e := New(&fakeCaller{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeClient(w, r, listFunctions())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, _, err = ws.Read(ctx) // welcome
	require.NoError(t, err)

	req := ClientFrame{Script: "1", ID: "w"}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, data))

	_, resp, err := ws.Read(ctx)
	require.NoError(t, err)
	var result ClientFrame
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.Equal(t, "w", result.ID)
	assert.NotEmpty(t, result.Error)
}

type fakeAttacher struct {
	workerID   string
	sent       [][]byte
	messages   [][]byte
	unbindHits int
}

func (f *fakeAttacher) Attach(workerId string, send func(data []byte) error) (onMessage func(data []byte), unbind func()) {
	f.workerID = workerId
	onMessage = func(data []byte) { f.messages = append(f.messages, data) }
	unbind = func() { f.unbindHits++ }
	f.sent = append(f.sent, nil) // record that Attach was called
	_ = send
	return onMessage, unbind
}

func TestServeWorkerBindsOnIdentifyFrame(t *testing.T) {
	attacher := &fakeAttacher{}
	e := New(&fakeCaller{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeWorker(w, r, attacher)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	identify, err := json.Marshal(map[string]string{"type": "identify", "workerId": "weather"})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, identify))

	ready, err := json.Marshal(map[string]string{"type": "ready", "workerId": "weather"})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, ready))

	// give the server goroutine time to process both frames.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "weather", attacher.workerID)
	require.Len(t, attacher.messages, 1)
	assert.Contains(t, string(attacher.messages[0]), `"ready"`)
}

func TestServeWorkerRejectsNonIdentifyFirstFrame(t *testing.T) {
	attacher := &fakeAttacher{}
	e := New(&fakeCaller{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ServeWorker(w, r, attacher)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	bogus, err := json.Marshal(map[string]string{"type": "result", "id": "1"})
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageText, bogus))

	_, _, err = ws.Read(ctx)
	assert.Error(t, err) // server closed the connection
	assert.Empty(t, attacher.workerID)
}
