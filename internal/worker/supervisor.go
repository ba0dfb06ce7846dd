// Package worker supervises one long-lived subprocess per tool namespace:
// spawning it, waiting for it to announce readiness, routing correlated
// calls to it, and restarting it with exponential backoff after a crash.
// A namespace that never reaches ready even once is latched permanently
// failed and is never restarted.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a supervised worker.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusCrashed  Status = "crashed"
	StatusFailed   Status = "failed" // permanent; never restarted
)

const (
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
	// callTimeout is the maximum time a single CallFunction waits for a
	// reply before returning a timeout error.
	callTimeout = 30 * time.Second
)

// pendingCall is a call awaiting a correlated response.
type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	result json.RawMessage
	err    string
}

// Spawner builds the command used to start the subprocess for a namespace,
// given the path of its tool file to load.
type Spawner func(namespace, modulePath string) (command []string, dir string, env []string)

// WorkerState tracks one namespace's supervised subprocess across its
// lifetime, including restarts.
type WorkerState struct {
	namespace  string
	modulePath string
	spawn      Spawner
	log        *slog.Logger

	mu             sync.Mutex
	proc           *process
	attachedSend   func(data []byte) error
	status         Status
	everReady      bool
	restartCount   int
	lastRestartAt  time.Time
	lastStderr     string
	pending        map[string]*pendingCall
	stopRestarting bool
}

// Supervisor owns the set of WorkerStates, one per active namespace.
type Supervisor struct {
	spawn Spawner
	log   *slog.Logger

	mu      sync.Mutex
	workers map[string]*WorkerState
}

// New creates a Supervisor that uses spawn to build subprocess commands.
func New(spawn Spawner, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{spawn: spawn, log: log, workers: map[string]*WorkerState{}}
}

// Ensure starts (or returns the existing) WorkerState for namespace, backed
// by the tool file at modulePath.
func (s *Supervisor) Ensure(namespace, modulePath string) *WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[namespace]; ok {
		return w
	}
	w := &WorkerState{
		namespace:  namespace,
		modulePath: modulePath,
		spawn:      s.spawn,
		log:        s.log.With("namespace", namespace),
		pending:    map[string]*pendingCall{},
	}
	s.workers[namespace] = w
	w.start()
	return w
}

// Get returns the WorkerState for namespace, if one has been started.
func (s *Supervisor) Get(namespace string) (*WorkerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[namespace]
	return w, ok
}

// Attach binds an externally-connected transport (the duplex worker
// attachment path) to the WorkerState named by workerId, letting a worker
// that reports in over a network connection rather than local stdio pipes
// participate in the same readiness/result protocol. send writes one raw
// frame to that transport. Attach returns onMessage, to be called with each
// subsequent raw frame read from the transport, and unbind, to be called
// when the transport disconnects so CallFunction falls back to (or fails
// over from) whatever transport the worker reconnects on.
func (s *Supervisor) Attach(workerId string, send func(data []byte) error) (onMessage func(data []byte), unbind func()) {
	s.mu.Lock()
	w, ok := s.workers[workerId]
	s.mu.Unlock()
	if !ok {
		return func([]byte) {}, func() {}
	}

	w.mu.Lock()
	w.attachedSend = send
	w.mu.Unlock()

	onMessage = func(data []byte) {
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			return
		}
		w.onFrame(f)
	}
	unbind = func() {
		w.mu.Lock()
		if w.attachedSend != nil {
			w.attachedSend = nil
		}
		w.mu.Unlock()
	}
	return onMessage, unbind
}

// Reload force-kills and respawns the worker for namespace, e.g. after its
// tool file changed on disk. A permanently failed worker is reset and given
// a fresh chance.
func (s *Supervisor) Reload(namespace, modulePath string) {
	s.mu.Lock()
	w, ok := s.workers[namespace]
	s.mu.Unlock()
	if !ok {
		s.Ensure(namespace, modulePath)
		return
	}
	w.reload(modulePath)
}

// Shutdown stops every supervised worker.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	workers := make([]*WorkerState, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()
	for _, w := range workers {
		w.stop()
	}
}

// start spawns the subprocess and wires its frame callback. Called with no
// lock held; it acquires w.mu internally as needed.
func (w *WorkerState) start() {
	w.mu.Lock()
	w.status = StatusStarting
	w.mu.Unlock()

	command, dir, env := w.spawn(w.namespace, w.modulePath)
	p, err := startProcess(command, dir, env, w.onFrame)
	if err != nil {
		w.log.Error("worker: failed to start", "error", err)
		w.onCrash(err.Error())
		return
	}

	w.mu.Lock()
	w.proc = p
	w.mu.Unlock()

	go w.watchExit(p)
}

func (w *WorkerState) watchExit(p *process) {
	<-p.exitCh
	w.mu.Lock()
	stillCurrent := w.proc == p
	w.mu.Unlock()
	if !stillCurrent {
		return // superseded by a reload
	}
	w.onCrash(p.stderrSnippet())
}

// onCrash transitions the worker to crashed (or failed, if it never became
// ready even once) and schedules a restart with exponential backoff. stderr
// is the captured tail of the subprocess's stderr (or a start error message),
// retained so a permanent failure can surface it to callers.
func (w *WorkerState) onCrash(stderr string) {
	w.mu.Lock()
	if w.stopRestarting {
		w.mu.Unlock()
		return
	}
	wasEverReady := w.everReady
	w.lastStderr = stderr
	reason := "worker crashed"
	if strings.TrimSpace(stderr) != "" {
		reason = fmt.Sprintf("worker crashed: %s", strings.TrimSpace(stderr))
	}
	w.failPending(reason)

	if !wasEverReady {
		w.status = StatusFailed
		w.log.Error("worker: never became ready, latching permanently failed", "stderr", stderr)
		w.mu.Unlock()
		return
	}

	w.status = StatusCrashed
	w.restartCount++
	backoff := backoffFor(w.restartCount)
	w.lastRestartAt = time.Now()
	w.mu.Unlock()

	w.log.Warn("worker: crashed, scheduling restart", "backoff", backoff, "attempt", w.restartCount)
	time.AfterFunc(backoff, w.start)
}

// backoffFor returns 1s * 2^(attempt-1), capped at maxBackoff.
func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// failPending rejects every call currently waiting on this worker. Caller
// must hold w.mu.
func (w *WorkerState) failPending(reason string) {
	for id, pc := range w.pending {
		pc.resultCh <- callResult{err: reason}
		delete(w.pending, id)
	}
}

// onFrame dispatches a decoded frame from the subprocess.
func (w *WorkerState) onFrame(f frame) {
	switch f.Type {
	case "ready":
		w.mu.Lock()
		w.status = StatusReady
		w.everReady = true
		w.restartCount = 0
		w.mu.Unlock()
		w.log.Info("worker: ready")
	case "result":
		w.mu.Lock()
		pc, ok := w.pending[f.ID]
		if ok {
			delete(w.pending, f.ID)
		}
		w.mu.Unlock()
		if ok {
			pc.resultCh <- callResult{result: f.Result, err: f.Error}
		}
	}
}

// reload kills the current subprocess (if any) and starts a fresh one for a
// possibly-updated modulePath. Resets the permanent-failure latch so an
// edited file gets a clean chance.
func (w *WorkerState) reload(modulePath string) {
	w.mu.Lock()
	w.modulePath = modulePath
	w.stopRestarting = false
	old := w.proc
	w.proc = nil
	w.everReady = false
	w.restartCount = 0
	w.lastStderr = ""
	w.failPending("worker reloading")
	w.mu.Unlock()

	if old != nil {
		old.kill()
	}
	w.start()
}

// stop permanently shuts down the worker; it will not be restarted.
func (w *WorkerState) stop() {
	w.mu.Lock()
	w.stopRestarting = true
	p := w.proc
	w.failPending("worker shutting down")
	w.mu.Unlock()
	if p != nil {
		p.kill()
	}
}

// Status returns the worker's current lifecycle status.
func (w *WorkerState) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// LastStderr returns the captured stderr snippet from the worker's most
// recent crash or start failure, if any.
func (w *WorkerState) LastStderr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStderr
}

// CallFunction invokes function in this worker's namespace with args,
// waiting up to callTimeout (or until ctx is cancelled) for a correlated
// result. Calls to a worker that isn't ready are rejected immediately.
func (w *WorkerState) CallFunction(ctx context.Context, function string, args json.RawMessage) (json.RawMessage, error) {
	w.mu.Lock()
	if w.status != StatusReady {
		status := w.status
		stderr := strings.TrimSpace(w.lastStderr)
		w.mu.Unlock()
		if status == StatusFailed && stderr != "" {
			return nil, fmt.Errorf("worker %q is not ready (status=%s): %s", w.namespace, status, stderr)
		}
		return nil, fmt.Errorf("worker %q is not ready (status=%s)", w.namespace, status)
	}
	p := w.proc
	attached := w.attachedSend
	id := uuid.NewString()
	pc := &pendingCall{resultCh: make(chan callResult, 1)}
	w.pending[id] = pc
	w.mu.Unlock()

	call := frame{Type: "call", ID: id, Namespace: w.namespace, Function: function, Args: args}
	var sendErr error
	if attached != nil {
		data, err := json.Marshal(call)
		if err != nil {
			sendErr = err
		} else {
			sendErr = attached(data)
		}
	} else {
		sendErr = p.send(call)
	}
	if sendErr != nil {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		return nil, fmt.Errorf("writing call to worker %q: %w", w.namespace, sendErr)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case res := <-pc.resultCh:
		if res.err != "" {
			return nil, fmt.Errorf("%s", res.err)
		}
		return res.result, nil
	case <-ctx.Done():
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		return nil, ctx.Err()
	case <-timer.C:
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		return nil, fmt.Errorf("call to %q.%s timed out after %s", w.namespace, function, callTimeout)
	}
}

// WaitForReady polls until the worker reaches ready, fails permanently, or
// ctx is cancelled.
func (w *WorkerState) WaitForReady(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch w.Status() {
		case StatusReady:
			return nil
		case StatusFailed:
			if stderr := strings.TrimSpace(w.LastStderr()); stderr != "" {
				return fmt.Errorf("worker %q failed to start: %s", w.namespace, stderr)
			}
			return fmt.Errorf("worker %q failed to start", w.namespace)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
