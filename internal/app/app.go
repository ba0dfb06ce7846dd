// Package app wires the runtime's independently-testable components
// (tool index, type extraction, worker supervisor, MCP bridge, client
// synthesiser, request router, duplex endpoint, sandbox executor, run log,
// and file watcher) into one running server process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jx-codes/lootbox/internal/clientsynth"
	"github.com/jx-codes/lootbox/internal/config"
	"github.com/jx-codes/lootbox/internal/duplex"
	"github.com/jx-codes/lootbox/internal/filewatch"
	"github.com/jx-codes/lootbox/internal/mcpbridge"
	"github.com/jx-codes/lootbox/internal/router"
	"github.com/jx-codes/lootbox/internal/runlog"
	"github.com/jx-codes/lootbox/internal/sandboxexec"
	"github.com/jx-codes/lootbox/internal/toolindex"
	"github.com/jx-codes/lootbox/internal/worker"
)

// App owns every long-lived component for the life of one server process.
type App struct {
	cfg *config.Config
	log *slog.Logger

	index      *toolindex.Index
	bridge     *mcpbridge.Bridge
	supervisor *worker.Supervisor
	synth      *clientsynth.Synth
	runlog     runlog.Store
	executor   *sandboxexec.Executor
	router     *router.Router
	endpoint   *duplex.Endpoint
	httpServer *duplex.HTTPServer
	watcher    *filewatch.Watcher

	baseURL string

	prevMu    sync.Mutex
	prevPaths map[string]string
}

// New constructs every component but starts nothing: no workers are
// spawned, no MCP server is dialed, no watch loop runs. Call Start to bring
// the server up.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: creating data directory: %w", err)
	}

	index := toolindex.New(cfg.ProjectToolDir, cfg.UserToolDir, cfg.ToolExtension, log)
	bridge := mcpbridge.New(log)
	synth := clientsynth.New(index, bridge)

	spawn, err := newWorkerSpawner(cfg.WorkerCommand, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	supervisor := worker.New(spawn, log)

	rt := router.New(index, supervisor, bridge)

	store, err := runlog.NewMemoryStore(1000).WithMirror(filepath.Join(cfg.DataDir, "runs.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("app: opening run log: %w", err)
	}

	executor := sandboxexec.New(cfg.SandboxCommand, cfg.DataDir)
	endpoint := duplex.New(rt, log)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	mcpVersion := func() uint64 { return 1 }

	a := &App{
		cfg:        cfg,
		log:        log,
		index:      index,
		bridge:     bridge,
		supervisor: supervisor,
		synth:      synth,
		runlog:     store,
		executor:   executor,
		router:     rt,
		endpoint:   endpoint,
		baseURL:    baseURL,
	}
	a.httpServer = duplex.NewHTTPServer(synth, a.functionList, mcpVersion, fmt.Sprintf("ws://127.0.0.1:%d/ws", cfg.Port))

	scripts := NewScriptService(executor, a.clientModuleURL, store)
	endpoint.SetScriptRunner(scripts)

	return a, nil
}

// Start reconciles the tool index, starts every configured MCP server,
// eagerly spawns one worker per discovered namespace, and begins the file
// watch loop. It does not serve HTTP; call Mux and listen separately (or
// use Run).
func (a *App) Start(ctx context.Context) error {
	snap, err := a.index.Reconcile()
	if err != nil {
		return fmt.Errorf("app: initial tool index reconcile: %w", err)
	}

	if len(a.cfg.McpServers) > 0 {
		result, err := a.bridge.Start(ctx, a.cfg.McpServers)
		if err != nil {
			return fmt.Errorf("app: starting mcp servers: %w", err)
		}
		for name, reason := range result.Failures {
			a.log.Warn("app: mcp server failed to start, omitted from schema set", "server", name, "error", reason)
		}
	}

	a.ensureAllWorkers(snap)
	a.recordPaths(snap)

	a.index.Subscribe(a.onReconcile)

	dirs := []string{}
	if a.cfg.ProjectToolDir != "" {
		dirs = append(dirs, a.cfg.ProjectToolDir)
	}
	if a.cfg.UserToolDir != "" {
		dirs = append(dirs, a.cfg.UserToolDir)
	}
	watcher, err := filewatch.New(dirs, a.cfg.ToolExtension, a.onFileChange, a.log)
	if err != nil {
		return fmt.Errorf("app: starting file watcher: %w", err)
	}
	a.watcher = watcher
	watcher.Start()

	return nil
}

// ensureAllWorkers spawns a worker for every namespace in snap that doesn't
// already have one, per spec section 4.5: one long-lived subprocess per
// discovered tool file, created at server startup.
func (a *App) ensureAllWorkers(snap *toolindex.Snapshot) {
	for _, name := range snap.SortedNamespaces() {
		entry, _ := snap.Namespace(name)
		a.supervisor.Ensure(name, entry.Path)
	}
}

// onFileChange is the file watcher's debounced reconcile callback (C9).
func (a *App) onFileChange(ctx context.Context) {
	if _, err := a.index.Reconcile(); err != nil {
		a.log.Error("app: reconcile after file change failed", "error", err)
	}
}

// onReconcile runs after every successful toolindex.Reconcile (C1 -> C5 and
// C3 cache invalidation): restart the worker for any namespace whose tool
// file is new, moved or modified since the last reconcile, and broadcast the
// refreshed function list to every connected client. Namespaces whose file
// is unchanged are left running, so an edit to one tool file doesn't
// disturb every other namespace's module-level state.
func (a *App) onReconcile(snap *toolindex.Snapshot) {
	a.prevMu.Lock()
	prev := a.prevPaths
	a.prevMu.Unlock()

	for _, name := range snap.SortedNamespaces() {
		entry, _ := snap.Namespace(name)
		if prevStamp, ok := prev[name]; !ok || prevStamp != fileStamp(entry.Path) {
			a.supervisor.Reload(name, entry.Path)
		}
	}
	a.recordPaths(snap)

	a.log.Info("app: reconcile complete", "namespaces", len(snap.Namespaces), "warnings", len(snap.Warnings))
	a.endpoint.BroadcastFunctionsUpdated(a.functionList())
}

// recordPaths snapshots the current namespace -> file stamp mapping so the
// next onReconcile can tell which namespaces actually changed.
func (a *App) recordPaths(snap *toolindex.Snapshot) {
	paths := make(map[string]string, len(snap.Namespaces))
	for name, entry := range snap.Namespaces {
		paths[name] = fileStamp(entry.Path)
	}
	a.prevMu.Lock()
	a.prevPaths = paths
	a.prevMu.Unlock()
}

// fileStamp identifies one version of a tool file: its path plus its
// modification time, so an in-place edit counts as a change.
func fileStamp(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return path + "@" + info.ModTime().String()
}

// functionList flattens the current catalogue to "namespace.function"
// strings, used for both the welcome frame and functions_updated broadcasts.
func (a *App) functionList() []string {
	views := a.synth.Catalogue(1)
	var out []string
	for _, v := range views {
		for _, fn := range v.Functions {
			out = append(out, v.Namespace+"."+fn.Name)
		}
	}
	sort.Strings(out)
	return out
}

// clientModuleURL returns the current versioned client module URL a
// sandboxed script imports.
func (a *App) clientModuleURL() string {
	return fmt.Sprintf("%s/client.ts?v=%d", a.baseURL, a.index.Snapshot().Version)
}

// Mux builds the HTTP handler serving both the discovery surface and the
// duplex WebSocket paths.
func (a *App) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	a.httpServer.Register(mux, a.endpoint, a.supervisor)
	return mux
}

// Shutdown stops the file watcher, every supervised worker, and closes the
// MCP bridge and run log.
func (a *App) Shutdown() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.supervisor.Shutdown()
	a.bridge.Close()
	if closer, ok := a.runlog.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// RunLog exposes the run log store for read-only query surfaces (not part
// of the HTTP discovery surface per spec; wired here for a future CLI
// history command).
func (a *App) RunLog() runlog.Store { return a.runlog }
