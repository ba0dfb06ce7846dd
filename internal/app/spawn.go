package app

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed assets/worker_host.ts
var workerHostScript []byte

// hostScriptWriter lazily materializes the embedded worker bootstrap script
// to disk once per process; every supervised worker is pointed at the same
// path, parameterized by its own module path as an argument.
type hostScriptWriter struct {
	once sync.Once
	path string
	err  error
	dir  string
}

func (h *hostScriptWriter) materialize() (string, error) {
	h.once.Do(func() {
		dir := h.dir
		if dir == "" {
			dir = os.TempDir()
		}
		p := filepath.Join(dir, "lootbox-worker-host.ts")
		h.err = os.WriteFile(p, workerHostScript, 0o600)
		h.path = p
	})
	return h.path, h.err
}

// newWorkerSpawner builds a worker.Spawner that runs every namespace's tool
// file through the embedded worker host bootstrap under the configured
// worker runtime. scratchDir holds the materialized bootstrap script.
func newWorkerSpawner(command []string, scratchDir string) (func(namespace, modulePath string) ([]string, string, []string), error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("app: worker_command must not be empty")
	}
	writer := &hostScriptWriter{dir: scratchDir}
	hostPath, err := writer.materialize()
	if err != nil {
		return nil, fmt.Errorf("app: writing worker host script: %w", err)
	}

	return func(namespace, modulePath string) ([]string, string, []string) {
		cmd := make([]string, 0, len(command)+2)
		cmd = append(cmd, command...)
		cmd = append(cmd, hostPath, modulePath)
		return cmd, filepath.Dir(modulePath), nil
	}, nil
}
