package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// mirror append-only writes each Entry as one JSON line to a file, so a run
// log outlives the in-memory ring buffer's eviction.
type mirror struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func newMirror(path string) (*mirror, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log mirror %s: %w", path, err)
	}
	return &mirror{file: f, enc: json.NewEncoder(f)}, nil
}

func (m *mirror) write(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Errors are not fatal to the caller; the in-memory store is always
	// authoritative, the mirror is a best-effort durability aid.
	_ = m.enc.Encode(e)
}

func (m *mirror) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
