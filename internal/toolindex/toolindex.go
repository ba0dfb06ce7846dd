// Package toolindex discovers tool source files across the project and user
// tool directories, extracts their signatures, and publishes an immutable
// snapshot that the rest of the runtime reads without locking.
package toolindex

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jx-codes/lootbox/internal/typeextract"
)

// Entry is one discovered namespace: the tool file it was extracted from and
// the result of extracting it.
type Entry struct {
	Namespace string
	Path      string
	Origin    Origin
	Result    *typeextract.ExtractionResult
}

// Origin identifies which configured directory an Entry was discovered in.
// The project directory takes precedence over the user directory when both
// declare the same namespace.
type Origin int

const (
	OriginProject Origin = iota
	OriginUser
)

func (o Origin) String() string {
	if o == OriginProject {
		return "project"
	}
	return "user"
}

// Snapshot is an immutable view of the tool index at a point in time.
// Callers must never mutate its contents; a new Snapshot is always built on
// reconcile.
type Snapshot struct {
	Namespaces map[string]Entry
	Warnings   []typeextract.Diagnostic
	Version    uint64
}

// Namespace returns the entry for name, or (Entry{}, false) if not present.
func (s *Snapshot) Namespace(name string) (Entry, bool) {
	e, ok := s.Namespaces[name]
	return e, ok
}

// SortedNamespaces returns the namespace names in the snapshot, sorted.
func (s *Snapshot) SortedNamespaces() []string {
	names := make([]string, 0, len(s.Namespaces))
	for name := range s.Namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscriber is called after each successful Reconcile with the newly
// published Snapshot.
type Subscriber func(*Snapshot)

// Index scans one or more directories for tool files and maintains a
// published Snapshot that's safe to read concurrently without locking.
type Index struct {
	projectDir string
	userDir    string
	extension  string
	log        *slog.Logger

	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	reconcileMu sync.Mutex // serializes Reconcile calls; held through scan, publish and notify

	subMu sync.Mutex
	subs  []Subscriber
}

// New creates an Index over projectDir and userDir (either may be empty to
// disable that source), restricted to files whose name ends in extension.
func New(projectDir, userDir, extension string, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	idx := &Index{
		projectDir: projectDir,
		userDir:    userDir,
		extension:  extension,
		log:        log,
	}
	idx.current.Store(&Snapshot{Namespaces: map[string]Entry{}})
	return idx
}

// Snapshot returns the currently published snapshot. Safe for concurrent use.
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Subscribe registers fn to be called after every future successful
// Reconcile. fn is not called for the current snapshot.
func (idx *Index) Subscribe(fn Subscriber) {
	idx.subMu.Lock()
	defer idx.subMu.Unlock()
	idx.subs = append(idx.subs, fn)
}

// Reconcile rescans the configured directories, extracts every matching
// file, and publishes a new Snapshot. Concurrent calls are serialized: a
// Reconcile already in flight runs to completion and callers block on it
// rather than racing two scans.
func (idx *Index) Reconcile() (*Snapshot, error) {
	idx.reconcileMu.Lock()
	defer idx.reconcileMu.Unlock()

	namespaces := map[string]Entry{}
	var warnings []typeextract.Diagnostic

	// User directory is scanned first so the project directory can
	// overwrite on collision.
	if idx.userDir != "" {
		idx.scanDir(idx.userDir, OriginUser, namespaces, &warnings)
	}
	if idx.projectDir != "" {
		idx.scanDir(idx.projectDir, OriginProject, namespaces, &warnings)
	}

	snap := &Snapshot{
		Namespaces: namespaces,
		Warnings:   warnings,
		Version:    idx.version.Add(1),
	}
	idx.current.Store(snap)
	idx.notify(snap)
	return snap, nil
}

func (idx *Index) notify(snap *Snapshot) {
	idx.subMu.Lock()
	subs := append([]Subscriber(nil), idx.subs...)
	idx.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (idx *Index) scanDir(dir string, origin Origin, into map[string]Entry, warnings *[]typeextract.Diagnostic) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			idx.log.Warn("toolindex: failed to read directory", "dir", dir, "error", err)
		}
		return
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasSuffix(name, idx.extension) {
			continue
		}

		path := filepath.Join(dir, name)
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			idx.log.Warn("toolindex: failed to resolve symlink", "path", path, "error", err)
			*warnings = append(*warnings, typeextract.Diagnostic{File: path, Message: "unresolved symlink: " + err.Error()})
			continue
		}

		namespace := strings.TrimSuffix(name, idx.extension)
		result, err := typeextract.ExtractFile(resolved)
		if err != nil {
			idx.log.Warn("toolindex: failed to extract tool file", "path", resolved, "error", err)
			*warnings = append(*warnings, typeextract.Diagnostic{File: resolved, Message: "extraction failed: " + err.Error()})
			continue
		}
		*warnings = append(*warnings, result.Warnings...)

		into[namespace] = Entry{
			Namespace: namespace,
			Path:      resolved,
			Origin:    origin,
			Result:    result,
		}
	}
}
