package runlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAssignsSeq(t *testing.T) {
	s := NewMemoryStore(0)
	e1 := s.Append(Entry{SessionID: "a", Status: StatusSucceeded})
	e2 := s.Append(Entry{SessionID: "a", Status: StatusSucceeded})
	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(2), e2.Seq)
}

func TestMemoryStoreEvictsOldestAtCapacity(t *testing.T) {
	s := NewMemoryStore(2)
	s.Append(Entry{SessionID: "a"})
	s.Append(Entry{SessionID: "b"})
	s.Append(Entry{SessionID: "c"})

	last := s.LastN(10)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].SessionID)
	assert.Equal(t, "c", last[1].SessionID)
}

func TestMemoryStoreLastN(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		s.Append(Entry{SessionID: "s"})
	}
	last := s.LastN(2)
	require.Len(t, last, 2)
	assert.Equal(t, int64(4), last[0].Seq)
	assert.Equal(t, int64(5), last[1].Seq)
}

func TestMemoryStoreSince(t *testing.T) {
	s := NewMemoryStore(0)
	cutoff := time.Now()
	s.Append(Entry{StartedAt: cutoff.Add(-time.Hour)})
	s.Append(Entry{StartedAt: cutoff.Add(time.Hour)})

	recent := s.Since(cutoff)
	require.Len(t, recent, 1)
}

func TestMemoryStoreBySession(t *testing.T) {
	s := NewMemoryStore(0)
	s.Append(Entry{SessionID: "a"})
	s.Append(Entry{SessionID: "b"})
	s.Append(Entry{SessionID: "a"})

	entries := s.BySession("a")
	assert.Len(t, entries, 2)
}

func TestMemoryStoreMirrorsToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runlog.jsonl")

	s, err := NewMemoryStore(1).WithMirror(path)
	require.NoError(t, err)
	defer s.Close()

	s.Append(Entry{SessionID: "a", Status: StatusSucceeded})
	s.Append(Entry{SessionID: "b", Status: StatusFailed})
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	// Both appends are mirrored even though the in-memory ring buffer (cap 1)
	// only retains the most recent one.
	assert.Equal(t, 2, lines)
	assert.Len(t, s.LastN(10), 1)
}
