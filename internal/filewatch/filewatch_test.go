package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnMatchingExtension(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 8)
	w, err := New([]string{dir}, ".lb.ts", func(ctx context.Context) {
		fired <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.lb.ts"), []byte("export {}"), 0o644))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected reconcile to fire for matching extension")
	}
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 8)
	w, err := New([]string{dir}, ".lb.ts", func(ctx context.Context) {
		fired <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	select {
	case <-fired:
		t.Fatal("did not expect reconcile for a non-matching extension")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesRapidEvents(t *testing.T) {
	dir := t.TempDir()

	var count int
	done := make(chan struct{}, 32)
	w, err := New([]string{dir}, ".lb.ts", func(ctx context.Context) {
		count++
		done <- struct{}{}
	}, nil)
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	path := filepath.Join(dir, "burst.lb.ts")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("export {}"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(300 * time.Millisecond)
	drained := 0
loop:
	for {
		select {
		case <-done:
			drained++
		default:
			break loop
		}
	}
	assert.Less(t, drained, 5, "expected debounce to collapse the rapid burst")
	assert.GreaterOrEqual(t, drained, 1)
}
