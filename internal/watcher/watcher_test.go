package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glazeware/glaze/internal/logging"
)

func startWatcher(t *testing.T, root string, debounce time.Duration) (*FileWatcher, chan []ChangeEvent) {
	t.Helper()
	fw, err := New(debounce, logging.Discard())
	require.NoError(t, err)

	batches := make(chan []ChangeEvent, 16)
	fw.AddFilter(SourceFilter)
	fw.AddFilter(NoHiddenFilter)
	fw.AddHandler(func(events []ChangeEvent) { batches <- events })
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	fw.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = fw.Stop()
	})
	return fw, batches
}

func TestBurstOfWritesYieldsOneBatch(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "counter.html")
	require.NoError(t, os.WriteFile(file, []byte("v0"), 0o644))

	_, batches := startWatcher(t, root, 100*time.Millisecond)

	// Editor-style save: several rapid writes to the same file.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case events := <-batches:
		require.NotEmpty(t, events)
		assert.Equal(t, file, events[0].Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no debounced batch arrived")
	}

	// The burst must have been coalesced into exactly one batch.
	select {
	case extra := <-batches:
		t.Fatalf("unexpected second batch: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDistinctPathsShareOneBatch(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root, 150*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.html"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.js"), []byte("b"), 0o644))

	select {
	case events := <-batches:
		paths := make(map[string]bool)
		for _, e := range events {
			paths[filepath.Base(e.Path)] = true
		}
		assert.True(t, paths["a.html"])
		assert.True(t, paths["b.js"])
	case <-time.After(3 * time.Second):
		t.Fatal("no debounced batch arrived")
	}
}

func TestFilteredExtensionsAreIgnored(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root, 80*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	select {
	case events := <-batches:
		t.Fatalf("filtered file produced a batch: %v", events)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestSourceFilter(t *testing.T) {
	assert.True(t, SourceFilter("/x/counter.html"))
	assert.True(t, SourceFilter("/x/counter.js"))
	assert.True(t, SourceFilter("/x/newdir"))
	assert.False(t, SourceFilter("/x/readme.md"))
}

func TestNoHiddenFilter(t *testing.T) {
	assert.False(t, NoHiddenFilter("/project/.git/objects/ab"))
	assert.True(t, NoHiddenFilter("/project/components/counter.html"))
}

func TestHandlerSeesCreateInNewSubdirectory(t *testing.T) {
	root := t.TempDir()
	_, batches := startWatcher(t, root, 100*time.Millisecond)

	sub := filepath.Join(root, "widgets")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Drain the mkdir batch if one arrives.
	var sawNested atomic.Bool
	deadline := time.After(3 * time.Second)
	go func() {
		time.Sleep(250 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(sub, "widgets.html"), []byte("w"), 0o644)
	}()

	for !sawNested.Load() {
		select {
		case events := <-batches:
			for _, e := range events {
				if filepath.Base(e.Path) == "widgets.html" {
					sawNested.Store(true)
				}
			}
		case <-deadline:
			t.Fatal("nested file change was never observed")
		}
	}
}
