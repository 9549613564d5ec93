package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPlacer_ConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "Song.mp3")

	const n = 8
	var p Placer
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		tmp := filepath.Join(dir, fmt.Sprintf(".Song_%d.mp3.tmp", i))
		if err := os.WriteFile(tmp, []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(i int, tmp string) {
			defer wg.Done()
			paths[i], errs[i] = p.Place(tmp, want)
		}(i, tmp)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Place() error = %v", errs[i])
		}
		if seen[paths[i]] {
			t.Errorf("Place() returned %q twice", paths[i])
		}
		seen[paths[i]] = true
	}
	if !seen[want] {
		t.Errorf("no job claimed %q", want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n {
		t.Errorf("dir has %d entries, want %d", len(entries), n)
	}
}

func TestPlacer_MissingTemp(t *testing.T) {
	dir := t.TempDir()
	var p Placer
	if _, err := p.Place(filepath.Join(dir, "gone.tmp"), filepath.Join(dir, "out.mp3")); err == nil {
		t.Error("Place() error = nil, want error for missing temp file")
	}
}
