package batch

import (
	"fmt"
	"os"
	"sync"

	"github.com/cwygoda/ytaudio/internal/naming"
)

// Placer moves finished temp files to their final names. Choosing a free
// name and renaming onto it happen under one lock, so parallel workers
// never claim the same path. The zero value is ready to use.
type Placer struct {
	mu sync.Mutex
}

// Place renames tmp to want, or to the first free variant of want.
func (p *Placer) Place(tmp, want string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	final := naming.ResolveConflict(want)
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("place output: %w", err)
	}
	return final, nil
}
