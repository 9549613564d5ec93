package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxConflictSuffix = 9999

// ResolveConflict returns path if nothing exists there, otherwise the first
// free "stem (N).ext" variant. Past N=9999 it falls back to a timestamp.
// It only inspects the filesystem; callers placing files concurrently must
// serialize resolve and rename themselves.
func ResolveConflict(path string) string {
	if !exists(path) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	for n := 1; n <= maxConflictSuffix; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().UnixMilli(), ext))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
