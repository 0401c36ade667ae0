package tempfs

import (
	"os"
	"path/filepath"
	"testing"
)

// WithTempFS writes files (slash separated paths relative to a fresh
// temporary directory) to disk and calls f with that directory.
func WithTempFS(t *testing.T, files map[string]string, f func(t *testing.T, root string)) {
	t.Helper()

	root := t.TempDir()

	for path, contents := range files {
		p := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f(t, root)
}
