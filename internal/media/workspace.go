package media

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Workspace hands out unique intermediate file paths for one pipeline run
// and removes every one of them when the run ends.
type Workspace struct {
	dir   string
	runID string

	mu    sync.Mutex
	files []string
	once  sync.Once
}

// NewWorkspace creates dir if needed.
func NewWorkspace(dir, runID string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Workspace{dir: dir, runID: runID}, nil
}

// Path registers and returns <dir>/<runID>-<ulid>-<purpose>.<ext>.
func (w *Workspace) Path(purpose, ext string) string {
	name := fmt.Sprintf("%s-%s-%s.%s", w.runID, ulid.Make().String(), purpose, strings.TrimPrefix(ext, "."))
	p := filepath.Join(w.dir, name)

	w.mu.Lock()
	w.files = append(w.files, p)
	w.mu.Unlock()

	return p
}

// Files returns the registered paths in creation order.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

// Cleanup removes every registered file. Only the first call does any work;
// files that were never created are ignored.
func (w *Workspace) Cleanup() {
	w.once.Do(func() {
		removed := 0
		for _, p := range w.Files() {
			err := os.Remove(p)
			switch {
			case err == nil:
				removed++
			case errors.Is(err, fs.ErrNotExist):
			default:
				log.Printf("[Pipeline] cleanup %s: %v", p, err)
			}
		}
		log.Printf("[Pipeline] run %s: cleaned up %d file(s)", w.runID, removed)
	})
}
