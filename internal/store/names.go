package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ NameStore = (*NameFile)(nil)

// NameFile is a NameStore backed by a single JSON object on disk.
type NameFile struct {
	path  string
	mu    sync.RWMutex
	names map[string]string
}

// OpenNameFile loads names from path. A missing or unreadable file yields
// an empty map; the latter is logged as a warning.
func OpenNameFile(path string, logger *slog.Logger) *NameFile {
	if logger == nil {
		logger = slog.Default()
	}
	n := &NameFile{path: path, names: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		logger.Warn("company names unreadable, starting empty", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &n.names); err != nil {
			logger.Warn("company names corrupt, starting empty", "path", path, "error", err)
			n.names = make(map[string]string)
		}
	}
	return n
}

// Get returns the stored name for symbol.
func (n *NameFile) Get(symbol string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.names[strings.ToUpper(symbol)]
	return name, ok
}

// Put stores name and rewrites the file.
func (n *NameFile) Put(symbol, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names[strings.ToUpper(symbol)] = name

	data, err := json.MarshalIndent(n.names, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(n.path, data); err != nil {
		return fmt.Errorf("writing company names: %w", err)
	}
	return nil
}

// Len returns the number of stored names.
func (n *NameFile) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.names)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
