// Package exclusion implements the text-file-backed ExclusionSet
// collaborator spec.md §6 specifies: an injected dependency, mutated by
// the Command task and read by the Poller task, guarded by a read-write
// lock per spec.md §5.
package exclusion

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Set is spec.md §6's ExclusionSet interface.
type Set interface {
	Contains(number string) bool
	Add(number string)
	Remove(number string) bool
	List() []string
}

// FileSet is an RWMutex-guarded in-memory set backed by a flat text file,
// one number per line, with commas treated as additional separators when
// loading (grounded on original_source/src/util.py's get_exclusion_list,
// which splits every line on commas and flattens the result).
type FileSet struct {
	mu      sync.RWMutex
	path    string
	numbers map[string]struct{}
	log     *slog.Logger
}

// NewFileSet loads path into memory. A missing file is treated as an
// empty set rather than an error, so a fresh deployment needs no
// pre-created file.
func NewFileSet(path string, log *slog.Logger) (*FileSet, error) {
	if log == nil {
		log = slog.Default()
	}
	fs := &FileSet{path: path, numbers: make(map[string]struct{}), log: log}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileSet) load() error {
	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("exclusion: opening %s: %w", fs.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		for _, field := range strings.Split(line, ",") {
			field = strings.TrimSpace(field)
			if field != "" {
				fs.numbers[field] = struct{}{}
			}
		}
	}
	return scanner.Err()
}

// Contains reports whether number is excluded.
func (fs *FileSet) Contains(number string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.numbers[number]
	return ok
}

// Add excludes number, persisting the change to disk.
func (fs *FileSet) Add(number string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.numbers[number] = struct{}{}
	fs.flushLocked()
}

// Remove un-excludes number, reporting false if it was not present.
func (fs *FileSet) Remove(number string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.numbers[number]; !ok {
		return false
	}
	delete(fs.numbers, number)
	fs.flushLocked()
	return true
}

// List returns the excluded numbers in no particular order.
func (fs *FileSet) List() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, 0, len(fs.numbers))
	for n := range fs.numbers {
		out = append(out, n)
	}
	return out
}

// flushLocked rewrites the backing file, one number per line. Caller
// must hold fs.mu for writing.
func (fs *FileSet) flushLocked() {
	f, err := os.Create(fs.path)
	if err != nil {
		fs.log.Error("exclusion: failed to persist list", "path", fs.path, "error", err)
		return
	}
	defer f.Close()
	for n := range fs.numbers {
		fmt.Fprintln(f, n)
	}
}
