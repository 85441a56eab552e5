// Package blobstage writes uploaded blobs to a temporary directory so
// downstream consumers can hand paths to tools that want files. It is a
// side helper; the routing core never touches it.
package blobstage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Staged is one blob written to disk: the temp path and the original
// filename it arrived with.
type Staged struct {
	Path         string
	OriginalName string
}

// Processor stages (filename, bytes) pairs under random file ids, keeping
// the original extension so type-sniffing consumers still work.
type Processor struct {
	dir string

	mu    sync.Mutex
	files map[string]Staged // file id -> staged blob
}

// New creates a Processor staging into dir; an empty dir means the system
// temp directory.
func New(dir string) (*Processor, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstage: creating %s: %w", dir, err)
	}
	return &Processor{
		dir:   dir,
		files: make(map[string]Staged),
	}, nil
}

// Stage writes one blob and returns its file id.
func (p *Processor) Stage(originalName string, data []byte) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(p.dir, id+filepath.Ext(originalName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blobstage: writing %s: %w", path, err)
	}
	p.mu.Lock()
	p.files[id] = Staged{Path: path, OriginalName: originalName}
	p.mu.Unlock()
	return id, nil
}

// StageAll stages parallel lists of blobs and names, returning file ids in
// order.
func (p *Processor) StageAll(names []string, blobs [][]byte) ([]string, error) {
	if len(names) != len(blobs) {
		return nil, fmt.Errorf("blobstage: %d names for %d blobs", len(names), len(blobs))
	}
	ids := make([]string, 0, len(blobs))
	for i, data := range blobs {
		id, err := p.Stage(names[i], data)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Lookup returns the staged entry for a file id.
func (p *Processor) Lookup(id string) (Staged, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.files[id]
	return s, ok
}

// Remove unlinks one staged file.
func (p *Processor) Remove(id string) error {
	p.mu.Lock()
	s, ok := p.files[id]
	delete(p.files, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("blobstage: unknown file id %s", id)
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstage: removing %s: %w", s.Path, err)
	}
	return nil
}

// Cleanup unlinks every staged file. The first error is returned after
// all removals are attempted.
func (p *Processor) Cleanup() error {
	p.mu.Lock()
	files := p.files
	p.files = make(map[string]Staged)
	p.mu.Unlock()

	var firstErr error
	for _, s := range files {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
