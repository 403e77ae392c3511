// Package anim maintains the animation library served to clients: ZEL files
// loaded from a directory, validated once, and kept as shared immutable
// byte slices that per-connection decoders open against.
package anim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kulaginds/zel-html5/internal/logging"
	"github.com/kulaginds/zel-html5/zel"
)

// Info describes one loaded animation for the catalog endpoint.
type Info struct {
	Name            string `json:"name"`
	Width           uint16 `json:"width"`
	Height          uint16 `json:"height"`
	FrameCount      uint32 `json:"frameCount"`
	TotalDurationMs uint32 `json:"totalDurationMs"`
}

type entry struct {
	data []byte
	info Info
}

// Store holds the loaded animations. The byte slices are immutable after
// load, so any number of decoders may be opened over them concurrently;
// each connection owns its own decoder because a zel.Decoder is not safe
// for shared use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: map[string]entry{}}
}

// LoadDir loads every *.zel file in dir. A file that fails to open as a
// valid animation is skipped with a warning; the server still starts with
// the rest. Returns the number of animations loaded.
func (s *Store) LoadDir(dir string, maxFileSize int64) (int, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.zel"))
	if err != nil {
		return 0, fmt.Errorf("scan animations dir: %w", err)
	}

	loaded := 0
	for _, path := range names {
		if err := s.loadFile(path, maxFileSize); err != nil {
			logging.Warn("skipping %s: %v", path, err)
			continue
		}
		loaded++
	}

	return loaded, nil
}

func (s *Store) loadFile(path string, maxFileSize int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if fi.Size() > maxFileSize {
		return fmt.Errorf("file size %d exceeds limit %d", fi.Size(), maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	info, err := describe(name, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[name] = entry{data: data, info: info}
	s.mu.Unlock()

	return nil
}

// Add registers an in-memory animation under name. Used by tests and by
// embedding applications that do not load from disk.
func (s *Store) Add(name string, data []byte) error {
	info, err := describe(name, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[name] = entry{data: data, info: info}
	s.mu.Unlock()

	return nil
}

// describe validates the file by opening it once and captures its catalog
// metadata.
func describe(name string, data []byte) (Info, error) {
	d, err := zel.OpenMemory(data)
	if err != nil {
		return Info{}, fmt.Errorf("open %s: %s: %w", name, zel.ResultToString(err), err)
	}
	defer d.Close()

	total, err := d.TotalDurationMs()
	if err != nil {
		return Info{}, fmt.Errorf("duration %s: %w", name, err)
	}

	return Info{
		Name:            name,
		Width:           d.Width(),
		Height:          d.Height(),
		FrameCount:      d.FrameCount(),
		TotalDurationMs: total,
	}, nil
}

// Open returns a fresh decoder over the named animation. The caller owns
// the decoder and must Close it; the underlying bytes stay shared.
func (s *Store) Open(name string) (*zel.Decoder, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown animation %q", name)
	}

	return zel.OpenMemory(e.data)
}

// List returns the catalog sorted by name.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}
