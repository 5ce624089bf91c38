package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Metadata is the YAML frontmatter block of a skill instruction file.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Store reads skill instruction files and caches their bodies. Cached
// entries are dropped when the file changes on disk.
type Store struct {
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	cache map[string]string
}

// NewStore builds a store. The filesystem watcher is best-effort: when it
// cannot be created the store still works, without invalidation.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		log:   logger.With("component", "skills"),
		cache: make(map[string]string),
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("skill watcher unavailable", "error", err)
		return s
	}
	s.watcher = watcher
	go s.watchLoop()
	return s
}

// Close stops the watcher.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Load returns the instruction body for a catalog location, expanding a
// leading "~" and stripping YAML frontmatter.
func (s *Store) Load(location string) (string, error) {
	path, err := ExpandPath(location)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	body, ok := s.cache[path]
	s.mu.Unlock()
	if ok {
		return body, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read skill instructions: %w", err)
	}
	meta, body := splitFrontmatter(string(raw))
	body = strings.TrimSpace(body)

	s.mu.Lock()
	s.cache[path] = body
	s.mu.Unlock()
	s.watch(path)

	s.log.Debug("skill instructions loaded", "path", path, "skill", meta.Name, "bytes", len(body))
	return body, nil
}

func (s *Store) watch(path string) {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Add(filepath.Dir(path)); err != nil {
		s.log.Debug("watch skill directory", "path", path, "error", err)
	}
}

func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				s.invalidate(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("skill watcher error", "error", err)
		}
	}
}

func (s *Store) invalidate(path string) {
	path = filepath.Clean(path)
	s.mu.Lock()
	_, ok := s.cache[path]
	if ok {
		delete(s.cache, path)
	}
	s.mu.Unlock()
	if ok {
		s.log.Debug("skill cache invalidated", "path", path)
	}
}

// splitFrontmatter separates a leading "---" delimited YAML header from the
// instruction body. Headers that fail to decode are still stripped.
func splitFrontmatter(raw string) (Metadata, string) {
	var meta Metadata
	rest, ok := strings.CutPrefix(raw, "---\n")
	if !ok {
		if rest, ok = strings.CutPrefix(raw, "---\r\n"); !ok {
			return meta, raw
		}
	}
	header, body, ok := strings.Cut(rest, "\n---")
	if !ok {
		return meta, raw
	}
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		meta = Metadata{}
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return meta, body
}

// ExpandPath resolves a leading "~" against the user home directory and
// cleans the result.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("empty path")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(trimmed, "~"), "/"))
	}
	return filepath.Clean(trimmed), nil
}
