package library

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxop/voxop/internal/log"
)

// Store owns the cached library snapshot and keeps it fresh. The
// snapshot handed out is immutable during one utterance; edits to the
// file on disk take effect on the next Snapshot call.
type Store struct {
	path   string
	logger *log.Logger

	mu    sync.RWMutex
	snap  *Snapshot
	stale bool
}

// Open reads the library file and returns a store around it.
func Open(path string, logger *log.Logger) (*Store, error) {
	snap, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, logger: logger, snap: snap}, nil
}

// Snapshot returns the current immutable snapshot, re-reading the file
// first when the watcher flagged it stale. A failed re-read keeps the
// last good snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	if !s.stale {
		defer s.mu.RUnlock()
		return s.snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stale {
		return s.snap
	}
	snap, err := LoadFile(s.path)
	if err != nil {
		s.logger.WithError(err).Warn("command library reload failed, keeping previous snapshot", "path", s.path)
		s.stale = false
		return s.snap
	}
	s.snap = snap
	s.stale = false
	s.logger.Info("command library reloaded", "path", s.path, "entries", snap.Size())
	return s.snap
}

// MarkStale forces the next Snapshot call to re-read the file.
func (s *Store) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Watch invalidates the cached snapshot whenever the library file
// changes on disk. onChange, if non-nil, runs after each invalidation.
// Watch returns once the watcher is installed; it stops when ctx ends.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: most editors replace the
	// file on save, which drops a direct file watch.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	base := filepath.Base(s.path)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		fire := func() {
			s.MarkStale()
			s.logger.Debug("command library changed on disk", "path", s.path)
			if onChange != nil {
				onChange()
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, fire)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("command library watcher error")
			}
		}
	}()

	return nil
}

// Path returns the on-disk location of the library file.
func (s *Store) Path() string {
	return s.path
}
