// Package cache owns one run's temporary directory and the per-node build
// state table that memoizes generation.
//
// Every node moves Unbuilt -> Building -> Cached (or Failed) exactly once per
// run. Files are written to a temp name and renamed into place, so a cache
// path that exists is always complete.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

type State int

const (
	Unbuilt State = iota
	Building
	Cached
	Failed
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Building:
		return "building"
	case Cached:
		return "cached"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNotStarted = errors.New("node has not been claimed")
	ErrClosed     = errors.New("cache store is closed")
)

type entry struct {
	state State
	path  string
	err   error
	done  chan struct{}
}

// Options configure a Store.
type Options struct {
	// Dir is the parent of the per-run directory; "" uses os.TempDir.
	Dir string
	// HashNames stores files under a fixed-length token instead of the node name.
	HashNames bool
	Logger    *zap.Logger
}

type Store struct {
	dir       string
	hashNames bool
	log       *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates the per-run directory.
func New(opts Options) (*Store, error) {
	dir, err := os.MkdirTemp(opts.Dir, "genesynth-")
	if err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, hashNames: opts.HashNames, log: log, entries: map[string]*entry{}}, nil
}

// Dir is the run's cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where name's cache file lives.
func (s *Store) Path(name string) string {
	if s.hashNames {
		sum := sha256.Sum256([]byte(name))
		return filepath.Join(s.dir, hex.EncodeToString(sum[:16]))
	}
	return filepath.Join(s.dir, name)
}

// Lookup returns the current state and, when cached, the file path.
func (s *Store) Lookup(name string) (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return Unbuilt, ""
	}
	return e.state, e.path
}

// Ticket is the exclusive right to build one node.
type Ticket struct {
	store *Store
	name  string
	path  string
	once  sync.Once
}

func (t *Ticket) Name() string { return t.name }
func (t *Ticket) Path() string { return t.path }

// Finish settles the node: Cached when err is nil, Failed otherwise. Only the
// first call counts.
func (t *Ticket) Finish(err error) {
	t.once.Do(func() { t.store.finish(t.name, err) })
}

// Claim moves name from Unbuilt to Building. It returns false when the node is
// already building or settled; the caller then waits instead of building.
func (s *Store) Claim(name string) (*Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	if _, ok := s.entries[name]; ok {
		return nil, false
	}
	s.entries[name] = &entry{state: Building, done: make(chan struct{})}
	s.log.Debug("claimed node", zap.String("node", name))
	return &Ticket{store: s, name: name, path: s.Path(name)}, true
}

func (s *Store) finish(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[name]
	if e == nil || e.state != Building {
		return
	}
	if err != nil {
		e.state, e.err = Failed, err
		s.log.Debug("node failed", zap.String("node", name), zap.Error(err))
	} else {
		e.state, e.path = Cached, s.Path(name)
		s.log.Debug("node cached", zap.String("node", name), zap.String("path", e.path))
	}
	close(e.done)
}

// Wait blocks until name is settled and returns its path or build error.
func (s *Store) Wait(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrNotStarted)
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.state == Failed {
		return "", e.err
	}
	return e.path, nil
}

// Ensure builds name at most once. A caller that loses the claim waits for
// the winner's result.
func (s *Store) Ensure(ctx context.Context, name string, build func(ctx context.Context, t *Ticket) error) (string, error) {
	if t, ok := s.Claim(name); ok {
		err := build(ctx, t)
		t.Finish(err)
	} else if s.isClosed() {
		return "", ErrClosed
	}
	return s.Wait(ctx, name)
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close reclaims the run directory.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing cache directory: %w", err)
	}
	return nil
}
