// Package collection holds the client-side view of the config collection.
//
// The server identifies entries by position. The store keeps a stable key
// for each entry across refreshes and resolves it to the current position
// immediately before each mutating call.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertmeta/trss-cli/model"
	"github.com/robertmeta/trss-cli/poll"
)

var (
	// ErrNotLoaded is returned when the collection has never been fetched.
	ErrNotLoaded = errors.New("collection not loaded")
	// ErrUnknownKey is returned when a key no longer names any entry.
	ErrUnknownKey = errors.New("entry no longer in collection")
)

// Backend is the sync protocol the store drives.
type Backend interface {
	List(ctx context.Context) ([]model.ConfigEntry, error)
	Create(ctx context.Context, entry model.ConfigEntry) error
	Update(ctx context.Context, req model.UpdateRequest) error
	Delete(ctx context.Context, req model.DeleteRequest) error
}

// Entry is one collection member as last seen from the server.
type Entry struct {
	Key    string            `json:"key"`
	Index  int               `json:"index"`
	Config model.ConfigEntry `json:"config"`
}

// Store caches the collection. The server's list response is always the
// source of truth: every mutation is followed by a refresh.
type Store struct {
	backend Backend

	mu       sync.Mutex
	entries  []Entry
	loaded   bool
	err      error
	issued   uint64
	applied  uint64
	onChange func([]Entry, error)

	// notifyMu serializes onChange calls; notified is the last generation
	// delivered, so callbacks never arrive out of order.
	notifyMu sync.Mutex
	notified uint64
}

// New creates a Store on top of backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// OnChange registers fn to be called after each applied refresh, in the
// order refreshes were applied. fn must not call Refresh.
func (s *Store) OnChange(fn func([]Entry, error)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Refresh fetches the collection and replaces the cached copy.
// A response that arrives after a newer one has been applied is dropped.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	gen := s.issued
	s.mu.Unlock()

	configs, err := s.backend.List(ctx)

	s.mu.Lock()
	if gen < s.applied {
		s.mu.Unlock()
		slog.Debug("dropping stale collection response", "generation", gen, "applied", s.applied)
		return err
	}
	s.applied = gen
	s.err = err
	if err == nil {
		s.entries = reconcile(s.entries, configs)
		s.loaded = true
	}
	fn, snapshot := s.onChange, cloneEntries(s.entries)
	s.mu.Unlock()

	if err != nil {
		slog.Error("failed to load config list", "err", err)
	}
	s.notify(gen, fn, snapshot, err)
	return err
}

func (s *Store) notify(gen uint64, fn func([]Entry, error), entries []Entry, err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if gen < s.notified {
		return
	}
	s.notified = gen
	if fn != nil {
		fn(entries, err)
	}
}

// Entries returns a copy of the cached collection, or the last load error.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, fmt.Errorf("failed to load: %w", s.err)
	}
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	return cloneEntries(s.entries), nil
}

// At returns the entry currently at index.
func (s *Store) At(index int) (Entry, error) {
	entries, err := s.Entries()
	if err != nil {
		return Entry{}, err
	}
	if index < 0 || index >= len(entries) {
		return Entry{}, fmt.Errorf("index %d: out of range (have %d entries)", index, len(entries))
	}
	return entries[index], nil
}

// Resolve returns the current position and value of the entry with key.
func (s *Store) Resolve(key string) (int, model.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Key == key {
			return e.Index, e.Config.Clone(), nil
		}
	}
	return -1, model.ConfigEntry{}, fmt.Errorf("key %s: %w", key, ErrUnknownKey)
}

// Create submits a new entry, then refreshes.
func (s *Store) Create(ctx context.Context, entry model.ConfigEntry) error {
	err := s.backend.Create(ctx, entry)
	if err != nil {
		slog.Error("create config failed", "name", entry.Name, "err", err)
	}
	s.refreshAfterMutation(ctx)
	return err
}

// Update submits a conditional update, then refreshes.
func (s *Store) Update(ctx context.Context, req model.UpdateRequest) error {
	err := s.backend.Update(ctx, req)
	if err != nil {
		slog.Error("update config failed", "index", req.Index, "err", err)
	}
	s.refreshAfterMutation(ctx)
	return err
}

// Delete submits a conditional delete of config at index, then refreshes.
func (s *Store) Delete(ctx context.Context, index int, config model.ConfigEntry) error {
	err := s.backend.Delete(ctx, model.NewDeleteRequest(index, config))
	if err != nil {
		slog.Error("delete config failed", "index", index, "name", config.Name, "err", err)
	}
	s.refreshAfterMutation(ctx)
	return err
}

// DeleteKey deletes the entry with key at its current position.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	index, config, err := s.Resolve(key)
	if err != nil {
		return err
	}
	return s.Delete(ctx, index, config)
}

// Revalidate refreshes the collection every interval until the returned
// task is stopped. It runs independently of any status polling.
func (s *Store) Revalidate(ctx context.Context, interval time.Duration) *poll.Task {
	return poll.Start(ctx, interval, func(ctx context.Context) {
		_ = s.Refresh(ctx)
	})
}

// DownloadDirSuggestions returns distinct parent directories of the known
// download dirs, in collection order. For season folders ("Season 1") the
// show's parent directory is suggested instead.
func (s *Store) DownloadDirSuggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range s.entries {
		dir := e.Config.DownloadDir
		if dir == "" {
			continue
		}
		parent := path.Dir(dir)
		if strings.Contains(path.Base(dir), "Season ") {
			parent = path.Dir(parent)
		}
		if !seen[parent] {
			seen[parent] = true
			out = append(out, parent)
		}
	}
	return out
}

func (s *Store) refreshAfterMutation(ctx context.Context) {
	// The mutation may have been cancelled; the refresh still has to run.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	_ = s.Refresh(ctx)
}

// reconcile assigns keys to next, reusing the key of an equal entry from
// prev when it appears in the same relative order.
func reconcile(prev []Entry, next []model.ConfigEntry) []Entry {
	out := make([]Entry, len(next))
	cursor := 0
	for i, cfg := range next {
		key := ""
		for j := cursor; j < len(prev); j++ {
			if prev[j].Config.Equal(cfg) {
				key = prev[j].Key
				cursor = j + 1
				break
			}
		}
		if key == "" {
			key = uuid.NewString()
		}
		out[i] = Entry{Key: key, Index: i, Config: cfg}
	}
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Entry{Key: e.Key, Index: e.Index, Config: e.Config.Clone()}
	}
	return out
}
