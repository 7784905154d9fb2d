// Package draft manages the edit buffer for creating or editing one config entry.
//
// At most one session is open at a time. Opening a session returns a Handle
// that every later call must present; a handle from a closed or replaced
// session fails with ErrStaleHandle instead of touching the current one.
package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robertmeta/trss-cli/collection"
	"github.com/robertmeta/trss-cli/listfield"
	"github.com/robertmeta/trss-cli/model"
)

var (
	ErrNoSession   = errors.New("no draft session open")
	ErrSessionOpen = errors.New("a draft session is already open")
	ErrStaleHandle = errors.New("draft session handle is stale")
)

// Store submits drafts. It is expected to refresh its collection after
// every call, whether or not the call succeeded.
type Store interface {
	Create(ctx context.Context, entry model.ConfigEntry) error
	Update(ctx context.Context, req model.UpdateRequest) error
	Resolve(key string) (int, model.ConfigEntry, error)
}

// Handle identifies one open session.
type Handle string

type session struct {
	handle   Handle
	index    int
	key      string
	isNew    bool
	original model.ConfigEntry
	working  model.ConfigEntry
	pending  listfield.Pending
}

// Manager owns the single draft session.
type Manager struct {
	store Store

	mu      sync.Mutex
	current *session
}

// NewManager creates a Manager that submits through store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// OpenCreate starts a session for a new entry from the empty template.
func (m *Manager) OpenCreate() (Handle, error) {
	return m.open(-1, "", model.EmptyConfig(), true)
}

// OpenEdit starts a session editing entry, last seen at index.
func (m *Manager) OpenEdit(index int, entry model.ConfigEntry) (Handle, error) {
	return m.open(index, "", entry, false)
}

// OpenEntry starts a session editing a collection entry. Its key is
// re-resolved to the current index at submit time.
func (m *Manager) OpenEntry(e collection.Entry) (Handle, error) {
	return m.open(e.Index, e.Key, e.Config, false)
}

func (m *Manager) open(index int, key string, entry model.ConfigEntry, isNew bool) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return "", ErrSessionOpen
	}

	h := Handle(uuid.NewString())
	m.current = &session{
		handle:   h,
		index:    index,
		key:      key,
		isNew:    isNew,
		original: entry.Clone(),
		working:  entry.Clone(),
		pending:  listfield.Pending{},
	}
	return h, nil
}

// IsOpen reports whether any session is open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// lookup returns the session for h. Callers must hold m.mu.
func (m *Manager) lookup(h Handle) (*session, error) {
	if m.current == nil {
		return nil, ErrNoSession
	}
	if m.current.handle != h {
		return nil, ErrStaleHandle
	}
	return m.current, nil
}

// Working returns a copy of the in-edit value.
func (m *Manager) Working(h Handle) (model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return model.ConfigEntry{}, err
	}
	return s.working.Clone(), nil
}

// Original returns a copy of the value the session was opened with.
func (m *Manager) Original(h Handle) (model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return model.ConfigEntry{}, err
	}
	return s.original.Clone(), nil
}

// Mutate replaces the working value with fn applied to a copy of it.
// If fn fails the working value is left as it was.
func (m *Manager) Mutate(h Handle, fn func(model.ConfigEntry) (model.ConfigEntry, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return err
	}
	next, err := fn(s.working.Clone())
	if err != nil {
		return err
	}
	s.working = next
	return nil
}

// SetPending records the typed value for a list field's "new item" input.
func (m *Manager) SetPending(h Handle, f listfield.Field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return err
	}
	s.pending[f] = value
	return nil
}

// Pending returns the typed value for a list field's "new item" input.
func (m *Manager) Pending(h Handle, f listfield.Field) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return "", err
	}
	return s.pending[f], nil
}

// CommitPending appends the pending value of f to the working list.
// It reports whether anything was appended.
func (m *Manager) CommitPending(h Handle, f listfield.Field) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(h)
	if err != nil {
		return false, err
	}
	next, ok := s.pending.Commit(f, s.working)
	s.working = next
	return ok, nil
}

// Submit validates the working value and sends it. An invalid draft stays
// open and a *model.ValidationError is returned without any network call.
// Otherwise the session is closed before the request is sent, so it cannot
// be submitted twice, and stays closed whatever the outcome.
func (m *Manager) Submit(ctx context.Context, h Handle) error {
	m.mu.Lock()
	s, err := m.lookup(h)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := s.working.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = nil
	m.mu.Unlock()

	if s.isNew {
		return m.store.Create(ctx, s.working)
	}

	index := s.index
	if s.key != "" {
		if i, _, err := m.store.Resolve(s.key); err == nil {
			index = i
		}
	}
	if err := m.store.Update(ctx, model.NewUpdateRequest(index, s.working, s.original)); err != nil {
		return fmt.Errorf("update entry %d: %w", index, err)
	}
	return nil
}

// Cancel discards the session without any network call.
func (m *Manager) Cancel(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(h); err != nil {
		return err
	}
	m.current = nil
	return nil
}
