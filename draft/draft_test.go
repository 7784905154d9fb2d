package draft

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/robertmeta/trss-cli/collection"
	"github.com/robertmeta/trss-cli/listfield"
	"github.com/robertmeta/trss-cli/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records every sync call and applies it positionally.
type fakeBackend struct {
	configs []model.ConfigEntry
	calls   []string
	creates []model.ConfigEntry
	updates []model.UpdateRequest
	fail    error
}

func (f *fakeBackend) List(ctx context.Context) ([]model.ConfigEntry, error) {
	f.calls = append(f.calls, "list")
	out := make([]model.ConfigEntry, len(f.configs))
	for i, c := range f.configs {
		out[i] = c.Clone()
	}
	return out, nil
}

func (f *fakeBackend) Create(ctx context.Context, entry model.ConfigEntry) error {
	f.calls = append(f.calls, "create")
	f.creates = append(f.creates, entry)
	if f.fail != nil {
		return f.fail
	}
	f.configs = append(f.configs, entry.Clone())
	return nil
}

func (f *fakeBackend) Update(ctx context.Context, req model.UpdateRequest) error {
	f.calls = append(f.calls, "update")
	f.updates = append(f.updates, req)
	if f.fail != nil {
		return f.fail
	}
	f.configs[req.Index] = req.Config.Clone()
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, req model.DeleteRequest) error {
	f.calls = append(f.calls, "delete")
	return nil
}

func setup(t *testing.T, configs ...model.ConfigEntry) (*fakeBackend, *collection.Store, *Manager) {
	t.Helper()
	backend := &fakeBackend{configs: configs}
	store := collection.New(backend)
	require.NoError(t, store.Refresh(context.Background()))
	backend.calls = nil
	return backend, store, NewManager(store)
}

func showA() model.ConfigEntry {
	return model.ConfigEntry{Disabled: true, Name: "A", URL: "http://x/a", DownloadDir: "/d/a"}
}

func TestManager_CreateScenario(t *testing.T) {
	backend, store, m := setup(t)

	h, err := m.OpenCreate()
	require.NoError(t, err)

	orig, err := m.Original(h)
	require.NoError(t, err)
	assert.True(t, orig.Disabled, "new entries start disabled")

	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		c.Disabled = false
		c.Name, c.URL, c.DownloadDir = "Show A", "http://x/feed", "/d/a"
		return c, nil
	}))
	require.NoError(t, m.Submit(context.Background(), h))

	require.Len(t, backend.creates, 1)
	assert.Equal(t, "Show A", backend.creates[0].Name)
	assert.Equal(t, []string{"create", "list"}, backend.calls)
	assert.False(t, m.IsOpen())

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Show A", entries[0].Config.Name)
}

func TestManager_EditScenario(t *testing.T) {
	b := model.ConfigEntry{Name: "B", URL: "http://x/b", DownloadDir: "/d/b"}
	backend, store, m := setup(t, showA(), b)

	a, err := store.At(0)
	require.NoError(t, err)
	h, err := m.OpenEntry(a)
	require.NoError(t, err)

	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		c.Disabled = false
		return c, nil
	}))
	require.NoError(t, m.Submit(context.Background(), h))

	require.Len(t, backend.updates, 1)
	req := backend.updates[0]
	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"index": 0,
		"config": {"disabled":false,"name":"A","url":"http://x/a","download_dir":"/d/a"},
		"original": {"disabled":true,"name":"A","url":"http://x/a","download_dir":"/d/a"}
	}`, string(body))
}

func TestManager_ValidationKeepsSessionOpen(t *testing.T) {
	backend, _, m := setup(t)

	h, err := m.OpenCreate()
	require.NoError(t, err)
	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		c.Name = "only a name"
		return c, nil
	}))

	err = m.Submit(context.Background(), h)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{model.FieldURL, model.FieldDownloadDir}, verr.Missing)
	assert.True(t, m.IsOpen())
	assert.Empty(t, backend.calls, "invalid drafts never reach the network")
}

func TestManager_CancelLeavesCollectionUnchanged(t *testing.T) {
	backend, store, m := setup(t, showA())

	before, err := store.Entries()
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	h, err := m.OpenEdit(0, before[0].Config)
	require.NoError(t, err)
	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		return listfield.Label.Append(c, "hd"), nil
	}))
	require.NoError(t, m.Cancel(h))

	after, err := store.Entries()
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)

	assert.Equal(t, string(beforeJSON), string(afterJSON))
	assert.Empty(t, backend.calls)
	assert.False(t, m.IsOpen())
}

func TestManager_SingleSession(t *testing.T) {
	_, _, m := setup(t, showA())

	h1, err := m.OpenCreate()
	require.NoError(t, err)

	_, err = m.OpenEdit(0, showA())
	assert.ErrorIs(t, err, ErrSessionOpen)

	require.NoError(t, m.Cancel(h1))
	h2, err := m.OpenEdit(0, showA())
	require.NoError(t, err)

	// The old handle cannot touch the new session.
	assert.ErrorIs(t, m.Cancel(h1), ErrStaleHandle)
	assert.ErrorIs(t, m.Submit(context.Background(), h1), ErrStaleHandle)
	assert.True(t, m.IsOpen())

	require.NoError(t, m.Cancel(h2))
	_, err = m.Working(h2)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_OriginalIsFrozen(t *testing.T) {
	_, _, m := setup(t)

	entry := showA()
	entry.Regexp = []string{"one"}
	h, err := m.OpenEdit(0, entry)
	require.NoError(t, err)

	// Mutating the caller's copy or the working copy must not reach original.
	entry.Regexp[0] = "changed"
	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		return listfield.Regexp.Edit(c, 0, "edited")
	}))

	orig, err := m.Original(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, orig.Regexp)

	working, err := m.Working(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"edited"}, working.Regexp)
}

func TestManager_FailedMutateKeepsWorking(t *testing.T) {
	_, _, m := setup(t)

	h, err := m.OpenEdit(0, showA())
	require.NoError(t, err)

	err = m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		return listfield.Label.Remove(c, 3)
	})
	assert.ErrorIs(t, err, listfield.ErrIndexOutOfRange)

	working, err := m.Working(h)
	require.NoError(t, err)
	assert.True(t, working.Equal(showA()))
}

func TestManager_PendingSurvivesEdits(t *testing.T) {
	_, _, m := setup(t)

	h, err := m.OpenCreate()
	require.NoError(t, err)
	require.NoError(t, m.SetPending(h, listfield.ExcludeRegexp, "CR"))

	require.NoError(t, m.Mutate(h, func(c model.ConfigEntry) (model.ConfigEntry, error) {
		c.Name = "renamed"
		return c, nil
	}))
	v, err := m.Pending(h, listfield.ExcludeRegexp)
	require.NoError(t, err)
	assert.Equal(t, "CR", v)

	ok, err := m.CommitPending(h, listfield.ExcludeRegexp)
	require.NoError(t, err)
	assert.True(t, ok)

	working, err := m.Working(h)
	require.NoError(t, err)
	assert.Equal(t, []string{"CR"}, working.ExcludeRegexp)
	assert.Equal(t, "renamed", working.Name)

	v, err = m.Pending(h, listfield.ExcludeRegexp)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestManager_FailedSubmitClosesAndRefreshes(t *testing.T) {
	backend, _, m := setup(t, showA())
	backend.fail = errors.New("status 500")

	h, err := m.OpenEdit(0, showA())
	require.NoError(t, err)

	err = m.Submit(context.Background(), h)
	assert.Error(t, err)
	assert.False(t, m.IsOpen())
	assert.Equal(t, []string{"update", "list"}, backend.calls)
}

func TestManager_SubmitResolvesCurrentIndex(t *testing.T) {
	z := model.ConfigEntry{Name: "Z", URL: "http://x/z", DownloadDir: "/d/z"}
	backend, store, m := setup(t, z, showA())

	a, err := store.At(1)
	require.NoError(t, err)
	h, err := m.OpenEntry(a)
	require.NoError(t, err)

	// Z disappears before submit; A is now at index 0.
	backend.configs = backend.configs[1:]
	require.NoError(t, store.Refresh(context.Background()))

	require.NoError(t, m.Submit(context.Background(), h))
	require.Len(t, backend.updates, 1)
	assert.Equal(t, 0, backend.updates[0].Index)
}
