package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/robertmeta/trss-cli/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Body   string
}

type recorder struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	reply    string
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec.mu.Lock()
	rec.requests = append(rec.requests, recorded{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	status, reply := rec.status, rec.reply
	rec.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (rec *recorder) last(t *testing.T) recorded {
	t.Helper()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.requests)
	return rec.requests[len(rec.requests)-1]
}

func newTestClient(t *testing.T, rec *recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second)
}

func TestClient_List(t *testing.T) {
	rec := &recorder{reply: `[{"disabled":true,"name":"A","url":"http://x/a","download_dir":"/d/a","internal":3},{"disabled":false,"name":"B","url":"http://x/b","download_dir":"/d/b"}]`}
	c := newTestClient(t, rec)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Name)
	assert.Equal(t, int64(3), *entries[0].Internal)
	assert.Equal(t, "B", entries[1].Name)

	got := rec.last(t)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, ConfigPath, got.Path)
}

func TestClient_ListNull(t *testing.T) {
	rec := &recorder{reply: `null`}
	c := newTestClient(t, rec)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClient_Create(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)

	entry := model.ConfigEntry{Name: "Show A", URL: "http://x/feed", DownloadDir: "/d/a"}
	require.NoError(t, c.Create(context.Background(), entry))

	got := rec.last(t)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.JSONEq(t, `{"disabled":false,"name":"Show A","url":"http://x/feed","download_dir":"/d/a"}`, got.Body)
}

func TestClient_Update(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)

	original := model.ConfigEntry{Disabled: true, Name: "A", URL: "http://x/a", DownloadDir: "/d/a"}
	working := original.Clone()
	working.Disabled = false

	require.NoError(t, c.Update(context.Background(), model.NewUpdateRequest(0, working, original)))

	got := rec.last(t)
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.JSONEq(t, `{
		"index": 0,
		"config": {"disabled":false,"name":"A","url":"http://x/a","download_dir":"/d/a"},
		"original": {"disabled":true,"name":"A","url":"http://x/a","download_dir":"/d/a"}
	}`, got.Body)
}

func TestClient_UpdateRequiresOriginal(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)

	cfg := model.ConfigEntry{Name: "A"}
	err := c.Update(context.Background(), model.UpdateRequest{Index: 0, Config: &cfg})
	assert.Error(t, err)
	assert.Empty(t, rec.requests, "no request may be sent without original")
}

func TestClient_Delete(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)

	b := model.ConfigEntry{Name: "B", URL: "http://x/b", DownloadDir: "/d/b"}
	require.NoError(t, c.Delete(context.Background(), model.NewDeleteRequest(1, b)))

	got := rec.last(t)
	assert.Equal(t, http.MethodDelete, got.Method)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(got.Body), &body))
	assert.JSONEq(t, `1`, string(body["index"]))
	assert.JSONEq(t, `{"disabled":false,"name":"B","url":"http://x/b","download_dir":"/d/b"}`, string(body["config"]))
}

func TestClient_ServerRejection(t *testing.T) {
	rec := &recorder{status: http.StatusConflict, reply: "original config not match\n"}
	c := newTestClient(t, rec)

	err := c.Create(context.Background(), model.ConfigEntry{Name: "a", URL: "u", DownloadDir: "d"})
	require.Error(t, err)

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, http.MethodPut, serr.Method)
	assert.Contains(t, serr.Error(), "original config not match")
}

func TestClient_StatusAndTrigger(t *testing.T) {
	rec := &recorder{reply: `{"running":true}`}
	c := newTestClient(t, rec)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, StatusPath, rec.last(t).Path)

	require.NoError(t, c.TriggerJob(context.Background()))
	assert.Equal(t, StartJobPath, rec.last(t).Path)
	assert.Equal(t, http.MethodGet, rec.last(t).Method)
}

func TestClient_TransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	_, err := c.List(context.Background())
	assert.Error(t, err)
}
