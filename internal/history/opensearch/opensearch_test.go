package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sasswatch/internal/history"
	"github.com/loykin/sasswatch/internal/store"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var body []byte
	var path, method, contentType string
	var user, pass string
	var hasAuth bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		contentType = r.Header.Get("Content-Type")
		user, pass, hasAuth = r.BasicAuth()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(Options{BaseURL: server.URL + "/", Index: "watch-history", Username: "elastic", Password: "pw"})
	rec := store.Record{Dir: "/project/scss", PID: 12345, Target: "/project/css", StartedAt: time.Now().UTC()}
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventLaunched, OccurredAt: time.Now(), Record: rec}))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/watch-history/_doc", path)
	assert.Equal(t, "application/json", contentType)
	require.True(t, hasAuth)
	assert.Equal(t, "elastic", user)
	assert.Equal(t, "pw", pass)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "launched", got["event"])
	assert.Equal(t, rec.Dir, got["dir"])
	assert.Equal(t, float64(rec.PID), got["pid"])
	assert.Contains(t, got, "@timestamp")
	assert.Contains(t, got, "started_at")
	assert.NotContains(t, got, "error")
}

func TestOpenSearchSink_FailedLaunchDocument(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth := r.Header["Authorization"]
		assert.False(t, hasAuth)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := New(Options{BaseURL: server.URL, Index: "idx"})
	e := history.Event{Type: history.EventLaunchFailed, OccurredAt: time.Now(), Record: store.Record{Dir: "/x"}, Error: "process killed"}
	require.NoError(t, sink.Send(context.Background(), e))
	assert.Equal(t, "process killed", got["error"])
	assert.NotContains(t, got, "pid")
	assert.NotContains(t, got, "started_at")
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer server.Close()

	sink := New(Options{BaseURL: server.URL, Index: "watch-history"})
	err := sink.Send(context.Background(), history.Event{Type: history.EventCleared, Record: store.Record{Dir: "/x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch sink status 400")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestNew_Defaults(t *testing.T) {
	s := New(Options{BaseURL: "http://h:9200//", Index: "i"})
	assert.Equal(t, "http://h:9200/i/_doc", s.docURL)
	assert.Equal(t, 5*time.Second, s.client.Timeout)
}
