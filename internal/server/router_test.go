package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/process"
	"github.com/loykin/sasswatch/internal/registry"
	"github.com/loykin/sasswatch/internal/registry/registrytest"
	"github.com/loykin/sasswatch/internal/watchlist"
)

type env struct {
	h        http.Handler
	reg      *registry.Registry
	launcher *registrytest.Launcher
	pending  *watchlist.List
}

func setupRouter(t *testing.T, base string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{launcher: &registrytest.Launcher{}, pending: watchlist.New()}
	e.reg = registry.New(registry.Options{
		Launcher: e.launcher,
		Watchers: &registrytest.Watchers{},
		Pipeline: &registrytest.Pipeline{},
		Pending:  e.pending,
	})
	t.Cleanup(e.reg.Shutdown)
	e.h = NewRouter(e.reg, e.pending, "/proj", config.DefaultCompiler, base).Handler()
	return e
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLaunchAndList(t *testing.T) {
	e := setupRouter(t, "/api")

	rec := doReq(t, e.h, http.MethodPost, "/api/watches", map[string]string{"dir": "scss"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, registry.LaunchedMessage, decode[okResp](t, rec).Message)

	rec = doReq(t, e.h, http.MethodGet, "/api/watches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]WatchInfo](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "/proj/scss", list[0].Dir)
	assert.Equal(t, registrytest.FirstPID, list[0].PID)
}

func TestLaunchErrors(t *testing.T) {
	e := setupRouter(t, "")
	e.launcher.Results = map[string]process.Result{"/proj/broken": {Killed: true}}

	rec := doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "scss"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "scss"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[errorResp](t, rec).Error, "already being watched")

	rec = doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "broken"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "../outside"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, e.h, http.MethodPost, "/watches", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClear(t *testing.T) {
	e := setupRouter(t, "")
	doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "scss"})

	rec := doReq(t, e.h, http.MethodDelete, "/watches?dir=scss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[okResp](t, rec).OK)
	assert.Empty(t, e.reg.Snapshot())
	assert.Equal(t, []int{registrytest.FirstPID}, e.launcher.Killed())

	// clearing again is still a success
	rec = doReq(t, e.h, http.MethodDelete, "/watches?dir=scss", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(t, e.h, http.MethodDelete, "/watches", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAll(t *testing.T) {
	e := setupRouter(t, "")
	doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "a"})
	doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "b"})

	rec := doReq(t, e.h, http.MethodDelete, "/watches/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.reg.Snapshot())
	assert.Len(t, e.launcher.Killed(), 2)
}

func TestDirsAndRelaunch(t *testing.T) {
	e := setupRouter(t, "")

	rec := doReq(t, e.h, http.MethodPost, "/dirs", map[string]any{"dir": "a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[addResp](t, rec).Added)

	rec = doReq(t, e.h, http.MethodPost, "/dirs", map[string]any{"dir": "a"})
	assert.False(t, decode[addResp](t, rec).Added)

	rec = doReq(t, e.h, http.MethodPost, "/dirs", map[string]any{"dir": "b", "launch": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registry.LaunchedMessage, decode[addResp](t, rec).Message)

	rec = doReq(t, e.h, http.MethodGet, "/dirs", nil)
	assert.Equal(t, []string{"a", "b"}, decode[[]string](t, rec))

	rec = doReq(t, e.h, http.MethodPost, "/relaunch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[[]OutcomeInfo](t, rec)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Dir)
	assert.Empty(t, out[0].Error)
	assert.Equal(t, "b", out[1].Dir)
	assert.Len(t, e.reg.Snapshot(), 2)

	rec = doReq(t, e.h, http.MethodDelete, "/dirs?dir=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a unwatched successfully", decode[okResp](t, rec).Message)

	rec = doReq(t, e.h, http.MethodDelete, "/dirs?dir=a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownRegistry(t *testing.T) {
	e := setupRouter(t, "")
	e.reg.Shutdown()
	rec := doReq(t, e.h, http.MethodPost, "/watches", map[string]string{"dir": "scss"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	e := setupRouter(t, "/api")
	rec := doReq(t, e.h, http.MethodGet, "/watches", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServer(t *testing.T) {
	e := setupRouter(t, "/api")
	srv := NewServer("127.0.0.1:0", e.h)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.ReadTimeout)
	assert.NotZero(t, srv.IdleTimeout)

	rec := doReq(t, srv.Handler, http.MethodGet, "/api/watches", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
