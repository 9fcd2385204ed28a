package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/registry"
	"github.com/loykin/sasswatch/internal/watchlist"
)

// Watches is the part of the registry the router drives.
type Watches interface {
	Launch(ctx context.Context, sourceDir, projectRoot string, cfg config.Compiler) (string, error)
	Clear(sourceDir, projectRoot string) bool
	ClearAll()
	Relaunch(ctx context.Context, projectRoot string, cfg config.Compiler) []registry.Outcome
	Snapshot() map[string]registry.Entry
}

// Router provides embeddable HTTP handlers for managing watches.
// Endpoints:
//
//	POST   {basePath}/watches       body: {"dir": "..."}
//	DELETE {basePath}/watches       query: dir=...
//	DELETE {basePath}/watches/all
//	GET    {basePath}/watches
//	POST   {basePath}/relaunch
//	GET    {basePath}/dirs
//	POST   {basePath}/dirs          body: {"dir": "...", "launch": true}
//	DELETE {basePath}/dirs          query: dir=...
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	watches     Watches
	pending     *watchlist.List
	projectRoot string
	compiler    func() config.Compiler
	basePath    string
}

// NewRouter constructs a new Router. compiler is called per request so a
// reloaded config takes effect without rebuilding the router.
func NewRouter(w Watches, pending *watchlist.List, projectRoot string, compiler func() config.Compiler, basePath string) *Router {
	if compiler == nil {
		compiler = config.DefaultCompiler
	}
	return &Router{
		watches:     w,
		pending:     pending,
		projectRoot: projectRoot,
		compiler:    compiler,
		basePath:    sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the endpoints on an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/watches", r.handleLaunch)
	group.DELETE("/watches", r.handleClear)
	group.DELETE("/watches/all", r.handleClearAll)
	group.GET("/watches", r.handleList)
	group.POST("/relaunch", r.handleRelaunch)
	group.GET("/dirs", r.handleDirs)
	group.POST("/dirs", r.handleAddDir)
	group.DELETE("/dirs", r.handleRemoveDir)
}

// NewServer builds an HTTP server for h with the daemon's timeouts. The
// caller owns ListenAndServe and Shutdown.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type dirReq struct {
	Dir    string `json:"dir"`
	Launch bool   `json:"launch"`
}

// WatchInfo is one live watch as reported by GET /watches.
type WatchInfo struct {
	Dir       string    `json:"dir"`
	PID       int       `json:"pid"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}

// OutcomeInfo is one relaunch result.
type OutcomeInfo struct {
	Dir     string `json:"dir"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type addResp struct {
	Added   bool   `json:"added"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrDuplicateWatch):
		return http.StatusConflict
	case errors.Is(err, watchlist.ErrNotWatched):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrProcessLaunchFailed),
		errors.Is(err, registry.ErrInvalidProcessID),
		errors.Is(err, registry.ErrWatcherFailed):
		return http.StatusBadGateway
	case errors.Is(err, registry.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeErr(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleLaunch(c *gin.Context) {
	req, ok := bindDir(c)
	if !ok {
		return
	}
	msg, err := r.watches.Launch(c.Request.Context(), req.Dir, r.projectRoot, r.compiler())
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Message: msg})
}

func (r *Router) handleClear(c *gin.Context) {
	dir, ok := queryDir(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: r.watches.Clear(dir, r.projectRoot)})
}

func (r *Router) handleClearAll(c *gin.Context) {
	r.watches.ClearAll()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleList(c *gin.Context) {
	snap := r.watches.Snapshot()
	out := make([]WatchInfo, 0, len(snap))
	for dir, e := range snap {
		out = append(out, WatchInfo{Dir: dir, PID: e.PID, Target: e.Target, StartedAt: e.StartedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleRelaunch(c *gin.Context) {
	outcomes := r.watches.Relaunch(c.Request.Context(), r.projectRoot, r.compiler())
	out := make([]OutcomeInfo, 0, len(outcomes))
	for _, o := range outcomes {
		info := OutcomeInfo{Dir: o.Dir, Message: o.Message}
		if o.Err != nil {
			info.Error = o.Err.Error()
		}
		out = append(out, info)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleDirs(c *gin.Context) {
	if r.pending == nil {
		writeJSON(c, http.StatusOK, []string{})
		return
	}
	writeJSON(c, http.StatusOK, r.pending.List())
}

func (r *Router) handleAddDir(c *gin.Context) {
	req, ok := bindDir(c)
	if !ok {
		return
	}
	if r.pending == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "no pending list configured"})
		return
	}
	resp := addResp{Added: r.pending.Add(req.Dir)}
	if req.Launch {
		msg, err := r.watches.Launch(c.Request.Context(), req.Dir, r.projectRoot, r.compiler())
		if err != nil && !errors.Is(err, registry.ErrDuplicateWatch) {
			resp.Error = err.Error()
			writeJSON(c, statusFor(err), resp)
			return
		}
		resp.Message = msg
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRemoveDir(c *gin.Context) {
	dir, ok := queryDir(c)
	if !ok {
		return
	}
	if r.pending == nil {
		writeErr(c, watchlist.ErrNotWatched)
		return
	}
	if err := r.pending.Remove(dir); err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Message: dir + " unwatched successfully"})
}
