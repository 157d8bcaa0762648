package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inflatable-cookie/effigy-sub000/internal/metrics"
	"github.com/inflatable-cookie/effigy-sub000/internal/process"
)

// Source reports the per-process diagnostics served by the router.
type Source interface {
	ExitDiagnostics() []process.Diagnostic
}

// Router serves a read-only view of a running session.
// Endpoints:
//
//	GET {basePath}/metrics     prometheus exposition of g
//	GET {basePath}/processes   all processes, or one with ?name=...
//	GET {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      Source
	gatherer prometheus.Gatherer
	basePath string
}

// NewRouter constructs a Router. A nil gatherer disables /metrics.
func NewRouter(src Source, g prometheus.Gatherer, basePath string) *Router {
	return &Router{src: src, gatherer: g, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.gatherer != nil {
		group.GET("/metrics", gin.WrapH(metrics.Handler(r.gatherer)))
	}
	group.GET("/processes", r.handleProcesses)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	return g
}

// NewServer binds addr and serves the router until the returned server is
// shut down. Bind errors are returned; later serve errors are logged.
func NewServer(addr, basePath string, src Source, g prometheus.Gatherer, log *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	r := NewRouter(src, g, basePath)
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
			log.Warn("diagnostics server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type processResp struct {
	Name       string `json:"name"`
	Diagnostic string `json:"diagnostic"`
	Running    bool   `json:"running"`
}

func toResp(d process.Diagnostic) processResp {
	return processResp{Name: d.Name, Diagnostic: d.Diagnostic, Running: d.Diagnostic == "running"}
}

func (r *Router) handleProcesses(c *gin.Context) {
	diags := r.src.ExitDiagnostics()
	name := c.Query("name")
	if name == "" {
		out := make([]processResp, 0, len(diags))
		for _, d := range diags {
			out = append(out, toResp(d))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		writeJSON(c, http.StatusOK, out)
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name"})
		return
	}
	for _, d := range diags {
		if d.Name == name {
			writeJSON(c, http.StatusOK, toResp(d))
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown process: " + name})
}
