// Package api exposes the ops HTTP surface: health, scheduler status, manual
// cycle triggers, synchronous enrichment and similarity search.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hnenricher/common"
	"hnenricher/enrichment"
	"hnenricher/orchestrator"
	"hnenricher/store"
	"hnenricher/types"
	"hnenricher/vectorstore"
)

// Scheduler runs and reports cycles.
type Scheduler interface {
	Known(name orchestrator.Cycle) bool
	Trigger(name orchestrator.Cycle) error
	Status() orchestrator.Status
}

// Pipeline is the subset of the enrichment pipeline used by handlers.
type Pipeline interface {
	EnrichNow(ctx context.Context, id string) (*types.EnrichedItem, error)
	PendingCount(ctx context.Context) (int, error)
}

// Searcher runs similarity queries over enriched items.
type Searcher interface {
	Search(ctx context.Context, text string, n int, where map[string]any) ([]vectorstore.Match, error)
}

// ItemReader reads stored item rows.
type ItemReader interface {
	Get(ctx context.Context, id string) (*store.Row, error)
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the router. Searcher, Items and Checks are optional.
type Deps struct {
	Scheduler Scheduler
	Pipeline  Pipeline
	Searcher  Searcher
	Items     ItemReader
	Checks    map[string]Pinger
	Logger    *slog.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = common.DiscardLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	RegisterHealthRoutes(r, deps.Checks)
	RegisterCycleRoutes(r, deps.Scheduler, deps.Pipeline)
	RegisterItemRoutes(r, deps.Pipeline, deps.Searcher, deps.Items, deps.Logger)
	return r
}

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "api"),
	}
}

// Start serves in the background. Listen failures are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	s.logger.Info("starting api server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, enrichment.ErrNoInvoker):
		return http.StatusNotImplemented
	case errors.Is(err, orchestrator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrUnknownCycle):
		return http.StatusNotFound
	}
	switch enrichment.CodeOf(err) {
	case enrichment.ErrorCandidateSource:
		return http.StatusUnprocessableEntity
	case enrichment.ErrorSubmit, enrichment.ErrorVectorWrite, enrichment.ErrorStoreUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
