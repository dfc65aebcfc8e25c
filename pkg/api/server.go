// Package api serves a read-only HTTP view of a run directory and, while a
// collection is running, its live counters.
//
// Routes:
//
//	GET /healthz
//	GET /v1/stats                 live collector counters
//	GET /v1/dataset               sample and split totals of the run directory
//	GET /v1/samples?limit=N       sample ids, oldest first; limit keeps the newest N
//	GET /v1/samples/{id}          sample sidecar
//	GET /v1/samples/{id}/image    sample JPEG
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/domrand/pkg/buildinfo"
	"github.com/matzehuels/domrand/pkg/dataset"
	"github.com/matzehuels/domrand/pkg/errors"
	"github.com/matzehuels/domrand/pkg/observability"
	"github.com/matzehuels/domrand/pkg/recorder"
)

// DefaultLimit caps /v1/samples when no limit is given.
const DefaultLimit = 1000

// StatsSource provides live counters.
type StatsSource interface {
	Snapshot() observability.Snapshot
}

// Options configures a Server.
type Options struct {
	// Dir is the run directory served under /v1/samples.
	Dir string
	// Stats is nil when no collection runs in this process.
	Stats    StatsSource
	ValRatio float64
	Logger   *log.Logger
}

// Server is the status HTTP server.
type Server struct {
	dir      string
	stats    StatsSource
	valRatio float64
	logger   *log.Logger
	router   chi.Router
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		dir:      opts.Dir,
		stats:    opts.Stats,
		valRatio: opts.ValRatio,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.valRatio == 0 {
		s.valRatio = dataset.DefaultValRatio
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.liveStats)
		r.Get("/dataset", s.datasetStats)
		r.Get("/samples", s.listSamples)
		r.Route("/samples/{id}", func(r chi.Router) {
			r.Use(validID)
			r.Get("/", s.getSample)
			r.Get("/image", s.getImage)
		})
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("status server listening", "addr", addr)

	select {
	case err := <-errc:
		return errors.Wrap(errors.ErrCodeInternal, err, "status server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "shutdown status server")
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(errors.ErrCodeInternal, err, "status server")
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func validID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "id"); !recorder.ValidID(id) {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "malformed sample id %q", id))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
		"run":     filepath.Base(s.dir),
	})
}

func (s *Server) liveStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no collection is running"))
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) datasetStats(w http.ResponseWriter, _ *http.Request) {
	st, err := dataset.ComputeStats(s.dir, s.valRatio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type sampleList struct {
	Total int      `json:"total"`
	IDs   []string `json:"ids"`
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	ids, err := recorder.List(s.dir)
	if err != nil {
		writeError(w, err)
		return
	}
	out := sampleList{Total: len(ids), IDs: ids}
	if len(ids) > limit {
		out.IDs = ids[len(ids)-limit:]
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSample(w http.ResponseWriter, r *http.Request) {
	rec, err := s.record(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	rec, err := s.record(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, recorder.ImageFile(s.dir, rec))
}

func (s *Server) record(r *http.Request) (recorder.Record, error) {
	id := chi.URLParam(r, "id")
	return recorder.ReadRecord(filepath.Join(s.dir, id+recorder.MetadataExt))
}

type errorBody struct {
	Error struct {
		Code    errors.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	body.Error.Code = errors.GetCode(err)
	if body.Error.Code == "" {
		body.Error.Code = errors.ErrCodeInternal
	}
	body.Error.Message = errors.UserMessage(err)
	writeJSON(w, statusFor(body.Error.Code), body)
}

func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
