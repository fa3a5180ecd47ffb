// Package api exposes arbitration sessions over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/fetcher"
	"github.com/sells-group/arbiter/internal/input"
	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/session"
	"github.com/sells-group/arbiter/internal/store"
	"github.com/sells-group/arbiter/internal/tier"
)

const maxBodyBytes = 10 << 20

// Options configures a Server. Only the enricher is required.
type Options struct {
	// Store persists sessions. Nil disables saving and the session routes.
	Store store.Store
	// Sources are fetched for every request, after the request's batches.
	Sources []fetcher.Source
	// Gatherer backs /metrics. Nil uses the default prometheus registry.
	Gatherer prometheus.Gatherer
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds one request. Default: 60s.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server handles the HTTP routes.
type Server struct {
	enricher *session.Enricher
	opts     Options
	log      *zap.Logger
}

// NewServer creates a Server around e.
func NewServer(e *session.Enricher, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{enricher: e, opts: opts, log: opts.Logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Post("/arbitrate", s.handleArbitrate)
		r.Get("/tiers", s.handleTiers)
		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.requireStore)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Get("/{id}/audit", s.handleListAudit)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "session store is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type arbitrateResponse struct {
	SessionID string `json:"session_id,omitempty"`
	*session.EnrichResult
}

func (s *Server) handleArbitrate(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	save := r.URL.Query().Get("save") == "true"
	if save && s.opts.Store == nil {
		writeError(w, http.StatusBadRequest, "session store is not configured")
		return
	}

	sources := append(fetcher.FromBatches(req.Batches), s.opts.Sources...)
	res, err := s.enricher.Enrich(r.Context(), req.Property(), sources, req.MinQuorum)
	if err != nil {
		s.log.Error("arbitrate failed", zap.String("property_id", req.PropertyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "arbitration failed")
		return
	}

	resp := arbitrateResponse{EnrichResult: res}
	if save {
		sess := store.NewSession(req.PropertyID, res.Result)
		if err := s.opts.Store.SaveSession(r.Context(), sess); err != nil {
			s.log.Error("save session failed", zap.String("property_id", req.PropertyID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save session")
			return
		}
		resp.SessionID = sess.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	reg := s.enricher.Registry()
	names := r.URL.Query()["source"]
	if len(names) == 0 {
		writeJSON(w, http.StatusOK, map[string][]tier.Entry{"sources": reg.Entries()})
		return
	}
	out := make([]tier.Classification, len(names))
	for i, n := range names {
		out[i] = reg.Lookup(n)
	}
	writeJSON(w, http.StatusOK, map[string][]tier.Classification{"classifications": out})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{PropertyID: q.Get("property_id")}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	if v := q.Get("since"); v != "" {
		if filter.Since, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}

	sessions, err := s.opts.Store.ListSessions(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Session{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.opts.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.Store.ListAudit(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("field"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.AuditEntry{"audit": entries})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.log.Error("store query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store query failed")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
