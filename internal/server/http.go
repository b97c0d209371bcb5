package server

import (
	"FeeMint/internal/observability"
	"FeeMint/internal/query"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// FundLister enumerates the funds this instance manages; the engine manager
// implements it.
type FundLister interface {
	FundIDs() []string
}

// HTTPServer is the operator API: fund state, mint history, health probes.
type HTTPServer struct {
	srv *http.Server
	log zerolog.Logger
}

func NewHTTPServer(
	addr string,
	qs *query.QueryService,
	funds FundLister,
	health *observability.HealthChecker,
	log zerolog.Logger,
) *HTTPServer {
	h := &handlers{qs: qs, funds: funds, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", health.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)

	r.Route("/v1/funds", func(sr chi.Router) {
		sr.Get("/", h.listFunds)
		sr.Route("/{fundID}", func(fr chi.Router) {
			fr.Get("/state", h.getFundState)
			fr.Get("/mints", h.listMints)
			fr.Get("/summary", h.getFundSummary)
		})
	})

	return &HTTPServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		log: log.With().Str("component", "http_server").Logger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type handlers struct {
	qs    *query.QueryService
	funds FundLister
	log   zerolog.Logger
}

func (h *handlers) listFunds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"funds": h.funds.FundIDs()})
}

func (h *handlers) getFundState(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")

	resp, err := h.qs.GetFundState(r.Context(), fundID)
	if errors.Is(err, query.ErrFundNotFound) {
		writeError(w, http.StatusNotFound, "fund not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("fund_id", fundID).Msg("fund state query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listMints(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.qs.ListMints(r.Context(), fundID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("fund_id", fundID).Msg("mint list query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mints": records})
}

func (h *handlers) getFundSummary(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")

	resp, err := h.qs.GetFundSummary(r.Context(), fundID, time.Now())
	if errors.Is(err, query.ErrFundNotFound) {
		writeError(w, http.StatusNotFound, "fund not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("fund_id", fundID).Msg("fund summary query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
