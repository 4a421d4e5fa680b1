package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"autoria-scraper/internal/database"
	"autoria-scraper/internal/scraper"
)

// Handlers exposes operational endpoints: health, the last run summary and
// manual scrape/dump triggers for operators. The daily scheduler remains the
// primary trigger.
type Handlers struct {
	scraper *scraper.Scraper
	dumper  *database.Dumper
	logger  *slog.Logger
}

func NewHandlers(s *scraper.Scraper, dumper *database.Dumper, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: s,
		dumper:  dumper,
		logger:  logger.With("component", "api"),
	}
}

// Router builds the chi router with middleware and all routes mounted.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs/last", h.GetLastRun)
		r.Post("/scrape", h.TriggerScrape)
		r.Post("/dump", h.TriggerDump)
	})

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"scrape_running": h.scraper.Running(),
	})
}

// GetLastRun returns the summary of the most recent finished run.
func (h *Handlers) GetLastRun(w http.ResponseWriter, r *http.Request) {
	last := h.scraper.LastRun()
	if last == nil {
		h.respondError(w, http.StatusNotFound, "no runs yet")
		return
	}

	h.respondJSON(w, http.StatusOK, last)
}

// TriggerScrape starts a run in the background. Overlapping runs are
// rejected rather than queued.
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	if h.scraper.Running() {
		h.respondError(w, http.StatusConflict, "scrape already running")
		return
	}

	go func() {
		summary, err := h.scraper.Scrape(context.Background())
		if err != nil && !errors.Is(err, scraper.ErrRunInProgress) {
			h.logger.Error("manual scrape failed", "run_id", summary.RunID, "error", err)
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// TriggerDump runs pg_dump synchronously and reports the dump file.
func (h *Handlers) TriggerDump(w http.ResponseWriter, r *http.Request) {
	file, err := h.dumper.CreateDump(r.Context())
	if err != nil {
		h.logger.Error("manual dump failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "dump failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"file": file})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
