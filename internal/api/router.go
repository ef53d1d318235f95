package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-transceiver/internal/journal"
	"github.com/nerrad567/gray-logic-transceiver/internal/transceiver"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/readings", func(r chi.Router) {
			r.Get("/", s.handleListReadings)
			r.Get("/{name}", s.handleGetReading)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/{name}/push", s.handlePushDevice)
		})

		r.Get("/journal", s.handleJournal)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the transceiver's health. Degraded answers 503 so
// load balancers and probes can act on the status code alone.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.transceiver.Health(r.Context())
	status := http.StatusOK
	if health.Status == transceiver.HealthDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleListReadings(w http.ResponseWriter, _ *http.Request) {
	readings := s.transceiver.Cache().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, ok := s.transceiver.Cache().Lookup(name)
	if !ok {
		writeNotFound(w, "sensor not seen: "+name)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.transceiver.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handlePushDevice runs a configuration push for one device and waits for
// it. Any device name is accepted, not only the managed ones.
func (s *Server) handlePushDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := s.transceiver.PushNow(r.Context(), name)
	if err != nil {
		s.writePushError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writePushError(w http.ResponseWriter, device string, err error) {
	switch {
	case errors.Is(err, transceiver.ErrTransportUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, transceiver.ErrBackendRejected), errors.Is(err, transceiver.ErrBackendUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		s.logger.Error("config push failed", "device", device, "error", err)
		writeInternalError(w, "config push failed")
	}
}

// handleJournal lists recent journal entries, newest first.
// Query parameters: kind (reading|push), subject, limit.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "delivery journal is disabled")
		return
	}

	q := journal.Query{
		Kind:    r.URL.Query().Get("kind"),
		Subject: r.URL.Query().Get("subject"),
	}
	switch q.Kind {
	case "", journal.KindReading, journal.KindPush:
	default:
		writeBadRequest(w, "kind must be reading or push")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	entries, err := s.journal.Recent(r.Context(), q)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "journal query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
