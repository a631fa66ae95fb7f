// Package api exposes the measurement query and import procedures over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/septivank/energy-measurements-api/internal/config"
	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/internal/importer"
	"github.com/septivank/energy-measurements-api/internal/query"
	"github.com/septivank/energy-measurements-api/internal/repository"
	"github.com/septivank/energy-measurements-api/internal/resample"
	"github.com/septivank/energy-measurements-api/tools/timeparser"
	"go.uber.org/zap"
)

// QueryService is what the handlers need from the query orchestrator.
type QueryService interface {
	GetAllMeasurements(ctx context.Context, params query.Params) (*query.Page, error)
	GetTimeInterval(ctx context.Context) (*query.Interval, error)
	GetLatest(ctx context.Context) (*db.Measurement, error)
}

// ImportService is what the handlers need from the importer.
type ImportService interface {
	Import(ctx context.Context) (*importer.Result, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handlers for the measurements API.
type Handler struct {
	queries  QueryService
	importer ImportService
	pinger   Pinger
	queryCfg config.QueryConfig
}

// NewHandler creates a Handler.
func NewHandler(queries QueryService, imp ImportService, pinger Pinger, queryCfg config.QueryConfig) *Handler {
	return &Handler{
		queries:  queries,
		importer: imp,
		pinger:   pinger,
		queryCfg: queryCfg,
	}
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(h *Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestID(logger))

	r.Get("/healthz", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/measurements", h.GetAllMeasurements)
		r.Get("/measurements/interval", h.GetTimeInterval)
		r.Get("/measurements/latest", h.GetLatest)
		r.Post("/import", h.Import)
	})

	return r
}

// GetAllMeasurements serves one page of chart data.
func (h *Handler) GetAllMeasurements(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseQueryParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.queries.GetAllMeasurements(r.Context(), *params)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GetTimeInterval serves the stored min/max timestamps.
func (h *Handler) GetTimeInterval(w http.ResponseWriter, r *http.Request) {
	interval, err := h.queries.GetTimeInterval(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, interval)
}

// GetLatest serves the newest measurement, or a JSON null when the store is
// empty. An empty store is not an error here.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.queries.GetLatest(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, latest)
}

// Import triggers the one-time bulk load.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.importer.Import(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) parseQueryParams(r *http.Request) (*query.Params, error) {
	q := r.URL.Query()

	muid := q.Get("muid")
	if muid == "" {
		return nil, errors.New("muid is required")
	}

	params := &query.Params{
		Muid:  muid,
		Limit: h.queryCfg.DefaultLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > h.queryCfg.MaxLimit {
			return nil, fmt.Errorf("limit must be an integer between 1 and %d", h.queryCfg.MaxLimit)
		}
		params.Limit = limit
	}

	if raw := q.Get("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 1 {
			return nil, errors.New("cursor must be a positive integer")
		}
		params.Cursor = cursor
	}

	start, err := parseInstantParam(q.Get("start"))
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := parseInstantParam(q.Get("end"))
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, errors.New("start must not be after end")
	}
	params.Start = start
	params.End = end

	bucketRaw := q.Get("bucketMinutes")
	intervalRaw := q.Get("interval")
	if bucketRaw != "" && intervalRaw != "" {
		return nil, errors.New("bucketMinutes and interval are mutually exclusive")
	}

	switch {
	case intervalRaw != "":
		granularity, err := resample.ParseGranularity(intervalRaw)
		if err != nil {
			return nil, err
		}
		params.Granularity = granularity
		if raw := q.Get("withAverage"); raw != "" {
			withAverage, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, errors.New("withAverage must be a boolean")
			}
			params.WithAverage = withAverage
		}

	default:
		minutes := h.queryCfg.DefaultBucketMinutes
		if bucketRaw != "" {
			parsed, err := strconv.Atoi(bucketRaw)
			if err != nil || parsed < h.queryCfg.MinBucketMinutes || parsed > h.queryCfg.MaxBucketMinutes {
				return nil, fmt.Errorf("bucketMinutes must be an integer between %d and %d",
					h.queryCfg.MinBucketMinutes, h.queryCfg.MaxBucketMinutes)
			}
			minutes = parsed
		}
		params.BucketWidth = time.Duration(minutes) * time.Minute
	}

	return params, nil
}

func parseInstantParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := timeparser.ParseInstant(raw)
	if err != nil {
		return nil, errors.New("must be an RFC3339 instant")
	}
	return &t, nil
}

// respondServiceError maps domain failures to status codes. Anything
// unmapped is a 500 and gets logged with its request id.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *importer.UpstreamError

	switch {
	case errors.Is(err, importer.ErrAlreadyImported):
		respondError(w, http.StatusConflict, "data already imported")
	case errors.As(err, &upstream):
		respondError(w, http.StatusBadGateway, upstream.Error())
	case errors.Is(err, repository.ErrEmptyStore):
		respondError(w, http.StatusNotFound, "no measurements in store")
	default:
		loggerFrom(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
