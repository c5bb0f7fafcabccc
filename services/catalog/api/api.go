// Package api exposes the catalog read surface consumed by the dashboard
// and the public portal, plus a harvest trigger.
package api

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"

	"ogsl-backend/services/catalog/store"
	"ogsl-backend/services/harvest"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/catalog/api")

// renameMap folds source name spelling variants into one chart label.
var renameMap = map[string]string{
	"Open Gouv":      "OpenGouv",
	"open gouv":      "OpenGouv",
	"Donnees Quebec": "Données Québec",
	"Borealis":       "Boréalis",
}

type Service struct {
	store   store.Store
	harvest *harvest.Service
}

func New(st store.Store, hv *harvest.Service) *Service {
	return &Service{store: st, harvest: hv}
}

func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	mux.HandleFunc("GET /api/datasets", s.handleListDatasets)
	mux.HandleFunc("GET /api/datasets-by-source", s.handleDatasetsBySource)
	mux.HandleFunc("GET /api/datasets-by-theme", s.handleDatasetsByTheme)
	mux.HandleFunc("GET /api/map-points", s.handleMapPoints)
	mux.HandleFunc("POST /api/harvest", s.handleHarvest)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleStats")
	defer span.End()

	counts, err := s.store.Counts(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count entities")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type sourceBody struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	IsActive    *bool  `json:"is_active"`
}

func (s *Service) handleListSources(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleListSources")
	defer span.End()

	sources, err := s.store.ListSources(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sources")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type sourceOut struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		BaseURL     string `json:"base_url"`
		Description string `json:"description"`
		Kind        string `json:"kind"`
		IsActive    bool   `json:"is_active"`
	}
	out := make([]sourceOut, len(sources))
	for i, src := range sources {
		out[i] = sourceOut{
			ID:          src.ID,
			Name:        src.Name,
			BaseURL:     src.BaseURL,
			Description: src.Description,
			Kind:        src.Kind,
			IsActive:    src.IsActive,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleCreateSource")
	defer span.End()

	var body sourceBody
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Name == "" || body.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "name and base_url are required")
		return
	}

	active := true
	if body.IsActive != nil {
		active = *body.IsActive
	}
	kind := body.Kind
	if kind == "" {
		kind = harvest.InferKind(body.Name)
	}
	src, err := s.store.CreateSource(ctx, store.Source{
		Name:        body.Name,
		BaseURL:     body.BaseURL,
		Description: body.Description,
		Kind:        kind,
		IsActive:    active,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create source")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": src.ID})
}

func (s *Service) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleListDatasets")
	defer span.End()

	sourceID, _ := strconv.ParseInt(r.URL.Query().Get("source_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	datasets, err := s.store.ListDatasets(ctx, sourceID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list datasets")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type datasetOut struct {
		ID              int64  `json:"id"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		PublicationDate string `json:"publication_date"`
		LastUpdate      string `json:"last_update"`
		URL             string `json:"url"`
		SourceID        int64  `json:"source_id"`
	}
	out := make([]datasetOut, len(datasets))
	for i, ds := range datasets {
		out[i] = datasetOut{
			ID:              ds.ID,
			Title:           ds.Title,
			Description:     ds.Description,
			PublicationDate: ds.PublicationDate,
			LastUpdate:      ds.LastUpdate,
			URL:             ds.URL,
			SourceID:        ds.SourceID,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleDatasetsBySource(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDatasetsBySource")
	defer span.End()

	counts, err := s.store.DatasetCountBySource(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count by source")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	labels := make([]string, len(counts))
	values := make([]int64, len(counts))
	for i, c := range counts {
		label := c.Source
		if renamed, ok := renameMap[label]; ok {
			label = renamed
		}
		labels[i] = label
		values[i] = c.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"labels": labels,
		"counts": values,
	})
}

func (s *Service) handleDatasetsByTheme(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDatasetsByTheme")
	defer span.End()

	counts, err := s.store.DatasetCountByTheme(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count by theme")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleMapPoints serves the portal map preview. Datasets without
// coordinates get simulated ones inside the St. Lawrence corridor, as the
// portal has no real geocoding yet.
func (s *Service) handleMapPoints(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleMapPoints")
	defer span.End()

	missing, err := s.store.DatasetsMissingLocation(ctx, 100)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list datasets missing location")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, id := range missing {
		lat := 45.0 + rand.Float64()*(49.5-45.0)
		lng := -79.5 + rand.Float64()*(-65.0-(-79.5))
		err := s.store.SetDatasetLocation(ctx, id, lat, lng)
		if err != nil {
			slog.WarnContext(ctx, "failed to set dataset location", "id", id, "err", err)
		}
	}

	points, err := s.store.DatasetPoints(ctx, 50)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list dataset points")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Service) handleHarvest(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleHarvest")
	defer span.End()

	var req harvest.HarvestRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SourceID == 0 {
		writeError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	report := s.harvest.Harvest(ctx, req)
	writeJSON(w, http.StatusOK, report)
}
