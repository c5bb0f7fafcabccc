package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ogsl-backend/lib/render"
	"ogsl-backend/lib/testutil"
	"ogsl-backend/services/catalog/store"
	"ogsl-backend/services/harvest"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (store.Store, *http.ServeMux) {
	db, cleanup := testutil.SetupDB(t, store.Schema)
	t.Cleanup(cleanup)
	st := store.New(db)

	mux := http.NewServeMux()
	New(st, harvest.NewService(st, render.Chrome{})).Register(mux)
	return st, mux
}

func do(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStats(t *testing.T) {
	st, mux := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	src, err := st.CreateSource(ctx, store.Source{Name: "Open Gouv", BaseURL: "https://ouvert.canada.ca", IsActive: true})
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, store.Dataset{Title: "a", SourceID: src.ID})
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, store.Dataset{Title: "b", SourceID: src.ID})
	require.NoError(t, err)

	rec := do(t, mux, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var counts struct {
		Sources  int64 `json:"sources_count"`
		Datasets int64 `json:"datasets_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.EqualValues(t, 1, counts.Sources)
	require.EqualValues(t, 2, counts.Datasets)
}

func TestCreateAndListSources(t *testing.T) {
	_, mux := setup(t)

	rec := do(t, mux, "POST", "/api/sources", `{"name":"CanWin Data Hub","base_url":"https://canwindatahub.ad.umanitoba.ca"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, "POST", "/api/sources", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, "GET", "/api/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sources []struct {
		Name     string `json:"name"`
		Kind     string `json:"kind"`
		IsActive bool   `json:"is_active"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	require.Equal(t, "CanWin Data Hub", sources[0].Name)
	// kind was omitted in the request, so it is inferred from the name
	require.Equal(t, harvest.KindRendered, sources[0].Kind)
	require.True(t, sources[0].IsActive)
}

func TestDatasetsBySourceRenames(t *testing.T) {
	st, mux := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	src, err := st.CreateSource(ctx, store.Source{Name: "Open Gouv", BaseURL: "https://ouvert.canada.ca", IsActive: true})
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, store.Dataset{Title: "a", SourceID: src.ID})
	require.NoError(t, err)

	rec := do(t, mux, "GET", "/api/datasets-by-source", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Labels []string `json:"labels"`
		Counts []int64  `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"OpenGouv"}, body.Labels)
	require.Equal(t, []int64{1}, body.Counts)
}

func TestListDatasets(t *testing.T) {
	st, mux := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	src, err := st.CreateSource(ctx, store.Source{Name: "Open Gouv", BaseURL: "https://ouvert.canada.ca", IsActive: true})
	require.NoError(t, err)
	other, err := st.CreateSource(ctx, store.Source{Name: "Boréalis", BaseURL: "https://borealisdata.ca", IsActive: true})
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, store.Dataset{Title: "a", SourceID: src.ID})
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, store.Dataset{Title: "b", SourceID: other.ID})
	require.NoError(t, err)

	rec := do(t, mux, "GET", "/api/datasets?source_id="+itoa(src.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var datasets []struct {
		Title    string `json:"title"`
		SourceID int64  `json:"source_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &datasets))
	require.Len(t, datasets, 1)
	require.Equal(t, "a", datasets[0].Title)
}

func TestMapPointsSimulatesMissingCoordinates(t *testing.T) {
	st, mux := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	src, err := st.CreateSource(ctx, store.Source{Name: "Open Gouv", BaseURL: "https://ouvert.canada.ca", IsActive: true})
	require.NoError(t, err)
	for _, title := range []string{"a", "b", "c"} {
		_, err := st.CreateDataset(ctx, store.Dataset{Title: title, SourceID: src.ID})
		require.NoError(t, err)
	}

	rec := do(t, mux, "GET", "/api/map-points", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var points []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 3)
	for _, p := range points {
		require.GreaterOrEqual(t, p.Latitude, 45.0)
		require.LessOrEqual(t, p.Latitude, 49.5)
		require.GreaterOrEqual(t, p.Longitude, -79.5)
		require.LessOrEqual(t, p.Longitude, -65.0)
	}

	ids, err := st.DatasetsMissingLocation(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestHarvestEndpoint(t *testing.T) {
	_, mux := setup(t)

	rec := do(t, mux, "POST", "/api/harvest", `{"source_id":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// an unknown source is absorbed into the report, not an http error
	rec = do(t, mux, "POST", "/api/harvest", `{"source_id":999}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Imported int      `json:"imported"`
		Failed   int      `json:"failed"`
		Reasons  []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 0, report.Imported)
	require.Equal(t, 1, report.Failed)
	require.NotEmpty(t, report.Reasons)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
