package harvest

import (
	"context"
	"testing"
	"time"

	"ogsl-backend/lib/testutil"
	"ogsl-backend/services/catalog/store"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) store.Store {
	db, cleanup := testutil.SetupDB(t, store.Schema)
	t.Cleanup(cleanup)
	return store.New(db)
}

type spyStrategy struct {
	calls int
	last  store.Source
}

func (s *spyStrategy) Run(ctx context.Context, src store.Source, query string, maxResults int) Report {
	s.calls++
	s.last = src
	return Report{}
}

func TestRouterDispatch(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	names := []string{"CanWin Portal", "Données Québec Ouvertes", "Boréalis Data"}
	ids := map[string]int64{}
	for _, name := range names {
		src, err := st.CreateSource(ctx, store.Source{Name: name, BaseURL: "https://example.org", IsActive: true})
		require.NoError(t, err)
		ids[name] = src.ID
	}

	ckan := &spyStrategy{}
	dataverse := &spyStrategy{}
	rendered := &spyStrategy{}
	service := &Service{store: st, ckan: ckan, dataverse: dataverse, rendered: rendered}

	service.Harvest(ctx, HarvestRequest{SourceID: ids["CanWin Portal"]})
	require.Equal(t, 1, rendered.calls)
	require.Equal(t, 0, ckan.calls)
	require.Equal(t, 0, dataverse.calls)

	service.Harvest(ctx, HarvestRequest{SourceID: ids["Données Québec Ouvertes"]})
	require.Equal(t, 1, ckan.calls)

	service.Harvest(ctx, HarvestRequest{SourceID: ids["Boréalis Data"]})
	require.Equal(t, 1, dataverse.calls)
}

func TestRouterDispatchExplicitKind(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	// an explicit kind takes precedence over whatever the name suggests
	src, err := st.CreateSource(ctx, store.Source{
		Name:     "CanWin Mirror",
		BaseURL:  "https://example.org",
		Kind:     KindDataverse,
		IsActive: true,
	})
	require.NoError(t, err)

	ckan := &spyStrategy{}
	dataverse := &spyStrategy{}
	rendered := &spyStrategy{}
	service := &Service{store: st, ckan: ckan, dataverse: dataverse, rendered: rendered}

	service.Harvest(ctx, HarvestRequest{SourceID: src.ID})
	require.Equal(t, 1, dataverse.calls)
	require.Equal(t, 0, rendered.calls)
}

func TestRouterUnknownSource(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	ckan := &spyStrategy{}
	service := &Service{store: st, ckan: ckan, dataverse: ckan, rendered: ckan}

	report := service.Harvest(ctx, HarvestRequest{SourceID: 42})
	require.Equal(t, 0, ckan.calls)
	require.Equal(t, 0, report.Imported)
	require.Equal(t, 1, report.Failed)
	require.NotEmpty(t, report.Reasons)
}

func TestInferKind(t *testing.T) {
	cases := map[string]string{
		"CanWin Portal":           KindRendered,
		"canwin-datahub":          KindRendered,
		"Boréalis Data":           KindDataverse,
		"borealis mirror":         KindDataverse,
		"Données Québec Ouvertes": KindCKAN,
		"Open Gouv":               KindCKAN,
	}
	for name, want := range cases {
		require.Equal(t, want, InferKind(name), "name %q", name)
	}
}
