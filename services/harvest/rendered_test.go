package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ogsl-backend/lib/render"
	"ogsl-backend/services/catalog/store"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	pages  map[string]string
	closed bool
}

func (s *fakeSession) Navigate(url string) (string, error) {
	content, ok := s.pages[url]
	if !ok {
		return "", fmt.Errorf("no such page %q", url)
	}
	return content, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeBrowser struct {
	session *fakeSession
	err     error
}

func (b *fakeBrowser) NewSession(ctx context.Context) (render.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.session, nil
}

// guardedPipe fails the test if a record is persisted while the browser
// session is still open.
type guardedPipe struct {
	t       *testing.T
	session *fakeSession
	inner   upserter
}

func (g guardedPipe) upsert(ctx context.Context, rec Record, src store.Source) (bool, error) {
	if !g.session.closed {
		g.t.Fatal("persistence started before the browser session was closed")
	}
	return g.inner.upsert(ctx, rec, src)
}

const canwinPage1 = `<html><body>
<div class="dataset-item"><h3><a href="/data/dataset/lake-winnipeg-chem">Lake Winnipeg Chemistry</a></h3><p>Water chemistry profiles.</p></div>
<div class="dataset-item"><h3><a href="/data/dataset/nelson-river-flow">Nelson River Flow</a></h3></div>
<div class="dataset-item"><span>malformed card, no anchor</span></div>
<a rel="next" href="/data/dataset?page=2">2</a>
</body></html>`

const canwinPage2 = `<html><body>
<div class="dataset-item"><h3><a href="/data/dataset/hudson-bay-ice">Hudson Bay Ice Cover</a></h3><p>Seasonal ice extent.</p></div>
<a href="/data/dataset">Suivant</a>
</body></html>`

func newRenderedFixture(baseURL string) *fakeSession {
	return &fakeSession{pages: map[string]string{
		baseURL + "/data/dataset":        canwinPage1,
		baseURL + "/data/dataset?page=2": canwinPage2,
	}}
}

func TestRenderedHarvest(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	baseURL := "https://canwin.example.org"
	src, err := st.CreateSource(ctx, store.Source{Name: "CanWin", BaseURL: baseURL, IsActive: true})
	require.NoError(t, err)

	session := newRenderedFixture(baseURL)
	harvester := &renderedHarvester{
		browser: &fakeBrowser{session: session},
		pipe:    guardedPipe{t: t, session: session, inner: pipeline{store: st}},
		now: func() time.Time {
			return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		},
	}

	report := harvester.Run(ctx, src, "", 100)
	require.Equal(t, 3, report.Imported)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, report.Failed)
	require.True(t, session.closed)

	ds, err := st.DatasetByTitle(ctx, "Lake Winnipeg Chemistry")
	require.NoError(t, err)
	require.NotNil(t, ds)
	require.Equal(t, baseURL+"/data/dataset/lake-winnipeg-chem", ds.URL)
	require.Equal(t, "Water chemistry profiles.", ds.Description)
	require.Equal(t, "2024-06-15", ds.PublicationDate)

	themes, err := st.ThemesForDataset(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, themes, 1)
	require.Equal(t, "Eau et climat", themes[0].Name)

	// a card without its own blurb gets the stock description
	bare, err := st.DatasetByTitle(ctx, "Nelson River Flow")
	require.NoError(t, err)
	require.NotNil(t, bare)
	require.Equal(t, "Aucune description disponible.", bare.Description)

	org, _, err := st.GetOrCreateOrganization(ctx, "University of Manitoba - CanWin Data Hub", store.Organization{})
	require.NoError(t, err)
	require.Equal(t, org.ID, ds.OrganizationID.Int64)
}

func TestRenderedMaxResults(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	baseURL := "https://canwin.example.org"
	src, err := st.CreateSource(ctx, store.Source{Name: "CanWin", BaseURL: baseURL, IsActive: true})
	require.NoError(t, err)

	session := newRenderedFixture(baseURL)
	harvester := &renderedHarvester{
		browser: &fakeBrowser{session: session},
		pipe:    pipeline{store: st},
		now:     time.Now,
	}

	report := harvester.Run(ctx, src, "", 1)
	require.Equal(t, 1, report.Imported)
}

func TestRenderedBrowserUnavailable(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	src, err := st.CreateSource(ctx, store.Source{Name: "CanWin", BaseURL: "https://canwin.example.org", IsActive: true})
	require.NoError(t, err)

	harvester := &renderedHarvester{
		browser: &fakeBrowser{err: errors.New("chrome not installed")},
		pipe:    pipeline{store: st},
		now:     time.Now,
	}

	report := harvester.Run(ctx, src, "", 100)
	require.Equal(t, 0, report.Imported)
	require.Equal(t, 1, report.Failed)

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, counts.Datasets)
}

func TestRenderedEmptyListing(t *testing.T) {
	st := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	baseURL := "https://canwin.example.org"
	src, err := st.CreateSource(ctx, store.Source{Name: "CanWin", BaseURL: baseURL, IsActive: true})
	require.NoError(t, err)

	session := &fakeSession{pages: map[string]string{
		baseURL + "/data/dataset": "<html><body><p>Nothing here.</p></body></html>",
	}}
	harvester := &renderedHarvester{
		browser: &fakeBrowser{session: session},
		pipe:    pipeline{store: st},
		now:     time.Now,
	}

	report := harvester.Run(ctx, src, "", 100)
	require.Equal(t, 0, report.Imported)
	require.True(t, session.closed)
}
