package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/catalog/store")

// DateFormat is how publication dates are stored, a bare calendar day.
const DateFormat = "2006-01-02"

type Source struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	BaseURL     string `db:"base_url"`
	Description string `db:"description"`
	Kind        string `db:"kind"`
	IsActive    bool   `db:"is_active"`
}

type Organization struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Website     string `db:"website"`
}

type Theme struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

type Dataset struct {
	ID              int64           `db:"id"`
	Title           string          `db:"title"`
	Description     string          `db:"description"`
	PublicationDate string          `db:"publication_date"`
	LastUpdate      string          `db:"last_update"`
	URL             string          `db:"url"`
	SourceID        int64           `db:"source_id"`
	OrganizationID  sql.NullInt64   `db:"organization_id"`
	Latitude        sql.NullFloat64 `db:"latitude"`
	Longitude       sql.NullFloat64 `db:"longitude"`
}

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Store {
	return Store{db: db}
}

// Open opens the catalog database at the given path (":memory:" included)
// and applies the embedded schema.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time; a single pooled connection also
	// keeps ":memory:" databases coherent and makes the pragma stick
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func (s Store) CreateSource(ctx context.Context, src Source) (Source, error) {
	ctx, span := tracer.Start(ctx, "CreateSource")
	defer span.End()

	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("sources")
	sb.Cols("name", "base_url", "description", "kind", "is_active")
	sb.Values(src.Name, src.BaseURL, src.Description, src.Kind, src.IsActive)
	query, args := sb.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create source")
		return Source{}, fmt.Errorf("failed to create source: %w", err)
	}
	src.ID, err = res.LastInsertId()
	if err != nil {
		return Source{}, err
	}
	return src, nil
}

func (s Store) SourceByID(ctx context.Context, id int64) (*Source, error) {
	ctx, span := tracer.Start(ctx, "SourceByID")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name", "base_url", "description", "kind", "is_active")
	sb.From("sources")
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var src Source
	err := s.db.GetContext(ctx, &src, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get source")
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}

func (s Store) SourceByName(ctx context.Context, name string) (*Source, error) {
	ctx, span := tracer.Start(ctx, "SourceByName")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name", "base_url", "description", "kind", "is_active")
	sb.From("sources")
	sb.Where(sb.Equal("name", name))
	query, args := sb.Build()

	var src Source
	err := s.db.GetContext(ctx, &src, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get source by name")
		return nil, fmt.Errorf("failed to get source by name: %w", err)
	}
	return &src, nil
}

func (s Store) ListSources(ctx context.Context) ([]Source, error) {
	ctx, span := tracer.Start(ctx, "ListSources")
	defer span.End()

	var sources []Source
	err := s.db.SelectContext(ctx, &sources,
		"SELECT id, name, base_url, description, kind, is_active FROM sources ORDER BY name ASC")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list sources")
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// GetOrCreateOrganization resolves an organization by name, creating it from
// the given defaults when absent. An existing row is never modified. The
// insert is INSERT OR IGNORE so concurrent resolution of the same name
// cannot produce duplicate rows.
func (s Store) GetOrCreateOrganization(ctx context.Context, name string, defaults Organization) (Organization, bool, error) {
	ctx, span := tracer.Start(ctx, "GetOrCreateOrganization")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO organizations (name, description, website) VALUES (?, ?, ?)",
		name, defaults.Description, defaults.Website)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert organization")
		return Organization{}, false, fmt.Errorf("failed to insert organization: %w", err)
	}
	inserted, _ := res.RowsAffected()

	var org Organization
	err = s.db.GetContext(ctx, &org,
		"SELECT id, name, description, website FROM organizations WHERE name = ?", name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get organization")
		return Organization{}, false, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, inserted > 0, nil
}

// GetOrCreateTheme has the same first-write-wins semantics as
// GetOrCreateOrganization.
func (s Store) GetOrCreateTheme(ctx context.Context, name, description string) (Theme, bool, error) {
	ctx, span := tracer.Start(ctx, "GetOrCreateTheme")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO themes (name, description) VALUES (?, ?)",
		name, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert theme")
		return Theme{}, false, fmt.Errorf("failed to insert theme: %w", err)
	}
	inserted, _ := res.RowsAffected()

	var theme Theme
	err = s.db.GetContext(ctx, &theme,
		"SELECT id, name, description FROM themes WHERE name = ?", name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get theme")
		return Theme{}, false, fmt.Errorf("failed to get theme: %w", err)
	}
	return theme, inserted > 0, nil
}

func (s Store) DatasetByTitle(ctx context.Context, title string) (*Dataset, error) {
	ctx, span := tracer.Start(ctx, "DatasetByTitle")
	defer span.End()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "title", "description", "publication_date", "last_update",
		"url", "source_id", "organization_id", "latitude", "longitude")
	sb.From("datasets")
	sb.Where(sb.Equal("title", title))
	query, args := sb.Build()

	var ds Dataset
	err := s.db.GetContext(ctx, &ds, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get dataset by title")
		return nil, fmt.Errorf("failed to get dataset by title: %w", err)
	}
	return &ds, nil
}

func (s Store) CreateDataset(ctx context.Context, ds Dataset) (Dataset, error) {
	ctx, span := tracer.Start(ctx, "CreateDataset")
	defer span.End()

	ds.LastUpdate = time.Now().Format(time.RFC3339)

	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("datasets")
	sb.Cols("title", "description", "publication_date", "last_update",
		"url", "source_id", "organization_id", "latitude", "longitude")
	sb.Values(ds.Title, ds.Description, ds.PublicationDate, ds.LastUpdate,
		ds.URL, ds.SourceID, ds.OrganizationID, ds.Latitude, ds.Longitude)
	query, args := sb.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create dataset")
		return Dataset{}, fmt.Errorf("failed to create dataset: %w", err)
	}
	ds.ID, err = res.LastInsertId()
	if err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// TouchDataset bumps last_update without modifying any other column.
func (s Store) TouchDataset(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "TouchDataset")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		"UPDATE datasets SET last_update = ? WHERE id = ?",
		time.Now().Format(time.RFC3339), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to touch dataset")
		return fmt.Errorf("failed to touch dataset: %w", err)
	}
	return nil
}

// LinkDatasetTheme associates a theme with a dataset. Linking an
// already-linked theme is a no-op.
func (s Store) LinkDatasetTheme(ctx context.Context, datasetID, themeID int64) error {
	ctx, span := tracer.Start(ctx, "LinkDatasetTheme")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO dataset_themes (dataset_id, theme_id) VALUES (?, ?)",
		datasetID, themeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to link dataset theme")
		return fmt.Errorf("failed to link dataset theme: %w", err)
	}
	return nil
}

func (s Store) ThemesForDataset(ctx context.Context, datasetID int64) ([]Theme, error) {
	ctx, span := tracer.Start(ctx, "ThemesForDataset")
	defer span.End()

	var themes []Theme
	err := s.db.SelectContext(ctx, &themes,
		`SELECT t.id, t.name, t.description FROM themes t
		 JOIN dataset_themes dt ON dt.theme_id = t.id
		 WHERE dt.dataset_id = ? ORDER BY t.name ASC`, datasetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get dataset themes")
		return nil, fmt.Errorf("failed to get dataset themes: %w", err)
	}
	return themes, nil
}

// ListDatasets returns the most recently published datasets, optionally
// restricted to one source. sourceID <= 0 means all sources.
func (s Store) ListDatasets(ctx context.Context, sourceID int64, limit int) ([]Dataset, error) {
	ctx, span := tracer.Start(ctx, "ListDatasets")
	defer span.End()

	if limit < 1 {
		limit = 50
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "title", "description", "publication_date", "last_update",
		"url", "source_id", "organization_id", "latitude", "longitude")
	sb.From("datasets")
	if sourceID > 0 {
		sb.Where(sb.Equal("source_id", sourceID))
	}
	sb.OrderBy("publication_date DESC")
	sb.Limit(limit)
	query, args := sb.Build()

	var datasets []Dataset
	err := s.db.SelectContext(ctx, &datasets, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list datasets")
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

type Counts struct {
	Sources       int64 `db:"sources" json:"sources_count"`
	Organizations int64 `db:"organizations" json:"organizations_count"`
	Themes        int64 `db:"themes" json:"themes_count"`
	Datasets      int64 `db:"datasets" json:"datasets_count"`
}

func (s Store) Counts(ctx context.Context) (Counts, error) {
	ctx, span := tracer.Start(ctx, "Counts")
	defer span.End()

	var c Counts
	err := s.db.GetContext(ctx, &c,
		`SELECT (SELECT COUNT(*) FROM sources) AS sources,
		        (SELECT COUNT(*) FROM organizations) AS organizations,
		        (SELECT COUNT(*) FROM themes) AS themes,
		        (SELECT COUNT(*) FROM datasets) AS datasets`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count entities")
		return Counts{}, fmt.Errorf("failed to count entities: %w", err)
	}
	return c, nil
}

type SourceCount struct {
	Source string `db:"source" json:"source"`
	Count  int64  `db:"count" json:"count"`
}

func (s Store) DatasetCountBySource(ctx context.Context) ([]SourceCount, error) {
	ctx, span := tracer.Start(ctx, "DatasetCountBySource")
	defer span.End()

	var counts []SourceCount
	err := s.db.SelectContext(ctx, &counts,
		`SELECT s.name AS source, COUNT(d.id) AS count
		 FROM sources s LEFT JOIN datasets d ON d.source_id = s.id
		 GROUP BY s.id ORDER BY s.name ASC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count datasets by source")
		return nil, fmt.Errorf("failed to count datasets by source: %w", err)
	}
	return counts, nil
}

type ThemeCount struct {
	Theme string `db:"theme" json:"theme"`
	Count int64  `db:"count" json:"count"`
}

func (s Store) DatasetCountByTheme(ctx context.Context) ([]ThemeCount, error) {
	ctx, span := tracer.Start(ctx, "DatasetCountByTheme")
	defer span.End()

	var counts []ThemeCount
	err := s.db.SelectContext(ctx, &counts,
		`SELECT t.name AS theme, COUNT(dt.dataset_id) AS count
		 FROM themes t LEFT JOIN dataset_themes dt ON dt.theme_id = t.id
		 GROUP BY t.id ORDER BY t.name ASC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count datasets by theme")
		return nil, fmt.Errorf("failed to count datasets by theme: %w", err)
	}
	return counts, nil
}

type Point struct {
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description"`
	Latitude    float64 `db:"latitude" json:"latitude"`
	Longitude   float64 `db:"longitude" json:"longitude"`
}

// DatasetPoints returns datasets that carry coordinates, for map previews.
func (s Store) DatasetPoints(ctx context.Context, limit int) ([]Point, error) {
	ctx, span := tracer.Start(ctx, "DatasetPoints")
	defer span.End()

	if limit < 1 {
		limit = 50
	}
	var points []Point
	err := s.db.SelectContext(ctx, &points,
		`SELECT title, description, latitude, longitude FROM datasets
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL LIMIT ?`, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list dataset points")
		return nil, fmt.Errorf("failed to list dataset points: %w", err)
	}
	return points, nil
}

// DatasetsMissingLocation lists ids of datasets without coordinates.
func (s Store) DatasetsMissingLocation(ctx context.Context, limit int) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "DatasetsMissingLocation")
	defer span.End()

	if limit < 1 {
		limit = 100
	}
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM datasets WHERE latitude IS NULL OR longitude IS NULL LIMIT ?", limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list datasets missing location")
		return nil, fmt.Errorf("failed to list datasets missing location: %w", err)
	}
	return ids, nil
}

func (s Store) SetDatasetLocation(ctx context.Context, id int64, latitude, longitude float64) error {
	ctx, span := tracer.Start(ctx, "SetDatasetLocation")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		"UPDATE datasets SET latitude = ?, longitude = ? WHERE id = ?",
		latitude, longitude, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set dataset location")
		return fmt.Errorf("failed to set dataset location: %w", err)
	}
	return nil
}
