package harvest

import (
	"context"
	"database/sql"
	"fmt"

	"ogsl-backend/services/catalog/store"
)

// upserter persists one canonical record against a fixed source. It exists
// as an interface so strategy tests can observe persistence ordering.
type upserter interface {
	upsert(ctx context.Context, rec Record, src store.Source) (created bool, err error)
}

// pipeline resolves organizations and themes lazily and creates or refreshes
// the dataset row. There is no transaction spanning the steps; a crash can
// leave a dataset without theme associations, which a re-run repairs.
type pipeline struct {
	store store.Store
}

func (p pipeline) upsert(ctx context.Context, rec Record, src store.Source) (bool, error) {
	if rec.Title == "" {
		rec.Title = PlaceholderTitle
	}

	var orgID sql.NullInt64
	if rec.Organization != nil {
		org, _, err := p.store.GetOrCreateOrganization(ctx, rec.Organization.Name, store.Organization{
			Description: rec.Organization.Description,
			Website:     rec.Organization.Website,
		})
		if err != nil {
			return false, fmt.Errorf("failed to resolve organization: %w", err)
		}
		orgID = sql.NullInt64{Int64: org.ID, Valid: true}
	}

	existing, err := p.store.DatasetByTitle(ctx, rec.Title)
	if err != nil {
		return false, err
	}
	row, create := resolveDataset(existing, rec, src.ID, orgID)
	if create {
		row, err = p.store.CreateDataset(ctx, row)
		if err != nil {
			return false, err
		}
	} else {
		// only the last_update stamp moves on re-harvest
		err = p.store.TouchDataset(ctx, row.ID)
		if err != nil {
			return false, err
		}
	}

	themes := rec.Themes
	if len(themes) == 0 {
		themes = []string{SentinelTheme}
	}
	for _, name := range themes {
		theme, _, err := p.store.GetOrCreateTheme(ctx, name, "")
		if err != nil {
			return create, fmt.Errorf("failed to resolve theme %q: %w", name, err)
		}
		err = p.store.LinkDatasetTheme(ctx, row.ID, theme.ID)
		if err != nil {
			return create, err
		}
	}
	return create, nil
}
