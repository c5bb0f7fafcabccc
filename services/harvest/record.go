package harvest

import (
	"database/sql"
	"time"

	"ogsl-backend/services/catalog/store"
)

// PlaceholderTitle is substituted when a remote record carries no title at
// all. Dataset titles are never empty.
const PlaceholderTitle = "Untitled"

// SentinelTheme is associated with datasets for which no tags were
// discovered.
const SentinelTheme = "Uncategorized"

type OrganizationRef struct {
	Name        string
	Description string
	Website     string
}

// Record is the canonical intermediate shape every strategy normalizes
// remote records into before upserting.
type Record struct {
	Title           string
	Description     string
	URL             string
	PublicationDate string
	Organization    *OrganizationRef
	Themes          []string
}

// Report is the structured outcome of one harvest invocation. Failures never
// propagate as errors to the caller; they are absorbed here.
type Report struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Reasons  []string `json:"reasons,omitempty"`
}

func (r *Report) fail(reason string) {
	r.Failed++
	r.Reasons = append(r.Reasons, reason)
}

// resolveDataset decides between keeping an existing row and building a new
// one from the incoming record. Existing rows win: their fields are never
// overwritten by later harvests.
func resolveDataset(existing *store.Dataset, rec Record, sourceID int64, orgID sql.NullInt64) (row store.Dataset, create bool) {
	if existing != nil {
		return *existing, false
	}
	return store.Dataset{
		Title:           rec.Title,
		Description:     rec.Description,
		PublicationDate: rec.PublicationDate,
		URL:             rec.URL,
		SourceID:        sourceID,
		OrganizationID:  orgID,
	}, true
}

// parseRemoteDate applies the lossy date policy shared by the strategies:
// take the first 10 characters of the raw value, parse as YYYY-MM-DD, and on
// absence or parse failure fall back to the given day.
func parseRemoteDate(raw string, fallback time.Time) string {
	if len(raw) >= 10 {
		day, err := time.Parse(store.DateFormat, raw[:10])
		if err == nil {
			return day.Format(store.DateFormat)
		}
	}
	return fallback.Format(store.DateFormat)
}
