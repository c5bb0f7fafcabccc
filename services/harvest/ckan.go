package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ogsl-backend/services/catalog/store"

	"github.com/go-resty/resty/v2"
)

const ckanPageSize = 100

type ckanSearchResponse struct {
	Result struct {
		Results []ckanPackage `json:"results"`
	} `json:"result"`
}

type ckanPackage struct {
	Title           string            `json:"title"`
	Notes           string            `json:"notes"`
	Name            string            `json:"name"`
	MetadataCreated string            `json:"metadata_created"`
	Organization    *ckanOrganization `json:"organization"`
	Tags            []ckanTag         `json:"tags"`
}

type ckanOrganization struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ckanTag struct {
	DisplayName string `json:"display_name"`
}

// ckanHarvester pages through a standard CKAN package_search endpoint.
type ckanHarvester struct {
	http *resty.Client
	pipe upserter
	now  func() time.Time
}

func (h *ckanHarvester) Run(ctx context.Context, src store.Source, query string, maxResults int) Report {
	ctx, span := tracer.Start(ctx, "ckan:Run")
	defer span.End()

	report := Report{}
	base := strings.TrimRight(src.BaseURL, "/")
	apiURL := base + "/api/3/action/package_search"
	start := 0

	for report.Imported < maxResults {
		res, err := h.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":     query,
				"rows":  strconv.Itoa(ckanPageSize),
				"start": strconv.Itoa(start),
			}).
			SetResult(&ckanSearchResponse{}).
			Get(apiURL)
		if err != nil {
			slog.WarnContext(ctx, "ckan fetch failed", "url", apiURL, "err", err)
			report.fail(fmt.Sprintf("fetch failed at start=%d: %s", start, err))
			break
		}
		if res.StatusCode() != 200 {
			slog.WarnContext(ctx, "ckan fetch returned non-200", "url", apiURL, "status", res.StatusCode())
			report.fail(fmt.Sprintf("http %d at start=%d", res.StatusCode(), start))
			break
		}

		body := res.Result().(*ckanSearchResponse)
		if len(body.Result.Results) == 0 {
			break
		}

		for _, item := range body.Result.Results {
			rec := h.extract(item, base)
			_, err := h.pipe.upsert(ctx, rec, src)
			if err != nil {
				slog.WarnContext(ctx, "failed to upsert dataset", "title", rec.Title, "err", err)
				report.fail(fmt.Sprintf("upsert %q: %s", rec.Title, err))
				continue
			}
			report.Imported++
			if report.Imported >= maxResults {
				break
			}
		}

		slog.InfoContext(ctx, "ckan page processed", "source", src.Name, "imported", report.Imported)
		start += ckanPageSize
	}

	return report
}

// extract normalizes one CKAN package into a canonical record. Missing or
// unparseable creation dates fall back to the current day rather than
// aborting the item.
func (h *ckanHarvester) extract(item ckanPackage, base string) Record {
	rec := Record{
		Title:           item.Title,
		Description:     item.Notes,
		URL:             fmt.Sprintf("%s/dataset/%s", base, item.Name),
		PublicationDate: parseRemoteDate(item.MetadataCreated, h.now()),
	}
	if item.Organization != nil {
		name := item.Organization.Title
		if name == "" {
			name = "Inconnue"
		}
		rec.Organization = &OrganizationRef{
			Name:        name,
			Description: item.Organization.Description,
			Website:     fmt.Sprintf("%s/organization/%s", base, item.Organization.Name),
		}
	}
	for _, tag := range item.Tags {
		if tag.DisplayName == "" {
			continue
		}
		rec.Themes = append(rec.Themes, tag.DisplayName)
	}
	return rec
}
