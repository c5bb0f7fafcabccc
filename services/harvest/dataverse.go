package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ogsl-backend/services/catalog/store"

	"github.com/go-resty/resty/v2"
)

type dataverseSearchResponse struct {
	Data struct {
		Items []dataverseItem `json:"items"`
	} `json:"data"`
}

type dataverseItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// dataverseHarvester issues a single search call against a Dataverse
// installation. Everything it finds is attributed to the UQAR marine
// research organization; the payload carries no usable attribution.
type dataverseHarvester struct {
	http *resty.Client
	pipe upserter
	now  func() time.Time
}

func (h *dataverseHarvester) Run(ctx context.Context, src store.Source, query string, maxResults int) Report {
	ctx, span := tracer.Start(ctx, "dataverse:Run")
	defer span.End()

	report := Report{}
	base := strings.TrimRight(src.BaseURL, "/")
	apiURL := base + "/api/search"

	// one page of 100 only; catalogs past that are not covered
	res, err := h.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        query,
			"type":     "dataset",
			"per_page": "100",
		}).
		SetResult(&dataverseSearchResponse{}).
		Get(apiURL)
	if err != nil {
		slog.WarnContext(ctx, "dataverse fetch failed", "url", apiURL, "err", err)
		report.fail(fmt.Sprintf("fetch failed: %s", err))
		return report
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "dataverse fetch returned non-200", "url", apiURL, "status", res.StatusCode())
		report.fail(fmt.Sprintf("http %d", res.StatusCode()))
		return report
	}

	today := h.now().Format(store.DateFormat)
	body := res.Result().(*dataverseSearchResponse)
	for _, item := range body.Data.Items {
		rec := Record{
			Title:           item.Name,
			Description:     item.Description,
			URL:             item.URL,
			PublicationDate: today,
			Organization: &OrganizationRef{
				Name:        "Université du Québec à Rimouski (UQAR)",
				Description: "Institut des sciences de la mer (ISMER)",
			},
			Themes: []string{"Écophysiologie marine"},
		}
		if rec.Description == "" {
			rec.Description = "Aucune description"
		}
		if rec.URL == "" {
			rec.URL = src.BaseURL
		}
		_, err := h.pipe.upsert(ctx, rec, src)
		if err != nil {
			slog.WarnContext(ctx, "failed to upsert dataset", "title", rec.Title, "err", err)
			report.fail(fmt.Sprintf("upsert %q: %s", rec.Title, err))
			continue
		}
		report.Imported++
	}

	slog.InfoContext(ctx, "dataverse harvest done", "source", src.Name, "imported", report.Imported)
	return report
}
