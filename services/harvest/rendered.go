package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ogsl-backend/lib/render"
	"ogsl-backend/services/catalog/store"

	"github.com/PuerkitoBio/goquery"
)

// renderedHarvester handles catalogs whose listings only exist after
// client-side rendering. It runs in two strictly ordered phases: a scrape
// phase that drives a headless browser session and accumulates plain
// candidate values, and a persistence phase that begins only once the
// session is closed. No storage write ever happens while the browser is
// open.
type renderedHarvester struct {
	browser render.Browser
	pipe    upserter
	now     func() time.Time
}

func (h *renderedHarvester) Run(ctx context.Context, src store.Source, query string, maxResults int) Report {
	ctx, span := tracer.Start(ctx, "rendered:Run")
	defer span.End()

	report := Report{}
	cards := h.scrape(ctx, src, maxResults, &report)
	if len(cards) == 0 {
		slog.WarnContext(ctx, "no datasets detected on rendered catalog",
			"source", src.Name)
		return report
	}

	h.persist(ctx, src, cards, &report)
	return report
}

// scrape owns the browser session for its entire extent; the session is
// closed on every exit path before any candidate leaves this method.
func (h *renderedHarvester) scrape(ctx context.Context, src store.Source, maxResults int, report *Report) []candidate {
	base, err := url.Parse(src.BaseURL)
	if err != nil {
		slog.WarnContext(ctx, "invalid source base url", "url", src.BaseURL, "err", err)
		report.fail(fmt.Sprintf("invalid base url: %s", err))
		return nil
	}

	session, err := h.browser.NewSession(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "headless browser unavailable", "err", err)
		report.fail(fmt.Sprintf("renderer unavailable: %s", err))
		return nil
	}
	defer session.Close()

	listURL := strings.TrimRight(src.BaseURL, "/") + "/data/dataset"
	var scraped []candidate
	visited := map[string]bool{}

	for listURL != "" && !visited[listURL] && len(scraped) < maxResults {
		visited[listURL] = true

		content, err := session.Navigate(listURL)
		if err != nil {
			slog.WarnContext(ctx, "failed to render listing page", "url", listURL, "err", err)
			report.fail(fmt.Sprintf("render %s: %s", listURL, err))
			break
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			slog.WarnContext(ctx, "failed to parse rendered page", "url", listURL, "err", err)
			report.fail(fmt.Sprintf("parse %s: %s", listURL, err))
			break
		}

		cards, skipped := extractCards(doc, base)
		report.Skipped += skipped
		for _, c := range cards {
			scraped = append(scraped, c)
			if len(scraped) >= maxResults {
				break
			}
		}

		slog.DebugContext(ctx, "rendered page scraped",
			"url", listURL, "cards", len(cards), "total", len(scraped))
		listURL = nextPageURL(doc, base)
	}

	return scraped
}

func (h *renderedHarvester) persist(ctx context.Context, src store.Source, cards []candidate, report *Report) {
	today := h.now().Format(store.DateFormat)
	org := &OrganizationRef{
		Name:        "University of Manitoba - CanWin Data Hub",
		Description: "Plateforme canadienne des données sur le climat et l'eau.",
	}

	for _, c := range cards {
		rec := Record{
			Title:           c.Title,
			Description:     c.Description,
			URL:             c.URL,
			PublicationDate: today,
			Organization:    org,
			Themes:          []string{"Eau et climat"},
		}
		if rec.Description == "" {
			rec.Description = "Aucune description disponible."
		}
		_, err := h.pipe.upsert(ctx, rec, src)
		if err != nil {
			slog.WarnContext(ctx, "failed to upsert dataset", "title", rec.Title, "err", err)
			report.fail(fmt.Sprintf("upsert %q: %s", rec.Title, err))
			continue
		}
		report.Imported++
	}
}
