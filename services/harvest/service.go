package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ogsl-backend/lib/render"
	"ogsl-backend/lib/telemetry"
	"ogsl-backend/services/catalog/store"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/harvest")

// Strategy kinds recorded on sources. A source with an empty kind falls back
// to name inference.
const (
	KindCKAN      = "ckan"
	KindDataverse = "dataverse"
	KindRendered  = "rendered"
)

// InferKind guesses the harvesting strategy from a source name, for sources
// configured before their kind was made explicit.
func InferKind(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "canwin"):
		return KindRendered
	case strings.Contains(n, "boréalis"), strings.Contains(n, "borealis"):
		return KindDataverse
	default:
		return KindCKAN
	}
}

// strategy is one source-family-specific harvesting algorithm. Strategies
// that do not support querying or paging ignore the extra arguments.
type strategy interface {
	Run(ctx context.Context, src store.Source, query string, maxResults int) Report
}

type Service struct {
	store     store.Store
	ckan      strategy
	dataverse strategy
	rendered  strategy
}

func NewService(st store.Store, browser render.Browser) *Service {
	pipe := pipeline{store: st}
	client := newHTTPClient()
	return &Service{
		store:     st,
		ckan:      &ckanHarvester{http: client, pipe: pipe, now: time.Now},
		dataverse: &dataverseHarvester{http: client, pipe: pipe, now: time.Now},
		rendered:  &renderedHarvester{browser: browser, pipe: pipe, now: time.Now},
	}
}

func newHTTPClient() *resty.Client {
	client := resty.New()
	client.SetTimeout(time.Second * 40)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "services/harvest/http")
	return client
}

type HarvestRequest struct {
	SourceID   int64  `json:"source_id"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Harvest runs the strategy matching the source's kind. It never returns an
// error: failures are logged and folded into the report so batch callers are
// not interrupted.
func (s *Service) Harvest(ctx context.Context, req HarvestRequest) Report {
	ctx, span := tracer.Start(ctx, "Harvest")
	defer span.End()
	span.SetAttributes(attribute.Int64("source_id", req.SourceID))

	if req.MaxResults <= 0 {
		req.MaxResults = 100
	}

	src, err := s.store.SourceByID(ctx, req.SourceID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up source", "id", req.SourceID, "err", err)
		report := Report{}
		report.fail(fmt.Sprintf("failed to look up source %d: %s", req.SourceID, err))
		return report
	}
	if src == nil {
		slog.WarnContext(ctx, "unknown source", "id", req.SourceID)
		report := Report{}
		report.fail(fmt.Sprintf("source %d not found", req.SourceID))
		return report
	}

	kind := src.Kind
	if kind == "" {
		kind = InferKind(src.Name)
	}
	span.SetAttributes(attribute.String("kind", kind))
	slog.InfoContext(ctx, "starting harvest", "source", src.Name, "kind", kind, "query", req.Query)

	var report Report
	switch kind {
	case KindRendered:
		report = s.rendered.Run(ctx, *src, req.Query, req.MaxResults)
	case KindDataverse:
		report = s.dataverse.Run(ctx, *src, req.Query, req.MaxResults)
	default:
		report = s.ckan.Run(ctx, *src, req.Query, req.MaxResults)
	}

	slog.InfoContext(ctx, "harvest finished",
		"source", src.Name,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report
}
