package harvest

import (
	"net/url"
	"strings"

	"ogsl-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Selector tiers for rendered CKAN-ish listing pages. Each tier is tried in
// order and the first selector that matches anything wins, which keeps the
// extraction working across differing portal templates.
var (
	cardSelectors  = []string{"div.dataset-item", "div.dataset", "div.card"}
	titleSelectors = []string{"h3 a", "h2 a", "a.dataset-heading", "a[href*='/data/dataset/']"}
	descSelectors  = []string{".notes", ".dataset-description", "p"}
	nextSelectors  = []string{"a[rel='next']", "li.next a", "a.next"}
)

var nextLabels = map[string]bool{
	"next":    true,
	"suivant": true,
	"»":       true,
}

// candidate is a scraped listing entry. It deliberately holds nothing but
// plain values: persistence consumes candidates only after the browser
// session that produced them is closed.
type candidate struct {
	Title       string
	URL         string
	Description string
}

func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		found := root.Find(sel)
		if found.Length() > 0 {
			return found
		}
	}
	return nil
}

// extractCards pulls dataset candidates out of one rendered listing page. A
// card without a title anchor or without a usable href is dropped; skipped
// counts those drops.
func extractCards(doc *goquery.Document, base *url.URL) (cards []candidate, skipped int) {
	found := firstMatch(doc.Selection, cardSelectors)
	if found == nil {
		return nil, 0
	}

	found.Each(func(_ int, card *goquery.Selection) {
		anchor := firstMatch(card, titleSelectors)
		if anchor == nil {
			skipped++
			return
		}
		anchor = anchor.First()

		title := htmlutil.CleanText(anchor.Text())
		link := htmlutil.AbsoluteURL(base, anchor.AttrOr("href", ""))
		if link == "" {
			skipped++
			return
		}

		desc := ""
		if d := firstMatch(card, descSelectors); d != nil {
			desc = htmlutil.CleanText(d.First().Text())
		}

		cards = append(cards, candidate{
			Title:       title,
			URL:         link,
			Description: desc,
		})
	})
	return cards, skipped
}

// nextPageURL locates the pagination control on a listing page and returns
// the absolute URL it points at, or "" when there is none. Both attribute
// conventions and plain "Next"/"Suivant" link labels are recognized.
func nextPageURL(doc *goquery.Document, base *url.URL) string {
	for _, sel := range nextSelectors {
		found := doc.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		link := htmlutil.AbsoluteURL(base, found.AttrOr("href", ""))
		if link != "" {
			return link
		}
	}

	next := ""
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label := strings.ToLower(htmlutil.CleanText(a.Text()))
		if !nextLabels[label] {
			return true
		}
		link := htmlutil.AbsoluteURL(base, a.AttrOr("href", ""))
		if link == "" {
			return true
		}
		next = link
		return false
	})
	return next
}
