package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const listingTableSelector = "table.pcq_tbl.MT10"

// ListingEntry is one instrument discovered on the listing page.
type ListingEntry struct {
	Identifier string
	Title      string
	Sector     string
	DetailURL  string
}

// ExtractListing reads the listing page and returns its instruments in page order,
// keeping the first occurrence of each identifier. Relative links are resolved against base.
// A page without the listing table yields ErrLayoutChanged.
func ExtractListing(body io.Reader, base *url.URL) ([]ListingEntry, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	table := doc.Find(listingTableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: listing table %q not found", ErrLayoutChanged, listingTableSelector)
	}

	var entries []ListingEntry
	seen := make(map[string]struct{})
	table.Find("td").Each(func(_ int, cell *goquery.Selection) {
		anchor := cell.Find("a").First()
		if anchor.Length() == 0 {
			return
		}
		title := strings.TrimSpace(anchor.Text())
		href, ok := anchor.Attr("href")
		if title == "" || !ok || strings.TrimSpace(href) == "" {
			return
		}

		detailURL, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			detailURL = base.ResolveReference(detailURL)
		}

		identifier, sector, ok := InstrumentFromURL(detailURL)
		if !ok {
			return
		}
		if _, dup := seen[identifier]; dup {
			return
		}
		seen[identifier] = struct{}{}

		entries = append(entries, ListingEntry{
			Identifier: identifier,
			Title:      title,
			Sector:     sector,
			DetailURL:  detailURL.String(),
		})
	})

	return entries, nil
}
