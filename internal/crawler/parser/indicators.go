package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Indicator names as persisted.
const (
	FieldMarketCap   = "market_cap"
	FieldPERatio     = "pe_ratio"
	FieldBookValue   = "book_value"
	FieldEPSTTM      = "eps_ttm"
	FieldFaceValue   = "face_value"
	FieldIndustryPE  = "industry_pe"
	FieldPriceToCash = "price_to_cash"
	FieldPriceToBook = "price_to_book"
)

// labelFields maps normalised detail page labels onto indicator names.
var labelFields = map[string]string{
	"market_cap_rs_cr": FieldMarketCap,
	"market_cap":       FieldMarketCap,
	"pe":               FieldPERatio,
	"book_value_rs":    FieldBookValue,
	"book_value":       FieldBookValue,
	"eps_ttm":          FieldEPSTTM,
	"face_value_rs":    FieldFaceValue,
	"face_value":       FieldFaceValue,
	"industry_pe":      FieldIndustryPE,
	"pc":               FieldPriceToCash,
	"pricebook":        FieldPriceToBook,
	"pb":               FieldPriceToBook,
}

const (
	primaryContainer   = "div#mktdet_1"
	secondaryContainer = "div#mktdet_2"
	rowSelector        = "div.PA7.brdb"
	labelSelector      = "div.FL.gL_10.UC"
	valueSelector      = "div.FR.gD_12"
)

// Indicators holds the parsed values keyed by indicator name. A present key with a nil
// value means the label was on the page but its value held no number.
type Indicators map[string]*float64

// Get returns the value for name, nil when absent or unparseable.
func (i Indicators) Get(name string) *float64 {
	return i[name]
}

// Ambiguous lists the indicator names whose label was found but whose value did not parse.
func (i Indicators) Ambiguous() []string {
	var names []string
	for name, v := range i {
		if v == nil {
			names = append(names, name)
		}
	}
	return names
}

// ExtractIndicators reads a detail page. The page carries the same block twice
// (#mktdet_1 and #mktdet_2) and hides one of them with an inline display:none.
// The first block wins unless it is hidden; see selectContainer.
func ExtractIndicators(body io.Reader) (Indicators, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}

	container, err := selectContainer(doc)
	if err != nil {
		return nil, err
	}

	indicators := make(Indicators)
	container.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		label := row.Find(labelSelector).First()
		value := row.Find(valueSelector).First()
		if label.Length() == 0 || value.Length() == 0 {
			return
		}
		field, ok := labelFields[NormalizeLabel(label.Text())]
		if !ok {
			return
		}
		if v, done := indicators[field]; done && v != nil {
			return
		}
		indicators[field] = ParseNumber(value.Text())
	})

	return indicators, nil
}

// selectContainer returns #mktdet_1 unless it is hidden, in which case #mktdet_2 is
// authoritative. A missing authoritative block is a layout change. When both are hidden
// the first is read.
func selectContainer(doc *goquery.Document) (*goquery.Selection, error) {
	primary := doc.Find(primaryContainer).First()
	if primary.Length() == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrLayoutChanged, primaryContainer)
	}
	if !isHidden(primary) {
		return primary, nil
	}

	secondary := doc.Find(secondaryContainer).First()
	switch {
	case secondary.Length() == 0:
		return nil, fmt.Errorf("%w: %s hidden and %s not found", ErrLayoutChanged, primaryContainer, secondaryContainer)
	case isHidden(secondary):
		return primary, nil
	}
	return secondary, nil
}

func isHidden(s *goquery.Selection) bool {
	style, ok := s.Attr("style")
	if !ok {
		return false
	}
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none")
}

// NormalizeLabel lower-cases a label and drops parentheses, percent signs, slashes and dots,
// joining the remaining words with "_": "Market Cap (Rs Cr.)" -> "market_cap_rs_cr".
func NormalizeLabel(label string) string {
	replacer := strings.NewReplacer("(", " ", ")", " ", "%", "", "/", "", ".", "")
	cleaned := replacer.Replace(strings.ToLower(label))
	return strings.Join(strings.Fields(cleaned), "_")
}
