// Package models defines data structures for the scraper.
package models

import "time"

// FacetCategoryMaker is the category label for manufacturer/brand facets.
const FacetCategoryMaker = "maker"

// Facet is one selectable filter value exposed by the search page,
// typically a manufacturer. Code is the opaque token sent back to the
// site; it is not always numeric ("삼성전자" is a valid code on some page
// versions) and must never be coerced to an integer.
type Facet struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Code     string `json:"code"`
}

// Key returns the identity of a facet for de-duplication.
func (f Facet) Key() string {
	return f.Code + "\x00" + f.Name
}

// Product is one listing row after extraction and normalization.
// Price is nil when the price text carried no parseable amount; the
// verbatim text is always kept in PriceRaw.
type Product struct {
	Name          string    `csv:"name" json:"name"`
	Price         *int      `csv:"price" json:"price"`
	PriceRaw      string    `csv:"price_raw" json:"price_raw"`
	Specification string    `csv:"specification" json:"specification"`
	ScrapedAt     time.Time `csv:"scraped_at" json:"scraped_at"`
}

// PriceOrMax returns the parsed price, or the maximum int when the price
// is unknown so that unpriced rows rank last in ascending order.
func (p *Product) PriceOrMax() int {
	if p == nil || p.Price == nil {
		return int(^uint(0) >> 1)
	}
	return *p.Price
}

// SearchSession holds the UI-owned state of one interactive search:
// the last keyword, the facets discovered for it, the codes the user
// selected, and the last result set. The scraper core never reads or
// writes a session; callers thread it through their own event handling.
type SearchSession struct {
	Keyword       string
	Facets        []Facet
	SelectedCodes []string
	Results       []*Product
}

// SearchResult summarizes one aggregation run.
type SearchResult struct {
	Products     []*Product
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	ErrorsByType map[string]int
	FacetCount   int
	OrdersFailed int
}
