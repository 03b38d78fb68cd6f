package parser

import (
	"sort"

	"github.com/pricewatch-kr/danawa-scraper/models"
)

// DedupeByName collapses products sharing an identical display name,
// keeping the first occurrence. Identity-by-name is the deliberate merge
// policy here: two SKUs listed under the same display name become one
// row, and the price seen first wins.
func DedupeByName(products []*models.Product) []*models.Product {
	seen := make(map[string]struct{}, len(products))
	unique := make([]*models.Product, 0, len(products))
	for _, product := range products {
		if product == nil {
			continue
		}
		if _, ok := seen[product.Name]; ok {
			continue
		}
		seen[product.Name] = struct{}{}
		unique = append(unique, product)
	}
	return unique
}

// SortByPrice orders products by ascending parsed price with name as the
// tie-break. A product whose price could not be parsed sorts last, never
// first: an unknown amount must not masquerade as the cheapest result.
func SortByPrice(products []*models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		pi, pj := products[i].PriceOrMax(), products[j].PriceOrMax()
		if pi != pj {
			return pi < pj
		}
		return products[i].Name < products[j].Name
	})
}
