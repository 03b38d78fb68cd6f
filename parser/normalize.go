// Package parser turns fetched search pages into facets and products.
// Every function here is a pure transformation of its inputs; network
// and session concerns live in the scraper package.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricewatch-kr/danawa-scraper/models"
)

var (
	digitRunRe   = regexp.MustCompile(`\d+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// SpecSeparator joins spec fragments in the normalized specification string.
const SpecSeparator = " / "

// ParsePrice extracts an integer amount from a price text. Thousands
// separators are stripped and every digit run is concatenated before
// parsing, so "1,939,210" yields 1939210 and "가격 문의" yields nothing.
//
// Known sharp edge: text containing more than one numeric value (such as
// an embedded discount figure) is silently concatenated into a corrupted
// amount. Callers must scope the input to a single price field; the
// behavior is kept as-is because the source site has always emitted one
// amount per price node.
func ParsePrice(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	runs := digitRunRe.FindAllString(strings.ReplaceAll(text, ",", ""), -1)
	if len(runs) == 0 {
		return 0, false
	}
	value, err := strconv.Atoi(strings.Join(runs, ""))
	if err != nil {
		return 0, false
	}
	return value, true
}

// JoinSpecs builds the normalized specification string from discrete
// fragments. Empty fragments and pure separator glyphs (a lone slash in
// the source markup) are dropped.
func JoinSpecs(fragments []string) string {
	kept := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		trimmed := strings.TrimSpace(fragment)
		if trimmed == "" || trimmed == "/" {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, SpecSeparator)
}

// CollapseWhitespace reduces all interior whitespace runs to single
// spaces and trims the ends.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// ValidateProduct rejects records that carry no signal at all. A missing
// price or spec alone is tolerated; a row with nothing in any field is a
// decorative DOM node that slipped through extraction.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Name) == "" &&
		strings.TrimSpace(p.PriceRaw) == "" &&
		strings.TrimSpace(p.Specification) == "" {
		return fmt.Errorf("product has no name, price, or specification")
	}
	return nil
}
