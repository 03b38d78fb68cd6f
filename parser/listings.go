package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricewatch-kr/danawa-scraper/models"
	"golang.org/x/net/html"
)

// Listing selectors for the goods-list page structure. The strict
// selector matches the current markup; the loose list covers the
// variants older page versions shipped. Zero matches from a selector is
// an expected condition that advances the cascade, never an error.
const itemsStrictSelector = `ul#productListArea_list > li.goods-list__item[data-itemtype="standard"]`

var itemsLooseSelectors = []string{
	`li.goods-list__item[data-itemtype="standard"]`,
	"li.goods-list__item",
	"div.goods-list__item",
}

const (
	nameSelector       = "span.goods-list__title"
	priceSelector      = "div.goods-list__price em.number"
	specSimpleSelector = `div.spec-box__inner[data-desctype="simple"]`
	specDetailSelector = `div.spec-box__inner[data-desctype="detail"]`
)

var (
	nameFallbackSelectors = []string{"a[title]", ".goods-name", ".prod-name", ".title"}
	// Price-named classes come before the bare em.number: unscoped, it
	// matches any numeric node on the item (review counts, ranks) and a
	// wrong match poisons the digit-run price parse.
	priceFallbackSelectors = []string{"span.price", ".price", "em.number"}
)

// ExtractProducts parses the product listings out of a (filtered) search
// page. Item discovery runs the strict selector first and falls through
// progressively looser ones; field extraction inside each item has its
// own fallback chains. Promotional and otherwise non-standard item types
// are skipped, as are nodes with no signal in any field.
func ExtractProducts(doc *goquery.Document) []*models.Product {
	if doc == nil {
		return nil
	}

	items := doc.Find(itemsStrictSelector)
	if items.Length() == 0 {
		for _, selector := range itemsLooseSelectors {
			items = doc.Find(selector)
			if items.Length() > 0 {
				break
			}
		}
	}

	now := time.Now()
	var products []*models.Product
	items.Each(func(_ int, item *goquery.Selection) {
		if itemType, ok := item.Attr("data-itemtype"); ok && itemType != "" && itemType != "standard" {
			return
		}

		name := extractName(item)
		priceRaw := extractPriceText(item)
		spec := extractSpec(item)

		if name == "" && priceRaw == "" && spec == "" {
			return
		}

		product := &models.Product{
			Name:          name,
			PriceRaw:      priceRaw,
			Specification: spec,
			ScrapedAt:     now,
		}
		if value, ok := ParsePrice(priceRaw); ok {
			product.Price = &value
		}
		products = append(products, product)
	})
	return products
}

func extractName(item *goquery.Selection) string {
	if name := textWithBreaks(item.Find(nameSelector).First()); name != "" {
		return name
	}
	for _, selector := range nameFallbackSelectors {
		candidate := item.Find(selector).First()
		if candidate.Length() == 0 {
			continue
		}
		if selector == "a[title]" {
			if title, ok := candidate.Attr("title"); ok {
				if name := CollapseWhitespace(title); name != "" {
					return name
				}
			}
			continue
		}
		if name := textWithBreaks(candidate); name != "" {
			return name
		}
	}
	return ""
}

func extractPriceText(item *goquery.Selection) string {
	if text := CollapseWhitespace(item.Find(priceSelector).First().Text()); text != "" {
		return text
	}
	for _, selector := range priceFallbackSelectors {
		if text := CollapseWhitespace(item.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// extractSpec prefers the concise "simple" spec block and falls back to
// the "detail" block. Non-empty span fragments are joined with the fixed
// separator; a block whose spans are all empty contributes its flat text
// just like a block with no spans at all.
func extractSpec(item *goquery.Selection) string {
	block := item.Find(specSimpleSelector).First()
	if block.Length() == 0 {
		block = item.Find(specDetailSelector).First()
	}
	if block.Length() == 0 {
		return ""
	}

	var fragments []string
	block.Find("span").Each(func(_ int, span *goquery.Selection) {
		if text := CollapseWhitespace(span.Text()); text != "" {
			fragments = append(fragments, text)
		}
	})
	if len(fragments) == 0 {
		return CollapseWhitespace(block.Text())
	}
	return JoinSpecs(fragments)
}

// textWithBreaks flattens a selection's text with <br> rendered as a
// space, then collapses whitespace. Plain Text() drops line breaks so
// multi-line product names would run together without this.
func textWithBreaks(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			builder.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			builder.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, node := range sel.Nodes {
		walk(node)
	}
	return CollapseWhitespace(builder.String())
}
