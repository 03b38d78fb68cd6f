package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricewatch-kr/danawa-scraper/models"
	"golang.org/x/net/html"
)

// knownOptionContainerIDs are the container ids that have historically
// carried the manufacturer/brand filter block, newest first.
var knownOptionContainerIDs = []string{
	"makerBrandTab",
	"makerOptionTab",
	"makerTab",
	"brandTab",
}

var (
	headingRe   = regexp.MustCompile(`(제조사\s*/\s*브랜드|제조사|브랜드)`)
	makerHrefRe = regexp.MustCompile(`[?&]maker=([^&#]+)`)
)

// linkFacetPlaceholder names facets recovered from bare filter links.
// A facet without a code is unusable, but one without a visible label is
// still filterable, so only the name side gets a placeholder.
const linkFacetPlaceholder = "제조사"

// ExtractFacets discovers the selectable manufacturer/brand facets in a
// search page. Four structural strategies are tried in order, each only
// when the previous one produced nothing; an empty result after all four
// is a legitimate outcome, not an error. maxContainers caps how many
// class-heuristic containers are inspected.
//
// The second return value is the outer HTML of the container the winning
// strategy matched, kept verbatim for external debugging.
func ExtractFacets(doc *goquery.Document, maxContainers int) ([]models.Facet, string) {
	if doc == nil {
		return nil, ""
	}
	if maxContainers <= 0 {
		maxContainers = 3
	}

	strategies := []func(*goquery.Document, int) ([]models.Facet, string){
		facetsFromKnownContainers,
		facetsFromClassHeuristic,
		facetsFromHeadings,
		facetsFromMakerLinks,
	}
	for _, strategy := range strategies {
		if facets, optionHTML := strategy(doc, maxContainers); len(facets) > 0 {
			return facets, optionHTML
		}
	}
	return nil, ""
}

// facetsFromKnownContainers checks the fixed list of historically stable
// container ids.
func facetsFromKnownContainers(doc *goquery.Document, _ int) ([]models.Facet, string) {
	for _, id := range knownOptionContainerIDs {
		container := doc.Find("#" + id)
		if container.Length() == 0 {
			continue
		}
		if facets := collectFacets(container); len(facets) > 0 {
			return facets, outerHTML(container)
		}
	}
	return nil, ""
}

// facetsFromClassHeuristic scans elements whose class list mentions
// maker or brand, trying at most maxContainers of them in document order.
func facetsFromClassHeuristic(doc *goquery.Document, maxContainers int) ([]models.Facet, string) {
	var containers []*goquery.Selection
	doc.Find("[class]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		lowered := strings.ToLower(class)
		if strings.Contains(lowered, "maker") || strings.Contains(lowered, "brand") {
			containers = append(containers, sel)
		}
		return len(containers) < maxContainers
	})

	for _, container := range containers {
		if facets := collectFacets(container); len(facets) > 0 {
			return facets, outerHTML(container)
		}
	}
	return nil, ""
}

// facetsFromHeadings locates 제조사/브랜드 heading text and probes a fixed
// set of structural candidates around each heading element.
func facetsFromHeadings(doc *goquery.Document, _ int) ([]models.Facet, string) {
	root := doc.Get(0)
	if root == nil {
		return nil, ""
	}

	var headings []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && headingRe.MatchString(n.Data) {
			if n.Parent != nil && n.Parent.Type == html.ElementNode {
				headings = append(headings, n.Parent)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	for _, el := range headings {
		candidates := []*html.Node{
			el,
			el.Parent,
			nextElementSibling(el),
		}
		if el.Parent != nil {
			candidates = append(candidates, nextElementSibling(el.Parent))
		}
		for _, candidate := range candidates {
			if candidate == nil || candidate.Type != html.ElementNode {
				continue
			}
			container := doc.FindNodes(candidate)
			if container.Length() == 0 {
				continue
			}
			if facets := collectFacets(container); len(facets) > 0 {
				return facets, outerHTML(container)
			}
		}
	}
	return nil, ""
}

// facetsFromMakerLinks is the last resort: anchors that already carry a
// maker filter in their target URL. The code is parsed straight out of
// the query string and the anchor text becomes the name.
func facetsFromMakerLinks(doc *goquery.Document, _ int) ([]models.Facet, string) {
	var facets []models.Facet
	doc.Find(`a[href*="maker="]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		match := makerHrefRe.FindStringSubmatch(href)
		if match == nil {
			return
		}
		code := match[1]
		if code == "" {
			return
		}
		name := CollapseWhitespace(sel.Text())
		if name == "" {
			name = linkFacetPlaceholder
		}
		facets = append(facets, models.Facet{
			Category: models.FacetCategoryMaker,
			Name:     name,
			Code:     code,
		})
	})
	return dedupeFacets(facets), ""
}

// collectFacets extracts facets from one container, covering both element
// shapes the site has used: buttons with data attributes and checkbox
// inputs paired with labels. Output is de-duplicated on (code, name) with
// insertion order preserved; entries missing either part are discarded.
func collectFacets(container *goquery.Selection) []models.Facet {
	var facets []models.Facet

	container.Find("button").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(attrOr(sel, "data-optionname", CollapseWhitespace(sel.Text())))
		code := strings.TrimSpace(firstAttr(sel, "data-optioncode", "data-value", "value"))
		if name == "" || code == "" {
			return
		}
		facets = append(facets, models.Facet{
			Category: models.FacetCategoryMaker,
			Name:     name,
			Code:     code,
		})
	})

	container.Find(`input[type="checkbox"]`).Each(func(_ int, sel *goquery.Selection) {
		code := strings.TrimSpace(attrOr(sel, "value", ""))
		if code == "" {
			return
		}
		name := checkboxLabel(container, sel)
		if name == "" {
			return
		}
		facets = append(facets, models.Facet{
			Category: models.FacetCategoryMaker,
			Name:     name,
			Code:     code,
		})
	})

	return dedupeFacets(facets)
}

// checkboxLabel resolves the display name for a checkbox input: an
// explicit label[for] inside the container first, then name-ish
// attributes on the input, then the first word of the enclosing text.
func checkboxLabel(container, input *goquery.Selection) string {
	if id, ok := input.Attr("id"); ok && id != "" {
		label := container.Find(fmt.Sprintf(`label[for=%q]`, id))
		if text := CollapseWhitespace(label.Text()); text != "" {
			return text
		}
	}
	if name := strings.TrimSpace(firstAttr(input, "data-name", "title")); name != "" {
		return name
	}
	parentText := CollapseWhitespace(input.Parent().Text())
	if fields := strings.Fields(parentText); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func dedupeFacets(facets []models.Facet) []models.Facet {
	seen := make(map[string]struct{}, len(facets))
	unique := facets[:0]
	for _, facet := range facets {
		key := facet.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, facet)
	}
	return unique
}

func attrOr(sel *goquery.Selection, name, fallback string) string {
	if value, ok := sel.Attr(name); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if value, ok := sel.Attr(name); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func nextElementSibling(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for sibling := n.NextSibling; sibling != nil; sibling = sibling.NextSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

func outerHTML(sel *goquery.Selection) string {
	rendered, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return rendered
}
