package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/pricewatch-kr/danawa-scraper/config"
	"github.com/pricewatch-kr/danawa-scraper/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/dsearch.php"
	cfg.Delay = 0
	cfg.RandomDelay = 0
	return cfg
}

func newTestScraper(t *testing.T, transport *httpmock.MockTransport) *Scraper {
	t.Helper()
	s, err := NewScraper(testConfig())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)
	return s
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

// listingURL reproduces the exact query fetch() issues so responders can
// differ per sort order.
func listingURL(base, keyword string, codes []string, order SortOrder) string {
	return base + "?" + buildParams(keyword, codes, order).Encode()
}

func buildOptionPage() string {
	return `<html><body>
		<div id="makerBrandTab">
			<button data-optionname="Samsung" data-optioncode="702">Samsung</button>
			<button data-optionname="WD" data-optioncode="955">WD</button>
		</div>
	</body></html>`
}

func buildListingPage(entries ...[2]string) string {
	var builder strings.Builder
	builder.WriteString(`<html><body><ul id="productListArea_list">`)
	for _, entry := range entries {
		fmt.Fprintf(&builder, `<li class="goods-list__item" data-itemtype="standard">`)
		fmt.Fprintf(&builder, `<span class="goods-list__title">%s</span>`, entry[0])
		fmt.Fprintf(&builder, `<div class="goods-list__price"><em class="number">%s</em>원</div>`, entry[1])
		builder.WriteString(`<div class="spec-box__inner" data-desctype="simple"><span>M.2 NVMe</span></div>`)
		builder.WriteString(`</li>`)
	}
	builder.WriteString(`</ul></body></html>`)
	return builder.String()
}

func TestBuildParams(t *testing.T) {
	params := buildParams("ssd", []string{" 702 ", "", "삼성전자"}, SortPopularity)

	for _, key := range []string{"k1", "keyword", "query"} {
		if got := params.Get(key); got != "ssd" {
			t.Fatalf("params[%s] = %q, want keyword under every variant name", key, got)
		}
	}
	for _, key := range []string{"maker", "brand"} {
		if got := params.Get(key); got != "702,삼성전자" {
			t.Fatalf("params[%s] = %q, want trimmed codes untouched by coercion", key, got)
		}
	}
	if got := params.Get("sort"); got != "saveDESC" {
		t.Fatalf("params[sort] = %q, want popularity token", got)
	}
}

func TestBuildParamsNoFilters(t *testing.T) {
	params := buildParams("ssd", nil, "")
	if _, ok := params["maker"]; ok {
		t.Fatalf("maker param present without selected codes")
	}
	if _, ok := params["sort"]; ok {
		t.Fatalf("sort param present without an order")
	}
}

func TestSortOrderToken(t *testing.T) {
	tests := []struct {
		order SortOrder
		want  string
	}{
		{order: SortPopularity, want: "saveDESC"},
		{order: SortReviewCount, want: "opinionDESC"},
		{order: SortPriceAsc, want: "priceASC"},
		{order: SortOrder("customDESC"), want: "customDESC"},
	}
	for _, tt := range tests {
		if got := tt.order.Token(); got != tt.want {
			t.Fatalf("Token(%q) = %q, want %q", tt.order, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: "bad_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestSearchOptions(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/dsearch.php", htmlResponder(buildOptionPage()))

	s := newTestScraper(t, transport)

	facets, err := s.SearchOptions(context.Background(), "ssd")
	if err != nil {
		t.Fatalf("search options: %v", err)
	}

	want := []models.Facet{
		{Category: models.FacetCategoryMaker, Name: "Samsung", Code: "702"},
		{Category: models.FacetCategoryMaker, Name: "WD", Code: "955"},
	}
	if diff := cmp.Diff(want, facets); diff != "" {
		t.Fatalf("facets mismatch (-want +got):\n%s", diff)
	}

	dump := s.DebugDump()
	if len(dump.RequestURL) == 0 || len(dump.PageHTML) == 0 || len(dump.OptionHTML) == 0 {
		t.Fatalf("debug dump incomplete: url=%d page=%d option=%d",
			len(dump.RequestURL), len(dump.PageHTML), len(dump.OptionHTML))
	}
	requested, err := url.Parse(string(dump.RequestURL))
	if err != nil {
		t.Fatalf("parse recorded url: %v", err)
	}
	if got := requested.Query().Get("k1"); got != "ssd" {
		t.Fatalf("recorded url keyword = %q, want ssd", got)
	}
}

func TestSearchOptionsEmptyKeyword(t *testing.T) {
	s := newTestScraper(t, httpmock.NewMockTransport())

	if _, err := s.SearchOptions(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput before any network call", err)
	}
}

func TestSearchOptionsTransportFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/dsearch.php",
		httpmock.NewStringResponder(http.StatusForbidden, ""))

	s := newTestScraper(t, transport)

	_, err := s.SearchOptions(context.Background(), "ssd")
	var forbidden ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("err = %v, want typed ErrForbidden", err)
	}
}

func TestSearchOptionsNoFacetsIsNotAnError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/dsearch.php",
		htmlResponder(`<html><body><p>결과 없음</p></body></html>`))

	s := newTestScraper(t, transport)

	facets, err := s.SearchOptions(context.Background(), "ssd")
	if err != nil {
		t.Fatalf("empty facets must not be an error, got %v", err)
	}
	if len(facets) != 0 {
		t.Fatalf("facets = %+v, want empty", facets)
	}
}

func TestDebugDumpKeepsPageAcrossFailedListingFetch(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", nil, ""),
		htmlResponder(buildOptionPage()))
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", nil, SortPopularity),
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	s := newTestScraper(t, transport)

	if _, err := s.SearchOptions(context.Background(), "ssd"); err != nil {
		t.Fatalf("search options: %v", err)
	}
	captured := s.DebugDump().PageHTML
	if len(captured) == 0 {
		t.Fatal("options fetch should capture the page")
	}

	if _, err := s.SearchProducts(context.Background(), "ssd", nil, SortPopularity, 5); err == nil {
		t.Fatal("listing fetch should fail")
	}

	dump := s.DebugDump()
	if string(dump.PageHTML) != string(captured) {
		t.Fatalf("failed listing fetch must keep the last rendered page, got %d bytes", len(dump.PageHTML))
	}
	if !strings.Contains(string(dump.RequestURL), "sort=") {
		t.Fatalf("request url should record the failing fetch, got %q", dump.RequestURL)
	}
}

func TestSearchProductsLimit(t *testing.T) {
	page := buildListingPage(
		[2]string{"A", "100"},
		[2]string{"B", "200"},
		[2]string{"C", "300"},
	)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/dsearch.php", htmlResponder(page))

	s := newTestScraper(t, transport)

	products, err := s.SearchProducts(context.Background(), "ssd", nil, SortPopularity, 2)
	if err != nil {
		t.Fatalf("search products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want capped at limit", len(products))
	}
}

func TestSearchProductsInvalidLimit(t *testing.T) {
	s := newTestScraper(t, httpmock.NewMockTransport())

	if _, err := s.SearchProducts(context.Background(), "ssd", nil, SortPopularity, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for non-positive limit", err)
	}
}

func TestAggregateMergesAndRanks(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", []string{"702"}, SortPopularity),
		htmlResponder(buildListingPage(
			[2]string{"X", "500"},
			[2]string{"Mid", "52,000"},
		)))
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", []string{"702"}, SortReviewCount),
		htmlResponder(buildListingPage(
			[2]string{"X", "100"},
			[2]string{"Quote", "가격 문의"},
			[2]string{"Cheap", "1,000"},
		)))

	s := newTestScraper(t, transport)

	result, err := s.Aggregate(context.Background(), AggregateRequest{
		Keyword:       "ssd",
		MakerCodes:    []string{"702"},
		SortOrders:    []SortOrder{SortPopularity, SortReviewCount},
		PerOrderLimit: 5,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	gotNames := make([]string, len(result.Products))
	for i, p := range result.Products {
		gotNames[i] = p.Name
	}
	// "X" appears in both passes; the first-seen price (500) wins, and
	// the unparseable "Quote" price ranks last.
	wantNames := []string{"X", "Cheap", "Mid", "Quote"}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}
	if x := result.Products[0]; x.Price == nil || *x.Price != 500 {
		t.Fatalf("first-seen price should win for X, got %v", x.Price)
	}
	if result.RequestCount != 2 || result.ErrorCount != 0 {
		t.Fatalf("requests=%d errors=%d, want 2/0", result.RequestCount, result.ErrorCount)
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", nil, SortPopularity),
		htmlResponder(buildListingPage([2]string{"Survivor", "10,000"})))
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", nil, SortReviewCount),
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	s := newTestScraper(t, transport)

	result, err := s.Aggregate(context.Background(), AggregateRequest{
		Keyword:       "ssd",
		SortOrders:    []SortOrder{SortPopularity, SortReviewCount},
		PerOrderLimit: 5,
	})
	if err != nil {
		t.Fatalf("partial failure must not abort the run: %v", err)
	}

	if len(result.Products) != 1 || result.Products[0].Name != "Survivor" {
		t.Fatalf("products = %+v, want the surviving order's rows", result.Products)
	}
	if result.OrdersFailed != 1 {
		t.Fatalf("orders failed = %d, want 1", result.OrdersFailed)
	}
	if result.ErrorsByType["bad_status"] != 1 {
		t.Fatalf("errors by type = %v, want one bad_status", result.ErrorsByType)
	}
}

func TestAggregateInvalidInput(t *testing.T) {
	s := newTestScraper(t, httpmock.NewMockTransport())

	if _, err := s.Aggregate(context.Background(), AggregateRequest{Keyword: "", PerOrderLimit: 5}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for empty keyword", err)
	}
	if _, err := s.Aggregate(context.Background(), AggregateRequest{Keyword: "ssd", PerOrderLimit: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for non-positive limit", err)
	}
}

func TestAggregateCancelledContext(t *testing.T) {
	s := newTestScraper(t, httpmock.NewMockTransport())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Aggregate(ctx, AggregateRequest{Keyword: "ssd", PerOrderLimit: 5}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestSearchScenario walks the documented happy path: discover facets,
// select one code, fetch the popularity order, get at most limit rows
// with names.
func TestSearchScenario(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", nil, ""),
		htmlResponder(buildOptionPage()))
	transport.RegisterResponder("GET",
		listingURL(cfg.BaseURL, "ssd", []string{"702"}, SortPopularity),
		htmlResponder(buildListingPage(
			[2]string{"Samsung 980 PRO 1TB", "189,000"},
			[2]string{"Samsung 990 EVO 1TB", "129,000"},
		)))

	s := newTestScraper(t, transport)
	ctx := context.Background()

	session := &models.SearchSession{Keyword: "ssd"}
	facets, err := s.SearchOptions(ctx, session.Keyword)
	if err != nil {
		t.Fatalf("search options: %v", err)
	}
	session.Facets = facets
	if len(facets) != 2 {
		t.Fatalf("facets = %d, want Samsung and WD", len(facets))
	}
	session.SelectedCodes = []string{facets[0].Code}

	products, err := s.SearchProducts(ctx, session.Keyword, session.SelectedCodes, SortPopularity, 5)
	if err != nil {
		t.Fatalf("search products: %v", err)
	}
	session.Results = products

	if len(products) == 0 || len(products) > 5 {
		t.Fatalf("products = %d, want between 1 and limit", len(products))
	}
	for _, p := range products {
		if p.Name == "" {
			t.Fatalf("product with empty name in %+v", products)
		}
		if p.ScrapedAt.IsZero() || time.Since(p.ScrapedAt) > time.Minute {
			t.Fatalf("scraped-at not stamped: %v", p.ScrapedAt)
		}
	}
}
