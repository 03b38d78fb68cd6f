// Package scraper owns the fetch boundary against the search site and
// the aggregation pass over per-sort-order listing queries.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/pricewatch-kr/danawa-scraper/config"
	"github.com/pricewatch-kr/danawa-scraper/models"
	"github.com/pricewatch-kr/danawa-scraper/parser"
)

// SortOrder selects a site-defined result ordering. Known orders map to
// the site's tokens; anything else is passed through verbatim so callers
// can use tokens this package has not catalogued.
type SortOrder string

const (
	SortPopularity  SortOrder = "popularity"
	SortReviewCount SortOrder = "review_count"
	SortPriceAsc    SortOrder = "price_ascending"
)

var sortTokens = map[SortOrder]string{
	SortPopularity:  "saveDESC",
	SortReviewCount: "opinionDESC",
	SortPriceAsc:    "priceASC",
}

// Token returns the query-string token the site expects for this order.
func (o SortOrder) Token() string {
	if token, ok := sortTokens[o]; ok {
		return token
	}
	return string(o)
}

// Scraper issues search requests and parses the responses. Each instance
// owns its own collector (and therefore its own cookie state); embedding
// hosts that run searches concurrently must give each logical search its
// own Scraper rather than sharing one.
//
// Fetches are serialized: the site is only ever queried one request at a
// time, with the configured politeness delay between requests.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	mu        sync.Mutex // serializes fetches and guards the fields below
	phase     string
	fetchBody []byte
	fetchErr  error
	finalURL  string

	diagMu         sync.Mutex
	lastRequestURL string
	lastPageHTML   string
	lastOptionHTML string
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// Parallelism 1 plus the delay is the politeness contract: one
	// request in flight, a pause between successive ones.
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		collector: collector,
		Metrics:   NewMetrics(),
	}
	s.registerHandlers()
	return s, nil
}

func (s *Scraper) registerHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		r.Ctx.Put("start", time.Now())
		s.Metrics.IncRequest(s.phase)
		slog.Debug("scraper request",
			slog.String("phase", s.phase),
			slog.String("url", r.URL.String()),
		)
	})

	s.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
		s.fetchBody = r.Body
		s.finalURL = r.Request.URL.String()
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		classified := classifyError(err, statusCode)
		s.fetchErr = classified
		s.Metrics.IncError(errorTypeLabel(classified))
		reqURL := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			reqURL = r.Request.URL.String()
		}
		slog.Error("request error",
			slog.String("phase", s.phase),
			slog.String("url", reqURL),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
	})
}

// fetch issues one GET against the search endpoint and returns the
// parsed document. All transport problems come back as typed errors;
// nothing is retried here. The collector runs synchronously, so by the
// time Visit returns the handlers have populated the per-fetch state.
func (s *Scraper) fetch(ctx context.Context, phase string, params url.Values) (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	s.phase = phase
	s.fetchBody = nil
	s.fetchErr = nil
	s.finalURL = ""

	requestURL := s.cfg.BaseURL + "?" + params.Encode()
	if err := s.collector.Visit(requestURL); err != nil && s.fetchErr == nil {
		s.fetchErr = classifyError(err, 0)
	}

	// A failed listing fetch keeps the previously captured page so the
	// dump still shows the last page that actually rendered; a fresh
	// options fetch starts a new diagnostic window and drops it.
	s.diagMu.Lock()
	s.lastRequestURL = requestURL
	if phase == "options" {
		s.lastPageHTML = ""
	}
	s.diagMu.Unlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.fetchBody))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	s.diagMu.Lock()
	if s.finalURL != "" {
		s.lastRequestURL = s.finalURL
	}
	s.lastPageHTML = string(s.fetchBody)
	s.diagMu.Unlock()

	return doc, nil
}

// buildParams assembles the filter query. The site has accepted several
// parameter names over time, so the keyword and the facet codes are sent
// under every historical name at once; facet codes are comma-joined
// opaque tokens and are never coerced to integers.
func buildParams(keyword string, makerCodes []string, order SortOrder) url.Values {
	params := url.Values{}
	params.Set("k1", keyword)
	params.Set("keyword", keyword)
	params.Set("query", keyword)

	codes := make([]string, 0, len(makerCodes))
	for _, code := range makerCodes {
		if trimmed := strings.TrimSpace(code); trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	if len(codes) > 0 {
		csv := strings.Join(codes, ",")
		params.Set("maker", csv)
		params.Set("brand", csv)
	}

	if order != "" {
		params.Set("sort", order.Token())
	}
	return params
}

// SearchOptions fetches the unfiltered search page for keyword and
// discovers the manufacturer/brand facets on it. An empty slice with a
// nil error means the page rendered without a recognizable facet block;
// a non-nil error means the page could not be fetched at all.
func (s *Scraper) SearchOptions(ctx context.Context, keyword string) ([]models.Facet, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: empty keyword", ErrInvalidInput)
	}

	doc, err := s.fetch(ctx, "options", buildParams(keyword, nil, ""))
	if err != nil {
		s.setOptionHTML("")
		return nil, err
	}

	facets, optionHTML := parser.ExtractFacets(doc, s.cfg.MaxOptionContainers)
	s.setOptionHTML(optionHTML)
	s.Metrics.AddFacets(len(facets))
	slog.Debug("facets discovered",
		slog.String("keyword", keyword),
		slog.Int("count", len(facets)),
	)
	return facets, nil
}

// SearchProducts runs one filtered listing query and returns up to limit
// extracted products in page order.
func (s *Scraper) SearchProducts(ctx context.Context, keyword string, makerCodes []string, order SortOrder, limit int) ([]*models.Product, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: empty keyword", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	doc, err := s.fetch(ctx, "listings", buildParams(keyword, makerCodes, order))
	if err != nil {
		return nil, err
	}

	products := parser.ExtractProducts(doc)
	if len(products) > limit {
		products = products[:limit]
	}
	s.Metrics.AddProducts(len(products))
	return products, nil
}

// AggregateRequest describes one aggregation run over several sort
// orders.
type AggregateRequest struct {
	Keyword       string
	MakerCodes    []string
	SortOrders    []SortOrder
	PerOrderLimit int
}

// Aggregate performs one listing pass per sort order, merges the result
// sets, de-duplicates them by product name (first occurrence wins), and
// ranks the survivors by ascending price with unpriced rows last.
//
// A failed fetch for one sort order contributes nothing and the run
// continues with whatever succeeded; only invalid input or cancellation
// aborts the whole run.
func (s *Scraper) Aggregate(ctx context.Context, req AggregateRequest) (*models.SearchResult, error) {
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, fmt.Errorf("%w: empty keyword", ErrInvalidInput)
	}
	if req.PerOrderLimit <= 0 {
		return nil, fmt.Errorf("%w: per-order limit must be positive", ErrInvalidInput)
	}
	orders := req.SortOrders
	if len(orders) == 0 {
		orders = []SortOrder{SortPopularity, SortReviewCount}
	}

	result := &models.SearchResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	var combined []*models.Product
	for _, order := range orders {
		products, err := s.SearchProducts(ctx, req.Keyword, req.MakerCodes, order, req.PerOrderLimit)
		result.RequestCount++
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				return nil, err
			}
			if ctx != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.ErrorCount++
			result.OrdersFailed++
			result.ErrorsByType[errorTypeLabel(err)]++
			slog.Warn("sort order fetch failed, continuing",
				slog.String("keyword", req.Keyword),
				slog.String("sort", string(order)),
				slog.Any("error", err),
			)
			continue
		}
		combined = append(combined, products...)
	}

	merged := parser.DedupeByName(combined)
	parser.SortByPrice(merged)

	result.Products = merged
	result.EndTime = time.Now()
	return result, nil
}

// DebugDump holds the diagnostics of the most recent fetches as opaque
// blobs for external inspection or download; the core never parses them.
type DebugDump struct {
	RequestURL []byte
	PageHTML   []byte
	OptionHTML []byte
}

// DebugDump snapshots the latest request URL, fetched page, and matched
// facet-container fragment.
func (s *Scraper) DebugDump() DebugDump {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	return DebugDump{
		RequestURL: []byte(s.lastRequestURL),
		PageHTML:   []byte(s.lastPageHTML),
		OptionHTML: []byte(s.lastOptionHTML),
	}
}

func (s *Scraper) setOptionHTML(html string) {
	s.diagMu.Lock()
	s.lastOptionHTML = html
	s.diagMu.Unlock()
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 && (statusCode < 200 || statusCode >= 300) {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		default:
			return ErrBadStatus{Status: statusCode, Err: wrapped}
		}
	}

	return err
}
