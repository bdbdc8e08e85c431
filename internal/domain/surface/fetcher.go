package surface

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/spyglassproxy/spyglass/internal/infrastructure/resilience"
)

// Document is the metadata a fetch extracts from one loaded page.
type Document struct {
	URL     string
	Title   string
	Favicon string
}

// Fetcher retrieves origin documents for fetching surfaces. It wraps resty
// with a retrying transport, a circuit breaker, and a rate limiter.
type Fetcher struct {
	client   *resty.Client
	breaker  *resilience.Breaker
	sanitize *bluemonday.Policy

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewFetcher creates a production-ready document fetcher.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; Spyglass/1.0) AppleWebKit/537.36").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetHeader("Accept-Encoding", "gzip")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New("surface-fetch", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	return &Fetcher{
		client:   restyClient,
		breaker:  breaker,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		sanitize: bluemonday.StrictPolicy(),
	}
}

// SetRateLimit caps outbound fetches per second. Zero or negative removes the
// cap. Safe to call while fetches are in flight.
func (f *Fetcher) SetRateLimit(rps float64) {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	f.mu.Lock()
	f.limiter = limiter
	f.mu.Unlock()
}

func (f *Fetcher) rateLimiter() *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limiter
}

// Fetch retrieves a document and extracts its metadata.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Document, error) {
	base, err := url.Parse(target)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid destination %q", target)
	}

	if err := f.rateLimiter().Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.client.R().SetContext(ctx).Get(target)
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	resp := result.(*resty.Response)

	status := resp.StatusCode()
	if status < 200 || status >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s (url: %s)", status, resp.Status(), target)
	}

	body := resp.Body()
	if enc := resp.Header().Get("Content-Encoding"); strings.Contains(enc, "gzip") {
		body, err = gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress body: %w", err)
		}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body from %s (status: %d)", target, status)
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	if !strings.Contains(contentType, "html") {
		// Non-document destination: synthesize a title from the path.
		return &Document{URL: target, Title: pathTitle(base)}, nil
	}

	reader, err := decodeCharset(body, contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(f.sanitize.Sanitize(doc.Find("title").First().Text()))
	if title == "" {
		title = base.Host
	}

	return &Document{
		URL:     target,
		Title:   title,
		Favicon: faviconURL(doc, base),
	}, nil
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// decodeCharset converts a document body to UTF-8. The HTML sniffer handles
// declared charsets; statistically detected ones cover servers that declare
// nothing.
func decodeCharset(body []byte, contentType string) (io.Reader, error) {
	if utf8.Valid(body) {
		return bytes.NewReader(body), nil
	}
	if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
		return r, nil
	}
	det, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil {
		return nil, err
	}
	return charset.NewReaderLabel(det.Charset, bytes.NewReader(body))
}

// faviconURL extracts the first icon link, resolved absolute. Falls back to
// the conventional /favicon.ico.
func faviconURL(doc *goquery.Document, base *url.URL) string {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return true
		}
		if h, ok := s.Attr("href"); ok && h != "" {
			href = h
			return false
		}
		return true
	})

	if href == "" {
		return base.Scheme + "://" + base.Host + "/favicon.ico"
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return base.Scheme + "://" + base.Host + "/favicon.ico"
	}
	return base.ResolveReference(parsed).String()
}

func pathTitle(u *url.URL) string {
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segs[len(segs)-1]; last != "" {
		return last
	}
	return u.Host
}
