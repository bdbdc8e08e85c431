package surface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchExtractsTitleAndFavicon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<title>  Example Domain  </title>
			<link rel="shortcut icon" href="/static/fav.png">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)

	assert.Equal(t, "Example Domain", doc.Title)
	assert.Equal(t, srv.URL+"/static/fav.png", doc.Favicon)
}

func TestFetchDefaultFavicon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>No Icon</title></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/favicon.ico", doc.Favicon)
}

func TestFetchTitleFallsBackToHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head></head><body>untitled</body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.Title)
	assert.Contains(t, srv.URL, doc.Title)
}

func TestFetchGzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte(`<html><head><title>Compressed</title></head></html>`))
		zw.Close()
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Compressed", doc.Title)
}

func TestFetchNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL+"/docs/report.pdf")
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", doc.Title)
	assert.Empty(t, doc.Favicon)
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFetchInvalidDestination(t *testing.T) {
	f := NewFetcher(5 * time.Second)

	_, err := f.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Limited</title></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	f.SetRateLimit(0.5)

	// The burst covers the first fetch; a hard deadline rejects the second
	// instead of waiting the full refill interval.
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL)
	assert.Error(t, err)

	// Lifting the cap restores immediate fetches.
	f.SetRateLimit(0)
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.NoError(t, err)
}

func TestSetRateLimitDuringFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Busy</title></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.SetRateLimit(100)
			_, err := f.Fetch(context.Background(), srv.URL)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestFetchSanitizesTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Hi <b>there</b></title></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Hi there", doc.Title)
}
