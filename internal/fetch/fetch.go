// Package fetch retrieves book assets over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/internal/config"
	"github.com/FocuswithJustin/epubmirror/internal/logging"
)

// Response is a successfully fetched asset.
type Response struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

// Options configures an HTTPFetcher.
type Options struct {
	// Timeout bounds a whole request including the body; zero disables it.
	Timeout time.Duration
	// UserAgent is sent with every request when non-empty.
	UserAgent string
	// RateLimit caps requests per second; zero or less disables it.
	RateLimit float64
	// Transport defaults to http.DefaultTransport. It is always wrapped in
	// a logging transport.
	Transport http.RoundTripper
}

// OptionsFromConfig derives fetch options from the mirror settings.
func OptionsFromConfig(cfg config.Mirror) Options {
	return Options{
		Timeout:   cfg.Timeout.Duration,
		UserAgent: cfg.UserAgent,
		RateLimit: cfg.RateLimit,
	}
}

// HTTPFetcher is a Fetcher backed by net/http. It is safe for concurrent use.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// New creates an HTTPFetcher.
func New(opts Options) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: logging.NewTransport(opts.Transport),
		},
		userAgent: opts.UserAgent,
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return f
}

// Fetch performs one GET. Redirects are followed; transport failures and
// non-2xx statuses are returned as *errors.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewFetch(url, 0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewFetch(url, 0, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewFetch(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, apperrors.NewFetch(url, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewFetch(url, resp.StatusCode, err)
	}

	return &Response{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
