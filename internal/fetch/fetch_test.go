package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/internal/config"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/book/mimetype", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/epub+zip")
		w.Header().Set("X-Agent", r.UserAgent())
		w.Write([]byte("application/epub+zip"))
	})
	mux.HandleFunc("/book/old.css", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/book/new.css", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/book/new.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("p {}"))
	})
	mux.HandleFunc("/book/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/book/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newServer(t)
	f := New(Options{UserAgent: "epubmirror-test"})

	resp, err := f.Fetch(context.Background(), srv.URL+"/book/mimetype")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(resp.Body) != "application/epub+zip" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.ContentType != "application/epub+zip" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestFetchUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
	}))
	defer srv.Close()

	if _, err := New(Options{UserAgent: "epubmirror/test"}).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if got != "epubmirror/test" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	srv := newServer(t)
	resp, err := New(Options{}).Fetch(context.Background(), srv.URL+"/book/old.css")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.URL != srv.URL+"/book/old.css" {
		t.Errorf("URL = %q", resp.URL)
	}
	if resp.FinalURL != srv.URL+"/book/new.css" {
		t.Errorf("FinalURL = %q", resp.FinalURL)
	}
	if string(resp.Body) != "p {}" {
		t.Errorf("Body = %q", resp.Body)
	}
}

func TestFetchErrors(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		url    string
		opts   Options
		status int
	}{
		{name: "not found", url: srv.URL + "/book/missing", status: http.StatusNotFound},
		{name: "server error", url: srv.URL + "/book/broken", status: http.StatusInternalServerError},
		{name: "timeout", url: srv.URL + "/book/slow", opts: Options{Timeout: 50 * time.Millisecond}},
		{name: "bad url", url: "http://[::1", status: 0},
		{name: "connection refused", url: "http://127.0.0.1:1/x", status: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts).Fetch(context.Background(), tt.url)
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *apperrors.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %T: %v", err, err)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.status)
			}
			if fe.URL != tt.url {
				t.Errorf("URL = %q, want %q", fe.URL, tt.url)
			}
			if !errors.Is(err, apperrors.ErrFetch) {
				t.Error("error should match ErrFetch")
			}
		})
	}
}

func TestFetchCanceled(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Fetch(ctx, srv.URL+"/book/mimetype")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchRateLimit(t *testing.T) {
	srv := newServer(t)
	f := New(Options{RateLimit: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL+"/book/mimetype"); err != nil {
			t.Fatal(err)
		}
	}
	// A burst of one lets the first request through; the next two wait 50ms each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 requests at 20/s took %v", elapsed)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Mirror{
		UserAgent: "ua",
		RateLimit: 2.5,
		Timeout:   config.Duration{Duration: 3 * time.Second},
	}
	opts := OptionsFromConfig(cfg)
	if opts.UserAgent != "ua" || opts.RateLimit != 2.5 || opts.Timeout != 3*time.Second {
		t.Errorf("OptionsFromConfig = %+v", opts)
	}
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(ctx context.Context, url string) (*Response, error) {
		return &Response{URL: url, Body: []byte("x")}, nil
	})
	resp, err := f.Fetch(context.Background(), "u")
	if err != nil || resp.URL != "u" {
		t.Errorf("FetcherFunc = %+v, %v", resp, err)
	}
}
