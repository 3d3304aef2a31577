package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"liquorbot/models"
	"liquorbot/utils"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://cdn.example.com/a/123.jpeg", "https://cdn.example.com/a/123.jpg"},
		{"https://cdn.example.com/a/123.JPEG?w=800", "https://cdn.example.com/a/123.jpg?w=800"},
		{"//cdn.example.com/x.png", "https://cdn.example.com/x.png"},
		{"https://cdn.example.com/jpeg/123.jpg", "https://cdn.example.com/jpeg/123.jpg"},
		{"  ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.raw); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

type stubSearcher struct {
	url   string
	err   error
	calls int
}

func (s *stubSearcher) SearchImage(ctx context.Context, query string) (string, error) {
	s.calls++
	return s.url, s.err
}

// imageHost serves HEAD 200 only for the listed paths.
func imageHost(ok ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range ok {
			if r.URL.Path == p {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

// the resolver forces https, so source images in tests point at a TLS server
func TestResolvePrefersSourceImage(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe method: got %s, want HEAD", r.Method)
		}
		if r.URL.Path == "/src/1.jpg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	search := &stubSearcher{url: "https://search/img.png"}
	r := NewResolver(srv.URL+"/canonical/", time.Second, search, utils.Nop())
	r.client = srv.Client()

	l := &models.Listing{SKU: 1, Name: "Gin", Image: srv.URL + "/src/1.jpeg"}
	got := r.Resolve(context.Background(), l)

	if want := srv.URL + "/src/1.jpg"; got != want {
		t.Errorf("Resolve: got %q, want %q", got, want)
	}
	if search.calls != 0 {
		t.Errorf("search should not run when the source image exists")
	}
}

func TestResolveFallsBackToCanonical(t *testing.T) {
	srv := imageHost("/canonical/42.jpg")
	defer srv.Close()

	search := &stubSearcher{url: "https://search/img.png"}
	r := NewResolver(srv.URL+"/canonical/", time.Second, search, utils.Nop())

	got := r.Resolve(context.Background(), &models.Listing{SKU: 42, Name: "Vodka"})
	if want := srv.URL + "/canonical/42.jpg"; got != want {
		t.Errorf("Resolve: got %q, want %q", got, want)
	}
}

func TestResolveFallsBackToSearch(t *testing.T) {
	srv := imageHost()
	defer srv.Close()

	search := &stubSearcher{url: "https://search/img.png"}
	r := NewResolver(srv.URL+"/canonical/", time.Second, search, utils.Nop())

	got := r.Resolve(context.Background(), &models.Listing{SKU: 7, Name: "Rum"})
	if got != "https://search/img.png" {
		t.Errorf("Resolve: got %q, want search result", got)
	}
	if search.calls != 1 {
		t.Errorf("search calls: got %d, want 1", search.calls)
	}
}

func TestResolveDegradesToEmpty(t *testing.T) {
	srv := imageHost()
	defer srv.Close()

	r := NewResolver(srv.URL+"/canonical/", time.Second, &stubSearcher{err: ErrNoImage}, utils.Nop())
	if got := r.Resolve(context.Background(), &models.Listing{SKU: 7, Name: "Rum"}); got != "" {
		t.Errorf("Resolve: got %q, want empty", got)
	}

	r = NewResolver(srv.URL+"/canonical/", time.Second, nil, utils.Nop())
	if got := r.Resolve(context.Background(), &models.Listing{SKU: 7, Name: "Rum"}); got != "" {
		t.Errorf("Resolve without searcher: got %q, want empty", got)
	}
}

func TestResolveProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL+"/", 50*time.Millisecond, nil, utils.Nop())

	start := time.Now()
	got := r.Resolve(context.Background(), &models.Listing{SKU: 9, Name: "Slow"})
	if got != "" {
		t.Errorf("Resolve: got %q, want empty after timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 190*time.Millisecond {
		t.Errorf("probe took %v, should be bounded by the timeout", elapsed)
	}
}

func TestHTMLSearcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "Hendrick's Gin" {
			t.Errorf("query: got %q", q)
		}
		fmt.Fprint(w, `<html><body>
			<img alt="logo" src="https://search/logo.png">
			<img alt="Image result for Hendrick's Gin" src="data:image/gif;base64,AAAA" data-src="https://th.search/1.jpg">
			<img alt="Image result for Hendrick's Gin" src="https://th.search/2.jpg">
		</body></html>`)
	}))
	defer srv.Close()

	s := NewHTMLSearcher(srv.URL, "test", time.Second)
	got, err := s.SearchImage(context.Background(), "Hendrick's Gin")
	if err != nil {
		t.Fatalf("SearchImage: %v", err)
	}
	if got != "https://th.search/1.jpg" {
		t.Errorf("SearchImage: got %q", got)
	}
}

func TestHTMLSearcherNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing</p></body></html>`)
	}))
	defer srv.Close()

	_, err := NewHTMLSearcher(srv.URL, "test", time.Second).SearchImage(context.Background(), "x")
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("want ErrNoImage, got %v", err)
	}
}

func TestCandidatesSkipDuplicateCanonical(t *testing.T) {
	r := NewResolver("https://cdn/800/", time.Second, nil, utils.Nop())
	got := r.candidates(&models.Listing{SKU: 5, Image: "http://cdn/800/5.jpeg"})
	if len(got) != 1 || !strings.HasSuffix(got[0], "/800/5.jpg") {
		t.Errorf("candidates: got %v", got)
	}
}
