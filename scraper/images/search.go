package images

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const resultAltPrefix = "image result for"

// HTMLSearcher scrapes the first result thumbnail from an image search page.
type HTMLSearcher struct {
	client    *http.Client
	searchURL string
	userAgent string
}

// NewHTMLSearcher creates an HTMLSearcher against searchURL (queried with ?q=).
func NewHTMLSearcher(searchURL, userAgent string, timeout time.Duration) *HTMLSearcher {
	return &HTMLSearcher{
		client:    &http.Client{Timeout: timeout},
		searchURL: searchURL,
		userAgent: userAgent,
	}
}

// SearchImage returns the src of the first result image for query.
func (s *HTMLSearcher) SearchImage(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(s.searchURL)
	if err != nil {
		return "", fmt.Errorf("images: bad search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("images: search request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("images: search status %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return "", fmt.Errorf("images: parse search page: %w", err)
	}

	return firstResultImage(doc)
}

func firstResultImage(doc *goquery.Document) (string, error) {
	var found string
	doc.Find("img[alt]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		alt := strings.ToLower(strings.TrimSpace(sel.AttrOr("alt", "")))
		if !strings.HasPrefix(alt, resultAltPrefix) {
			return true
		}
		for _, attr := range []string{"src", "data-src"} {
			if src := strings.TrimSpace(sel.AttrOr(attr, "")); isRemote(src) {
				found = src
				return false
			}
		}
		return true
	})

	if found == "" {
		return "", ErrNoImage
	}
	return found, nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "http://")
}
