// Package images finds a working display image for a listing.
//
// Candidates are tried in order: the source image (normalized), the
// canonical CDN path for the SKU, then a name-based image search. Every
// failure degrades to the next candidate and finally to no image; nothing
// here fails a listing.
package images

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"liquorbot/models"
	"liquorbot/utils"
)

// ErrNoImage is returned by a Searcher that found nothing usable.
var ErrNoImage = errors.New("no image found")

// Searcher resolves a fallback image for a free-text query.
type Searcher interface {
	SearchImage(ctx context.Context, query string) (string, error)
}

// jpegExt matches a ".jpeg" extension at the end of the path. The source
// labels assets .jpeg but only serves them as .jpg.
var jpegExt = regexp2.MustCompile(`\.jpeg(?=$|[?#])`, regexp2.IgnoreCase)

// NormalizeURL forces https and corrects the jpeg extension.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case strings.HasPrefix(strings.ToLower(u), "http://"):
		u = "https://" + u[len("http://"):]
	}
	if fixed, err := jpegExt.Replace(u, ".jpg", -1, -1); err == nil {
		u = fixed
	}
	return u
}

// Resolver picks a display image for a listing.
type Resolver struct {
	client   *http.Client
	baseURL  string
	searcher Searcher
	timeout  time.Duration
	logger   *utils.Logger
}

// NewResolver creates a Resolver. searcher may be nil to disable the search
// fallback.
func NewResolver(baseURL string, probeTimeout time.Duration, searcher Searcher, logger *utils.Logger) *Resolver {
	return &Resolver{
		client:   &http.Client{Timeout: probeTimeout},
		baseURL:  baseURL,
		searcher: searcher,
		timeout:  probeTimeout,
		logger:   logger,
	}
}

// Resolve returns a reachable image URL for l, or "" when none resolves.
func (r *Resolver) Resolve(ctx context.Context, l *models.Listing) string {
	for _, candidate := range r.candidates(l) {
		if r.exists(ctx, candidate) {
			return candidate
		}
	}

	if r.searcher == nil || l.Name == "" {
		return ""
	}

	r.logger.Debug("[images] No remote image for %s (%d), searching by name", l.Name, l.SKU)
	found, err := r.searcher.SearchImage(ctx, l.Name)
	if err != nil {
		r.logger.Debug("[images] Search failed for %s: %v", l.Name, err)
		return ""
	}
	return found
}

func (r *Resolver) candidates(l *models.Listing) []string {
	var out []string
	if src := NormalizeURL(l.Image); src != "" {
		out = append(out, src)
	}
	if r.baseURL != "" {
		canonical := r.baseURL + strconv.FormatInt(l.SKU, 10) + ".jpg"
		if len(out) == 0 || out[0] != canonical {
			out = append(out, canonical)
		}
	}
	return out
}

// exists issues a HEAD probe bounded by the probe timeout.
func (r *Resolver) exists(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	res, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("[images] Probe %s: %v", url, err)
		return false
	}
	res.Body.Close()
	return res.StatusCode >= 200 && res.StatusCode < 300
}
