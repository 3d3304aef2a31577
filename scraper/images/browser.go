package images

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"liquorbot/utils"
)

// BrowserSearcher runs the image search in headless Chrome, for search pages
// that only render results with JavaScript. The browser starts on first use.
type BrowserSearcher struct {
	searchURL string
	userAgent string
	chromeBin string
	timeout   time.Duration
	logger    *utils.Logger

	once        sync.Once
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// NewBrowserSearcher creates a BrowserSearcher. chromeBin may be empty to
// auto-detect an installed Chrome or Chromium.
func NewBrowserSearcher(searchURL, userAgent, chromeBin string, timeout time.Duration, logger *utils.Logger) *BrowserSearcher {
	return &BrowserSearcher{
		searchURL: searchURL,
		userAgent: userAgent,
		chromeBin: chromeBin,
		timeout:   timeout,
		logger:    logger,
	}
}

func (b *BrowserSearcher) start() {
	bin := b.chromeBin
	if bin == "" {
		bin = findChromeBinary()
	}
	b.logger.Info("[images] Starting headless browser: %s", bin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.userAgent),
	)
	if bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelTab = cancelTab
}

// SearchImage navigates to the search page and reads the first result image.
func (b *BrowserSearcher) SearchImage(ctx context.Context, query string) (string, error) {
	b.once.Do(b.start)

	u, err := url.Parse(b.searchURL)
	if err != nil {
		return "", fmt.Errorf("images: bad search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var src string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(u.String()),
		chromedp.Evaluate(`
			(function() {
				var imgs = document.querySelectorAll('img[alt]');
				for (var i = 0; i < imgs.length; i++) {
					var alt = (imgs[i].getAttribute('alt') || '').toLowerCase();
					if (alt.indexOf('`+resultAltPrefix+`') !== 0) continue;
					var src = imgs[i].currentSrc || imgs[i].src || imgs[i].getAttribute('data-src') || '';
					if (src.indexOf('http') === 0) return src;
				}
				return '';
			})()
		`, &src),
	)
	if err != nil {
		return "", fmt.Errorf("images: browser search: %w", err)
	}
	if src == "" {
		return "", ErrNoImage
	}
	return src, nil
}

// Close shuts the browser down if it was started.
func (b *BrowserSearcher) Close() error {
	if b.cancelTab != nil {
		b.cancelTab()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
	return nil
}

// findChromeBinary locates a Chrome or Chromium executable.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
