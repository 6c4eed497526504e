// Package browser renders web pages in headless Chrome for ingestion.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/extract"
)

// DefaultUserAgent is sent unless configured otherwise.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	contentSelector = "main, article, .content, #content"
	scrollScript    = "window.scrollTo(0, document.body.scrollHeight)"
	scrollDelay     = 2 * time.Second
	contentWait     = 10 * time.Second
	linkedInTimeout = 15 * time.Second

	// A4 in inches.
	paperWidth  = 8.27
	paperHeight = 11.69
)

// ErrNavigation is returned when the page could not be loaded.
var ErrNavigation = errors.New("failed to load page")

// Page is a rendered web page.
type Page struct {
	URL   string
	Title string
	HTML  string
	PDF   []byte
}

// RenderOptions are per-request settings.
type RenderOptions struct {
	// Cookies is a "n1=v1; n2=v2" string, used for LinkedIn pages.
	Cookies string
}

// Renderer loads a URL and returns its markup and a printed PDF.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) (*Page, error)
}

// ChromeRenderer starts a fresh headless Chrome per render.
type ChromeRenderer struct {
	headless    bool
	userAgent   string
	execPath    string
	timeout     time.Duration
	settleDelay time.Duration
	logger      *zap.Logger
}

// Option configures a ChromeRenderer.
type Option func(*ChromeRenderer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *ChromeRenderer) { r.logger = l }
}

// NewChromeRenderer returns a renderer configured from cfg.
func NewChromeRenderer(cfg *config.BrowserConfig, opts ...Option) *ChromeRenderer {
	r := &ChromeRenderer{
		headless:    cfg.HeadlessOrDefault(),
		userAgent:   cfg.UserAgent,
		execPath:    cfg.ExecPath,
		timeout:     cfg.Timeout,
		settleDelay: cfg.SettleDelay,
		logger:      zap.NewNop(),
	}
	if r.userAgent == "" {
		r.userAgent = DefaultUserAgent
	}
	if r.timeout <= 0 {
		r.timeout = 60 * time.Second
	}
	if r.settleDelay < 0 {
		r.settleDelay = 0
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(r.userAgent),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	return opts
}

// Render navigates to url, waits for dynamic content, scrolls to the bottom
// to trigger lazy loading, then captures the HTML and prints the page to PDF.
// LinkedIn pages get opts.Cookies on .linkedin.com and a shorter load timeout.
func (r *ChromeRenderer) Render(ctx context.Context, url string, opts RenderOptions) (*Page, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	linkedIn := extract.IsLinkedInURL(url)
	if linkedIn && opts.Cookies != "" {
		cookies := ParseCookies(opts.Cookies, LinkedInCookieDomain)
		if err := chromedp.Run(tabCtx, network.Enable(), setCookies(cookies)); err != nil {
			r.logger.Warn("failed to set cookies", zap.String("url", url), zap.Error(err))
		} else {
			r.logger.Info("set session cookies", zap.Int("count", len(cookies)))
		}
	}

	loadTimeout := r.timeout
	if linkedIn && loadTimeout > linkedInTimeout {
		loadTimeout = linkedInTimeout
	}
	loadCtx, cancelLoad := context.WithTimeout(tabCtx, loadTimeout)
	err := chromedp.Run(loadCtx, chromedp.Navigate(url))
	cancelLoad()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}

	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(r.settleDelay),
		chromedp.Evaluate(scrollScript, nil),
		chromedp.Sleep(scrollDelay),
	); err != nil {
		return nil, fmt.Errorf("failed to settle page: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(tabCtx, contentWait)
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(contentSelector, chromedp.ByQuery)); err != nil {
		r.logger.Debug("no main content element", zap.String("url", url))
	}
	cancelWait()

	p := &Page{URL: url}
	if err := chromedp.Run(tabCtx,
		chromedp.Title(&p.Title),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
		printToPDF(&p.PDF),
	); err != nil {
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}
	r.logger.Info("rendered page",
		zap.String("url", url),
		zap.String("title", p.Title),
		zap.Int("html_bytes", len(p.HTML)),
		zap.Int("pdf_bytes", len(p.PDF)),
	)
	return p, nil
}

func setCookies(cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func printToPDF(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(paperWidth).
			WithPaperHeight(paperHeight).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = data
		return nil
	})
}
