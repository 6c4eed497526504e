package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/browser"
	"github.com/hyperjump/kbase/internal/models"
)

// ErrNoRenderer is returned by IngestURL when no browser is configured.
var ErrNoRenderer = errors.New("web ingestion is not configured")

// Renderer loads a web page.
type Renderer interface {
	Render(ctx context.Context, url string, opts browser.RenderOptions) (*browser.Page, error)
}

// Supports reports whether a file of this name and media type can be ingested.
func (o *Orchestrator) Supports(filename, mediaType string) bool {
	return o.extractor.Supports(filename, mediaType)
}

// IngestURL renders rawURL in the browser and ingests the printed PDF as the
// stored blob, with text taken from the rendered markup. cookies is a
// "n1=v1; n2=v2" string used for LinkedIn pages.
func (o *Orchestrator) IngestURL(ctx context.Context, rawURL, cookies string, userID *string) (*models.Document, error) {
	if o.renderer == nil {
		return nil, ErrNoRenderer
	}
	log := o.logger.With(zap.String("url", rawURL))
	log.Info("rendering web page")

	page, err := o.renderer.Render(ctx, rawURL, browser.RenderOptions{Cookies: cookies})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", rawURL, err)
	}
	log.Debug("rendered web page", zap.String("title", page.Title), zap.Int("html_bytes", len(page.HTML)), zap.Int("pdf_bytes", len(page.PDF)))

	return o.Ingest(ctx, &Request{
		Content:     page.PDF,
		DisplayName: browser.DisplayName(rawURL),
		MediaHint:   "application/pdf",
		SourceURL:   rawURL,
		HTML:        page.HTML,
		UserID:      userID,
	})
}
