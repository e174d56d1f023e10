// Package pagemeta extracts descriptive metadata from a rendered page. The
// result decorates completed scan records; extraction failures never fail a
// scan.
package pagemeta

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
)

// Inspector reads the rendered DOM out of a chromedp tab context.
type Inspector struct {
	logger logging.Logger
}

// New creates an Inspector. A nil logger defaults to a nop logger.
func New(logger logging.Logger) *Inspector {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Inspector{logger: logger.With(logging.Field{Key: "component", Value: "pagemeta"})}
}

// Inspect captures the current document of the tab behind ctx and extracts
// its metadata.
func (i *Inspector) Inspect(ctx context.Context) (*model.PageMeta, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("capture document: %w", err)
	}
	return Extract(strings.NewReader(html))
}

// Extract parses an HTML document and pulls title, language and description.
func Extract(r io.Reader) (*model.PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	meta := &model.PageMeta{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		meta.Lang = strings.TrimSpace(lang)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		meta.Description = strings.TrimSpace(desc)
	}
	return meta, nil
}
