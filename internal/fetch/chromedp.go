package fetch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"newsight/config"
	"newsight/internal/models"
)

// ChromedpFetcher renders pages in a long-lived headless browser before
// extraction, for sites that assemble their content with scripts.
// Construct once; call Fetch per URL; Close on shutdown.
type ChromedpFetcher struct {
	allocCtx  context.Context
	cancelAll context.CancelFunc
	brCtx     context.Context
	cancelBr  context.CancelFunc

	timeout  time.Duration
	maxChars int
}

func NewChromedpFetcher(cfg config.FetchConfig) (*ChromedpFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, cancelBr := chromedp.NewContext(actx)

	return &ChromedpFetcher{
		allocCtx:  actx,
		cancelAll: cancelAlloc,
		brCtx:     bctx,
		cancelBr:  cancelBr,
		timeout:   timeout,
		maxChars:  maxChars,
	}, nil
}

// Close tears down Chrome resources.
func (f *ChromedpFetcher) Close() {
	if f.cancelBr != nil {
		f.cancelBr()
	}
	if f.cancelAll != nil {
		f.cancelAll()
	}
}

func (f *ChromedpFetcher) Fetch(ctx context.Context, link string) (models.Document, error) {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: err}
	}

	tabCtx, cancel := context.WithTimeout(f.brCtx, f.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel) // propagate caller cancellation into the tab
	defer stop()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return models.Document{}, classify(link, err)
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return models.Document{}, &FetchError{Kind: KindUnsupported, URL: link, Err: err}
	}
	text := truncate(strings.TrimSpace(article.TextContent), f.maxChars)
	return models.Document{
		URL:       link,
		Title:     strings.TrimSpace(article.Title),
		Text:      text,
		FetchedAt: time.Now(),
		Status:    models.DocumentFetched,
	}, nil
}
