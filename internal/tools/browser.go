package tools

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxExtractChars = 10000

// Browser owns one headless Chrome session for the lifetime of a run.
// The session is started lazily on first use and must be released with
// Close on every exit path so no process leaks across runs.
type Browser struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser() *Browser {
	return &Browser{}
}

func (b *Browser) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.teardown()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *Browser) teardown() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser session down. Safe to call repeatedly and
// before the session ever started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardown()
	return nil
}

// Open navigates the shared session to a URL.
func (b *Browser) Open(ctx context.Context, rawURL string) Result {
	if err := b.init(); err != nil {
		return Errf(KindPage, "failed to start browser: %v", err)
	}

	actionCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	var title, location string
	err := chromedp.Run(actionCtx,
		chromedp.Navigate(rawURL),
		chromedp.Title(&title),
		chromedp.Location(&location),
	)
	if err != nil {
		return Errf(KindPage, "failed to open %s: %v", rawURL, err)
	}

	return Result{Kind: KindPage, Page: &Page{URL: location, Title: title}}
}

// ExtractCurrent pulls the readable content out of the page the session
// is currently on, sanitized and truncated.
func (b *Browser) ExtractCurrent(ctx context.Context) Result {
	if err := b.init(); err != nil {
		return Errf(KindContent, "failed to start browser: %v", err)
	}

	actionCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()

	var html, location string
	err := chromedp.Run(actionCtx,
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Errf(KindContent, "failed to capture page: %v", err)
	}

	pageURL, err := url.Parse(location)
	if err != nil {
		return Errf(KindContent, "failed to parse page url: %v", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return Errf(KindContent, "failed to parse article: %v", err)
	}

	content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > maxExtractChars {
		content = content[:maxExtractChars]
	}

	return Result{Kind: KindContent, Content: &Extract{
		Title:   article.Title,
		Content: content,
		URL:     location,
	}}
}

// OpenTool exposes Browser.Open to the registry.
type OpenTool struct {
	Browser *Browser
}

func (t *OpenTool) Name() string {
	return "browser.open"
}

func (t *OpenTool) Description() string {
	return "Open a web page in the shared browser session. Input: the URL."
}

func (t *OpenTool) Execute(ctx context.Context, input string) Result {
	target := strings.TrimSpace(input)
	if target == "" {
		return Errf(KindPage, "empty url")
	}
	return t.Browser.Open(ctx, target)
}

// ExtractTool exposes Browser.ExtractCurrent to the registry.
type ExtractTool struct {
	Browser *Browser
}

func (t *ExtractTool) Name() string {
	return "browser.extract"
}

func (t *ExtractTool) Description() string {
	return "Extract the readable content of the currently open page. Input: extraction mode (readability)."
}

func (t *ExtractTool) Execute(ctx context.Context, input string) Result {
	return t.Browser.ExtractCurrent(ctx)
}
