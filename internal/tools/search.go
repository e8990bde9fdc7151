package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const searchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// SearchTool queries DuckDuckGo's HTML endpoint and returns structured
// hits. A transport-level failure is reported as a single hit carrying
// an error marker, which the fast-path classifier treats as a failure.
type SearchTool struct {
	client     *http.Client
	endpoint   string
	maxResults int
}

func NewSearchTool() *SearchTool {
	return &SearchTool{
		client:     &http.Client{Timeout: 20 * time.Second},
		endpoint:   "https://html.duckduckgo.com/html/",
		maxResults: 10,
	}
}

func (s *SearchTool) Name() string {
	return "browser.search"
}

func (s *SearchTool) Description() string {
	return "Search the web with DuckDuckGo. Input: the search keywords."
}

func (s *SearchTool) Execute(ctx context.Context, input string) Result {
	query := strings.TrimSpace(input)
	if query == "" {
		return Errf(KindHits, "empty search query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return Result{Kind: KindHits, Hits: []Hit{{Err: err.Error()}}}
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Kind: KindHits, Hits: []Hit{{Err: err.Error()}}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Kind: KindHits, Hits: []Hit{{Err: fmt.Sprintf("search returned status %d", resp.StatusCode)}}}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{Kind: KindHits, Hits: []Hit{{Err: err.Error()}}}
	}

	hits := parseResults(doc, s.maxResults)
	return Result{Kind: KindHits, Hits: hits}
}

func parseResults(doc *goquery.Document, max int) []Hit {
	hits := []Hit{}
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		target := resolveRedirect(href)
		if target == "" || !strings.HasPrefix(target, "http") {
			return true
		}

		snippet := strings.TrimSpace(sel.Find(".result__snippet").First().Text())
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}

		hits = append(hits, Hit{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: snippet,
		})
		return len(hits) < max
	})
	return hits
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	return href
}
