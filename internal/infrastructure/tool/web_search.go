package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	searchEndpoint = "https://html.duckduckgo.com/html/"
	searchAttempts = 3
	searchResults  = 5
)

type searchHit struct {
	Title   string
	Snippet string
	URL     string
}

// WebSearchTool queries the DuckDuckGo HTML endpoint. With Tor
// configured every attempt that fails rotates to a fresh circuit.
type WebSearchTool struct {
	egress   *Egress
	endpoint string
	logger   *zap.Logger
}

func NewWebSearchTool(egress *Egress, logger *zap.Logger) *WebSearchTool {
	return &WebSearchTool{
		egress:   egress,
		endpoint: searchEndpoint,
		logger:   logger.With(zap.String("tool", "web_search")),
	}
}

func (t *WebSearchTool) Name() string          { return "web_search" }
func (t *WebSearchTool) Kind() domaintool.Kind { return domaintool.KindNetwork }
func (t *WebSearchTool) Description() string {
	if t.egress.Anonymous() {
		return "Search the internet (Anonymous via Tor). Returns titles, snippets and source URLs."
	}
	return "Search the internet. Returns titles, snippets and source URLs."
}

func (t *WebSearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	query := strings.TrimSpace(strArg(args, "query"))
	if query == "" {
		return fail("Error: 'query' parameter is required")
	}

	hits, err := t.Search(ctx, query, searchResults)
	if err != nil {
		return fail("Error: search failed: %v", err)
	}
	if len(hits) == 0 {
		return ok(fmt.Sprintf("No results found for '%s'.", query))
	}

	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "### %d. %s\n%s\n[Source: %s]\n\n", i+1, h.Title, h.Snippet, h.URL)
	}
	return ok(strings.TrimSpace(sb.String()))
}

// Search runs the query with identity rotation between failed attempts.
// deep_research reuses it with a larger result count.
func (t *WebSearchTool) Search(ctx context.Context, query string, limit int) ([]searchHit, error) {
	var lastErr error
	for attempt := 0; attempt < searchAttempts; attempt++ {
		hits, err := t.searchOnce(ctx, query, limit)
		if err == nil && len(hits) > 0 {
			return hits, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("empty result page")
		}
		t.logger.Warn("Search attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(lastErr))
		t.egress.RotateIdentity()
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", searchAttempts, lastErr)
}

func (t *WebSearchTool) searchOnce(ctx context.Context, query string, limit int) ([]searchHit, error) {
	client, err := t.egress.AnonClient()
	if err != nil {
		return nil, err
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, "POST", t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUA)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from search endpoint", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}
	return parseResultsPage(string(body), limit), nil
}

// parseResultsPage walks the DuckDuckGo HTML result markup: anchors
// classed result__a carry the title and link, result__snippet the text.
func parseResultsPage(page string, limit int) []searchHit {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var hits []searchHit
	var current *searchHit

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(hits) >= limit && current == nil {
			return
		}
		if n.Type == html.ElementNode {
			cls := attrVal(n, "class")
			switch {
			case n.Data == "a" && strings.Contains(cls, "result__a"):
				if current != nil {
					hits = append(hits, *current)
				}
				current = &searchHit{
					Title: strings.TrimSpace(textContent(n)),
					URL:   cleanResultURL(attrVal(n, "href")),
				}
			case strings.Contains(cls, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.TrimSpace(textContent(n))
					hits = append(hits, *current)
					current = nil
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if current != nil && len(hits) < limit {
		hits = append(hits, *current)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// cleanResultURL unwraps the //duckduckgo.com/l/?uddg= redirect.
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, derr := url.QueryUnescape(target); derr == nil {
			return decoded
		}
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
