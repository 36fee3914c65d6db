package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	researchSearchLimit = 10
	researchFetchLimit  = 4
	researchConcurrency = 2
	researchPageCap     = 20000 // chars of extracted article text per page
)

// Domains that waste a fetch slot: paywalls, login walls, forums that
// render empty without JS.
var junkDomains = []string{
	"reddit.com", "quora.com", "facebook.com", "twitter.com", "x.com",
	"instagram.com", "linkedin.com", "pinterest.com", "forums.att.com",
}

// DeepResearchTool searches wide, fetches the best pages, strips them to
// readable text and distills each through the worker pool.
type DeepResearchTool struct {
	search   *WebSearchTool
	egress   *Egress
	upstream service.UpstreamClient
	model    string
	prompts  *promptTexts
	logger   *zap.Logger
}

// promptTexts carries the prompt strings this tool injects.
type promptTexts struct {
	Distill string // per-page fact extraction system prompt
}

func NewDeepResearchTool(search *WebSearchTool, egress *Egress, upstream service.UpstreamClient, model string, logger *zap.Logger) *DeepResearchTool {
	return &DeepResearchTool{
		search:   search,
		egress:   egress,
		upstream: upstream,
		model:    model,
		prompts: &promptTexts{
			Distill: "You are an information extraction engine. From the page text, extract only facts relevant to the research query. Output terse bullet points. No commentary.",
		},
		logger: logger.With(zap.String("tool", "deep_research")),
	}
}

func (t *DeepResearchTool) Name() string          { return "deep_research" }
func (t *DeepResearchTool) Kind() domaintool.Kind { return domaintool.KindNetwork }
func (t *DeepResearchTool) Description() string {
	return "Multi-source research: searches the web, reads the top pages and returns extracted facts with sources. Slower but far more thorough than web_search."
}

func (t *DeepResearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The research question.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *DeepResearchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	query := strings.TrimSpace(strArg(args, "query"))
	if query == "" {
		return fail("Error: 'query' parameter is required")
	}

	hits, err := t.search.Search(ctx, query, researchSearchLimit)
	if err != nil {
		return fail("Error: search phase failed: %v", err)
	}

	targets := selectTargets(hits, researchFetchLimit)
	if len(targets) == 0 {
		return ok(fmt.Sprintf("No usable sources found for '%s'.", query))
	}

	type pageFacts struct {
		hit   searchHit
		facts string
	}
	results := make([]pageFacts, len(targets))
	sem := make(chan struct{}, researchConcurrency)
	var wg sync.WaitGroup

	for i, hit := range targets {
		wg.Add(1)
		go func(i int, hit searchHit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			facts, ferr := t.extractFacts(ctx, query, hit)
			if ferr != nil {
				t.logger.Warn("Source extraction failed",
					zap.String("url", hit.URL), zap.Error(ferr))
				facts = fmt.Sprintf("(source unreachable: %v)", ferr)
			}
			results[i] = pageFacts{hit: hit, facts: facts}
		}(i, hit)
	}
	wg.Wait()

	var sb strings.Builder
	sb.WriteString("--- DEEP RESEARCH RESULT ---\n")
	fmt.Fprintf(&sb, "Query: %s\nSources analyzed: %d\n\n", query, len(targets))
	for i, r := range results {
		fmt.Fprintf(&sb, "### Source %d: %s\n%s\n[EDGE EXTRACTED FACTS]:\n%s\n\n",
			i+1, r.hit.Title, r.hit.URL, r.facts)
	}
	return ok(strings.TrimSpace(sb.String()))
}

// selectTargets drops junk domains and duplicates, keeping result order.
func selectTargets(hits []searchHit, limit int) []searchHit {
	var out []searchHit
	seen := make(map[string]bool)
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		host := hostOf(h.URL)
		if host == "" || seen[host] || isJunkDomain(host) {
			continue
		}
		seen[host] = true
		out = append(out, h)
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func isJunkDomain(host string) bool {
	for _, junk := range junkDomains {
		if host == junk || strings.HasSuffix(host, "."+junk) {
			return true
		}
	}
	return false
}

// extractFacts fetches one page, readability-strips it and distills the
// text against the query via the worker pool.
func (t *DeepResearchTool) extractFacts(ctx context.Context, query string, hit searchHit) (string, error) {
	client, err := t.egress.AnonClient()
	if err != nil {
		return "", err
	}
	pageURL, err := url.Parse(hit.URL)
	if err != nil {
		return "", fmt.Errorf("bad source URL: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, "GET", pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 2*1024*1024), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("page yielded no readable text")
	}
	if len(text) > researchPageCap {
		text = text[:researchPageCap]
	}

	chatResp, err := t.upstream.Chat(ctx, service.PoolWorker, &service.ChatRequest{
		Messages: []entity.Message{
			entity.SystemMessage(t.prompts.Distill),
			entity.UserMessage(fmt.Sprintf("RESEARCH QUERY: %s\n\nPAGE TEXT:\n%s", query, text)),
		},
		Model:       t.model,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		// distillation is an enhancement; raw head of the page still informs
		return truncate(text, 2000), nil
	}
	return strings.TrimSpace(chatResp.Message.Content), nil
}
