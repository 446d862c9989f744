package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"aigent/internal/credentials"
)

// webFetchTool fetches the full content of a URL.
type webFetchTool struct{ policy *Policy }

func (t *webFetchTool) Name() string { return "web_fetch" }
func (t *webFetchTool) Description() string {
	return "Fetch the full content from a URL. Use after web_search to retrieve complete information from promising results."
}
func (t *webFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "description": "URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *webFetchTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	url, ok := args["url"]
	if !ok {
		return fail("url is required"), nil
	}
	domain := extractDomain(url)
	if allowed, reason := t.policy.CheckDomain(t.Name(), domain); !allowed {
		return fail(reason), nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fail(fmt.Sprintf("invalid url: %v", err)), nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(fmt.Sprintf("failed to read response: %v", err)), nil
	}
	return success(string(body)), nil
}

func extractDomain(urlStr string) string {
	urlStr = strings.TrimPrefix(urlStr, "https://")
	urlStr = strings.TrimPrefix(urlStr, "http://")
	if idx := strings.IndexAny(urlStr, "/:"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	return urlStr
}

// webSearchTool searches the web via Brave Search, authenticated with
// BRAVE_API_KEY (spec §6); a Tavily fallback path is dropped since spec §6
// names only Brave.
type webSearchTool struct {
	creds *credentials.Credentials
}

func (t *webSearchTool) Name() string { return "web_search" }
func (t *webSearchTool) Description() string {
	return "Search the web. Returns titles, URLs, and short snippets."
}
func (t *webSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search query"},
			"count": map[string]interface{}{"type": "string", "description": "Number of results (1-10, default 5)"},
		},
		"required": []string{"query"},
	}
}

type braveSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (t *webSearchTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	query, ok := args["query"]
	if !ok {
		return fail("query is required"), nil
	}
	count := 5
	if c, ok := args["count"]; ok {
		if n, err := strconv.Atoi(c); err == nil {
			count = n
		}
	}
	if count < 1 {
		count = 1
	} else if count > 10 {
		count = 10
	}

	creds := t.creds
	if creds == nil {
		creds = credentials.New()
	}
	apiKey := creds.BraveAPIKey()
	if apiKey == "" {
		return fail("no search API configured: set BRAVE_API_KEY"), nil
	}

	results, err := searchBrave(ctx, query, count, apiKey)
	if err != nil {
		return fail(err.Error()), nil
	}
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Snippet)
	}
	return success(strings.TrimSpace(sb.String())), nil
}

func searchBrave(ctx context.Context, query string, count int, apiKey string) ([]braveSearchResult, error) {
	url := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d",
		strings.ReplaceAll(query, " ", "+"), count)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("brave search error (%d): %s", resp.StatusCode, string(body))
	}

	var braveResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&braveResp); err != nil {
		return nil, fmt.Errorf("failed to parse brave response: %w", err)
	}

	results := make([]braveSearchResult, 0, len(braveResp.Web.Results))
	for _, r := range braveResp.Web.Results {
		results = append(results, braveSearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}
