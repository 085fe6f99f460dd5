package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seaborne/helmsman/agent"
)

const maxSearchResults = 5

// searchResponse is the JSON shape returned by SearxNG-compatible search
// endpoints.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// RegisterWebSearch registers the web_search tool against a SearxNG-style
// JSON search endpoint. httpClient may be nil for a default with a timeout.
func RegisterWebSearch(reg *agent.Registry, baseURL string, httpClient *http.Client) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	reg.Register(agent.Tool{
		Name:        "web_search",
		Description: "Search the web and return the top results with titles, URLs, and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, ok := agent.StringArg(args, "query")
			if !ok || strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required")
			}
			return runSearch(ctx, httpClient, baseURL, query)
		},
	})
}

func runSearch(ctx context.Context, client *http.Client, baseURL, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", strings.TrimRight(baseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return "no results for " + query, nil
	}

	results := decoded.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Content)
		}
	}
	return sb.String(), nil
}
