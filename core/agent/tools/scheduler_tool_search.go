package tools

import (
	"context"
	"fmt"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/pkg/apperr"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 10
)

func searchParameters(subject string) []ParameterSpec {
	return []ParameterSpec{
		{Name: "query", Type: "string", Description: subject + " query", Required: true},
		{Name: "num_results", Type: "integer", Description: "Number of results, at most 10", Default: defaultSearchResults},
	}
}

func resultCount(args map[string]any) (int, error) {
	n, err := intArg(args, "num_results", defaultSearchResults)
	if err != nil {
		return 0, apperr.InvalidInput("num_results", err.Error())
	}
	if n <= 0 {
		n = defaultSearchResults
	}
	if n > maxSearchResults {
		n = maxSearchResults
	}
	return n, nil
}

// SearchWebTool runs a general web search.
type SearchWebTool struct {
	provider out.SearchProvider
}

func NewSearchWebTool(provider out.SearchProvider) *SearchWebTool {
	return &SearchWebTool{provider: provider}
}

func (t *SearchWebTool) Name() string           { return "search_web" }
func (t *SearchWebTool) Category() ToolCategory { return CategorySearch }

func (t *SearchWebTool) Description() string {
	return "Searches the web. Returns results with a title, link and snippet."
}

func (t *SearchWebTool) Parameters() []ParameterSpec { return searchParameters("Web search") }

func (t *SearchWebTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	n, err := resultCount(args)
	if err != nil {
		return nil, err
	}
	query := stringArg(args, "query", "")
	results, err := t.provider.SearchWeb(ctx, query, n)
	if err != nil {
		return nil, apperr.RemoteUnavailable("search", "web search failed", err)
	}
	if len(results) == 0 {
		return &ToolResult{Success: true, Message: "No results found."}, nil
	}
	return &ToolResult{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Found %d web result(s) for '%s'.", len(results), query),
	}, nil
}

// SearchNewsTool searches recent news articles.
type SearchNewsTool struct {
	provider out.SearchProvider
}

func NewSearchNewsTool(provider out.SearchProvider) *SearchNewsTool {
	return &SearchNewsTool{provider: provider}
}

func (t *SearchNewsTool) Name() string           { return "search_news" }
func (t *SearchNewsTool) Category() ToolCategory { return CategorySearch }

func (t *SearchNewsTool) Description() string {
	return "Searches news articles. Returns results with a title, source, date, link and snippet."
}

func (t *SearchNewsTool) Parameters() []ParameterSpec { return searchParameters("News search") }

func (t *SearchNewsTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	n, err := resultCount(args)
	if err != nil {
		return nil, err
	}
	query := stringArg(args, "query", "")
	results, err := t.provider.SearchNews(ctx, query, n)
	if err != nil {
		return nil, apperr.RemoteUnavailable("search", "news search failed", err)
	}
	if len(results) == 0 {
		return &ToolResult{Success: true, Message: "No results found."}, nil
	}
	return &ToolResult{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Found %d news article(s) for '%s'.", len(results), query),
	}, nil
}
