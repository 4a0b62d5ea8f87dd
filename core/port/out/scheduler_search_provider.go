package out

import "context"

type WebResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type NewsResult struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchProvider runs web and news searches.
type SearchProvider interface {
	SearchWeb(ctx context.Context, query string, num int) ([]WebResult, error)
	SearchNews(ctx context.Context, query string, num int) ([]NewsResult, error)
}
