// Package search implements out.SearchProvider on the Serper API.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scheduler_server/core/port/out"
	"scheduler_server/pkg/httputil"
	"scheduler_server/pkg/resilience"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://google.serper.dev"
	DefaultResults = 5
	MaxResults     = 10
)

const (
	kindWeb  = "search"
	kindNews = "news"
)

// Cache stores decoded responses. *cache.RedisCache implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type SerperConfig struct {
	APIKey     string
	BaseURL    string
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

type SerperClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	breaker  *resilience.Breaker
	log      zerolog.Logger
}

var _ out.SearchProvider = (*SerperClient)(nil)

// NewSerperClient builds a client. cache may be nil.
func NewSerperClient(cfg SerperConfig, cache Cache, log zerolog.Logger) *SerperClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.NewClient(httputil.SearchClientConfig())
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	log = log.With().Str("component", "serper").Logger()
	return &SerperClient{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     cfg.HTTPClient,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerConfig("serper"), log),
		log:      log,
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type webResponse struct {
	Organic []out.WebResult `json:"organic"`
}

type newsResponse struct {
	News []out.NewsResult `json:"news"`
}

func (c *SerperClient) SearchWeb(ctx context.Context, query string, num int) ([]out.WebResult, error) {
	var resp webResponse
	if err := c.search(ctx, kindWeb, query, num, &resp); err != nil {
		return nil, err
	}
	return resp.Organic, nil
}

func (c *SerperClient) SearchNews(ctx context.Context, query string, num int) ([]out.NewsResult, error) {
	var resp newsResponse
	if err := c.search(ctx, kindNews, query, num, &resp); err != nil {
		return nil, err
	}
	return resp.News, nil
}

func clampResults(n int) int {
	if n <= 0 {
		return DefaultResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

func cacheKey(kind string, num int, query string) string {
	return fmt.Sprintf("search:%s:%d:%s", kind, num, strings.ToLower(strings.TrimSpace(query)))
}

func (c *SerperClient) search(ctx context.Context, kind, query string, num int, dest any) error {
	num = clampResults(num)
	key := cacheKey(kind, num, query)

	if c.cache != nil {
		hit, err := c.cache.GetJSON(ctx, key, dest)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("search cache read failed")
		} else if hit {
			return nil
		}
	}

	err := c.breaker.Execute(func() error {
		return c.post(ctx, kind, searchRequest{Q: query, Num: num}, dest)
	})
	if err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, dest, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("search cache write failed")
		}
	}
	return nil
}

func (c *SerperClient) post(ctx context.Context, kind string, body searchRequest, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+kind, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("serper %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("serper %s: status %d: %s", kind, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode serper %s response: %w", kind, err)
	}
	return nil
}

func (c *SerperClient) BreakerState() string {
	return c.breaker.State()
}
