// Package rucio implements transformer.MetadataProvider against Rucio's DID
// metadata API, grounded on original_source/atlas/lib/idds/atlas/workflow/
// atlaspandawork.py's get_rucio_client/client.get_metadata(scope=, name=)
// call site — the original talks to Rucio through its Python client
// library; this is the idiomatic Go equivalent, a thin HTTP client over the
// same resilience stack panda.Client uses (idderrors.Retry/CircuitBreaker,
// x/time/rate throttling), since both are outbound calls to an external
// ATLAS distributed-computing service under the same operational pressure.
package rucio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/iddsorg/idds/internal/agent/transformer"
	"github.com/iddsorg/idds/internal/cache"
	"github.com/iddsorg/idds/internal/idderrors"
	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/runtime"
)

// Config configures the Rucio HTTP client.
type Config struct {
	BaseURL      string
	AuthToken    string
	Timeout      time.Duration
	RateLimitRPS float64
	RateBurst    int
}

// Client is a transformer.MetadataProvider backed by Rucio's DID metadata API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *idderrors.CircuitBreaker
	retry   idderrors.RetryConfig
	logger  *logging.Logger
}

// New constructs a Rucio-backed MetadataProvider.
func New(cfg Config) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: idderrors.NewCircuitBreaker("rucio", idderrors.DefaultCircuitBreakerConfig()),
		retry:   idderrors.DefaultRetryConfig(),
		logger:  logging.NewComponentLogger("rucio-driver"),
	}
}

// didMetadataResponse mirrors the fields of client.get_metadata's result
// that Transformer's pollInputCollections needs (§4.F).
type didMetadataResponse struct {
	Bytes  int64  `json:"bytes"`
	Length int    `json:"length"`
	IsOpen bool   `json:"is_open"`
	DIDType string `json:"did_type"`
}

// GetMetadata implements transformer.MetadataProvider.
func (c *Client) GetMetadata(ctx context.Context, scope, name string) (transformer.CollectionMetadata, error) {
	ctx, span := runtime.StartDriverSpan(ctx, "GET dids/meta")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return transformer.CollectionMetadata{}, idderrors.Wrap(idderrors.KindConnectionFailure, err, "rucio: rate limiter wait")
	}

	var out didMetadataResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return idderrors.Retry(ctx, c.retry, c.logger, func(ctx context.Context) error {
			return c.doOnce(ctx, scope, name, &out)
		})
	})
	if err != nil {
		return transformer.CollectionMetadata{}, err
	}
	return transformer.CollectionMetadata{
		Bytes:   out.Bytes,
		Length:  out.Length,
		IsOpen:  out.IsOpen,
		DIDType: out.DIDType,
	}, nil
}

func (c *Client) doOnce(ctx context.Context, scope, name string, out *didMetadataResponse) error {
	path := fmt.Sprintf("/dids/%s/%s/meta", scope, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return idderrors.Wrap(idderrors.KindInternal, err, "rucio: build request")
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Rucio-Auth-Token", c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return idderrors.Wrap(idderrors.KindConnectionFailure, err, "rucio: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return idderrors.Wrap(idderrors.KindConnectionFailure, err, "rucio: read response")
	}
	if resp.StatusCode >= 500 {
		return idderrors.New(idderrors.KindConnectionFailure, fmt.Sprintf("rucio: server error %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return idderrors.New(idderrors.KindDriverFailure, fmt.Sprintf("rucio: request error %d: %s", resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return idderrors.Wrap(idderrors.KindDriverFailure, err, "rucio: decode response")
	}
	return nil
}

var _ transformer.MetadataProvider = (*Client)(nil)

// CachingProvider wraps a MetadataProvider with a process-local cache
// keyed on "scope:name", the spot SPEC_FULL.md's caching component names
// (external collection-metadata lookups between Transformer cycles): a
// Collection's metadata rarely changes within a Transform's lifetime, and
// re-resolving it on every Transformer cycle is one round trip to Rucio
// per open input Collection per cycle for no benefit.
type CachingProvider struct {
	inner transformer.MetadataProvider
	cache *cache.Cache[string, transformer.CollectionMetadata]
}

// NewCachingProvider wraps inner with an LRU of the given size and TTL.
func NewCachingProvider(inner transformer.MetadataProvider, size int, ttl time.Duration) *CachingProvider {
	return &CachingProvider{inner: inner, cache: cache.New[string, transformer.CollectionMetadata](size, ttl)}
}

func (c *CachingProvider) GetMetadata(ctx context.Context, scope, name string) (transformer.CollectionMetadata, error) {
	key := scope + ":" + name
	if meta, ok := c.cache.Get(key); ok {
		return meta, nil
	}
	meta, err := c.inner.GetMetadata(ctx, scope, name)
	if err != nil {
		return transformer.CollectionMetadata{}, err
	}
	c.cache.Add(key, meta)
	return meta, nil
}

var _ transformer.MetadataProvider = (*CachingProvider)(nil)
