// Package mfapi is a client for the public mfapi.in NAV service. Every read
// goes through a navcache.Cache; when the service cannot be reached an
// expired cache entry is served instead and flagged as stale.
package mfapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/config"
	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"
	"mf-portfolio-go/internal/navcache"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.mfapi.in"
	schemesPath    = "/mf"
)

// ErrNoNAV is returned by NAVOn when a scheme has no NAV on or before the requested day.
var ErrNoNAV = errors.New("no NAV on or before date")

// Source defines the NAV lookups the portfolio needs.
type Source interface {
	ListSchemes(ctx context.Context) ([]fund.SchemeRef, Meta, error)
	Search(ctx context.Context, query string) ([]fund.SchemeRef, Meta, error)
	GetScheme(ctx context.Context, code string) (Scheme, error)
	RefreshScheme(ctx context.Context, code string) (Scheme, error)
	LatestNAV(ctx context.Context, code string) (Quote, error)
	LatestNAVs(ctx context.Context, codes []string, concurrency int) (map[string]Quote, error)
	NAVOn(ctx context.Context, code string, day date.Date) (Quote, error)
	History(ctx context.Context, code string, since date.Date) ([]fund.NAVPoint, error)
}

// Client is a cached, rate limited mfapi.in client.
// It implements the Source interface.
type Client struct {
	client  *resty.Client
	cache   navcache.Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time
}

// ensure Client implements the interface
var _ Source = (*Client)(nil)

// NewClient creates a client for cfg.BaseURL. Responses are cached in cache
// and considered fresh for ttl.
func NewClient(cfg *config.MFAPI, cache navcache.Cache, ttl time.Duration, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	// rate.Limit is requests per second.
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	logger = logger.Named("mfapi")
	logger.Info("Using NAV source", zap.String("base_url", baseURL), zap.Duration("cache_ttl", ttl))

	return &Client{
		client:  client,
		cache:   cache,
		ttl:     ttl,
		timeout: cfg.Timeout,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

func schemePath(code string) string { return schemesPath + "/" + url.PathEscape(code) }

// ListSchemes returns every scheme the source publishes.
func (c *Client) ListSchemes(ctx context.Context) ([]fund.SchemeRef, Meta, error) {
	v, meta, err := c.fetch(ctx, schemesPath, false, decodeSchemeList)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("failed to list schemes: %w", err)
	}
	return slices.Clone(v.([]fund.SchemeRef)), meta, nil
}

// Search returns the schemes whose name contains query, ignoring case.
// A blank query matches nothing. Meta describes the scheme list searched,
// so a result served from an expired cache entry is marked Stale.
func (c *Client) Search(ctx context.Context, query string) ([]fund.SchemeRef, Meta, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, Meta{}, nil
	}

	all, meta, err := c.ListSchemes(ctx)
	if err != nil {
		return nil, Meta{}, err
	}

	var found []fund.SchemeRef
	for _, s := range all {
		if strings.Contains(strings.ToLower(s.Name), query) {
			found = append(found, s)
		}
	}
	return found, meta, nil
}

// Invalidate drops the cached response for one scheme.
func (c *Client) Invalidate(code string) error {
	return c.cache.Invalidate(schemePath(code))
}

// GetScheme returns a scheme's metadata and NAV history.
func (c *Client) GetScheme(ctx context.Context, code string) (Scheme, error) {
	return c.getScheme(ctx, code, false)
}

// RefreshScheme is GetScheme without the fresh-cache shortcut: the source is
// always asked, and the cache is only used if it fails.
func (c *Client) RefreshScheme(ctx context.Context, code string) (Scheme, error) {
	return c.getScheme(ctx, code, true)
}

func (c *Client) getScheme(ctx context.Context, code string, force bool) (Scheme, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Scheme{}, fmt.Errorf("%w: empty scheme code", apperrors.ErrSchemeNotFound)
	}

	v, meta, err := c.fetch(ctx, schemePath(code), force, func(body []byte) (any, error) {
		return decodeScheme(code, body)
	})
	if err != nil {
		return Scheme{}, fmt.Errorf("failed to get scheme %s: %w", code, err)
	}

	s := v.(Scheme)
	s.History = slices.Clone(s.History)
	s.Meta = meta
	return s, nil
}

// LatestNAV returns the newest NAV of a scheme.
func (c *Client) LatestNAV(ctx context.Context, code string) (Quote, error) {
	s, err := c.GetScheme(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	p, _ := s.Latest()
	return quoteOf(s, p), nil
}

// NAVOn returns the NAV published on day or, if there is none, on the
// nearest earlier day.
func (c *Client) NAVOn(ctx context.Context, code string, day date.Date) (Quote, error) {
	s, err := c.GetScheme(ctx, code)
	if err != nil {
		return Quote{}, err
	}

	// First point strictly after day.
	i := sort.Search(len(s.History), func(i int) bool { return s.History[i].Date.After(day) })
	if i == 0 {
		return Quote{}, fmt.Errorf("%w: scheme %s on %s", ErrNoNAV, code, day)
	}
	return quoteOf(s, s.History[i-1]), nil
}

// History returns the NAV points on or after since. A zero since returns
// the full history.
func (c *Client) History(ctx context.Context, code string, since date.Date) ([]fund.NAVPoint, error) {
	s, err := c.GetScheme(ctx, code)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return s.History, nil
	}
	i := sort.Search(len(s.History), func(i int) bool { return !s.History[i].Date.Before(since) })
	return s.History[i:], nil
}

// LatestNAVs fetches the latest NAV of every code with at most concurrency
// requests in flight. Codes that fail are left out of the map and their
// errors are joined into the returned error.
func (c *Client) LatestNAVs(ctx context.Context, codes []string, concurrency int) (map[string]Quote, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		quotes = make(map[string]Quote, len(codes))
		errs   []error
		g      errgroup.Group
	)
	g.SetLimit(concurrency)

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true

		g.Go(func() error {
			q, err := c.LatestNAV(ctx, code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			quotes[code] = q
			return nil
		})
	}
	_ = g.Wait()

	return quotes, errors.Join(errs...)
}

func quoteOf(s Scheme, p fund.NAVPoint) Quote {
	return Quote{Code: s.Code, Name: s.Name, Date: p.Date, NAV: p.NAV, Meta: s.Meta}
}

type fetched struct {
	value     any
	fetchedAt time.Time
}

// fetch returns the decoded response for path. A fresh cache entry is used
// unless force is set. Only responses that decode are written to the cache.
// When the source is unavailable the newest cached entry is returned with
// Meta.Stale set; a missing scheme is never answered from the cache.
func (c *Client) fetch(ctx context.Context, path string, force bool, decode func([]byte) (any, error)) (any, Meta, error) {
	if !force {
		if e, ok := c.cache.Get(path, c.ttl); ok {
			v, err := decode(e.Payload)
			if err == nil {
				return v, Meta{FetchedAt: e.FetchedAt}, nil
			}
			c.logger.Warn("Ignoring undecodable cache entry", zap.String("key", path), zap.Error(err))
		}
	}

	res, err := c.shared(ctx, path, decode)
	if err == nil {
		f := res.(fetched)
		return f.value, Meta{FetchedAt: f.fetchedAt}, nil
	}

	if !errors.Is(err, apperrors.ErrSourceUnavailable) {
		return nil, Meta{}, err
	}
	e, ok := c.cache.Peek(path)
	if !ok {
		return nil, Meta{}, err
	}
	v, decErr := decode(e.Payload)
	if decErr != nil {
		return nil, Meta{}, err
	}
	c.logger.Warn("NAV source unavailable, serving cached data",
		zap.String("key", path),
		zap.Duration("age", e.Age(c.now())),
		zap.Error(err))
	return v, Meta{Stale: true, FetchedAt: e.FetchedAt}, nil
}

// shared performs the request for path once for all concurrent callers.
// The request runs detached from any caller's cancellation and is bounded
// by the client timeout; each caller stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, path string, decode func([]byte) (any, error)) (any, error) {
	reqCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(path, func() (any, error) {
		body, err := c.doRequest(reqCtx, path)
		if err != nil {
			return nil, err
		}
		v, err := decode(body)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Put(path, body); err != nil {
			c.logger.Warn("Failed to cache response", zap.String("key", path), zap.Error(err))
		}
		return fetched{value: v, fetchedAt: c.now()}, nil
	})

	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: GET %s: %v", apperrors.ErrSourceUnavailable, path, ctx.Err())
	}
}

// doRequest performs a single rate limited GET bounded by the client timeout.
// It never retries; failures are classified as ErrSchemeNotFound (404) or
// ErrSourceUnavailable (everything else).
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait failed: %v", apperrors.ErrSourceUnavailable, err)
	}

	c.logger.Debug("Executing request", zap.String("method", http.MethodGet), zap.String("url", c.client.BaseURL+path))
	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", apperrors.ErrSourceUnavailable, path, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s returned %s", apperrors.ErrSchemeNotFound, path, resp.Status())
	case resp.IsError():
		return nil, fmt.Errorf("%w: request failed with status %s", apperrors.ErrSourceUnavailable, resp.Status())
	}
	return resp.Body(), nil
}

func decodeSchemeList(body []byte) (any, error) {
	var items []schemeListItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: decoding scheme list: %v", apperrors.ErrSourceUnavailable, err)
	}

	refs := make([]fund.SchemeRef, 0, len(items))
	for _, it := range items {
		if it.SchemeCode == "" {
			continue
		}
		refs = append(refs, fund.SchemeRef{Code: string(it.SchemeCode), Name: strings.TrimSpace(it.SchemeName)})
	}
	return refs, nil
}

// decodeScheme validates a /mf/{code} response and normalises its history
// to ascending date order. Points with an unparsable date or NAV are dropped.
func decodeScheme(code string, body []byte) (any, error) {
	var r schemeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: decoding scheme %s: %v", apperrors.ErrSourceUnavailable, code, err)
	}
	if !strings.EqualFold(r.Status, statusSuccess) {
		return nil, fmt.Errorf("%w: scheme %s: status %q", apperrors.ErrSchemeNotFound, code, r.Status)
	}

	history := make([]fund.NAVPoint, 0, len(r.Data))
	for _, d := range r.Data {
		day, err := date.ParseSource(d.Date)
		if err != nil {
			continue
		}
		nav, err := decimal.NewFromString(strings.TrimSpace(d.NAV))
		if err != nil || !nav.IsPositive() {
			continue
		}
		history = append(history, fund.NAVPoint{Date: day, NAV: nav})
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: scheme %s has no NAV data", apperrors.ErrSchemeNotFound, code)
	}
	slices.SortStableFunc(history, func(a, b fund.NAVPoint) int { return a.Date.Compare(b.Date) })

	s := Scheme{
		Code:      string(r.Meta.SchemeCode),
		Name:      strings.TrimSpace(r.Meta.SchemeName),
		FundHouse: r.Meta.FundHouse,
		Type:      r.Meta.SchemeType,
		Category:  r.Meta.SchemeCategory,
		History:   history,
	}
	if s.Code == "" {
		s.Code = code
	}
	return s, nil
}
