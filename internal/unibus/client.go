package unibus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

const (
	defaultTimeout  = 8 * time.Second
	defaultCacheTTL = 5 * time.Minute
	maxBodyBytes    = 1 << 20
)

// Authorizer supplies the Authorization header for requests; "" sends none.
type Authorizer interface {
	Authorization() string
}

type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client talks JSON over HTTP to the shuttle service.
type Client struct {
	base  *url.URL
	hc    *http.Client
	auth  Authorizer
	cache gcache.Cache
	log   zerolog.Logger
}

func New(baseURL string, auth Authorizer, opts Options, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s): %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Client{
		base:  u,
		hc:    &http.Client{Timeout: opts.Timeout},
		auth:  auth,
		cache: gcache.New(64).LRU().Expiration(opts.CacheTTL).Build(),
		log:   logger.With().Str("pkg", "unibus").Logger(),
	}, nil
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.base.String(), "/"))
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

// do sends the request and returns the parsed JSON body of a 2xx answer.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*fastjson.Value, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if h := c.auth.Authorization(); h != "" {
			req.Header.Set("Authorization", h)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ServiceError{Status: resp.StatusCode, Message: errorMessage(data), Path: req.URL.Path}
	}
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// errorMessage extracts FastAPI's "detail" (or "message") from an error body.
func errorMessage(data []byte) string {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return strings.TrimSpace(string(data))
	}
	for _, key := range []string{"detail", "message", "error"} {
		if s := v.GetStringBytes(key); len(s) > 0 {
			return string(s)
		}
	}
	return strings.TrimSpace(string(data))
}

// cached returns the value under key, loading it with load on a miss.
func cached[T any](c *Client, key string, load func() (T, error)) (T, error) {
	if v, err := c.cache.Get(key); err == nil {
		if t, ok := v.(T); ok {
			return t, nil
		}
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		c.log.Warn().Err(err).Str("key", key).Msg("cache get")
	}
	t, err := load()
	if err != nil {
		return t, err
	}
	if err := c.cache.Set(key, t); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set")
	}
	return t, nil
}

// number reads a finite JSON number (or numeric string) at key.
func number(v *fastjson.Value, key string) (float64, bool) {
	f := v.Get(key)
	if f == nil {
		return 0, false
	}
	var (
		n   float64
		err error
	)
	switch f.Type() {
	case fastjson.TypeNumber:
		n, err = f.Float64()
	case fastjson.TypeString:
		n, err = strconv.ParseFloat(strings.TrimSpace(string(f.GetStringBytes())), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func optionalNumber(v *fastjson.Value, key string) *float64 {
	n, ok := number(v, key)
	if !ok {
		return nil
	}
	return &n
}
