// Package backend is the HTTP client for the remote image generation backend.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

// Header values that get requests past the tunnel provider's interstitial page.
const (
	HeaderSkipBrowserWarning = "ngrok-skip-browser-warning"
	skipBrowserWarningValue  = "true"
)

// Options configures a Client.
type Options struct {
	UserAgent string
	// InsecureSkipVerify disables certificate verification for backend calls.
	InsecureSkipVerify bool
	GenerateTimeout    time.Duration
	HealthTimeout      time.Duration
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client talks to the backend. The base URL is passed on every call so the
// caller decides which endpoint value a request uses.
type Client struct {
	httpClient      *http.Client
	userAgent       string
	generateTimeout time.Duration
	healthTimeout   time.Duration
}

// New builds a Client with its own transport.
func New(opts Options) *Client {
	tlsCfg := &tls.Config{}
	if opts.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
		logx.Log.Warn().Msg("TLS verification disabled for backend calls")
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsCfg,
	}
	return &Client{
		httpClient:      &http.Client{Transport: transport},
		userAgent:       opts.UserAgent,
		generateTimeout: opts.GenerateTimeout,
		healthTimeout:   opts.HealthTimeout,
	}
}

// Generate posts payload to {baseURL}/generate.
func (c *Client) Generate(ctx context.Context, baseURL string, payload []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, baseURL+"/generate", payload, c.generateTimeout)
}

// Health probes {baseURL}/health.
func (c *Client) Health(ctx context.Context, baseURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, baseURL+"/health", nil, c.healthTimeout)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderSkipBrowserWarning, skipBrowserWarningValue)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: b}, nil
}
