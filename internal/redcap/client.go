package redcap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to a single REDCap API endpoint. Tokens are supplied per
// project via Client.Project.
type Client struct {
	URL  string
	HTTP *http.Client
}

type options struct {
	verbose bool
	// logger receives one line per request when verbose is set. It must not
	// write to stdout so structured console output stays clean.
	logger *zap.Logger
	base   http.RoundTripper
}

type Option func(*options)

func WithVerbose(enabled bool, logger *zap.Logger) Option {
	return func(o *options) {
		o.verbose = enabled
		o.logger = logger
	}
}

// WithTransport replaces the underlying transport (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// loggingRoundTripper emits one line per request and response (including
// latency). Tokens travel in the form body, so URLs are safe to log.
type loggingRoundTripper struct {
	base   http.RoundTripper
	logger *zap.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.logger.Debug("redcap api request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("redcap api error", zap.Duration("elapsed", dur), zap.Error(err))
	} else {
		t.logger.Debug("redcap api response",
			zap.Int("status", resp.StatusCode),
			zap.String("status_text", http.StatusText(resp.StatusCode)),
			zap.Duration("elapsed", dur))
	}
	return resp, err
}

func NewClient(ctx context.Context, apiURL string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("redcap client: ctx is nil")
	}
	u, err := url.Parse(strings.TrimSpace(apiURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("redcap client: invalid API URL %q", apiURL)
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.logger == nil {
		o.logger = zap.NewNop()
	}

	transport := o.base
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, logger: o.logger}
	}

	return &Client{
		URL:  u.String(),
		HTTP: &http.Client{Transport: transport},
	}, nil
}

// Project returns a handle bound to one API token.
func (c *Client) Project(token string) *Project {
	return &Project{client: c, token: token}
}

func (c *Client) post(ctx context.Context, token string, form url.Values) ([]byte, error) {
	if c == nil || c.HTTP == nil {
		return nil, fmt.Errorf("redcap: nil client (use NewClient)")
	}
	form.Set("token", token)
	if form.Get("returnFormat") == "" {
		form.Set("returnFormat", "json")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redcap %s export: %w", form.Get("content"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("redcap %s export: read body: %w", form.Get("content"), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(form.Get("content"), resp.StatusCode, body)
	}
	return body, nil
}
