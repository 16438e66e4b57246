package prestashop

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/importer/internal/domain/integration"
)

// Client talks to a PrestaShop 1.6 webservice. One Client is shared by a whole run:
// it keeps a single keep-alive HTTP client and enforces the pacing between calls.
type Client struct {
	config     *Config
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu         sync.Mutex
	pauseUntil time.Time
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a webservice client
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, integration.ErrSourceNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RequestSpacing > 0 {
		limit = rate.Every(config.RequestSpacing)
	}
	c := &Client{
		config: config,
		apiURL: config.APIURL(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("prestashop")
	return c, nil
}

var _ integration.CatalogSource = (*Client)(nil)

// response is one successful webservice answer
type response struct {
	status      int
	contentType string
	body        []byte
}

// fetch performs a GET against the webservice with retry and pacing.
// Not-found, auth failures, other 4xx and malformed bodies are not retried.
func (c *Client) fetch(ctx context.Context, path string, query url.Values, timeout time.Duration) (*response, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("ws_key", c.config.APIKey)
	target := c.apiURL + "/" + strings.TrimLeft(path, "/") + "?" + encodeQuery(query)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.config.RetryDelay), uint64(c.config.RetryAttempts-1)),
		ctx,
	)

	var (
		result  *response
		attempt int
	)
	op := func() error {
		attempt++
		resp, err := c.do(ctx, target, timeout)
		if err != nil {
			c.notePause()
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = resp
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Source request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return result, nil
}

// do performs one paced attempt
func (c *Client) do(ctx context.Context, target string, timeout time.Duration) (*response, error) {
	if err := c.wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w: %v", integration.ErrSourceUnavailable, integration.ErrSourceTimeout, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", integration.ErrSourceHTTP, err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/xml, image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if int64(len(body)) > c.config.MaxResponseBytes {
		return nil, malformed("response exceeds %d bytes", c.config.MaxResponseBytes)
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// wait blocks for the pacing limiter and any pause imposed by a previous error
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	pause := time.Until(c.pauseUntil)
	c.mu.Unlock()
	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) notePause() {
	if c.config.ErrorPause <= 0 {
		return
	}
	c.mu.Lock()
	c.pauseUntil = time.Now().Add(c.config.ErrorPause)
	c.mu.Unlock()
}

// getXML fetches path and decodes the body into v, rejecting HTML pages
func (c *Client) getXML(ctx context.Context, path string, query url.Values, timeout time.Duration, v any) error {
	resp, err := c.fetch(ctx, path, query, timeout)
	if err != nil {
		return err
	}
	return decodeXML(resp.body, v)
}

func decodeXML(body []byte, v any) error {
	if isHTML(body) {
		return malformed("expected XML but received an HTML page %q", htmlTitle(body))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return malformed("empty response body")
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return malformed("decode XML: %v", err)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", integration.ErrSourceMalformed, fmt.Sprintf(format, args...))
}

func isPermanent(err error) bool {
	var se *statusErr
	if errors.As(err, &se) {
		return !se.retryable()
	}
	return errors.Is(err, integration.ErrSourceMalformed)
}

// statusErr is a non-2xx webservice answer
type statusErr struct {
	code   int
	detail string
	kind   error
}

func (e *statusErr) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.code)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.code, e.detail)
}

func (e *statusErr) Unwrap() error { return e.kind }

func (e *statusErr) retryable() bool {
	return e.code >= 500 || e.code == http.StatusRequestTimeout || e.code == http.StatusTooManyRequests
}

func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	detail := ""
	if isHTML(body) {
		detail = htmlTitle(body)
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &statusErr{code: code, detail: detail, kind: integration.ErrSourceAuthFailed}
	case http.StatusNotFound:
		return &statusErr{code: code, detail: detail, kind: integration.ErrSourceNotFound}
	default:
		return &statusErr{code: code, detail: detail, kind: integration.ErrSourceHTTP}
	}
}

// transportError maps a failed round trip to the source error taxonomy
func transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w: %v", integration.ErrSourceUnavailable, integration.ErrSourceTimeout, err)
	}
	return fmt.Errorf("%w: %w: %v", integration.ErrSourceUnavailable, integration.ErrSourceConnection, err)
}

func isHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(bytes.TrimSpace(head)))
	return strings.HasPrefix(lower, "<!doctype html") || strings.Contains(lower, "<html")
}

// htmlTitle extracts the <title> of an HTML page; shops answering HTML usually
// show a maintenance or rewrite-rule error page there.
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// encodeQuery encodes query like url.Values.Encode but keeps the brackets of
// display=[id] and filter[x]=[v] readable; the webservice accepts both forms.
func encodeQuery(q url.Values) string {
	return strings.NewReplacer("%5B", "[", "%5D", "]", "%2C", ",").Replace(q.Encode())
}
