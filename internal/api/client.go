// Package api is the HTTP client for the content, feedback and assessment
// services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/abhisek/engage/internal/logger"
)

// DefaultTimeout bounds non-streaming requests.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read for the message.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// StreamTimeout bounds a streamed content fetch end to end. Zero means
	// only the caller's context applies.
	StreamTimeout time.Duration
	UserAgent     string
}

// Error is a non-2xx response from a service.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %v", e.Status, e.Code, e.Err)
	}
	return fmt.Sprintf("api: %d: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request could succeed.
func (e *Error) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client talks to the collaborator services over JSON/HTTP.
type Client struct {
	baseURL       string
	timeout       time.Duration
	streamTimeout time.Duration
	userAgent     string
	httpClient    *http.Client
	log           *logger.Logger
}

// New creates a client. log may be nil.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api: base url required")
	}
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "engage"
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:       baseURL,
		timeout:       timeout,
		streamTimeout: cfg.StreamTimeout,
		userAgent:     ua,
		httpClient:    &http.Client{Transport: tr},
		log:           log.With("component", "api"),
	}, nil
}

// NewWithHTTPClient swaps the transport, for tests.
func NewWithHTTPClient(cfg Config, httpClient *http.Client, log *logger.Logger) (*Client, error) {
	c, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body any, accept string) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// doJSON sends body and decodes a JSON reply into out. out may be nil when
// the service returns no body.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	c.log.Debug("api request", "method", method, "path", path, "status", res.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if err := checkStatus(res); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func checkStatus(res *http.Response) error {
	if res.StatusCode/100 == 2 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	apiErr := &Error{Status: res.StatusCode}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && (eb.Message != "" || eb.Error != "") {
		apiErr.Code = eb.Code
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		apiErr.Err = errors.New(msg)
		return apiErr
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	apiErr.Err = errors.New(msg)
	return apiErr
}
