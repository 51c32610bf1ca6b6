package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/portal-client/internal/platform/metrics"
	"golang.org/x/sync/singleflight"
)

// RequestIDHeader carries a per-request id for correlating client and server
// logs.
const RequestIDHeader = "X-Request-ID"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 16 << 20

// TokenSource provides the bearer token, if any.
type TokenSource interface {
	Get() (string, bool)
}

// SessionValidator is the session side of 401 handling.
type SessionValidator interface {
	// Revalidate re-checks the session with the server and reports whether
	// the user is still logged in.
	Revalidate(ctx context.Context) bool
	// ForceLogout drops the local session without contacting the server.
	ForceLogout(ctx context.Context)
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	// Body is sent as text/plain when it is a string and as JSON otherwise.
	Body any
	// Auth attaches the bearer token when one is available.
	Auth bool
	// NoRetry makes a 401 trigger revalidation in the background and return
	// immediately instead of waiting and retrying.
	NoRetry bool
	// NoRevalidate disables 401 handling entirely. Requests issued by the
	// revalidation itself use it.
	NoRevalidate bool
}

// Options configures a Client.
type Options struct {
	Host       HostResolver
	Tokens     TokenSource
	HTTPClient *http.Client
	// Timeout bounds each attempt; zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client is the request gateway. It is safe for concurrent use.
type Client struct {
	host    HostResolver
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	validator SessionValidator
	reauth    singleflight.Group
}

// NewClient creates a gateway.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Host == nil {
		opts.Host = StaticHost("/api")
	}
	return &Client{
		host:    opts.Host,
		tokens:  opts.Tokens,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "api_client"),
		metrics: opts.Metrics,
	}
}

// SetSessionValidator installs the session used for 401 handling. The
// session itself depends on the client, hence the late binding.
func (c *Client) SetSessionValidator(v SessionValidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = v
}

func (c *Client) sessionValidator() SessionValidator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validator
}

// BaseURL returns the currently resolved API root.
func (c *Client) BaseURL() string { return c.host.BaseURL() }

// Token returns the current bearer token, if any.
func (c *Client) Token() (string, bool) {
	if c.tokens == nil {
		return "", false
	}
	return c.tokens.Get()
}

// authState tracks one request through 401 handling.
type authState int

const (
	authNormal authState = iota
	authReauthenticating
	authRetried
	authGivenUp
)

func (s authState) String() string {
	switch s {
	case authNormal:
		return "normal"
	case authReauthenticating:
		return "reauthenticating"
	case authRetried:
		return "retried"
	default:
		return "given_up"
	}
}

// Do performs the request and never fails: every outcome is expressed as a
// Response.
func (c *Client) Do(ctx context.Context, req Request) Response {
	state := authNormal
	for {
		resp, authed := c.send(ctx, req)
		if resp.Status != http.StatusUnauthorized || !authed || req.NoRevalidate {
			return resp
		}
		validator := c.sessionValidator()
		if validator == nil {
			return resp
		}

		switch state {
		case authNormal:
			state = authReauthenticating
			if req.NoRetry {
				go c.revalidate(context.WithoutCancel(ctx), validator)
				return resp
			}
			if !c.revalidate(ctx, validator) {
				state = authGivenUp
				c.logAuthState(req, state)
				return resp
			}
			state = authRetried
			c.logAuthState(req, state)
		case authRetried:
			state = authGivenUp
			c.logAuthState(req, state)
			validator.ForceLogout(ctx)
			return resp
		default:
			return resp
		}
	}
}

func (c *Client) logAuthState(req Request, state authState) {
	c.logger.Info("authentication failure handling",
		"method", req.Method,
		"path", req.Path,
		"state", state.String())
}

// revalidate coalesces concurrent revalidations into one session check.
func (c *Client) revalidate(ctx context.Context, v SessionValidator) bool {
	detached := context.WithoutCancel(ctx)
	res, _, _ := c.reauth.Do("revalidate", func() (any, error) {
		return v.Revalidate(detached), nil
	})
	ok, _ := res.(bool)
	return ok
}

// send performs a single attempt. authed reports whether a bearer token was
// attached.
func (c *Client) send(ctx context.Context, req Request) (resp Response, authed bool) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	url := c.host.BaseURL() + NormalizePath(req.Path)
	requestID := uuid.NewString()
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.ObserveRequest(method, resp.Status, elapsed)
		c.logger.Debug("api request",
			"method", method,
			"url", url,
			"status", resp.Status,
			"request_id", requestID,
			"duration_ms", elapsed.Milliseconds())
	}()

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		c.logger.Error("failed to encode request body", "error", err, "path", req.Path)
		return Response{Status: http.StatusBadRequest, Data: json.RawMessage(`{"error":"encoding"}`), Error: true}, false
	}

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, url, body)
	if err != nil {
		c.logger.Error("failed to build request", "error", err, "url", url)
		return connectionFailure(), false
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Auth {
		if tok, ok := c.Token(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
			authed = true
		} else {
			c.logger.Warn("no access token for authenticated request", "method", method, "path", req.Path)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if timedOut(ctx, attemptCtx, err) {
			c.logger.Warn("request timed out", "url", url, "timeout", c.timeout)
			return timeoutFailure(), authed
		}
		c.logger.Warn("connection error", "url", url, "error", err)
		return connectionFailure(), authed
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode == http.StatusNoContent {
		return Response{Status: http.StatusNoContent}, authed
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		if timedOut(ctx, attemptCtx, err) {
			return timeoutFailure(), authed
		}
		c.logger.Warn("failed to read response body", "url", url, "error", err)
		return connectionFailure(), authed
	}

	var data json.RawMessage
	if len(bytes.TrimSpace(raw)) > 0 {
		if json.Valid(raw) {
			data = raw
		} else {
			c.logger.Warn("response body is not JSON", "url", url, "status", httpResp.StatusCode)
		}
	}

	ok := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	return Response{Status: httpResp.StatusCode, Data: data, Error: !ok}, authed
}

// timedOut distinguishes the gateway's own deadline from cancellation by
// the caller.
func timedOut(parent, attempt context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(attempt.Err(), context.DeadlineExceeded)
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return bytes.NewBufferString(b), "text/plain", nil
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("marshal body: %w", err)
		}
		return bytes.NewReader(buf), "application/json", nil
	}
}
