// Package httpx wraps outbound HTTP with bearer-token injection and
// bounded linear-backoff retry for transient failures.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodonik/tierlist-client/config"
	"github.com/prodonik/tierlist-client/internal/storage"
	"github.com/prodonik/tierlist-client/pkg/errors"
	"github.com/prodonik/tierlist-client/pkg/logger"
)

// Request describes one logical outbound call. The retry loop may issue
// it several times, but the caller observes exactly one result.
type Request struct {
	Method string
	URL    string

	// Body is JSON-encoded when set. Form takes precedence and is
	// form-encoded (used by the OAuth token endpoint).
	Body any
	Form url.Values

	// Timeout bounds each attempt. Zero means the client default.
	Timeout time.Duration

	// MaxAttempts caps the attempt count. Zero means the client default;
	// registration calls carry their own, larger budget.
	MaxAttempts int

	// Authenticated requests get an Authorization header sourced fresh
	// from the credential store at dispatch time, so a token rotation is
	// picked up by the next request.
	Authenticated bool
}

// Client is the retrying HTTP client shared by the session and OAuth
// layers.
type Client struct {
	http      *http.Client
	creds     storage.Store
	log       logger.Logger
	timeout   time.Duration
	attempts  int
	baseDelay time.Duration
}

// New creates a client. creds may be nil when no authenticated calls will
// be issued.
func New(creds storage.Store, cfg *config.HTTPConfig, log logger.Logger) *Client {
	return &Client{
		http:      &http.Client{},
		creds:     creds,
		log:       log,
		timeout:   cfg.Timeout,
		attempts:  cfg.MaxAttempts,
		baseDelay: cfg.RetryBaseDelay,
	}
}

// Do issues the request, retrying transient failures up to the attempt
// budget, and decodes the final response body into out when non-nil.
// Classification follows the error taxonomy: no response is ErrNetwork, a
// deadline is ErrTimeout, 5xx is ErrServer (all retryable); any 4xx is
// final and surfaces immediately.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.attempts
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return errors.Wrap(err, "encode request body")
	}

	requestID := uuid.NewString()
	log := c.log.With(
		logger.RequestID(requestID),
		logger.Method(req.Method),
		logger.URL(req.URL),
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: delay grows with the attempt number.
			delay := c.baseDelay * time.Duration(attempt-1)
			log.Debug("retrying request",
				logger.Attempt(attempt),
				logger.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
				}
				// Deliberate cancellation is neither a timeout nor a
				// network failure; surface it as-is.
				return ctx.Err()
			}
		}

		lastErr = c.attempt(ctx, req, body, contentType, timeout, out, log, attempt)
		if lastErr == nil {
			return nil
		}
		if !errors.Retryable(lastErr) {
			return lastErr
		}
	}

	log.Warn("retry budget exhausted",
		logger.Int("max_attempts", maxAttempts),
		logger.Error(lastErr),
	)
	return lastErr
}

func (c *Client) attempt(
	ctx context.Context,
	req Request,
	body []byte,
	contentType string,
	timeout time.Duration,
	out any,
	log logger.Logger,
	attempt int,
) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, reader)
	if err != nil {
		return errors.Wrap(errors.ErrValidation, err.Error())
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	if req.Authenticated {
		token, err := c.bearerToken(attemptCtx)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		classified := classifyTransport(attemptCtx, err)
		log.Debug("request attempt failed",
			logger.Attempt(attempt),
			logger.Latency(time.Since(start)),
			logger.Error(classified),
		)
		return classified
	}
	defer resp.Body.Close()

	log.Debug("request attempt completed",
		logger.Attempt(attempt),
		logger.Status(resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NewHTTPError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.ErrInvalidResponse, err.Error())
	}
	return nil
}

// bearerToken reads the current token from the credential store. A
// missing or unreadable token surfaces as NotAuthenticated rather than a
// transport failure, so it is never retried.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", errors.ErrNotAuthenticated
	}
	token, err := c.creds.GetItem(ctx, storage.KeyToken)
	if err != nil {
		return "", errors.ErrNotAuthenticated
	}
	return token, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	if req.Form != nil {
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	}
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
	return nil, "", nil
}

func classifyTransport(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrap(errors.ErrTimeout, err.Error())
	case context.Canceled:
		return ctx.Err()
	}
	return errors.Wrap(errors.ErrNetwork, err.Error())
}
