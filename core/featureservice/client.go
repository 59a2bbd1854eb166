package featureservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is a rate-limited HTTP client for feature services and portals.
// It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client. A nil httpClient gets one bounded by cfg's timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout()}
	}
	limit, burst := cfg.RateLimit, cfg.RateBurst
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		logger:     logger,
	}
}

// errorBody is the error envelope returned with HTTP 200 by feature services.
type errorBody struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// call sends a form-encoded request and decodes the JSON response into out.
// Idempotent requests are retried with exponential backoff.
func (c *Client) call(ctx context.Context, method, endpoint string, form url.Values, idempotent bool, out any) error {
	form.Set("f", "json")

	retries := 0
	if idempotent {
		retries = c.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.once(ctx, method, endpoint, form)
		if err == nil {
			if out == nil {
				return nil
			}
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(out); err != nil {
				return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
			}
			return nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		c.logger.Debug("Retrying feature service request",
			zap.String("url", endpoint), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+form.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "geo-refresh")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != nil {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Code:       eb.Error.Code,
			Message:    eb.Error.Message,
			Details:    eb.Error.Details,
		}
	}
	return body, nil
}

// Layer returns a handle on the feature layer at layerURL, authenticated with
// token (may be empty for public layers).
func (c *Client) Layer(layerURL, token string) *Layer {
	return &Layer{client: c, url: strings.TrimRight(strings.TrimSpace(layerURL), "/"), token: token}
}

func withToken(form url.Values, token string) url.Values {
	if form == nil {
		form = url.Values{}
	}
	if token != "" {
		form.Set("token", token)
	}
	return form
}
