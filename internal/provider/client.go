package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/credentials"
	"call-insights-go/internal/logger"
)

// ErrAllVariantsFailed means every known endpoint variant was exhausted.
// List operations degrade to empty on it; detail operations surface it.
var ErrAllVariantsFailed = errors.New("all endpoint variants failed")

// CredentialSource resolves credentials lazily, right before a request.
type CredentialSource interface {
	Get(ctx context.Context) (credentials.Credentials, error)
}

// Client performs authenticated requests against a provider whose API may
// expose the same logical resource under several endpoint paths and several
// response envelope shapes. The variant list is ordered; the first
// path+shape combination that parses wins and the rest are abandoned.
type Client struct {
	name          string
	baseURL       string
	variants      []string
	creds         CredentialSource
	http          *http.Client
	maxAttempts   int
	retryInterval time.Duration
	log           *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryInterval overrides the first backoff delay (tests shrink it).
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func NewClient(name, baseURL string, variants []string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		name:          name,
		baseURL:       strings.TrimRight(baseURL, "/"),
		variants:      variants,
		creds:         creds,
		http:          &http.Client{Timeout: 12 * time.Second},
		maxAttempts:   3,
		retryInterval: time.Second,
		log:           logger.New().WithComponent(name + "-transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches a collection. The assistant id from the resolved credentials
// is added when the caller didn't set one. Exhausting every variant
// degrades to an empty result (logged as degraded, distinct from an
// empty-but-valid response) so the dashboard stays usable.
func (c *Client) List(ctx context.Context, params url.Values) ([]json.RawMessage, error) {
	cred, err := c.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	if cred.AssistantID != "" && params.Get("assistant_id") == "" {
		params.Set("assistant_id", cred.AssistantID)
	}

	var lastErr error
	for _, path := range c.variants {
		u := c.baseURL + path
		if enc := params.Encode(); enc != "" {
			u += "?" + enc
		}
		body, err := c.doWithRetry(ctx, http.MethodGet, u, nil, cred)
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("variant", path).Debug("endpoint variant failed")
			continue
		}
		items, err := decodeEnvelope(body)
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("variant", path).Debug("envelope parse failed")
			continue
		}
		return items, nil
	}

	c.log.WithError(lastErr).WithField("degraded", true).
		Warn("all endpoint variants failed, degrading list to empty")
	return []json.RawMessage{}, nil
}

// Get fetches a single resource by id. Unlike List, exhausting every
// variant is a hard failure: an empty record would be misleading.
func (c *Client) Get(ctx context.Context, id string) (json.RawMessage, error) {
	cred, err := c.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	var lastErr error
	for _, path := range c.variants {
		body, err := c.doWithRetry(ctx, http.MethodGet, c.baseURL+path+"/"+url.PathEscape(id), nil, cred)
		if err != nil {
			lastErr = err
			continue
		}
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			lastErr = fmt.Errorf("unexpected detail body")
			continue
		}
		return json.RawMessage(trimmed), nil
	}
	return nil, fmt.Errorf("%w: get %s: %v", ErrAllVariantsFailed, id, lastErr)
}

// Post issues a JSON POST (outbound call initiation, campaign creation).
// Failures propagate to the caller; there is no degrade path here because
// the result is load-bearing for a user action.
func (c *Client) Post(ctx context.Context, path string, payload any, out any) error {
	cred, err := c.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+path, body, cred)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doWithRetry runs one request with the transient-failure policy: 429, 5xx
// and network errors retry with exponential backoff up to the attempt cap;
// any other HTTP error is permanent for this variant.
func (c *Client) doWithRetry(ctx context.Context, method, u string, payload []byte, cred credentials.Credentials) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%s %s: status %d", method, u, resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, strings.TrimSpace(string(b))))
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	retries := uint64(0)
	if c.maxAttempts > 1 {
		retries = uint64(c.maxAttempts - 1)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeEnvelope tries the known response envelope shapes in order:
// {calls:[...]}, {results:[...]}, bare array, {data:[...]}.
func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env map[string]json.RawMessage
	objErr := json.Unmarshal(body, &env)

	if objErr == nil {
		for _, key := range []string{"calls", "results"} {
			if raw, ok := env[key]; ok {
				var items []json.RawMessage
				if err := json.Unmarshal(raw, &items); err == nil {
					return nonNil(items), nil
				}
			}
		}
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err == nil && bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		return nonNil(bare), nil
	}

	if objErr == nil {
		if raw, ok := env["data"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err == nil {
				return nonNil(items), nil
			}
		}
	}

	return nil, fmt.Errorf("unrecognized response envelope")
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}
