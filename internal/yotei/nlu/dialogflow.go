package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akatsune/yotei/common/retry"
)

const (
	defaultBaseURL  = "https://api.dialogflow.com/v1"
	defaultLanguage = "en"
	defaultTimeout  = 10 * time.Second

	// protocolVersion pins the v1 wire format; the response shape in
	// RawResponse matches this version.
	protocolVersion = "20150910"
)

// Config configures the Dialogflow v1 provider.
type Config struct {
	// AccessToken is the bearer token used to authenticate against the API.
	AccessToken string

	// BaseURL overrides the API endpoint. Useful for tests and for
	// self-hosted v1-compatible services. Defaults to the public endpoint
	// when empty.
	BaseURL string

	// Language is the query language tag. Defaults to "en".
	Language string

	// Timeout bounds each classification round-trip. Defaults to 10 s.
	// Expiry surfaces as ErrUpstreamTimeout.
	Timeout time.Duration

	// Retry controls transient-failure retries. Zero value uses
	// retry.DefaultConfig. Only transport failures and 5xx responses are
	// retried; a malformed body is returned immediately.
	Retry retry.Config
}

// dialogflowProvider implements Provider against the Dialogflow v1 query API.
type dialogflowProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the Dialogflow v1 query API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &dialogflowProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// queryRequest is the v1 query body.
type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	Lang      string `json:"lang"`
}

// errRetryable wraps errors that should be retried before being surfaced.
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// Classify sends one query and decodes the raw response. Transport failures
// and 5xx statuses are retried with exponential backoff; the final error is
// mapped onto ErrUpstreamTimeout / ErrUpstreamUnavailable.
func (p *dialogflowProvider) Classify(ctx context.Context, q Query) (*RawResponse, error) {
	lang := q.Language
	if lang == "" {
		lang = p.cfg.Language
	}

	body, err := json.Marshal(queryRequest{
		Query:     q.Text,
		SessionID: q.SessionID,
		Lang:      lang,
	})
	if err != nil {
		return nil, fmt.Errorf("nlu: marshal query: %w", err)
	}

	cfg := p.cfg.Retry
	cfg.ShouldRetry = func(err error) bool {
		var r errRetryable
		return errors.As(err, &r)
	}

	var raw *RawResponse
	err = retry.Do(ctx, cfg, func() error {
		resp, attemptErr := p.query(ctx, body)
		if attemptErr != nil {
			return attemptErr
		}
		raw = resp
		return nil
	})
	if err != nil {
		// A deadline hit inside the HTTP client or on ctx itself is a
		// timeout; everything else transport-shaped is unavailability.
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		var r errRetryable
		if errors.As(err, &r) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	return raw, nil
}

// query performs a single HTTP round-trip.
func (p *dialogflowProvider) query(ctx context.Context, body []byte) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/query?v="+protocolVersion,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("nlu: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errRetryable{fmt.Errorf("nlu: http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errRetryable{fmt.Errorf("nlu: read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, errRetryable{fmt.Errorf("nlu: query returned HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx means our request (or token) is wrong; retrying will not help.
		return nil, fmt.Errorf("%w: query returned HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var raw RawResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrMalformedClassification, err)
	}
	return &raw, nil
}

// isClientTimeout reports whether err chains to a net/http client timeout.
func isClientTimeout(err error) bool {
	for err != nil {
		if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
