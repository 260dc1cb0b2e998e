// Package triggerclient calls the relay's internal trigger endpoint from
// backend processes. Business handlers use the Go* variants so a relay
// outage never fails the operation that produced the event.
package triggerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pscheid92/adrelay/internal/platform/correlation"
	"github.com/pscheid92/adrelay/internal/platform/retry"
	"github.com/sony/gobreaker"
)

const (
	httpCallTimeout = 5 * time.Second
	fireTimeout     = 3 * time.Second
	maxErrorBody    = 4096

	breakerName             = "relay-trigger"
	breakerTripAfter        = 5
	breakerOpenTimeout      = 30 * time.Second
	breakerHalfOpenRequests = 1
)

// DefaultRetryPolicy applies to the synchronous refresh calls only. Refresh
// signals are idempotent; a notification push never retries.
var DefaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   100 * time.Millisecond,
	RateLimitBackoff: 500 * time.Millisecond,
	MaxBackoff:       time.Second,
}

// StatusError is a non-2xx answer from the relay.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Client talks to the internal trigger endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	breaker    *gobreaker.CircuitBreaker
	settings   gobreaker.Settings
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which uses a 5s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBreakerSettings overrides the circuit breaker. Name, ReadyToTrip and
// IsSuccessful keep their defaults when left empty.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.settings = st }
}

// New returns a Client for baseURL, e.g. http://127.0.0.1:8081.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: httpCallTimeout},
		policy:     DefaultRetryPolicy,
		settings: gobreaker.Settings{
			MaxRequests: breakerHalfOpenRequests,
			Timeout:     breakerOpenTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(breakerSettings(c.settings))
	return c
}

func breakerSettings(st gobreaker.Settings) gobreaker.Settings {
	if st.Name == "" {
		st.Name = breakerName
	}
	if st.ReadyToTrip == nil {
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		}
	}
	if st.IsSuccessful == nil {
		st.IsSuccessful = relayHealthy
	}
	if st.OnStateChange == nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		}
	}
	return st
}

// relayHealthy decides what counts against the breaker: only transport
// failures and 5xx answers. A 4xx means the relay is up and said no.
func relayHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500
	}
	return false
}

// BreakerState reports the circuit breaker's current state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type reviewersResult struct {
	Delivered int `json:"delivered"`
}

type submitterResult struct {
	Delivered bool `json:"delivered"`
}

type sendRequest struct {
	UserID       string `json:"userId"`
	Notification any    `json:"notification"`
}

// NotifyReviewers asks every connected reviewer dashboard to refresh and
// returns how many connections were reached. Transient failures are retried.
func (c *Client) NotifyReviewers(ctx context.Context) (int, error) {
	return c.notifyReviewers(ctx, true)
}

// NotifySubmitter asks one submitter's dashboard to refresh. Transient
// failures are retried. It reports false when the user is offline or not
// connected as a submitter.
func (c *Client) NotifySubmitter(ctx context.Context, userID string) (bool, error) {
	return c.notifySubmitter(ctx, userID, true)
}

// SendNotification pushes payload to userID in a single attempt: a push whose
// answer was lost may already be on the user's screen. An offline user is not
// an error: it reports false.
func (c *Client) SendNotification(ctx context.Context, userID string, payload any) (bool, error) {
	err := c.post(ctx, "/internal/send-notification", sendRequest{UserID: userID, Notification: payload}, nil, false)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) notifyReviewers(ctx context.Context, retryable bool) (int, error) {
	var out reviewersResult
	if err := c.post(ctx, "/internal/notify-reviewers", struct{}{}, &out, retryable); err != nil {
		return 0, err
	}
	return out.Delivered, nil
}

func (c *Client) notifySubmitter(ctx context.Context, userID string, retryable bool) (bool, error) {
	var out submitterResult
	body := map[string]string{"userId": userID}
	if err := c.post(ctx, "/internal/notify-submitter", body, &out, retryable); err != nil {
		return false, err
	}
	return out.Delivered, nil
}

// GoNotifyReviewers sends one reviewer refresh in the background and only logs
// failures. ctx contributes its values, not its cancellation.
func (c *Client) GoNotifyReviewers(ctx context.Context) {
	c.fire(ctx, "notify-reviewers", func(ctx context.Context) error {
		_, err := c.notifyReviewers(ctx, false)
		return err
	})
}

func (c *Client) GoNotifySubmitter(ctx context.Context, userID string) {
	c.fire(ctx, "notify-submitter", func(ctx context.Context) error {
		_, err := c.notifySubmitter(ctx, userID, false)
		return err
	})
}

func (c *Client) GoSendNotification(ctx context.Context, userID string, payload any) {
	c.fire(ctx, "send-notification", func(ctx context.Context) error {
		_, err := c.SendNotification(ctx, userID, payload)
		return err
	})
}

// fire makes exactly one attempt off the caller's goroutine. While the breaker
// is open the trigger is dropped without starting a goroutine.
func (c *Client) fire(parent context.Context, op string, call func(context.Context) error) {
	if c.breaker.State() == gobreaker.StateOpen {
		slog.DebugContext(parent, "Relay trigger dropped, circuit open", "op", op)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), fireTimeout)
	go func() {
		defer cancel()
		if err := call(ctx); err != nil {
			slog.WarnContext(ctx, "Relay trigger failed", "op", op, "error", err)
		}
	}()
}

func (c *Client) post(ctx context.Context, path string, in, out any, retryable bool) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if !retryable {
		return c.call(ctx, path, payload, out)
	}

	_, err = retry.Do(ctx, c.retryPolicy(ctx, path), classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.call(ctx, path, payload, out)
	})
	var permErr *retry.PermanentError
	if errors.As(err, &permErr) {
		return permErr.Err
	}
	return err
}

func (c *Client) retryPolicy(ctx context.Context, path string) retry.Policy {
	p := c.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.DebugContext(ctx, "Retrying relay trigger", "path", path, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

// call runs one request through the circuit breaker.
func (c *Client) call(ctx context.Context, path string, payload []byte, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, path, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("relay circuit breaker open: %w", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.HeaderName, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		statusErr.Type = body.Type
		statusErr.Message = body.Error
	}
	return statusErr
}

func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return retry.Retry
	}
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests, statusErr.StatusCode == http.StatusServiceUnavailable:
		return retry.After
	case statusErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}
