package observer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Webhook signature headers. The signature is the hex HMAC-SHA256 of
// "<timestamp>.<body>" keyed with the shared secret.
const (
	HeaderWebhookID        = "X-Webhook-ID"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

var (
	ErrInvalidWebhookURL   = errors.New("invalid webhook URL")
	ErrWebhookDelivery     = errors.New("webhook delivery failed")
	ErrWebhookRejected     = errors.New("webhook rejected the occurrence")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrSignatureExpired    = errors.New("webhook signature expired")
	errWebhookStatusFailed = errors.New("unexpected webhook status")
)

// Webhook POSTs each occurrence payload as JSON to an HTTP endpoint.
// Network errors, 5xx and the retryable 4xx codes (408, 425, 429) are retried
// with exponential backoff; other 4xx responses fail immediately.
type Webhook struct {
	url      string
	client   *http.Client
	secret   string
	attempts int
	backoff  time.Duration
	maxDelay time.Duration
	timeout  time.Duration
	headers  map[string]string
}

// WebhookOption configures a Webhook observer.
type WebhookOption func(*Webhook)

// WithWebhookClient replaces the default HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithWebhookSecret signs every request with secret.
func WithWebhookSecret(secret string) WebhookOption {
	return func(w *Webhook) { w.secret = secret }
}

// WithWebhookRetry sets the number of attempts and the first retry delay.
// The delay doubles on every retry up to ten times its initial value.
func WithWebhookRetry(attempts int, backoff time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.attempts = max(attempts, 1)
		w.backoff = max(backoff, 0)
		w.maxDelay = 10 * w.backoff
	}
}

// WithWebhookTimeout bounds a single request attempt.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithWebhookHeader adds a static request header.
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		if w.headers == nil {
			w.headers = make(map[string]string)
		}
		w.headers[key] = value
	}
}

// NewWebhook creates a webhook sink for rawURL. Only http and https URLs are accepted.
func NewWebhook(rawURL string, opts ...WebhookOption) (*Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidWebhookURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWebhookURL, rawURL)
	}

	w := &Webhook{
		url:      u.String(),
		client:   http.DefaultClient,
		attempts: 3,
		backoff:  500 * time.Millisecond,
		maxDelay: 5 * time.Second,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Notify POSTs the JSON payload of occ, retrying transient failures with backoff.
func (w *Webhook) Notify(ctx context.Context, occ statemachine.Occurrence) error {
	body, err := NewPayload(occ).Marshal()
	if err != nil {
		return errors.Join(ErrWebhookDelivery, err)
	}
	// One delivery id across retries lets receivers deduplicate.
	id := uuid.NewString()

	var lastErr error
	delay := w.backoff
	for attempt := range w.attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrWebhookDelivery, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
			delay = min(delay*2, w.maxDelay)
		}

		status, err := w.post(ctx, id, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if permanentStatus(status) {
			return fmt.Errorf("%w: %w", ErrWebhookRejected, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrWebhookDelivery, w.attempts, lastErr)
}

func (w *Webhook) post(ctx context.Context, id string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fsmkit-webhook/1.0")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderWebhookID, id)
	if w.secret != "" {
		ts := time.Now().Unix()
		req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderWebhookSignature, SignWebhook(w.secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(strings.ReplaceAll(string(msg), "\n", " "))
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	if detail == "" {
		return resp.StatusCode, fmt.Errorf("%w: %d", errWebhookStatusFailed, resp.StatusCode)
	}
	return resp.StatusCode, fmt.Errorf("%w: %d: %s", errWebhookStatusFailed, resp.StatusCode, detail)
}

// permanentStatus reports whether retrying the status cannot succeed.
func permanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// SignWebhook returns the hex signature of body sent at unix time ts.
func SignWebhook(secret string, ts int64, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhook checks the signature headers of a received webhook request.
// A zero maxAge disables the timestamp check.
func VerifyWebhook(secret string, header http.Header, body []byte, maxAge time.Duration) error {
	ts, err := strconv.ParseInt(header.Get(HeaderWebhookTimestamp), 10, 64)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	if maxAge > 0 && time.Since(time.Unix(ts, 0)) > maxAge {
		return ErrSignatureExpired
	}
	expected := SignWebhook(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(header.Get(HeaderWebhookSignature))) {
		return ErrInvalidSignature
	}
	return nil
}
