package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"softphone/internal/credentials"
	"softphone/internal/metrics"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// HTTPError is a non-2xx reply. Message is the backend's {error} text when present.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: http %d", e.Status)
	}
	return fmt.Sprintf("backend: http %d: %s", e.Status, e.Message)
}

// Options tunes the client. Zero values get conservative defaults.
type Options struct {
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	if out.RPS <= 0 {
		out.RPS = 5
	}
	if out.Burst <= 0 {
		out.Burst = 5
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Client talks to the token/SMS backend. All calls share one token bucket.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func New(baseURL string, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		log:     opts.Logger.With("component", "backend"),
	}
}

// wait blocks for a limiter token or until ctx is done.
func (c *Client) wait(ctx context.Context, endpoint string) error {
	r := c.limiter.Reserve()
	if !r.OK() {
		return errors.New("backend: rate limiter cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.BackendRateLimitWaits.WithLabelValues(endpoint).Inc()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		var he *HTTPError
		switch {
		case errors.As(err, &he):
			outcome = strconv.Itoa(he.Status)
		case err != nil:
			outcome = "error"
		}
		metrics.BackendRequests.WithLabelValues(endpoint, outcome).Inc()
		metrics.BackendLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if err := c.wait(ctx, endpoint); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: encode %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("backend: read %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		c.log.Warn("backend request failed", "endpoint", endpoint, "status", resp.StatusCode)
		return &HTTPError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", endpoint, err)
	}
	return nil
}

// Token requests a short-lived access token for the SDK device.
func (c *Client) Token(ctx context.Context, creds credentials.Record) (TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, "token", creds, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.Token == "" {
		return TokenResponse{}, errors.New("backend: token response without token")
	}
	return out, nil
}

func (c *Client) SendSMS(ctx context.Context, creds credentials.Record, from, to, body string) (SendSMSResponse, error) {
	var out SendSMSResponse
	err := c.post(ctx, "send-sms", sendSMSRequest{Record: creds, From: from, To: to, Body: body}, &out)
	return out, err
}

// Messages lists the thread between userNumber and contact, oldest first.
func (c *Client) Messages(ctx context.Context, creds credentials.Record, contact, userNumber string) (MessagesResponse, error) {
	var out MessagesResponse
	err := c.post(ctx, "messages", messagesRequest{Record: creds, Contact: contact, UserNumber: userNumber}, &out)
	return out, err
}

// Conversations lists one summary per counterpart, most recent first.
func (c *Client) Conversations(ctx context.Context, creds credentials.Record, userNumber string) (ConversationsResponse, error) {
	var out ConversationsResponse
	err := c.post(ctx, "conversations", conversationsRequest{Record: creds, UserNumber: userNumber}, &out)
	return out, err
}

func (c *Client) PhoneNumbers(ctx context.Context, creds credentials.Record) (PhoneNumbersResponse, error) {
	var out PhoneNumbersResponse
	err := c.post(ctx, "phone-numbers", creds, &out)
	return out, err
}

// TokenExpiry reads the exp claim without verifying the signature.
// The daemon never holds the signing key; it only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("backend: parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("backend: token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
