// Package nightscout provides a client for interacting with the Nightscout API
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/mrcode/nightscout-reconcile/internal/fields"
	"github.com/mrcode/nightscout-reconcile/internal/models"
)

// Query limits
const (
	maxRecords         = 1000
	sensorChangeExact  = "Sensor Change"
	sensorChangeRegex  = "Sensor Change|Sensor Start"
	sensorChangeSearch = 3
)

// ErrUpstream is wrapped by every error caused by the server's answer
var ErrUpstream = errors.New("nightscout upstream error")

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrUpstream
func (e *APIError) Unwrap() error {
	return ErrUpstream
}

// Options configures a Client
type Options struct {
	BaseURL        string
	Token          string // sent as token and access_token query parameters
	APISecret      string // plain secret, hashed before sending
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retry          RetryPolicy
	VerifySSL      bool
}

// Client handles communication with the Nightscout API
type Client struct {
	baseURL    string
	apiToken   string
	secretHash string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryPolicy
	sleepFn    func(context.Context, time.Duration) error
	log        zerolog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithSleepFunc replaces the wait between retries
func WithSleepFunc(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Nightscout client
func NewClient(opts Options, log zerolog.Logger, options ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout
	transport.ResponseHeaderTimeout = opts.ReadTimeout
	if !opts.VerifySSL {
		// Self-hosted Nightscout servers often run with self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via NS_VERIFY_SSL
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiToken:   opts.Token,
		httpClient: &http.Client{Transport: transport},
		breaker:    newBreaker("nightscout"),
		retry:      opts.Retry,
		sleepFn:    sleepContext,
		log:        log.With().Str("component", "nightscout").Logger(),
	}
	if opts.APISecret != "" {
		c.secretHash = hashSecret(opts.APISecret)
	}

	for _, opt := range options {
		opt(c)
	}
	return c
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// buildRequest creates an HTTP request with proper authentication.
// A token takes precedence; the secret is only sent without one.
func (c *Client) buildRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.apiToken != "" {
		params.Set("token", c.apiToken)
		params.Set("access_token", c.apiToken)
	} else if c.secretHash != "" {
		params.Set("secret", c.secretHash)
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.apiToken == "" && c.secretHash != "" {
		req.Header.Set("api-secret", c.secretHash)
	}

	return req, nil
}

// get executes a GET request and returns the response body
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := c.buildRequest(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(body)).
		Msg("Nightscout request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return body, nil
}

// getRecords fetches an endpoint answering with a list of records
func (c *Client) getRecords(ctx context.Context, endpoint string, params url.Values) ([]*fields.Object, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	records, err := fields.ParseObjects(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", endpoint, err)
	}
	return records, nil
}

// Entries retrieves glucose entries dated at or after since
func (c *Client) Entries(ctx context.Context, since time.Time) ([]*fields.Object, error) {
	params := url.Values{}
	params.Set("find[date][$gte]", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("count", strconv.Itoa(maxRecords))
	return c.getRecords(ctx, "/api/v1/entries.json", params)
}

// Treatments retrieves treatments created at or after since
func (c *Client) Treatments(ctx context.Context, since time.Time) ([]*fields.Object, error) {
	params := url.Values{}
	params.Set("find[created_at][$gte]", since.UTC().Format(time.RFC3339))
	params.Set("count", strconv.Itoa(maxRecords))
	return c.getRecords(ctx, "/api/v1/treatments.json", params)
}

// Profile retrieves the current profile document, nil when the server has none
func (c *Client) Profile(ctx context.Context) (*fields.Object, error) {
	params := url.Values{}
	params.Set("count", "1")
	docs, err := c.getRecords(ctx, "/api/v1/profile.json", params)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// DeviceStatus retrieves the newest count device status records
func (c *Client) DeviceStatus(ctx context.Context, count int) ([]*fields.Object, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	return c.getRecords(ctx, "/api/v1/devicestatus.json", params)
}

// LatestSensorChange finds the newest sensor change treatment regardless of
// the chart window. An exact "Sensor Change" is preferred over a sensor start.
// It returns nil when neither exists.
func (c *Client) LatestSensorChange(ctx context.Context) (*fields.Object, error) {
	params := url.Values{}
	params.Set("find[eventType]", sensorChangeExact)
	params.Set("count", "1")
	recs, err := c.getRecords(ctx, "/api/v1/treatments.json", params)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		params = url.Values{}
		params.Set("find[eventType][$regex]", sensorChangeRegex)
		params.Set("count", strconv.Itoa(sensorChangeSearch))
		recs, err = c.getRecords(ctx, "/api/v1/treatments.json", params)
		if err != nil {
			return nil, err
		}
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Status retrieves the Nightscout server status
func (c *Client) Status(ctx context.Context) (*models.ServerStatus, error) {
	body, err := c.get(ctx, "/api/v1/status.json", nil)
	if err != nil {
		return nil, err
	}

	var status models.ServerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	return &status, nil
}
