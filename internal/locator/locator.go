package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kyxap1/geolocator/internal/metrics"
	"github.com/kyxap1/geolocator/internal/types"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the ip-api.com JSON endpoint; the target is appended as one path segment
	DefaultBaseURL        = "http://ip-api.com/json/"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second

	userAgent = "geolocator/1.0"
)

// Locator resolves geolocation for a target. An empty target means the caller's own address.
type Locator interface {
	Resolve(ctx context.Context, target string) (*types.GeoLocation, error)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// HTTPClient replaces the timeout-bounded client built from the options above
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client queries the geolocation service. It holds no mutable state and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	decode     func(body []byte, loc *types.GeoLocation) error
}

// NewClient creates a new geolocation client
func NewClient(opts Options, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.ConnectTimeout, opts.ReadTimeout)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		metrics:    opts.Metrics,
		decode:     decodeLocation,
	}
}

// newHTTPClient bounds connection setup by connectTimeout and waiting for the
// response by readTimeout.
func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = readTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

// BaseURL returns the service endpoint the client queries
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestURL builds the service URL for target. The target is escaped as a
// single path segment; an empty target yields the base URL unchanged.
func (c *Client) RequestURL(target string) string {
	if target == "" {
		return c.baseURL
	}
	return c.baseURL + url.PathEscape(target)
}

// ResolveSelf returns geolocation information about the caller's public address
func (c *Client) ResolveSelf(ctx context.Context) (*types.GeoLocation, error) {
	return c.Resolve(ctx, "")
}

// Resolve returns geolocation information about the IP address or host name
// in target. A "fail" status from the service is returned as a record, not an
// error; callers check Succeeded.
func (c *Client) Resolve(ctx context.Context, target string) (*types.GeoLocation, error) {
	start := time.Now()
	loc, err := c.resolve(ctx, target)
	c.metrics.ObserveLookup(lookupResult(loc, err), time.Since(start))
	return loc, err
}

func (c *Client) resolve(ctx context.Context, target string) (*types.GeoLocation, error) {
	requestURL := c.RequestURL(target)
	entry := c.logger.WithField("url", requestURL)

	if target == "" {
		entry.Debug("Querying geolocation information about this host")
	} else {
		entry.WithField("target", target).Debug("Querying geolocation information")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &TransportError{URL: requestURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.WithError(err).Error("Geolocation request failed")
		return nil, &TransportError{URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.WithError(err).Error("Failed to read geolocation response")
		return nil, &TransportError{
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		entry.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Geolocation service returned an error status")
		return nil, &TransportError{
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %q", resp.Status),
		}
	}

	entry.WithField("body", string(body)).Debug("JSON response")

	var loc types.GeoLocation
	if err := c.decode(body, &loc); err != nil {
		entry.WithError(err).Error("Failed to decode geolocation response")
		return nil, &ResponseFormatError{URL: requestURL, Body: string(body), Err: err}
	}

	return &loc, nil
}

// decodeLocation parses body as a single JSON object. Unknown fields are ignored.
func decodeLocation(body []byte, loc *types.GeoLocation) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("response is not a JSON object")
	}
	return json.Unmarshal(trimmed, loc)
}

func lookupResult(loc *types.GeoLocation, err error) string {
	var formatErr *ResponseFormatError
	switch {
	case errors.As(err, &formatErr):
		return metrics.ResultFormatError
	case err != nil:
		return metrics.ResultTransportError
	case loc.Succeeded():
		return metrics.ResultSuccess
	default:
		return metrics.ResultFail
	}
}
