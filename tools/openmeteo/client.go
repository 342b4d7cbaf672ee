// Package openmeteo implements tool invokers for the Open-Meteo forecast and
// air-quality APIs. Each invocation is a single GET with no retries.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
)

const (
	DefaultForecastBaseURL   = "https://api.open-meteo.com"
	DefaultAirQualityBaseURL = "https://air-quality-api.open-meteo.com"
	DefaultTimeout           = 10 * time.Second

	forecastPath   = "/v1/forecast"
	airQualityPath = "/v1/air-quality"
	maxBodyBytes   = 1 << 20
	userAgent      = "weather-agents/1.0"
)

var weatherFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"dew_point_2m",
	"apparent_temperature",
	"precipitation",
	"weathercode",
	"windspeed_10m",
	"winddirection_10m",
}

var airQualityFields = []string{
	"european_aqi",
	"us_aqi",
	"pm10",
	"pm2_5",
	"carbon_monoxide",
	"nitrogen_dioxide",
	"sulphur_dioxide",
	"ozone",
}

// Client holds the HTTP client and endpoints shared by both invokers.
type Client struct {
	httpClient    *http.Client
	forecastURL   string
	airQualityURL string
	timeout       time.Duration
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout is kept
// unless WithTimeout is also given; hc itself is never modified. Nil is
// ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithForecastBaseURL overrides the forecast API base URL.
func WithForecastBaseURL(u string) Option {
	return func(c *Client) { c.forecastURL = strings.TrimRight(u, "/") }
}

// WithAirQualityBaseURL overrides the air-quality API base URL.
func WithAirQualityBaseURL(u string) Option {
	return func(c *Client) { c.airQualityURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with a 10s timeout and the public endpoints.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		forecastURL:   DefaultForecastBaseURL,
		airQualityURL: DefaultAirQualityBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.timeout != c.httpClient.Timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	c.logger = obs.OrNop(c.logger)
	return c
}

// Weather returns the invoker for current weather.
func (c *Client) Weather() tools.Invoker { return &WeatherInvoker{client: c} }

// AirQuality returns the invoker for current air quality.
func (c *Client) AirQuality() tools.Invoker { return &AirQualityInvoker{client: c} }

// Register binds both invokers into a capability registry.
func (c *Client) Register(caps *tools.Capabilities) error {
	if err := caps.Register(tools.CapabilityWeather, c.Weather()); err != nil {
		return err
	}
	return caps.Register(tools.CapabilityAirQuality, c.AirQuality())
}

// fetch performs the single GET and returns the body, or a Failure result.
func (c *Client) fetch(ctx context.Context, base, path string, fields []string, loc tools.Location) ([]byte, *tools.Result) {
	if err := loc.Validate(); err != nil {
		f := tools.Failure(tools.ReasonInvalidLocation, err.Error())
		return nil, &f
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("current", strings.Join(fields, ","))
	q.Set("timezone", "auto")
	endpoint := base + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		f := tools.Failure(tools.ReasonNetwork, fmt.Sprintf("failed to create request: %v", err))
		return nil, &f
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("open-meteo request failed", zap.String("path", path), zap.Error(err))
		f := tools.Failure(tools.ReasonNetwork, fmt.Sprintf("request failed: %v", err))
		return nil, &f
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f := tools.Failure(tools.ReasonNetwork, fmt.Sprintf("failed to read response: %v", err))
		return nil, &f
	}
	c.logger.Debug("open-meteo response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := tools.Failure(tools.ReasonNetwork, fmt.Sprintf("status %d: %s", resp.StatusCode, apiReason(body)))
		return nil, &f
	}
	return body, nil
}

// apiReason extracts Open-Meteo's {"error":true,"reason":"..."} message.
func apiReason(body []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
