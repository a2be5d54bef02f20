package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/observability"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

var dailyVariables = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"windspeed_10m_max",
	"relative_humidity_2m_max",
}

// Options locates the forecast station.
type Options struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	Timeout   time.Duration
}

// Client implements domain.Forecaster using the Open-Meteo daily forecast API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	latitude   float64
	longitude  float64
	timezone   string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo forecast client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		latitude:  opts.Latitude,
		longitude: opts.Longitude,
		timezone:  opts.Timezone,
		metrics:   metrics,
		logger:    logger,
	}
}

// Forecast returns the feature vector for one calendar day. Failures are
// *domain.FetchError; a day outside the forecast window wraps
// domain.ErrDateUnavailable.
func (c *Client) Forecast(ctx context.Context, date time.Time) (tree.FeatureVector, error) {
	day := domain.FormatDate(date)
	params := url.Values{
		"latitude":   {strconv.FormatFloat(c.latitude, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(c.longitude, 'f', -1, 64)},
		"daily":      {strings.Join(dailyVariables, ",")},
		"timezone":   {c.timezone},
		"start_date": {day},
		"end_date":   {day},
	}

	d, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode(), day)
	if err != nil {
		if errors.Is(err, domain.ErrDateUnavailable) {
			c.metrics.ForecastRequests.WithLabelValues("unavailable").Inc()
		} else {
			c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	c.metrics.ForecastRequests.WithLabelValues("success").Inc()
	return d.Features(), nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, day string) (domain.DailyForecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: "create request", Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ForecastAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// Open-Meteo answers 400 for dates outside the forecast window.
		var apiErr errorResponse
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			c.logger.Debug("open-meteo rejected date", "date", day, "reason", apiErr.Reason)
			return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: apiErr.Reason, Err: domain.ErrDateUnavailable}
		}
		return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: fmt.Sprintf("open-meteo API error: status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: fmt.Sprintf("open-meteo API error: status %d: %s", resp.StatusCode, body)}
	}

	var forecastResp response
	if err := json.NewDecoder(resp.Body).Decode(&forecastResp); err != nil {
		return domain.DailyForecast{}, &domain.FetchError{Date: day, Reason: "decode response", Err: err}
	}

	daily := forecastResp.Daily
	idx := -1
	for i, t := range daily.Time {
		if t == day {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.logger.Debug("date missing from forecast", "date", day, "days", len(daily.Time))
		return domain.DailyForecast{}, domain.DateRangeError(day)
	}

	return domain.DailyForecast{
		Date:         day,
		TMax:         at(daily.TMax, idx),
		TMin:         at(daily.TMin, idx),
		WindSpeedMax: at(daily.WindSpeedMax, idx),
		HumidityMax:  at(daily.HumidityMax, idx),
	}, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

// Open-Meteo API response types.

type response struct {
	Daily daily `json:"daily"`
}

type daily struct {
	Time         []string   `json:"time"`
	TMax         []*float64 `json:"temperature_2m_max"`
	TMin         []*float64 `json:"temperature_2m_min"`
	WindSpeedMax []*float64 `json:"windspeed_10m_max"`
	HumidityMax  []*float64 `json:"relative_humidity_2m_max"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}
