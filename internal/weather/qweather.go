// Package weather fetches the QWeather 7-day forecast used to enrich the
// system preamble.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/internal/prompt"
	"github.com/nulzo/streamchat/internal/store/cache"
)

const (
	DefaultBaseURL = "https://devapi.qweather.com/v7"
	// DefaultLocation is the QWeather city id for Hangzhou.
	DefaultLocation = "101210101"

	defaultTimeout = 5 * time.Second
)

var ErrUnavailable = errors.New("weather: forecast unavailable")

type daily struct {
	FxDate  string `json:"fxDate"`
	TempMin string `json:"tempMin"`
	TempMax string `json:"tempMax"`
	TextDay string `json:"textDay"`
	Precip  string `json:"precip"`
}

type forecastResponse struct {
	Code  string  `json:"code"`
	Daily []daily `json:"daily"`
}

type Client struct {
	baseURL  string
	apiKey   string
	location string
	days     int
	timeout  time.Duration
	http     httpclient.HTTPClient
	cache    cache.CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithLocation(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.location = id
		}
	}
}

// WithDays limits the forecast to the first n days, today included.
func WithDays(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.days = n
		}
	}
}

func WithHTTPClient(h httpclient.HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

// WithCache keeps each fetched forecast for ttl.
func WithCache(cs cache.CacheService, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cs
		c.cacheTTL = ttl
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		location: DefaultLocation,
		days:     7,
		timeout:  defaultTimeout,
		http:     httpclient.NewClient(defaultTimeout, defaultTimeout),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Forecast returns the upcoming days, starting today. It matches
// prompt.WeatherFunc.
func (c *Client) Forecast(ctx context.Context) ([]prompt.Forecast, error) {
	key := "weather:7d:" + c.location

	var days []daily
	if c.cache != nil {
		if err := c.cache.Get(ctx, key, &days); err == nil {
			return c.convert(days), nil
		} else if !errors.Is(err, cache.ErrMiss) {
			c.logger.Debug("Weather cache read failed", zap.Error(err))
		}
	}

	days, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("Weather lookup failed", zap.String("location", c.location), zap.Error(err))
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, days, c.cacheTTL); err != nil {
			c.logger.Debug("Weather cache write failed", zap.Error(err))
		}
	}
	return c.convert(days), nil
}

func (c *Client) fetch(ctx context.Context) ([]daily, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("location", c.location)
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather/7d?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// QWeather reports failures in the body with a 200 status
	if out.Code != "200" {
		return nil, fmt.Errorf("%w: code %s", ErrUnavailable, out.Code)
	}
	return out.Daily, nil
}

// convert drops past days and malformed entries and keeps at most c.days.
func (c *Client) convert(days []daily) []prompt.Forecast {
	today := c.now().Format(time.DateOnly)
	out := make([]prompt.Forecast, 0, len(days))
	for _, d := range days {
		if d.FxDate < today {
			continue
		}
		date, err := time.Parse(time.DateOnly, d.FxDate)
		if err != nil {
			continue
		}
		out = append(out, prompt.Forecast{
			Date:          date,
			Description:   d.TextDay,
			TempMin:       parseFloat(d.TempMin),
			TempMax:       parseFloat(d.TempMax),
			Precipitation: parseFloat(d.Precip),
		})
		if len(out) == c.days {
			break
		}
	}
	return out
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
