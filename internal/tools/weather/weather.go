package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/chat"
	"github.com/mohammad-safakhou/ava/internal/tools"
	"github.com/mohammad-safakhou/ava/internal/tools/weather/geocache"
)

// ToolName is the name the forecast tool is declared under.
const ToolName = "get_weather_forecast"

// ForecastDay is one day of forecast aggregated in UTC.
type ForecastDay struct {
	DateUTC string  `json:"date_utc"`
	TminC   float64 `json:"tmin_c"`
	TmaxC   float64 `json:"tmax_c"`
}

// ForecastResult is the machine-readable tool payload. On domain failures
// (unknown place) it carries ok=false and a user-safe error; transport
// failures surface as Go errors instead so callers can retry.
type ForecastResult struct {
	OK       bool          `json:"ok"`
	Query    string        `json:"query"`
	Place    string        `json:"place,omitempty"`
	Lat      float64       `json:"lat,omitempty"`
	Lon      float64       `json:"lon,omitempty"`
	Timezone string        `json:"timezone"`
	Days     []ForecastDay `json:"days"`
	Error    string        `json:"error,omitempty"`
}

// notFoundError marks geocode lookups with no results. It is the only
// failure rendered into an ok=false payload rather than returned.
type notFoundError struct {
	query string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("Could not find '%s'. Try 'City, Country' (e.g. 'Paris, France').", e.query)
}

// Client resolves free-text locations via Nominatim and fetches MET Norway
// compact forecasts, aggregated into daily min/max temperatures.
type Client struct {
	cfg    config.WeatherConfig
	http   *http.Client
	cache  geocache.Cache
	logger *log.Logger

	// Nominatim's usage policy caps lookups at about one per second.
	mu          sync.Mutex
	lastGeocode time.Time
}

func New(cfg config.WeatherConfig, cache geocache.Cache, logger *log.Logger) *Client {
	if cache == nil {
		cache = geocache.NewMemoryCache()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[WEATHER] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		cache:  cache,
		logger: logger,
	}
}

// Tool returns the forecast tool wired to this client.
func (c *Client) Tool() tools.Tool {
	return tools.Tool{
		Declaration: chat.ToolDeclaration{
			Name: ToolName,
			Description: "Get a simple 7-day weather forecast for a city. " +
				"Use when the user asks for a forecast or weather outlook for a named place. " +
				"Returns a JSON object with ok, place, and up to 7 days of {date_utc, tmin_c, tmax_c}; " +
				"on failure ok=false and error explains what happened.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city": map[string]interface{}{
						"type":        "string",
						"description": "Human-readable location. Prefer 'City, Country' when ambiguous (e.g. 'Paris, France').",
					},
				},
				"required": []string{"city"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			city, _ := args["city"].(string)
			if strings.TrimSpace(city) == "" {
				return "", fmt.Errorf("missing required argument 'city'")
			}
			return c.Forecast(ctx, city)
		},
	}
}

// Forecast resolves the city and returns the forecast payload as JSON.
func (c *Client) Forecast(ctx context.Context, city string) (string, error) {
	entry, err := c.geocode(ctx, city)
	if err != nil {
		var nf *notFoundError
		if errors.As(err, &nf) {
			return marshalResult(ForecastResult{
				OK:       false,
				Query:    city,
				Timezone: "UTC",
				Days:     []ForecastDay{},
				Error:    nf.Error(),
			})
		}
		return "", fmt.Errorf("geocode %q: %w", city, err)
	}

	days, err := c.fetchForecast(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("forecast for %q: %w", city, err)
	}

	return marshalResult(ForecastResult{
		OK:       true,
		Query:    city,
		Place:    entry.Place,
		Lat:      entry.Lat,
		Lon:      entry.Lon,
		Timezone: "UTC",
		Days:     days,
	})
}

func marshalResult(r ForecastResult) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal forecast result: %w", err)
	}
	return string(data), nil
}

func (c *Client) geocode(ctx context.Context, city string) (geocache.Entry, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if entry, ok := c.cache.Get(ctx, key); ok {
		return entry, nil
	}

	if err := c.throttle(ctx); err != nil {
		return geocache.Entry{}, err
	}

	c.logger.Printf("geocoding city: %s", city)
	q := url.Values{}
	q.Set("q", city)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	var results []struct {
		DisplayName string `json:"display_name"`
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
	}
	if err := c.getJSON(ctx, c.cfg.GeocodeURL+"?"+q.Encode(), &results); err != nil {
		return geocache.Entry{}, err
	}
	if len(results) == 0 {
		return geocache.Entry{}, &notFoundError{query: city}
	}

	top := results[0]
	lat, err := strconv.ParseFloat(top.Lat, 64)
	if err != nil {
		return geocache.Entry{}, fmt.Errorf("parse lat %q: %w", top.Lat, err)
	}
	lon, err := strconv.ParseFloat(top.Lon, 64)
	if err != nil {
		return geocache.Entry{}, fmt.Errorf("parse lon %q: %w", top.Lon, err)
	}
	place := top.DisplayName
	if place == "" {
		place = city
	}

	entry := geocache.Entry{Place: place, Lat: lat, Lon: lon}
	ttl := c.cfg.CacheTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	c.cache.Set(ctx, key, entry, ttl)
	return entry, nil
}

// throttle spaces geocode requests by the configured interval.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	interval := c.cfg.GeocodeInterval
	if wait := interval - time.Since(c.lastGeocode); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastGeocode = time.Now()
	return nil
}

// fetchForecast aggregates MET Norway forecast points by UTC date into
// min/max air temperature and keeps the first seven days.
func (c *Client) fetchForecast(ctx context.Context, entry geocache.Entry) ([]ForecastDay, error) {
	c.logger.Printf("fetching forecast for %s (%.4f, %.4f)", entry.Place, entry.Lat, entry.Lon)
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(entry.Lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(entry.Lon, 'f', 4, 64))

	var payload struct {
		Properties struct {
			Timeseries []struct {
				Time string `json:"time"`
				Data struct {
					Instant struct {
						Details struct {
							AirTemperature *float64 `json:"air_temperature"`
						} `json:"details"`
					} `json:"instant"`
				} `json:"data"`
			} `json:"timeseries"`
		} `json:"properties"`
	}
	if err := c.getJSON(ctx, c.cfg.ForecastURL+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	daily := make(map[string][2]float64)
	for _, item := range payload.Properties.Timeseries {
		temp := item.Data.Instant.Details.AirTemperature
		if temp == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, item.Time)
		if err != nil {
			continue
		}
		day := ts.UTC().Format("2006-01-02")
		if cur, ok := daily[day]; ok {
			if *temp < cur[0] {
				cur[0] = *temp
			}
			if *temp > cur[1] {
				cur[1] = *temp
			}
			daily[day] = cur
		} else {
			daily[day] = [2]float64{*temp, *temp}
		}
	}

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	if len(days) > 7 {
		days = days[:7]
	}

	out := make([]ForecastDay, len(days))
	for i, day := range days {
		out[i] = ForecastDay{DateUTC: day, TminC: daily[day][0], TmaxC: daily[day][1]}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, string(snippet))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
