package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Upstream endpoints used when no override is configured.
const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultGeocodeURL  = "https://nominatim.openstreetmap.org/reverse"

	userAgent = "citybuilder/1.0"
)

// Client is the Open-Meteo backed Source. City names for coordinate queries
// come from Nominatim reverse geocoding.
type Client struct {
	http        *http.Client
	forecastURL string
	geocodeURL  string
	locator     Locator
	logger      *zap.Logger
	now         func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client, which has a 10s timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithForecastURL points current-weather requests at another Open-Meteo compatible endpoint.
func WithForecastURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.forecastURL = u
		}
	}
}

// WithGeocodeURL points reverse geocoding at another Nominatim compatible endpoint.
func WithGeocodeURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.geocodeURL = u
		}
	}
}

// WithLocator sets the device position provider. Without one, device
// queries fail with ErrCapabilityUnavailable.
func WithLocator(l Locator) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.locator = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the FetchedAt timestamp source.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Client talking to the public endpoints by default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 10 * time.Second},
		forecastURL: DefaultForecastURL,
		geocodeURL:  DefaultGeocodeURL,
		locator:     NoLocator{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weathercode"`
}

type forecastResponse struct {
	CurrentWeather *currentWeather `json:"current_weather"`
}

type reverseResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// Fetch resolves q to a position and reads the current weather there.
func (c *Client) Fetch(ctx context.Context, q Query) (Reading, error) {
	at, cityName, err := c.resolve(ctx, q)
	if err != nil {
		return Reading{}, err
	}
	tz := TimeZoneFor(at)

	current, err := c.current(ctx, at, tz)
	if err != nil {
		c.logger.Warn("weather fetch failed", zap.String("query", q.Key()), zap.Error(err))
		return Reading{}, err
	}
	if cityName == "" {
		cityName = c.cityName(ctx, at)
	}
	return Reading{
		Temperature: current.Temperature,
		WeatherCode: current.WeatherCode,
		Condition:   ConditionFor(current.WeatherCode),
		CityName:    cityName,
		Coordinates: at,
		TimeZone:    tz,
		FetchedAt:   c.now().UTC(),
	}, nil
}

func (c *Client) resolve(ctx context.Context, q Query) (Coordinates, string, error) {
	switch q.Kind() {
	case KindCoordinates:
		return q.Coordinates(), "", nil
	case KindDeviceLocation:
		at, err := c.locator.Locate(ctx)
		if err != nil {
			return Coordinates{}, "", err
		}
		return at, "", nil
	case KindCity:
		city, ok := LookupCity(q.City())
		if !ok {
			return Coordinates{}, "", fmt.Errorf("%w: %q", ErrUnknownCity, q.City())
		}
		return city.Coordinates, city.Name, nil
	default:
		return Coordinates{}, "", fmt.Errorf("weather: invalid query kind %d", q.Kind())
	}
}

func (c *Client) current(ctx context.Context, at Coordinates, tz string) (currentWeather, error) {
	params := url.Values{}
	params.Set("latitude", formatCoord(at.Lat))
	params.Set("longitude", formatCoord(at.Lon))
	params.Set("current_weather", "true")
	if tz != "" {
		params.Set("timezone", tz)
	}
	var body forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, params, &body); err != nil {
		return currentWeather{}, unavailable("Weather service is unavailable", err)
	}
	if body.CurrentWeather == nil {
		return currentWeather{}, unavailable("Weather service returned no current conditions", nil)
	}
	return *body.CurrentWeather, nil
}

// cityName never fails: a geocoding error falls back to the nearest preset
// city, or an empty name.
func (c *Client) cityName(ctx context.Context, at Coordinates) string {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", formatCoord(at.Lat))
	params.Set("lon", formatCoord(at.Lon))
	var body reverseResponse
	err := c.getJSON(ctx, c.geocodeURL, params, &body)
	if err == nil {
		for _, name := range []string{body.Address.City, body.Address.Town, body.Address.Village} {
			if name != "" {
				return name
			}
		}
	} else {
		c.logger.Debug("reverse geocoding failed", zap.Float64("lat", at.Lat), zap.Float64("lon", at.Lon), zap.Error(err))
	}
	if city, ok := NearestCity(at, NearbyRadiusKm); ok {
		return city.Name
	}
	return ""
}

func (c *Client) getJSON(ctx context.Context, base string, params url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", base, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", base, err)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
