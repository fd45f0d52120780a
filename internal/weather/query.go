// Package weather fetches the current conditions shown next to the city.
//
// A Query names where to look: explicit coordinates, the device location
// supplied by a Locator, or one of the preset cities. Client talks to
// Open-Meteo and Nominatim; CachedSource sits in front of any Source.
package weather

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// QueryKind discriminates the Query variants.
type QueryKind int

const (
	KindCoordinates QueryKind = iota + 1
	KindDeviceLocation
	KindCity
)

func (k QueryKind) String() string {
	switch k {
	case KindCoordinates:
		return "coordinates"
	case KindDeviceLocation:
		return "device"
	case KindCity:
		return "city"
	default:
		return "unknown"
	}
}

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Query selects the location a reading is fetched for. The zero value is
// not a valid query; build one with ByCoordinates, ByDeviceLocation or ByCity.
type Query struct {
	kind   QueryKind
	coords Coordinates
	city   string
}

// ByCoordinates queries an explicit position.
func ByCoordinates(lat, lon float64) Query {
	return Query{kind: KindCoordinates, coords: Coordinates{Lat: lat, Lon: lon}}
}

// ByDeviceLocation queries wherever the configured Locator says the device is.
func ByDeviceLocation() Query {
	return Query{kind: KindDeviceLocation}
}

// ByCity queries a preset city by name (case-insensitive).
func ByCity(name string) Query {
	return Query{kind: KindCity, city: strings.TrimSpace(name)}
}

// Kind reports which variant q holds.
func (q Query) Kind() QueryKind { return q.kind }

// Coordinates returns the position of a KindCoordinates query.
func (q Query) Coordinates() Coordinates { return q.coords }

// City returns the requested name of a KindCity query.
func (q Query) City() string { return q.city }

// Key identifies the query for caching.
func (q Query) Key() string {
	switch q.kind {
	case KindCoordinates:
		return fmt.Sprintf("coords:%.4f,%.4f", q.coords.Lat, q.coords.Lon)
	case KindCity:
		return "city:" + strings.ToLower(q.city)
	default:
		return q.kind.String()
	}
}

func (q Query) String() string { return q.Key() }

// Reading is one observation of the current weather.
type Reading struct {
	Temperature float64     `json:"temperature"`
	WeatherCode int         `json:"weather_code"`
	Condition   Condition   `json:"condition"`
	CityName    string      `json:"city"`
	Coordinates Coordinates `json:"coordinates"`
	TimeZone    string      `json:"time_zone,omitempty"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// Source produces readings. Implementations must be safe for concurrent use.
type Source interface {
	Fetch(ctx context.Context, q Query) (Reading, error)
}
