package weather

import (
	"strings"

	"github.com/bradfitz/latlong"
	"github.com/umahmood/haversine"
)

// NearbyRadiusKm bounds the preset-city fallback used when reverse geocoding fails.
const NearbyRadiusKm = 50.0

// City is a preset location selectable by name.
type City struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

var presetCities = []City{
	{Name: "Sofia", Coordinates: Coordinates{Lat: 42.698334, Lon: 23.319941}},
	{Name: "Lyon", Coordinates: Coordinates{Lat: 45.76342, Lon: 4.834277}},
	{Name: "Atlanta", Coordinates: Coordinates{Lat: 33.753746, Lon: -84.38633}},
}

// Cities returns the preset cities in display order.
func Cities() []City {
	out := make([]City, len(presetCities))
	copy(out, presetCities)
	return out
}

// LookupCity finds a preset city by case-insensitive name.
func LookupCity(name string) (City, bool) {
	name = strings.TrimSpace(name)
	for _, c := range presetCities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}

// DistanceKm is the great-circle distance between two positions.
func DistanceKm(a, b Coordinates) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lon},
		haversine.Coord{Lat: b.Lat, Lon: b.Lon},
	)
	return km
}

// NearestCity returns the closest preset city no further than maxKm away.
func NearestCity(at Coordinates, maxKm float64) (City, bool) {
	var (
		best  City
		bestD = maxKm
		found bool
	)
	for _, c := range presetCities {
		if d := DistanceKm(at, c.Coordinates); d <= bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}

// TimeZoneFor returns the IANA zone name at the position, or "" over open water.
func TimeZoneFor(at Coordinates) string {
	return latlong.LookupZoneName(at.Lat, at.Lon)
}
