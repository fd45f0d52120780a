package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"citybuilder/internal/adapters/exports"
	"citybuilder/internal/palette"
	"citybuilder/internal/render"
	"citybuilder/internal/weather"
)

func (s *Server) handlePalette(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"colors": palette.Entries()})
}

func (s *Server) handleCities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cities": weather.Cities()})
}

type coordinatesQuery struct {
	Lat float64 `validate:"latitude"`
	Lon float64 `validate:"longitude"`
}

func (s *Server) weatherQuery(r *http.Request) (weather.Query, string) {
	q := r.URL.Query()
	if city := q.Get("city"); city != "" {
		return weather.ByCity(city), ""
	}
	latRaw, lonRaw := q.Get("lat"), q.Get("lon")
	if latRaw == "" && lonRaw == "" {
		return weather.ByDeviceLocation(), ""
	}
	lat, errLat := strconv.ParseFloat(latRaw, 64)
	lon, errLon := strconv.ParseFloat(lonRaw, 64)
	if errLat != nil || errLon != nil {
		return weather.Query{}, "lat and lon must both be numbers"
	}
	if err := s.validate.Struct(coordinatesQuery{Lat: lat, Lon: lon}); err != nil {
		return weather.Query{}, "coordinates out of range"
	}
	return weather.ByCoordinates(lat, lon), ""
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.weather == nil {
		writeError(w, http.StatusNotImplemented, "weather is not configured")
		return
	}
	query, problem := s.weatherQuery(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	reading, err := s.weather.Fetch(r.Context(), query)
	if err != nil {
		status, msg := weatherError(err)
		s.logger.Debug("weather request failed", zap.String("query", query.Key()), zap.Int("status", status), zap.Error(err))
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weather": reading})
}

func weatherError(err error) (int, string) {
	var sue *weather.SourceUnavailableError
	switch {
	case errors.Is(err, weather.ErrUnknownCity):
		return http.StatusNotFound, "Unknown city"
	case errors.Is(err, weather.ErrCapabilityUnavailable):
		return http.StatusNotImplemented, "Device location is not available"
	case errors.As(err, &sue):
		return http.StatusServiceUnavailable, sue.Message
	case errors.Is(err, weather.ErrSourceUnavailable):
		return http.StatusServiceUnavailable, "Weather service is unavailable"
	default:
		return http.StatusInternalServerError, "weather lookup failed"
	}
}

func (s *Server) handleSkyline(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, s.store.Snapshot(), s.render); err != nil {
		s.logger.Error("render skyline", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type exportRequest struct {
	Formats []string `json:"formats" validate:"omitempty,dive,oneof=json png"`
}

func (s *Server) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	formats := make([]exports.Format, len(req.Formats))
	for i, f := range req.Formats {
		formats[i] = exports.Format(f)
	}
	record, err := s.exports.Enqueue(r.Context(), formats)
	switch {
	case errors.Is(err, exports.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, exports.ErrQueueFull), errors.Is(err, exports.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
	}
}

func (s *Server) handleExportGet(w http.ResponseWriter, r *http.Request) {
	record, ok := s.exports.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (s *Server) handleExportList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"exports": s.exports.List()})
}
