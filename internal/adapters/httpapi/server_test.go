package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citybuilder/internal/adapters/exports"
	"citybuilder/internal/adapters/httpapi"
	"citybuilder/internal/blob"
	"citybuilder/internal/clock/clocktest"
	"citybuilder/internal/core"
	"citybuilder/internal/weather"
	"citybuilder/pkg/domain"
)

type fakeWeather struct {
	reading weather.Reading
	err     error
	last    weather.Query
}

func (f *fakeWeather) Fetch(_ context.Context, q weather.Query) (weather.Reading, error) {
	f.last = q
	if q.Kind() == weather.KindCity {
		if _, ok := weather.LookupCity(q.City()); !ok {
			return weather.Reading{}, weather.ErrUnknownCity
		}
	}
	return f.reading, f.err
}

type harness struct {
	t       *testing.T
	sched   *clocktest.Manual
	store   *core.Store
	weather *fakeWeather
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sched := clocktest.NewManual()
	reg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusRecorder(reg)
	require.NoError(t, err)

	n := 0
	store := core.NewStore(
		core.WithScheduler(sched),
		core.WithMetrics(recorder),
		core.WithIDGenerator(func() string { n++; return "h" + string(rune('0'+n)) }),
	)
	t.Cleanup(store.Close)

	st, closer, err := blob.Open(context.Background(), blob.Config{Driver: blob.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })
	worker := exports.NewWorker(store, st)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	fw := &fakeWeather{reading: weather.Reading{Temperature: 18.5, WeatherCode: 2, Condition: weather.ConditionCloudy, CityName: "Sofia"}}
	srv := httpapi.New(httpapi.Deps{
		Store:   store,
		Weather: fw,
		Exports: worker,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &harness{t: t, sched: sched, store: store, weather: fw, handler: srv.Handler()}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

type mutation struct {
	Applied bool           `json:"applied"`
	House   *domain.House  `json:"house"`
	Houses  []domain.House `json:"houses"`
	Error   string         `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) mutation {
	t.Helper()
	var m mutation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func ids(houses []domain.House) []string {
	out := make([]string, len(houses))
	for i, h := range houses {
		out[i] = h.ID
	}
	return out
}

func TestAddAndList(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/houses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.True(t, m.Applied)
	require.NotNil(t, m.House)
	assert.Equal(t, "h1", m.House.ID)
	assert.Equal(t, domain.StatusAdded, m.House.Status)
	assert.Equal(t, 100, m.House.Height)

	rec = h.do(http.MethodGet, "/api/v1/houses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"h1"}, ids(decode(t, rec).Houses))

	rec = h.do(http.MethodGet, "/api/v1/houses/h1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/houses/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchHouse(t *testing.T) {
	h := newHarness(t)
	h.store.Add()

	m := decode(t, h.do(http.MethodPatch, "/api/v1/houses/h1", `{"name":"Bakery","color":"Teal"}`))
	assert.True(t, m.Applied)
	assert.Equal(t, "Bakery", m.House.Name)
	assert.Equal(t, "Teal", m.House.Color)

	rec := h.do(http.MethodPatch, "/api/v1/houses/ghost", `{"name":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	m = decode(t, rec)
	assert.False(t, m.Applied)
	assert.Nil(t, m.House)
	assert.Len(t, m.Houses, 1)

	long := strings.Repeat("x", 500)
	m = decode(t, h.do(http.MethodPatch, "/api/v1/houses/h1", `{"name":"`+long+`","color":""}`))
	assert.True(t, m.Applied)
	assert.Equal(t, long, m.House.Name)
	assert.Equal(t, "", m.House.Color)

	rec = h.do(http.MethodPatch, "/api/v1/houses/h1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPatch, "/api/v1/houses/h1", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decode(t, rec).Error)
}

func TestFloors(t *testing.T) {
	h := newHarness(t)
	h.store.Add()

	m := decode(t, h.do(http.MethodPut, "/api/v1/houses/h1/floors", `{"count":3}`))
	assert.Equal(t, 200, m.House.Height)
	assert.Len(t, m.House.Floors, 3)

	m = decode(t, h.do(http.MethodPut, "/api/v1/houses/h1/floors", `{"count":99}`))
	assert.Len(t, m.House.Floors, domain.MaxFloors)

	rec := h.do(http.MethodPut, "/api/v1/houses/h1/floors", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error, "count failed required")

	m = decode(t, h.do(http.MethodPut, "/api/v1/houses/h1/floors/0", `{"color":"#ABCDEF"}`))
	assert.Equal(t, "#ABCDEF", m.House.Floors[0].Color)
	m = decode(t, h.do(http.MethodPut, "/api/v1/houses/h1/floors/0", `{"color":""}`))
	assert.Equal(t, "", m.House.Floors[0].Color)

	rec = h.do(http.MethodPut, "/api/v1/houses/h1/floors/top", `{"color":"#fff"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPut, "/api/v1/houses/h1/floors/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveThenPurge(t *testing.T) {
	h := newHarness(t)
	h.store.Add()

	rec := h.do(http.MethodDelete, "/api/v1/houses/h1", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	m := decode(t, rec)
	assert.True(t, m.Applied)
	require.Len(t, m.Houses, 1)
	assert.Equal(t, domain.StatusRemoved, m.Houses[0].Status)

	h.sched.Advance(500 * time.Millisecond)
	assert.Empty(t, decode(t, h.do(http.MethodGet, "/api/v1/houses", "")).Houses)

	rec = h.do(http.MethodDelete, "/api/v1/houses/h1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, decode(t, rec).Applied)
}

func TestDuplicateAndReorder(t *testing.T) {
	h := newHarness(t)
	h.store.Add()
	h.store.Add()

	m := decode(t, h.do(http.MethodPost, "/api/v1/houses/h1/duplicate", ""))
	assert.True(t, m.Applied)
	assert.Equal(t, []string{"h1", "h2", "h3"}, ids(m.Houses))

	m = decode(t, h.do(http.MethodPost, "/api/v1/houses/reorder", `{"moved_id":"h3","target_id":"h1"}`))
	assert.True(t, m.Applied)
	assert.Equal(t, []string{"h3", "h1", "h2"}, ids(m.Houses))

	m = decode(t, h.do(http.MethodPost, "/api/v1/houses/reorder", `{"moved_id":"h3","target_id":"h3"}`))
	assert.False(t, m.Applied)
	assert.Equal(t, []string{"h3", "h1", "h2"}, ids(m.Houses))

	rec := h.do(http.MethodPost, "/api/v1/houses/reorder", `{"moved_id":"h3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error, "target_id")
}

func TestPalette(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/palette", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Colors []struct {
			Name string `json:"name"`
			Hex  string `json:"hex"`
		} `json:"colors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Colors, 10)
	assert.Equal(t, "Orange", body.Colors[0].Name)
}

func TestWeather(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/weather?city=Sofia", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"city":"Sofia"`)
	assert.Equal(t, weather.KindCity, h.weather.last.Kind())

	rec = h.do(http.MethodGet, "/api/v1/weather?lat=45.7&lon=4.8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, weather.Coordinates{Lat: 45.7, Lon: 4.8}, h.weather.last.Coordinates())

	rec = h.do(http.MethodGet, "/api/v1/weather", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, weather.KindDeviceLocation, h.weather.last.Kind())

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/weather?city=Gotham", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/weather?lat=abc&lon=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/weather?lat=91&lon=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/weather?lat=10", "").Code)
}

func TestWeatherErrors(t *testing.T) {
	h := newHarness(t)

	h.weather.err = weather.ErrCapabilityUnavailable
	rec := h.do(http.MethodGet, "/api/v1/weather", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	h.weather.err = &weather.SourceUnavailableError{Message: "Weather service is unavailable"}
	rec = h.do(http.MethodGet, "/api/v1/weather?lat=1&lon=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Weather service is unavailable", decode(t, rec).Error)

	unconfigured := httpapi.New(httpapi.Deps{Store: h.store}).Handler()
	rr := httptest.NewRecorder()
	unconfigured.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/weather", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)

	rr = httptest.NewRecorder()
	unconfigured.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/exports", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCities(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/weather/cities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Atlanta")
}

func TestSkylinePNG(t *testing.T) {
	h := newHarness(t)
	h.store.Add()
	rec := h.do(http.MethodGet, "/api/v1/city.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
}

func TestOpenAPIDocument(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/api/v1/houses/{id}/floors/{floorId}:")
}

func TestExports(t *testing.T) {
	h := newHarness(t)
	h.store.Add()

	rec := h.do(http.MethodPost, "/api/v1/exports", `{"formats":["xml"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/exports", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		Export exports.Record `json:"export"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 1, created.Export.Houses)

	require.Eventually(t, func() bool {
		rec := h.do(http.MethodGet, "/api/v1/exports/"+created.Export.ID, "")
		var got struct {
			Export exports.Record `json:"export"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		return got.Export.Status == exports.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/exports/missing", "").Code)
	assert.Contains(t, h.do(http.MethodGet, "/api/v1/exports", "").Body.String(), created.Export.ID)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/api/v1/houses", "")

	rec := h.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","houses":1}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `citybuilder_store_operations_total{op="add",result="applied"} 1`)
	assert.Contains(t, rec.Body.String(), "citybuilder_houses 1")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/houses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
