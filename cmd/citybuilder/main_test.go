package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citybuilder/pkg/domain"
)

func fastEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CITYBUILDER_BLOB_DRIVER", "fs")
	t.Setenv("CITYBUILDER_BLOB_FS_ROOT", dir)
	t.Setenv("CITYBUILDER_SETTLE_DELAY", "20ms")
	t.Setenv("CITYBUILDER_REMOVE_DELAY", "10ms")
	t.Setenv("CITYBUILDER_ANIMATION_DURATION", "30ms")
	t.Setenv("CITYBUILDER_LOG_LEVEL", "error")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func listHouses(t *testing.T) []domain.House {
	t.Helper()
	out, errOut, code := runCLI(t, "houses", "list", "--json")
	require.Equal(t, 0, code, errOut)
	var houses []domain.House
	require.NoError(t, json.Unmarshal([]byte(out), &houses))
	return houses
}

func TestHousesLifecycle(t *testing.T) {
	dir := fastEnv(t)

	out, errOut, code := runCLI(t, "houses", "add")
	require.Equal(t, 0, code, errOut)
	var id string
	require.NoError(t, json.Unmarshal([]byte(out), &id))
	require.NotEmpty(t, id)

	houses := listHouses(t)
	require.Len(t, houses, 1)
	assert.Equal(t, domain.StatusDefault, houses[0].Status)
	assert.Equal(t, 100, houses[0].Height)
	_, err := os.Stat(filepath.Join(dir, "houses"))
	require.NoError(t, err)

	_, errOut, code = runCLI(t, "houses", "floors", id, "3")
	require.Equal(t, 0, code, errOut)
	_, errOut, code = runCLI(t, "houses", "floor-color", id, "0", "#112233")
	require.Equal(t, 0, code, errOut)
	houses = listHouses(t)
	assert.Equal(t, 200, houses[0].Height)
	assert.Equal(t, "#112233", houses[0].Floors[0].Color)

	out, errOut, code = runCLI(t, "houses", "duplicate", id)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"applied": true`)
	houses = listHouses(t)
	require.Len(t, houses, 2)
	copyID := houses[1].ID
	assert.NotEqual(t, id, copyID)

	_, errOut, code = runCLI(t, "houses", "move", copyID, id)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, copyID, listHouses(t)[0].ID)

	_, errOut, code = runCLI(t, "houses", "remove", id)
	require.Equal(t, 0, code, errOut)
	houses = listHouses(t)
	require.Len(t, houses, 1)
	assert.Equal(t, copyID, houses[0].ID)

	table, _, code := runCLI(t, "houses", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, table, "STATUS")
	assert.Contains(t, table, copyID)
}

func TestHousesUnknownIDIsNotAnError(t *testing.T) {
	fastEnv(t)
	out, errOut, code := runCLI(t, "houses", "rename", "ghost", "Haunted")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"applied": false`)
}

func TestHousesRejectsBadCount(t *testing.T) {
	fastEnv(t)
	_, errOut, code := runCLI(t, "houses", "floors", "x", "many")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "floor count")
}

func TestInvalidConfigFails(t *testing.T) {
	fastEnv(t)
	t.Setenv("CITYBUILDER_BLOB_DRIVER", "tape")
	_, errOut, code := runCLI(t, "houses", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid config")
}

func TestRenderWritesPNG(t *testing.T) {
	fastEnv(t)
	_, _, code := runCLI(t, "houses", "add")
	require.Equal(t, 0, code)

	out := filepath.Join(t.TempDir(), "city.png")
	stdout, errOut, code := runCLI(t, "render", "-o", out)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, stdout, "1 houses")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)
}

func TestWeatherCommand(t *testing.T) {
	fastEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/forecast") {
			fmt.Fprint(w, `{"current_weather":{"temperature":9.5,"weathercode":71}}`)
			return
		}
		fmt.Fprint(w, `{"address":{"city":"Lyon"}}`)
	}))
	defer srv.Close()

	cfgPath := filepath.Join(t.TempDir(), "citybuilder.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("weather:\n  forecast_url: %s/v1/forecast\n  geocode_url: %s/reverse\n", srv.URL, srv.URL)), 0o600))

	out, errOut, code := runCLI(t, "--config", cfgPath, "weather", "--city", "lyon")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"city": "Lyon"`)
	assert.Contains(t, out, `"condition": "snow"`)

	_, errOut, code = runCLI(t, "--config", cfgPath, "weather", "--lat", "45.7")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--lat and --lon")

	_, errOut, code = runCLI(t, "--config", cfgPath, "weather")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "capability unavailable")
}
