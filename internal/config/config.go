// Package config loads citybuilder settings from defaults, an optional YAML
// file and CITYBUILDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"citybuilder/internal/blob"
	"citybuilder/internal/core"
	"citybuilder/internal/persistence"
	"citybuilder/internal/weather"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CITYBUILDER_"

// Config is the complete runtime configuration.
type Config struct {
	ListenAddr  string        `yaml:"listen_addr" validate:"required,hostname_port"`
	Log         LogConfig     `yaml:"log"`
	Blob        BlobConfig    `yaml:"blob"`
	StateKey    string        `yaml:"state_key" validate:"required"`
	Timings     TimingsConfig `yaml:"timings"`
	Weather     WeatherConfig `yaml:"weather"`
	CORSOrigins []string      `yaml:"cors_origins" validate:"dive,required"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// BlobConfig selects the backend holding the collection and exports.
type BlobConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory fs s3 sqlite postgres"`
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket" validate:"required_if=Driver s3"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint" validate:"omitempty,url"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type TimingsConfig struct {
	Settle            time.Duration `yaml:"settle"`
	Remove            time.Duration `yaml:"remove"`
	Animation         time.Duration `yaml:"animation"`
	ResumeTransitions bool          `yaml:"resume_transitions"`
}

type WeatherConfig struct {
	DeviceLat   *float64      `yaml:"device_lat" validate:"omitempty,latitude"`
	DeviceLon   *float64      `yaml:"device_lon" validate:"omitempty,longitude"`
	CacheTTL    time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	CacheSize   int           `yaml:"cache_size" validate:"gte=0"`
	Refresh     string        `yaml:"refresh"`
	ForecastURL string        `yaml:"forecast_url" validate:"omitempty,url"`
	GeocodeURL  string        `yaml:"geocode_url" validate:"omitempty,url"`
}

// Default returns the built-in configuration.
func Default() Config {
	t := core.DefaultTimings()
	return Config{
		ListenAddr: "127.0.0.1:8080",
		Log:        LogConfig{Level: "info", Format: "json"},
		Blob: BlobConfig{
			Driver:     string(blob.DriverFilesystem),
			FSRoot:     "./citydata",
			S3Region:   "us-east-1",
			SQLitePath: "citybuilder.db",
		},
		StateKey: persistence.DefaultKey,
		Timings:  TimingsConfig{Settle: t.Settle, Remove: t.Remove, Animation: t.Animation},
		Weather: WeatherConfig{
			CacheTTL:    weather.DefaultCacheTTL,
			CacheSize:   weather.DefaultCacheSize,
			Refresh:     "@every 15m",
			ForecastURL: weather.DefaultForecastURL,
			GeocodeURL:  weather.DefaultGeocodeURL,
		},
	}
}

// Load layers the YAML file at path (skipped when empty) and then the
// environment over Default. lookup is usually os.LookupEnv. The result is
// not validated so that callers can apply flag overrides first.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CITYBUILDER_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	float := func(name string, dst **float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = &f
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Blob.S3Bucket)
	str("BLOB_S3_REGION", &c.Blob.S3Region)
	str("BLOB_S3_ENDPOINT", &c.Blob.S3Endpoint)
	boolean("BLOB_S3_PATH_STYLE", &c.Blob.S3PathStyle)
	str("SQLITE_PATH", &c.Blob.SQLitePath)
	str("POSTGRES_DSN", &c.Blob.PostgresDSN)
	str("STATE_KEY", &c.StateKey)
	dur("SETTLE_DELAY", &c.Timings.Settle)
	dur("REMOVE_DELAY", &c.Timings.Remove)
	dur("ANIMATION_DURATION", &c.Timings.Animation)
	boolean("RESUME_TRANSITIONS", &c.Timings.ResumeTransitions)
	float("DEVICE_LAT", &c.Weather.DeviceLat)
	float("DEVICE_LON", &c.Weather.DeviceLon)
	dur("WEATHER_CACHE_TTL", &c.Weather.CacheTTL)
	str("WEATHER_REFRESH", &c.Weather.Refresh)
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks field constraints, the lifecycle timings and the weather
// refresh schedule. An empty schedule disables refreshing.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Weather.DeviceLat == nil) != (c.Weather.DeviceLon == nil) {
		return errors.New("invalid config: device latitude and longitude must be set together")
	}
	if err := c.StoreTimings().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Weather.Refresh != "" {
		if _, err := cron.ParseStandard(c.Weather.Refresh); err != nil {
			return fmt.Errorf("invalid config: weather refresh %q: %w", c.Weather.Refresh, err)
		}
	}
	return nil
}

// StoreTimings converts the timing settings for core.WithTimings.
func (c Config) StoreTimings() core.Timings {
	return core.Timings{Settle: c.Timings.Settle, Remove: c.Timings.Remove, Animation: c.Timings.Animation}
}

// BlobOpenConfig converts the backend settings for blob.Open.
func (c Config) BlobOpenConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:    c.Blob.S3Region,
			Bucket:    c.Blob.S3Bucket,
			Endpoint:  c.Blob.S3Endpoint,
			PathStyle: c.Blob.S3PathStyle,
		},
		SQLitePath:  c.Blob.SQLitePath,
		PostgresDSN: c.Blob.PostgresDSN,
	}
}

// Locator returns the device locator described by the weather settings.
func (c Config) Locator() weather.Locator {
	if c.Weather.DeviceLat == nil || c.Weather.DeviceLon == nil {
		return weather.NoLocator{}
	}
	return weather.StaticLocator{Coordinates: weather.Coordinates{Lat: *c.Weather.DeviceLat, Lon: *c.Weather.DeviceLon}}
}
