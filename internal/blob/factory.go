package blob

import (
	"context"
	"fmt"
	"io"

	"citybuilder/internal/infra/blob/fs"
	"citybuilder/internal/infra/blob/memory"
	"citybuilder/internal/infra/blob/postgres"
	infraS3 "citybuilder/internal/infra/blob/s3"
	"citybuilder/internal/infra/blob/sqlite"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Config selects and parameterizes a backend.
type Config struct {
	Driver      Driver
	FSRoot      string
	S3          S3Config
	SQLitePath  string
	PostgresDSN string
}

// Open constructs the configured Store. The returned closer releases any
// database handle held by the backend and is never nil.
func Open(ctx context.Context, cfg Config) (Store, io.Closer, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		st, err := fs.New(cfg.FSRoot)
		return st, nopCloser{}, err
	case DriverMemory:
		return memory.New(), nopCloser{}, nil
	case DriverS3:
		st, err := infraS3.New(ctx, cfg.S3)
		return st, nopCloser{}, err
	case DriverSQLite:
		st, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return st, st, nil
	case DriverPostgres:
		st, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return st, st, nil
	default:
		return nil, nopCloser{}, fmt.Errorf("unknown blob driver %q", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
