package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{"default is filesystem", Config{FSRoot: t.TempDir()}, DriverFilesystem},
		{"memory", Config{Driver: DriverMemory}, DriverMemory},
		{"sqlite", Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "city.db")}, DriverSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, closer, err := Open(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer closer.Close()
			if st.Driver() != tt.want {
				t.Fatalf("driver = %s, want %s", st.Driver(), tt.want)
			}
			if _, err := st.Put(ctx, "houses", bytes.NewReader([]byte("[]")), PutOptions{ContentType: "application/json"}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := st.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestOpenRejectsUnknownDriverAndMissingBucket(t *testing.T) {
	ctx := context.Background()
	if _, closer, err := Open(ctx, Config{Driver: "ftp"}); err == nil || closer == nil {
		t.Fatalf("expected unknown driver error with non-nil closer")
	}
	if _, _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
