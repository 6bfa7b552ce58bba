package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/store"
)

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Driver: config.StorageMemory}},
		{name: "sqlite", cfg: config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(t.TempDir(), "j.db")}},
		{name: "postgres without dsn", cfg: config.StorageConfig{Driver: config.StoragePostgres}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := store.Open(ctx, tc.cfg)
			if tc.wantErr {
				if err == nil {
					s.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if err := s.Ping(ctx); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}
