package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPoolSettingsFromEnv(t *testing.T) {
	tests := []struct {
		name        string
		maxOpen     string
		lifetime    string
		wantOpen    int
		wantIdle    int
		wantLifeDur time.Duration
	}{
		{name: "defaults", wantOpen: defaultMaxOpenConns, wantIdle: defaultMaxIdleConns, wantLifeDur: defaultConnMaxLifetime},
		{name: "explicit", maxOpen: "4", lifetime: "45s", wantOpen: 4, wantIdle: defaultMaxIdleConns, wantLifeDur: 45 * time.Second},
		{name: "bare seconds", lifetime: "30", wantOpen: defaultMaxOpenConns, wantIdle: defaultMaxIdleConns, wantLifeDur: 30 * time.Second},
		{name: "invalid values fall back", maxOpen: "bad", lifetime: "soon", wantOpen: defaultMaxOpenConns, wantIdle: defaultMaxIdleConns, wantLifeDur: defaultConnMaxLifetime},
		{name: "non-positive falls back", maxOpen: "0", lifetime: "-5s", wantOpen: defaultMaxOpenConns, wantIdle: defaultMaxIdleConns, wantLifeDur: defaultConnMaxLifetime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(maxOpenConnsEnvKey, tt.maxOpen)
			t.Setenv(connMaxLifetimeEnvKey, tt.lifetime)
			got := poolSettingsFromEnv()
			if got.maxOpen != tt.wantOpen || got.maxIdle != tt.wantIdle || got.maxLifetime != tt.wantLifeDur {
				t.Fatalf("unexpected pool settings %+v", got)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	if _, err := sqliteDSN("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
	dsn, err := sqliteDSN("/tmp/vault.db")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:///tmp/vault.db?") || !strings.Contains(dsn, "foreign_keys") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestOpenCreatesVaultDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "vault.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	plan, err := st.MigrationPlan()
	if err != nil {
		t.Fatalf("migration plan: %v", err)
	}
	if len(plan.Pending) != 0 || plan.CurrentVersion != plan.AvailableVersion {
		t.Fatalf("expected fully migrated vault, got %+v", plan)
	}
}
