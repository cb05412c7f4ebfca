package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Store: StoreConfig{Driver: DriverDynamoDB, Table: "catalog"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreConfig
		wantErr string
	}{
		{"dynamodb without table", StoreConfig{Driver: DriverDynamoDB}, "store.table is required"},
		{"redis without addrs", StoreConfig{Driver: DriverRedis}, "store.addrs is required"},
		{"unknown driver", StoreConfig{Driver: "valkey"}, `got "valkey"`},
		{"memory", StoreConfig{Driver: DriverMemory}, ""},
		{"redis", StoreConfig{Driver: DriverRedis, Addrs: []string{"localhost:6379"}}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{HTTP: HTTPConfig{Port: 8080}, Store: tc.store}
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_RedisFeed(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Redis = RedisFeedConfig{Enabled: true, Addrs: []string{"localhost:6379"}}

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "feed.redis.stream") {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestValidate_AmbiguousLayout(t *testing.T) {
	cfg := validConfig()
	cfg.Layout.TagPrefix = "item#"

	if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "layout:") {
		t.Fatalf("expected layout error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		Store: StoreConfig{Addrs: []string{"redis:6379"}},
		Feed:  FeedConfig{Redis: RedisFeedConfig{Enabled: true, Stream: "catalog-changes"}},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("ReadTimeoutSec = %d, want 10", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("WriteTimeoutSec = %d, want 30", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Store.Driver != DriverDynamoDB {
		t.Errorf("Driver = %q, want %q", cfg.Store.Driver, DriverDynamoDB)
	}
	if cfg.Store.Key != "omni" {
		t.Errorf("Key = %q, want omni", cfg.Store.Key)
	}
	if cfg.Maintainer.MaxConflictRetries != 5 {
		t.Errorf("MaxConflictRetries = %d, want 5", cfg.Maintainer.MaxConflictRetries)
	}
	r := cfg.Feed.Redis
	if len(r.Addrs) != 1 || r.Addrs[0] != "redis:6379" {
		t.Errorf("feed addrs = %v, want store addrs", r.Addrs)
	}
	if r.Group != "omniview" || r.Count != 50 || r.BlockMS != 5000 {
		t.Errorf("feed defaults = %+v", r)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Store:      StoreConfig{Driver: DriverRedis, Key: "view"},
		Maintainer: MaintainerConfig{MaxConflictRetries: 2},
	}
	cfg.ApplyDefaults()

	if cfg.Store.Driver != DriverRedis || cfg.Store.Key != "view" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Maintainer.MaxConflictRetries != 2 {
		t.Errorf("MaxConflictRetries = %d, want 2", cfg.Maintainer.MaxConflictRetries)
	}
}

func TestLayoutConfig_Merge(t *testing.T) {
	l := LayoutConfig{ItemPrefix: "book#"}.Layout()
	if l.ItemPrefix != "book#" || l.TagPrefix != "tag#" || l.AggregatePK != "omni" {
		t.Errorf("layout = %+v", l)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("OMNI_TABLE", "catalog-prod")

	got := string(expandEnvVars([]byte("table: ${OMNI_TABLE}\nregion: ${OMNI_REGION_UNSET:-eu-west-1}\n")))
	want := "table: catalog-prod\nregion: eu-west-1\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yml := `
http:
  port: 9090
store:
  driver: memory
layout:
  item_prefix: "book#"
`
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Store.Driver != DriverMemory {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Layout.Layout().ItemPrefix != "book#" {
		t.Errorf("layout = %+v", cfg.Layout)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TABLE_NAME", "catalog")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_CONFLICT_RETRIES", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != DriverDynamoDB || cfg.Store.Table != "catalog" || cfg.Store.Region != "eu-central-1" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Maintainer.MaxConflictRetries != 3 {
		t.Errorf("MaxConflictRetries = %d, want 3", cfg.Maintainer.MaxConflictRetries)
	}
}

func TestFromEnv_MissingTable(t *testing.T) {
	t.Setenv("TABLE_NAME", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without TABLE_NAME")
	}
}
