package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Port != "8080" || cfg.Mongo.Database != "school_records" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute || cfg.Auth.RefreshTokenTTL != 168*time.Hour {
		t.Fatalf("unexpected TTL defaults: %v / %v", cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.DefaultRole != "" {
		t.Fatalf("default role should be empty, got %q", cfg.Auth.DefaultRole)
	}
	if cfg.Auth.IncludePermissions {
		t.Fatalf("permission authorities should be opt-in")
	}
	if cfg.Deletion.Workers != 4 || cfg.Deletion.ScanInterval != time.Hour {
		t.Fatalf("unexpected deletion defaults: %+v", cfg.Deletion)
	}
	if _, err := cfg.Auth.SigningKey(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadWith_Overrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":               "0123456789abcdef0123456789abcdef",
		"ACCESS_TOKEN_TTL":         "5m",
		"AUTH_DEFAULT_ROLE":        "USER",
		"ENV":                      "production",
		"REDIS_DB":                 "3",
		"AUTH_INCLUDE_PERMISSIONS": "true",
	}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	key, err := cfg.Auth.SigningKey()
	if err != nil || len(key) != 32 {
		t.Fatalf("SigningKey: %v (%d bytes)", err, len(key))
	}
	if cfg.Auth.AccessTokenTTL != 5*time.Minute || cfg.Auth.DefaultRole != "USER" {
		t.Fatalf("overrides not applied: %+v", cfg.Auth)
	}
	if !cfg.Auth.IncludePermissions {
		t.Fatalf("AUTH_INCLUDE_PERMISSIONS=true not applied")
	}
	if !cfg.IsProduction() || cfg.Redis.DB != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadWith_BadDuration(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"ACCESS_TOKEN_TTL": "soon",
	}))
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadWith_Bootstrap(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Bootstrap.Enabled() {
		t.Fatalf("bootstrap must be off by default")
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Fatalf("unexpected bcrypt cost %d", cfg.Auth.BcryptCost)
	}

	cfg, err = LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"BOOTSTRAP_ADMIN_USERNAME": "root",
		"BOOTSTRAP_ADMIN_EMAIL":    "root@school.example",
		"BOOTSTRAP_ADMIN_PASSWORD": "change-me-now",
	}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if !cfg.Bootstrap.Enabled() || cfg.Bootstrap.Email != "root@school.example" {
		t.Fatalf("unexpected bootstrap: %+v", cfg.Bootstrap)
	}
}
