package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("services:\n  api_port: 4000\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("store.driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Services.APIPort != 4000 {
		t.Errorf("api_port = %d", cfg.Services.APIPort)
	}
	if cfg.Tracker.Interval != 5*time.Second {
		t.Errorf("tracker.interval = %v", cfg.Tracker.Interval)
	}
	if cfg.Chat.TypingQuietPeriod != 3*time.Second {
		t.Errorf("chat.typing_quiet_period = %v", cfg.Chat.TypingQuietPeriod)
	}
	if cfg.Pricing.CurvatureFactor != 1.3 || cfg.Pricing.DefaultDistanceKM != 3.0 {
		t.Errorf("pricing defaults = %v / %v", cfg.Pricing.CurvatureFactor, cfg.Pricing.DefaultDistanceKM)
	}
	if cfg.JWT.SecretKey == "" {
		t.Error("jwt secret not generated")
	}
}

func TestParseDurations(t *testing.T) {
	cfg, err := Parse([]byte("tracker:\n  interval: 2s\njwt:\n  quote_ttl: 90s\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Tracker.Interval != 2*time.Second || cfg.JWT.QuoteTTL != 90*time.Second {
		t.Errorf("durations = %v, %v", cfg.Tracker.Interval, cfg.JWT.QuoteTTL)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	_, err := Parse([]byte("store:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for postgres without credentials")
	}
	for _, want := range []string{"database.user", "database.password", "rabbitmq.enabled"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	if _, err := Parse([]byte("store:\n  driver: mongo\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadFromFileWithEnvSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "store:\n  driver: postgres\ndatabase:\n  user: ride\n  database: rides\nrabbitmq:\n  enabled: true\n  user: guest\n  password: guest\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RIDEMARKET_DB_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("password = %q", cfg.Database.Password)
	}
}
