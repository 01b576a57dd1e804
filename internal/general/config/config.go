package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// DefaultPath is where services look for their configuration file.
const DefaultPath = "config/config.yaml"

// PathFromEnv returns RIDEMARKET_CONFIG, or DefaultPath when unset.
func PathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("RIDEMARKET_CONFIG")); v != "" {
		return v
	}
	return DefaultPath
}

// Config is the process configuration loaded from YAML.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	SQLite struct {
		Path     string `yaml:"path"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"sqlite"`

	RabbitMQ struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Prefetch int    `yaml:"prefetch"`
	} `yaml:"rabbitmq"`

	Services struct {
		APIPort   int  `yaml:"api_port"`
		DevTokens bool `yaml:"dev_tokens"` // exposes POST /tokens; never in production
	} `yaml:"services"`

	WebSocket struct {
		AuthTimeout       time.Duration `yaml:"auth_timeout"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		LocationPerSecond float64       `yaml:"location_per_second"`
	} `yaml:"websocket"`

	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		AccessTTL time.Duration `yaml:"access_ttl"`
		QuoteTTL  time.Duration `yaml:"quote_ttl"`
	} `yaml:"jwt"`

	Pricing struct {
		RouteURL          string        `yaml:"route_url"`
		GeocodeURL        string        `yaml:"geocode_url"`
		EstimatorURL      string        `yaml:"estimator_url"`
		EstimatorAPIKey   string        `yaml:"estimator_api_key"`
		GeocodeUserAgent  string        `yaml:"geocode_user_agent"`
		CallTimeout       time.Duration `yaml:"call_timeout"`
		CurvatureFactor   float64       `yaml:"curvature_factor"`
		DefaultDistanceKM float64       `yaml:"default_distance_km"`
		Timezone          string        `yaml:"timezone"`
	} `yaml:"pricing"`

	Tracker struct {
		Interval        time.Duration `yaml:"interval"`
		AverageSpeedKMH float64       `yaml:"average_speed_kmh"`
	} `yaml:"tracker"`

	Chat struct {
		TypingQuietPeriod time.Duration `yaml:"typing_quiet_period"`
	} `yaml:"chat"`

	Notifications struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"notifications"`

	Bootstrap struct {
		SuperOperatorID   string `yaml:"super_operator_id"`
		SuperOperatorName string `yaml:"super_operator_name"`
	} `yaml:"bootstrap"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// LoadFromFile loads config from a YAML file, applies environment overrides
// and defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes the same way LoadFromFile does.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvironment(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated in-memory configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyEnvironment lets secrets come from the environment instead of the file.
func applyEnvironment(cfg *Config) {
	if v := os.Getenv("RIDEMARKET_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RIDEMARKET_RABBITMQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v := os.Getenv("RIDEMARKET_JWT_SECRET"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("RIDEMARKET_ESTIMATOR_API_KEY"); v != "" {
		cfg.Pricing.EstimatorAPIKey = v
	}
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// SQLite
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "ridemarket.db"
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = 16
	}

	// Services
	if cfg.Services.APIPort == 0 {
		cfg.Services.APIPort = 3000
	}

	// WebSocket
	if cfg.WebSocket.AuthTimeout == 0 {
		cfg.WebSocket.AuthTimeout = 5 * time.Second
	}
	if cfg.WebSocket.PingInterval == 0 {
		cfg.WebSocket.PingInterval = 30 * time.Second
	}
	if cfg.WebSocket.LocationPerSecond == 0 {
		cfg.WebSocket.LocationPerSecond = 1
	}

	// JWT
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 2 * time.Hour
	}
	if cfg.JWT.QuoteTTL == 0 {
		cfg.JWT.QuoteTTL = 5 * time.Minute
	}

	// Pricing
	if cfg.Pricing.CallTimeout == 0 {
		cfg.Pricing.CallTimeout = 4 * time.Second
	}
	if cfg.Pricing.CurvatureFactor == 0 {
		cfg.Pricing.CurvatureFactor = 1.3
	}
	if cfg.Pricing.DefaultDistanceKM == 0 {
		cfg.Pricing.DefaultDistanceKM = 3.0
	}
	if cfg.Pricing.GeocodeUserAgent == "" {
		cfg.Pricing.GeocodeUserAgent = "ridemarket/1.0"
	}
	if cfg.Pricing.Timezone == "" {
		cfg.Pricing.Timezone = "Local"
	}

	// Tracker
	if cfg.Tracker.Interval == 0 {
		cfg.Tracker.Interval = 5 * time.Second
	}
	if cfg.Tracker.AverageSpeedKMH == 0 {
		cfg.Tracker.AverageSpeedKMH = 30
	}

	// Chat
	if cfg.Chat.TypingQuietPeriod == 0 {
		cfg.Chat.TypingQuietPeriod = 3 * time.Second
	}

	if cfg.Notifications.QueueSize == 0 {
		cfg.Notifications.QueueSize = 256
	}

	if cfg.Bootstrap.SuperOperatorName == "" {
		cfg.Bootstrap.SuperOperatorName = "Operator"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			problems = append(problems, "database.port must be in 1..65535")
		}
		if c.Database.User == "" {
			problems = append(problems, "database.user is required")
		}
		if c.Database.Password == "" {
			problems = append(problems, "database.password is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.database is required")
		}
	default:
		problems = append(problems, "store.driver must be one of memory, postgres, sqlite")
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
			problems = append(problems, "rabbitmq.port must be in 1..65535")
		}
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required")
		}
	}
	if c.Store.Driver == StorePostgres && !c.RabbitMQ.Enabled {
		problems = append(problems, "rabbitmq.enabled is required with the postgres store (change relay)")
	}

	if c.Services.APIPort <= 0 || c.Services.APIPort > 65535 {
		problems = append(problems, "services.api_port must be in 1..65535")
	}
	if c.Pricing.CurvatureFactor < 1 {
		problems = append(problems, "pricing.curvature_factor must be >= 1")
	}
	if c.Pricing.DefaultDistanceKM <= 0 {
		problems = append(problems, "pricing.default_distance_km must be > 0")
	}
	if _, err := time.LoadLocation(c.Pricing.Timezone); err != nil {
		problems = append(problems, "pricing.timezone is not a known location")
	}
	if c.Tracker.AverageSpeedKMH <= 0 {
		problems = append(problems, "tracker.average_speed_kmh must be > 0")
	}
	if c.WebSocket.LocationPerSecond <= 0 {
		problems = append(problems, "websocket.location_per_second must be > 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the pricing timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Pricing.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
