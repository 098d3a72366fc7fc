package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Database   DatabaseConfig      `yaml:"database"`
	Redis      RedisConfig         `yaml:"redis"`
	Telemetry  TelemetryConfig     `yaml:"telemetry"`
	Moderation ModerationConfig    `yaml:"moderation"`
	Managed    ManagedVisionConfig `yaml:"managed_vision"`
	Policy     PolicyConfig        `yaml:"policy"`
	Cache      CacheConfig         `yaml:"cache"`
	Audit      AuditConfig         `yaml:"audit"`
	Quota      QuotaConfig         `yaml:"quota"`
	Routing    RoutingConfig       `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// ModerationConfig is the process-wide engine configuration. It is read once
// at start and never mutated afterwards.
type ModerationConfig struct {
	SoftThreshold float64 `yaml:"soft_threshold"`
	HardThreshold float64 `yaml:"hard_threshold"`

	TextModelEnabled   bool `yaml:"text_model_enabled"`
	VisionModelEnabled bool `yaml:"vision_model_enabled"`

	SkipTextModelWithoutLexicalHit bool `yaml:"skip_text_model_without_lexical_hit"`
	SkipVisionUnlessManagedFlagged bool `yaml:"skip_vision_unless_managed_flagged"`

	MaxImagesPerVisionCall int           `yaml:"max_images_per_vision_call"`
	MaxTokens              int           `yaml:"max_tokens"`
	FailsafeEnabled        bool          `yaml:"failsafe_enabled"`

	// CallTimeout bounds one remote stage: a text classification, every
	// encoding attempt of a vision batch, or a managed label pass.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// Timeout is the deadline for a whole request.
	Timeout time.Duration `yaml:"timeout"`
}

type ManagedVisionConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Region          string  `yaml:"region"`
	Bucket          string  `yaml:"bucket"`
	AccessKeyID     string  `yaml:"access_key_id"`
	SecretAccessKey string  `yaml:"secret_access_key"`
	MinConfidence   float64 `yaml:"min_confidence"`
	MaxKeys         int     `yaml:"max_keys"`
	Concurrency     int     `yaml:"concurrency"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type CacheConfig struct {
	// Backend is one of "redis", "memory", or "none".
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// QuotaConfig caps upstream calls per signal source per window, and
// moderation requests per client per minute.
type QuotaConfig struct {
	Enabled bool           `yaml:"enabled"`
	Window  time.Duration  `yaml:"window"`
	Limits  map[string]int `yaml:"limits"`
	// ClientRPM limits requests per client; 0 disables the client limit.
	ClientRPM int `yaml:"client_rpm"`
}

type RoutingConfig struct {
	MaxIdleConnsPerHost int                  `yaml:"max_idle_conns_per_host"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "moderation",
			User:            "moderation",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "json",
			TraceSampleRate: 0.1,
		},
		Moderation: ModerationConfig{
			SoftThreshold:          0.60,
			HardThreshold:          0.85,
			TextModelEnabled:       true,
			VisionModelEnabled:     true,
			MaxImagesPerVisionCall: 6,
			MaxTokens:              300,
			FailsafeEnabled:        true,
			CallTimeout:            8 * time.Second,
			Timeout:                20 * time.Second,
		},
		Managed: ManagedVisionConfig{
			MinConfidence: 70,
			MaxKeys:       6,
			Concurrency:   3,
		},
		Policy: PolicyConfig{
			BundlePath:        "/etc/moderator/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     10 * time.Minute,
			Size:    10000,
		},
		Quota: QuotaConfig{
			Window: time.Minute,
		},
		Routing: RoutingConfig{
			MaxIdleConnsPerHost: 16,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
	}
}

// Validate checks values the engine cannot run without.
func (c *Config) Validate() error {
	m := c.Moderation
	if m.SoftThreshold <= 0 || m.HardThreshold > 1 || m.SoftThreshold > m.HardThreshold {
		return fmt.Errorf("moderation thresholds must satisfy 0 < soft <= hard <= 1, got soft=%.2f hard=%.2f", m.SoftThreshold, m.HardThreshold)
	}
	if m.MaxImagesPerVisionCall <= 0 {
		return fmt.Errorf("moderation.max_images_per_vision_call must be positive")
	}
	if m.CallTimeout <= 0 {
		return fmt.Errorf("moderation.call_timeout must be positive")
	}
	// Managed and vision stages may run back to back.
	if m.Timeout <= 2*m.CallTimeout {
		return fmt.Errorf("moderation.timeout (%s) must exceed twice moderation.call_timeout (%s)", m.Timeout, m.CallTimeout)
	}
	switch c.Cache.Backend {
	case "redis", "memory", "none", "":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Policy.Enabled && c.Policy.BundlePath == "" {
		return fmt.Errorf("policy.bundle_path is required when policy is enabled")
	}
	return nil
}
