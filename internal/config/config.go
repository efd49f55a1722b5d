package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cuisinezen/governor/internal/ratelimit"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cache     CacheConfig     `json:"cache"`
	Cost      CostConfig      `json:"cost"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`

	// Secrets come from the environment, never from the config file.
	JWTSecret      string `json:"-"`
	AdminTokenHash string `json:"-"` // bcrypt hash of the admin token
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	DSN string `json:"-"`
}

type RateLimitConfig struct {
	GlobalRPS      float64                 `json:"global_rps"`
	MaxIdentifiers int                     `json:"max_identifiers"`
	Policies       map[string]PolicyConfig `json:"policies"`
}

type PolicyConfig struct {
	Points     int `json:"points"`
	WindowSecs int `json:"window_seconds"`
	BlockSecs  int `json:"block_seconds"`
}

type CacheConfig struct {
	DefaultTTLSecs int `json:"default_ttl_seconds"`
	LockTTLSecs    int `json:"lock_ttl_seconds"`
	MaxWaitSecs    int `json:"max_wait_seconds"`
}

type CostConfig struct {
	InstanceMemoryMB float64 `json:"instance_memory_mb"`
	DailyBudgetUSD   float64 `json:"daily_budget_usd"`
	RetentionDays    int     `json:"retention_days"`
}

// Load reads the JSON config file and applies environment overrides. A
// missing file yields the defaults, so the service boots with nothing but
// env vars set.
func Load(path string) (*Config, error) {
	config := defaults()

	file, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(config)
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		RateLimit: RateLimitConfig{
			MaxIdentifiers: 10000,
		},
		Cache: CacheConfig{
			DefaultTTLSecs: 300,
			LockTTLSecs:    30,
			MaxWaitSecs:    10,
		},
		Cost: CostConfig{
			InstanceMemoryMB: 256,
			DailyBudgetUSD:   5,
			RetentionDays:    30,
		},
	}
}

func applyEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Server.Environment = env
	}
	config.Server.JWTSecret = os.Getenv("JWT_SECRET")
	config.Server.AdminTokenHash = os.Getenv("ADMIN_TOKEN_HASH")
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		config.Redis.Port = port
	}
	config.Postgres.DSN = os.Getenv("POSTGRES_DSN")
}

// Policies merges configured per-class overrides onto the stock defaults.
func (c *Config) Policies() map[ratelimit.OperationClass]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()

	for name, pc := range c.RateLimit.Policies {
		policy := ratelimit.Policy{
			Points:        pc.Points,
			Window:        time.Duration(pc.WindowSecs) * time.Second,
			BlockDuration: time.Duration(pc.BlockSecs) * time.Second,
		}
		policies[ratelimit.OperationClass(name)] = policy
	}

	return policies
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLSecs) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Cache.LockTTLSecs) * time.Second
}

func (c *Config) LockMaxWait() time.Duration {
	return time.Duration(c.Cache.MaxWaitSecs) * time.Second
}
