package config

import (
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	HTTPServer HTTPServer
	Redis      Redis
	Provider   Provider
	Cache      Cache
	Resilience Resilience
	Conversion Conversion
	Auth       Auth
	RateLimit  RateLimit
	Warmer     Warmer
	Log        Log
}

type HTTPServer struct {
	Port        string        `env:"HTTP_PORT" env-default:"8082"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"2m"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	Prefix   string `env:"REDIS_PREFIX" env-default:"converter:"`
}

type Provider struct {
	Name    string        `env:"PROVIDER_NAME" env-default:"frankfurter"`
	URL     string        `env:"PROVIDER_URL" env-default:"https://api.frankfurter.app"`
	Timeout time.Duration `env:"PROVIDER_TIMEOUT" env-default:"10s"`
}

type Cache struct {
	LatestTTL  time.Duration `env:"CACHE_LATEST_TTL" env-default:"10m"`
	ConvertTTL time.Duration `env:"CACHE_CONVERT_TTL" env-default:"10m"`
	HistoryTTL time.Duration `env:"CACHE_HISTORY_TTL" env-default:"1h"`
}

type Resilience struct {
	MaxRetries       int           `env:"RETRY_MAX" env-default:"3"`
	InitialBackoff   time.Duration `env:"RETRY_INITIAL_BACKOFF" env-default:"200ms"`
	MaxBackoff       time.Duration `env:"RETRY_MAX_BACKOFF" env-default:"5s"`
	Multiplier       float64       `env:"RETRY_MULTIPLIER" env-default:"2"`
	Jitter           float64       `env:"RETRY_JITTER" env-default:"0.5"`
	FailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	Cooldown         time.Duration `env:"BREAKER_COOLDOWN" env-default:"30s"`
}

type Conversion struct {
	ExcludedCurrencies string `env:"EXCLUDED_CURRENCIES" env-default:"TRY"`
}

type Auth struct {
	Secret  string        `env:"JWT_SECRET" env-required:"true"`
	Issuer  string        `env:"JWT_ISSUER" env-default:"currency-converter"`
	Expiry  time.Duration `env:"JWT_EXPIRY" env-default:"1h"`
	Users   string        `env:"AUTH_USERS" env-default:""`
	Enabled bool          `env:"AUTH_ENABLED" env-default:"true"`
}

type RateLimit struct {
	Rate  string `env:"RATE_LIMIT" env-default:"100-M"`
	Store string `env:"RATE_LIMIT_STORE" env-default:"memory"`
}

type Warmer struct {
	Bases    string        `env:"WARMER_BASES" env-default:""`
	Interval time.Duration `env:"WARMER_INTERVAL" env-default:"5m"`
}

type Log struct {
	Level string `env:"LOG_LEVEL" env-default:"debug"`
	File  string `env:"LOG_FILE" env-default:""`
}

func NewConfig() *Config {
	cfg, err := Load(".env")
	if err != nil {
		log.Fatal("Error reading env: ", err)
	}

	return cfg
}

func Load(envFile string) (*Config, error) {
	const op = "config.Load"

	cfg := &Config{}

	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return cfg, nil
}

// Split turns a comma separated env value into trimmed, non-empty items.
func Split(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

func (c *Config) ExcludedCurrencies() []string {
	codes := Split(c.Conversion.ExcludedCurrencies)
	for i := range codes {
		codes[i] = strings.ToUpper(codes[i])
	}
	return codes
}

func (c *Config) WarmerBases() []string {
	bases := Split(c.Warmer.Bases)
	for i := range bases {
		bases[i] = strings.ToUpper(bases[i])
	}
	return bases
}
