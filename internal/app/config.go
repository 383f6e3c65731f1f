package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultBaseURL = "http://localhost:8080"

// Config holds the complete client configuration, loadable from environment
// variables (ORDERDESK_ prefix), a .env file or YAML config files.
type Config struct {
	BaseURL      string        `default:"http://localhost:8080" usage:"Order backend base URL (ORDERDESK_BASE_URL or API_URL)" validate:"required,url"`
	AuthPrefix   string        `default:"/auth" usage:"Path prefix of endpoints that take no bearer token" validate:"required,startswith=/"`
	TokenFile    string        `usage:"Credential file (default ~/.config/orderdesk/credentials.json)"`
	Timeout      time.Duration `default:"10s" usage:"Per-request timeout" validate:"gte=0"`
	PollInterval time.Duration `default:"5s" usage:"Refresh interval of the watch command" validate:"gt=0"`
	ReportDir    string        `default:"." usage:"Directory PDF reports are saved to" validate:"required"`
	ReportSpec   string        `default:"0 18 * * *" usage:"Cron schedule of the daily sales report download"`
	RateLimit    RateLimitConfig
	Redis        RedisConfig
}

// RedisConfig selects a Redis credential store shared between client
// processes. An empty Addr keeps credentials in TokenFile.
type RedisConfig struct {
	Addr string        `default:"" usage:"Redis address (host:port) of the shared session store" validate:"omitempty,hostname_port"`
	Key  string        `default:"orderdesk:session" usage:"Redis key holding the session credentials" validate:"required"`
	TTL  time.Duration `default:"0s" usage:"Session expiry after login, zero keeps it until logout" validate:"gte=0"`
}

// RateLimitConfig controls the client-side sliding window rate limiter.
// A zero Max disables it.
type RateLimitConfig struct {
	Max    int           `default:"0"  usage:"Max requests per window" validate:"gte=0"`
	Window time.Duration `default:"1s" usage:"Rate limit window duration" validate:"gte=0"`
}

var validate = validator.New()

// LoadConfig loads configuration from an optional .env file, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	files := []string{"orderdesk.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "orderdesk", "config.yaml"))
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERDESK",
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// applyPlatformDefaults maps the conventional API_URL variable used by the
// web client build to BaseURL when it was not set explicitly.
func (c *Config) applyPlatformDefaults() {
	if c.BaseURL == defaultBaseURL && os.Getenv("ORDERDESK_BASE_URL") == "" {
		if v := os.Getenv("API_URL"); v != "" {
			c.BaseURL = v
		}
	}
}

// tokenFile returns the credential file path.
func (c *Config) tokenFile() (string, error) {
	if c.TokenFile != "" {
		return c.TokenFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config dir")
	}
	return filepath.Join(dir, "orderdesk", "credentials.json"), nil
}
