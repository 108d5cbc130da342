package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Path styles for handing workspace paths to the engine.
const (
	PathStyleWine   = "wine"
	PathStyleNative = "native"
)

// Config holds all stars-host configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	ListenAddr  string `yaml:"listen_addr"`

	// Token the gateway presents on every HTTP request
	ServiceToken string `yaml:"service_token"`

	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Retry   RetryConfig   `yaml:"retry"`

	// How often the scheduler looks for games due for generation
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
}

// EngineConfig configures how the turn generator is launched.
type EngineConfig struct {
	// Command and leading arguments, e.g. ["wine", "C:\\stars\\stars!.exe"]
	Command []string `yaml:"command"`
	// Extra KEY=VALUE pairs added to the inherited environment
	Env     []string      `yaml:"env"`
	Timeout time.Duration `yaml:"timeout"`
	// wine: Z:\tmp\turn-1\ ; native: /tmp/turn-1/
	PathStyle     string `yaml:"path_style"`
	WorkspaceRoot string `yaml:"workspace_root"`
}

// StorageConfig selects where StarsFile bytes live. Bucket set means R2/S3.
type StorageConfig struct {
	LocalDir        string `yaml:"local_dir"`
	Bucket          string `yaml:"bucket"`
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Endpoint        string `yaml:"endpoint"`
}

// RetryConfig bounds GenerationTask retries.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":5200",
		Engine: EngineConfig{
			Command:   []string{"wine", `C:\stars\stars!.exe`},
			Timeout:   5 * time.Minute,
			PathStyle: PathStyleWine,
		},
		Storage: StorageConfig{
			LocalDir: "uploads",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 30 * time.Second,
			MaxBackoff:     10 * time.Minute,
		},
		SchedulerInterval: time.Minute,
	}
}

// Load reads .env (if present), then the YAML file at path (if present), then
// environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("GAME_SERVICE_TOKEN"); v != "" {
		c.ServiceToken = v
	}

	if v := os.Getenv("STARS_ENGINE_COMMAND"); v != "" {
		c.Engine.Command = strings.Fields(v)
	}
	if v := os.Getenv("STARS_ENGINE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid STARS_ENGINE_TIMEOUT %q: %w", v, err)
		}
		c.Engine.Timeout = d
	}
	if v := os.Getenv("STARS_PATH_STYLE"); v != "" {
		c.Engine.PathStyle = v
	}
	if v := os.Getenv("STARS_WORKSPACE_ROOT"); v != "" {
		c.Engine.WorkspaceRoot = v
	}

	if v := os.Getenv("STARS_BLOB_DIR"); v != "" {
		c.Storage.LocalDir = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("CLOUDFLARE_ACCOUNT_ID"); v != "" {
		c.Storage.AccountID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		c.Storage.AccessKeyID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_SECRET"); v != "" {
		c.Storage.AccessKeySecret = v
	}

	if v := os.Getenv("STARS_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STARS_RETRY_ATTEMPTS %q: %w", v, err)
		}
		c.Retry.MaxAttempts = n
	}
	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if len(c.Engine.Command) == 0 {
		return fmt.Errorf("engine command is empty")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine timeout must be positive, got %s", c.Engine.Timeout)
	}
	switch c.Engine.PathStyle {
	case PathStyleWine, PathStyleNative:
	default:
		return fmt.Errorf("unknown path style %q (use %s or %s)", c.Engine.PathStyle, PathStyleWine, PathStyleNative)
	}
	if c.Storage.Bucket == "" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage needs either a bucket or a local directory")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	return nil
}
