package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const (
	FeedDriverPostgres = "postgres"
	FeedDriverRedis    = "redis"

	defaultSessionTTL = 7 * 24 * time.Hour
	defaultLogDir     = "logs"
	defaultServerAddr = ":8080"
	defaultChannel    = "alert_changes"
)

// FeedConfig selects the realtime transport for alert changes
type FeedConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres redis"`
	// Channel names the Redis pub/sub channel. The postgres driver always
	// uses alert_changes, which its trigger publishes on.
	Channel       string `yaml:"channel,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty" validate:"required_if=Driver redis"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDB,omitempty" validate:"min=0"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" validate:"dive,url"`
}

// CampDefaults holds organization-wide defaults for recurring camps
type CampDefaults struct {
	RRule          string `yaml:"rrule,omitempty"`
	MaxOccurrences int    `yaml:"maxOccurrences,omitempty" validate:"omitempty,min=1,max=104"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL  string        `yaml:"databaseURL" validate:"required"`
	Feed         FeedConfig    `yaml:"feed"`
	SessionTTL   time.Duration `yaml:"sessionTTL,omitempty"`
	LogDir       string        `yaml:"logDir,omitempty"`
	Server       ServerConfig  `yaml:"server,omitempty"`
	CampsSheetID string        `yaml:"campsSheetID,omitempty"`
	GmailSender  string        `yaml:"gmailSender,omitempty" validate:"omitempty,email"`
	CampDefaults CampDefaults  `yaml:"campDefaults,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadWithEnv loads the configuration for the given environment.
// env="test" looks for "donornet_config.test.yaml". A .env file in the
// working directory is loaded first so ${VAR} references can resolve.
func LoadWithEnv(env string) (*Config, error) {
	// Missing .env is normal outside development
	_ = godotenv.Load()

	configPath, err := locate("donornet_config", "yaml", env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.Driver == "" {
		cfg.Feed.Driver = FeedDriverPostgres
	}
	if cfg.Feed.Channel == "" {
		cfg.Feed.Channel = defaultChannel
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
	if cfg.CampDefaults.MaxOccurrences == 0 {
		cfg.CampDefaults.MaxOccurrences = 12
	}
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.SessionTTL < 0 {
		return fmt.Errorf("config validation failed: sessionTTL must be positive, got %s", cfg.SessionTTL)
	}

	if cfg.Feed.Driver == FeedDriverPostgres && cfg.Feed.Channel != "" && cfg.Feed.Channel != defaultChannel {
		return fmt.Errorf("config validation failed: feed.channel must be %s with the postgres driver, got %s", defaultChannel, cfg.Feed.Channel)
	}

	if cfg.CampDefaults.RRule != "" {
		if _, err := rrule.StrToROption(cfg.CampDefaults.RRule); err != nil {
			return fmt.Errorf("invalid rrule in campDefaults: %w", err)
		}
	}

	return nil
}

// locate finds "<base>.<env>.<ext>" (or "<base>.<ext>" without an env) in
// the working directory, then in the home directory
func locate(base, ext, env string) (string, error) {
	name := base + "." + ext
	if env != "" {
		name = base + "." + env + "." + ext
	}

	if fileExists(name) {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if home := filepath.Join(homeDir, name); fileExists(home) {
		return home, nil
	}
	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
