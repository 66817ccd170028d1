package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/betsync/go/internal/round"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration. Values come from the defaults, then
// the optional YAML file, then the environment.
type Config struct {
	WSPort       int    `yaml:"ws_port"`
	HTTPPort     int    `yaml:"http_port"`
	VideoDir     string `yaml:"video_dir"`
	PublicDir    string `yaml:"public_dir"`
	MediaBaseURL string `yaml:"media_base_url"`
	LogLevel     string `yaml:"log_level"`

	Round RoundConfig `yaml:"round"`
	NATS  NATSConfig  `yaml:"nats"`

	AllowedOrigins []string `yaml:"allowed_origins"`
	BetRateLimit   float64  `yaml:"bet_rate_limit"`
	BetRateBurst   int      `yaml:"bet_rate_burst"`
}

// RoundConfig holds the round timings in milliseconds
type RoundConfig struct {
	BettingDuration int `yaml:"betting_duration"`
	RoundDuration   int `yaml:"round_duration"`
	Gap             int `yaml:"gap"`
	StartupDelay    int `yaml:"startup_delay"`
	MediaRetryDelay int `yaml:"media_retry_delay"`
	SyncInterval    int `yaml:"sync_interval"`
}

// NATSConfig enables lifecycle publishing when URL is set
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

func Default() Config {
	return Config{
		WSPort:    8080,
		HTTPPort:  8081,
		VideoDir:  "./videos",
		PublicDir: "./public",
		LogLevel:  "info",
		Round: RoundConfig{
			BettingDuration: 19000,
			RoundDuration:   30000,
			Gap:             5000,
			StartupDelay:    3000,
			MediaRetryDelay: 5000,
			SyncInterval:    1000,
		},
		NATS: NATSConfig{
			SubjectPrefix: "betsync.rounds",
		},
		AllowedOrigins: []string{"*"},
		BetRateLimit:   5,
		BetRateBurst:   10,
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = fmt.Sprintf("http://localhost:%d/video/", cfg.HTTPPort)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.WSPort = getEnvAsInt("WS_PORT", c.WSPort)
	c.HTTPPort = getEnvAsInt("HTTP_PORT", c.HTTPPort)
	c.VideoDir = getEnv("VIDEO_DIR", c.VideoDir)
	c.PublicDir = getEnv("PUBLIC_DIR", c.PublicDir)
	c.MediaBaseURL = getEnv("MEDIA_BASE_URL", c.MediaBaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Round.BettingDuration = getEnvAsInt("BETTING_DURATION", c.Round.BettingDuration)
	c.Round.RoundDuration = getEnvAsInt("ROUND_DURATION", c.Round.RoundDuration)
	c.Round.Gap = getEnvAsInt("ROUND_GAP", c.Round.Gap)
	c.Round.StartupDelay = getEnvAsInt("STARTUP_DELAY", c.Round.StartupDelay)
	c.Round.MediaRetryDelay = getEnvAsInt("MEDIA_RETRY_DELAY", c.Round.MediaRetryDelay)
	c.Round.SyncInterval = getEnvAsInt("SYNC_INTERVAL", c.Round.SyncInterval)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.BetRateLimit = getEnvAsFloat("BET_RATE_LIMIT", c.BetRateLimit)
	c.BetRateBurst = getEnvAsInt("BET_RATE_BURST", c.BetRateBurst)
}

func (c Config) Validate() error {
	for name, port := range map[string]int{"ws_port": c.WSPort, "http_port": c.HTTPPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalid, name, port)
		}
	}
	if c.WSPort == c.HTTPPort {
		return fmt.Errorf("%w: ws_port and http_port must differ", ErrInvalid)
	}
	if c.VideoDir == "" {
		return fmt.Errorf("%w: video_dir is required", ErrInvalid)
	}
	if c.BetRateLimit <= 0 || c.BetRateBurst < 1 {
		return fmt.Errorf("%w: bet rate limit must be positive", ErrInvalid)
	}
	if err := c.RoundTimings().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RoundTimings converts the millisecond settings for the game
func (c Config) RoundTimings() round.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return round.Config{
		BettingDuration: ms(c.Round.BettingDuration),
		RoundDuration:   ms(c.Round.RoundDuration),
		Gap:             ms(c.Round.Gap),
		StartupDelay:    ms(c.Round.StartupDelay),
		MediaRetryDelay: ms(c.Round.MediaRetryDelay),
		SyncInterval:    ms(c.Round.SyncInterval),
	}
}
