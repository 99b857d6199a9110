package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 16182
	DefaultTransitlandURL  = "https://transit.land/api/v2/rest"
	DefaultAPIKeyEnv       = "TRANSITLAND_API_KEY"
	DefaultTimeoutMS       = 10000
	DefaultLODESURL        = "https://lehd.ces.census.gov/data/lodes"
	DefaultLODESVersion    = "LODES8"
	DefaultStorageRoot     = "data"
	DefaultConcurrency     = 2
	DefaultIntervalMinutes = 1440
	DefaultArchiveMaxDepth = 12
	DefaultRecentCount     = 12
	defaultS3AccessKeyEnv  = "S3_ACCESS_KEY_ID"
	defaultS3SecretKeyEnv  = "S3_SECRET_ACCESS_KEY"
)

// Config is the global application configuration
var Config AppConfig

// SearchPaths are tried in order by LoadAppConfig.
var SearchPaths = []string{"config.yml", "./data/config.yml"}

// LoadAppConfig loads and validates the application configuration from the
// first config.yml found in SearchPaths.
func LoadAppConfig() error {
	var lastErr error
	for _, p := range SearchPaths {
		if _, err := os.Stat(p); err != nil {
			lastErr = err
			continue
		}
		return LoadFromFile(p)
	}
	return fmt.Errorf("no config file found in %s: %w", strings.Join(SearchPaths, ", "), lastErr)
}

// LoadFromFile loads, defaults and validates the config at path and stores it
// in Config. Config is left untouched on error.
func LoadFromFile(path string) error {
	cfg, err := Parse(path)
	if err != nil {
		return err
	}
	Config = *cfg
	return nil
}

// Parse reads the config at path without touching the global Config.
func Parse(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// a .env next to the config may carry API keys; existing env wins
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	if len(cfg.Feeds) == 0 && len(cfg.LODES.Jobs) == 0 {
		return nil, fmt.Errorf("validate %s: no feeds or lodes jobs configured", path)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	tl := &cfg.Transitland
	if tl.BaseURL == "" {
		tl.BaseURL = DefaultTransitlandURL
	}
	if tl.APIKeyEnv == "" {
		tl.APIKeyEnv = DefaultAPIKeyEnv
	}
	if tl.APIKey == "" {
		tl.APIKey = os.Getenv(tl.APIKeyEnv)
	}
	if tl.TimeoutMS == 0 {
		tl.TimeoutMS = DefaultTimeoutMS
	}

	for i := range cfg.Feeds {
		f := &cfg.Feeds[i]
		if len(f.Policies) == 0 {
			f.Policies = []PolicyConfig{{Kind: "latest"}, {Kind: "oldest"}}
		}
		for j := range f.Policies {
			p := &f.Policies[j]
			p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
			if p.Kind == "oldest" && p.MaxDepth == 0 {
				p.MaxDepth = DefaultArchiveMaxDepth
			}
			if p.Kind == "recent" && p.Count == 0 {
				p.Count = DefaultRecentCount
			}
		}
	}

	if cfg.LODES.BaseURL == "" {
		cfg.LODES.BaseURL = DefaultLODESURL
	}
	if cfg.LODES.Version == "" {
		cfg.LODES.Version = DefaultLODESVersion
	}
	for i := range cfg.LODES.Jobs {
		j := &cfg.LODES.Jobs[i]
		j.State = strings.ToLower(j.State)
		if j.Part == "" {
			j.Part = "main"
		}
		if j.JobType == "" {
			j.JobType = "JT00"
		}
		j.JobType = strings.ToUpper(j.JobType)
		if j.Format == "" {
			j.Format = "csv"
		}
	}

	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = "local"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = DefaultStorageRoot
	}
	if s3 := cfg.Storage.S3; s3 != nil {
		if s3.AccessKeyEnv == "" {
			s3.AccessKeyEnv = defaultS3AccessKeyEnv
		}
		if s3.SecretKeyEnv == "" {
			s3.SecretKeyEnv = defaultS3SecretKeyEnv
		}
	}

	if cfg.Run.Concurrency == 0 {
		cfg.Run.Concurrency = DefaultConcurrency
	}
	if cfg.Run.IntervalMinutes == 0 {
		cfg.Run.IntervalMinutes = DefaultIntervalMinutes
	}
}

// SelectFeeds returns the feed with the given name, or every feed when name is empty.
func SelectFeeds(name string) ([]Feed, error) {
	return Config.SelectFeeds(name)
}

// SelectFeeds matches name against feed names and keys.
func (c *AppConfig) SelectFeeds(name string) ([]Feed, error) {
	if name == "" {
		return c.Feeds, nil
	}
	for _, f := range c.Feeds {
		if f.Name == name || f.FeedKey == name {
			return []Feed{f}, nil
		}
	}
	return nil, fmt.Errorf("feed %q not found in config", name)
}
