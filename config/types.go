package config

import "github.com/theoremus-urban-solutions/transitdata/catalog"

// ServerConfig contains daemon HTTP configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0"`
}

// TransitlandConfig contains transit.land REST API configuration
type TransitlandConfig struct {
	BaseURL    string  `yaml:"baseURL" validate:"omitempty,url"`
	APIKeyEnv  string  `yaml:"apiKeyEnv"`
	APIKey     string  `yaml:"apiKey"`
	TimeoutMS  int     `yaml:"timeoutMS" validate:"gte=0"`
	RateLimit  float64 `yaml:"rateLimit" validate:"gte=0"`
	RateBurst  int     `yaml:"rateBurst" validate:"gte=0"`
	MaxRetries int     `yaml:"maxRetries"`
}

// PolicyConfig selects which feed versions are kept
type PolicyConfig struct {
	Kind     string `yaml:"kind" validate:"required,oneof=latest oldest recent"`
	MaxDepth int    `yaml:"maxDepth" validate:"gte=0"`
	Count    int    `yaml:"count" validate:"gte=0"`
}

// RealtimeConfig contains optional GTFS-Realtime endpoints for a feed
type RealtimeConfig struct {
	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	ServiceAlertsURL    string `yaml:"serviceAlertsURL" validate:"omitempty,url"`
}

// Enabled reports whether any realtime endpoint is configured.
func (r RealtimeConfig) Enabled() bool {
	return r.TripUpdatesURL != "" || r.VehiclePositionsURL != "" || r.ServiceAlertsURL != ""
}

// Feed represents a single transit.land feed to archive
type Feed struct {
	Name     string         `yaml:"name" validate:"required"`
	FeedKey  string         `yaml:"feedKey" validate:"required"`
	Policies []PolicyConfig `yaml:"policies" validate:"dive"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// LODESJob is one state/year origin-destination extract
type LODESJob struct {
	State   string `yaml:"state" validate:"required,len=2,alpha"`
	Year    int    `yaml:"year" validate:"omitempty,gte=2002,lte=2100"`
	Part    string `yaml:"part" validate:"omitempty,oneof=main aux"`
	JobType string `yaml:"jobType" validate:"omitempty,oneof=JT00 JT01 JT02 JT03 JT04 JT05 JT06 JT07 JT08 JT09"`
	Format  string `yaml:"format" validate:"omitempty,oneof=csv parquet"`
}

// LODESConfig contains LEHD download configuration
type LODESConfig struct {
	BaseURL string     `yaml:"baseURL" validate:"omitempty,url"`
	Version string     `yaml:"version"`
	Jobs    []LODESJob `yaml:"jobs" validate:"dive"`
}

// S3Config contains S3/MinIO storage configuration
type S3Config struct {
	Endpoint     string `yaml:"endpoint" validate:"required"`
	Bucket       string `yaml:"bucket" validate:"required"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"accessKeyEnv"`
	SecretKeyEnv string `yaml:"secretKeyEnv"`
	UseSSL       bool   `yaml:"useSSL"`
}

// StorageConfig selects where artifacts are written
type StorageConfig struct {
	Kind string    `yaml:"kind" validate:"omitempty,oneof=local s3"`
	Root string    `yaml:"root"`
	S3   *S3Config `yaml:"s3" validate:"required_if=Kind s3"`
}

// RunConfig contains refresh pipeline settings
type RunConfig struct {
	Concurrency     int  `yaml:"concurrency" validate:"gte=0"`
	IntervalMinutes int  `yaml:"intervalMinutes" validate:"gte=0"`
	WriteReadme     bool `yaml:"writeReadme"`
}

// CatalogConfig adds or overrides dataset descriptions
type CatalogConfig struct {
	Datasets []catalog.Dataset `yaml:"datasets" validate:"dive"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Transitland TransitlandConfig `yaml:"transitland"`
	Feeds       []Feed            `yaml:"feeds" validate:"dive"`
	LODES       LODESConfig       `yaml:"lodes"`
	Storage     StorageConfig     `yaml:"storage"`
	Run         RunConfig         `yaml:"run"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}
