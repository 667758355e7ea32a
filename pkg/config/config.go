// Package config loads process configuration from environment variables,
// with an optional YAML file override for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all server configuration. It is loaded once at startup
// and passed explicitly through service constructors.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Database DatabaseConfig `yaml:"database"`
	External ExternalConfig `yaml:"external"`
	Uploads  UploadConfig   `yaml:"uploads"`

	RedisAddr string `yaml:"redis_addr"` // optional decode cache

	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables telemetry
}

// DatabaseConfig holds the relational backend settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"` // sqlite file path
}

// DSN builds the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// ExternalConfig holds base URLs for upstream reference services.
type ExternalConfig struct {
	VPICBase        string `yaml:"vpic_base"`
	NHTSARecalls    string `yaml:"nhtsa_recalls"`
	NHTSAComplaints string `yaml:"nhtsa_complaints"`
	NHTSARatings    string `yaml:"nhtsa_ratings"`
	EPABase         string `yaml:"epa_base"`
	TCRecalls       string `yaml:"tc_recalls"`
}

// UploadConfig holds photo-upload storage settings.
type UploadConfig struct {
	Backend   string `yaml:"backend"` // "fs" (default), "s3" or "gcs"
	Dir       string `yaml:"dir"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	S3Prefix  string `yaml:"s3_prefix"`
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:     envOr("PORT", "8930"),
		LogLevel: envOr("LOG_LEVEL", "INFO"),
		Database: DatabaseConfig{
			Driver:   envOr("DB_DRIVER", "postgres"),
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envIntOr("DB_PORT", 5432),
			Name:     envOr("DB_NAME", "autoverif_db"),
			User:     envOr("DB_USER", "autoverif_user"),
			Password: os.Getenv("DB_PASS"),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
			Path:     envOr("DB_PATH", "vinledger.db"),
		},
		External: ExternalConfig{
			VPICBase:        envOr("NHTSA_BASE", "https://vpic.nhtsa.dot.gov/api"),
			NHTSARecalls:    envOr("NHTSA_RECALLS", "https://api.nhtsa.gov/recalls/recallsByVehicle"),
			NHTSAComplaints: envOr("NHTSA_COMPLAINTS", "https://api.nhtsa.gov/complaints/complaintsByVehicle"),
			NHTSARatings:    envOr("NHTSA_RATINGS", "https://api.nhtsa.gov/SafetyRatings"),
			EPABase:         envOr("EPA_BASE", "https://www.fueleconomy.gov/ws/rest"),
			TCRecalls:       envOr("TC_RECALLS", "https://data.tc.gc.ca/v1.3/api/eng/vehicle-recall-database"),
		},
		Uploads: UploadConfig{
			Backend:   envOr("UPLOAD_BACKEND", "fs"),
			Dir:       envOr("UPLOAD_DIR", "uploads"),
			S3Bucket:  os.Getenv("UPLOAD_S3_BUCKET"),
			S3Region:  os.Getenv("UPLOAD_S3_REGION"),
			S3Prefix:  os.Getenv("UPLOAD_S3_PREFIX"),
			GCSBucket: os.Getenv("UPLOAD_GCS_BUCKET"),
			GCSPrefix: os.Getenv("UPLOAD_GCS_PREFIX"),
		},
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
