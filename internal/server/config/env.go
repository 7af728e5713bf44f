package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable understood by parseEnv,
// e.g. FILESHARE_DATABASE_DSN.
const EnvPrefix = "FILESHARE"

// dotEnvFile is loaded, when present, before the environment is read.
var dotEnvFile = ".env"

// parseEnv overlays config with FILESHARE_* variables. Variables that are
// not set keep the value from the previous layer.
func parseEnv(config *Config) error {
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dotEnvFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)

	strs := map[string]*string{
		"http_addr":        &config.HTTPAddr,
		"grpc_addr":        &config.GRPCAddr,
		"database_dsn":     &config.DatabaseDSN,
		"secret_key":       &config.SecretKey,
		"blob_backend":     &config.BlobBackend,
		"uploads_dir":      &config.UploadsDir,
		"s3_root_user":     &config.S3RootUser,
		"s3_root_password": &config.S3RootPassword,
		"s3_bucket":        &config.S3Bucket,
		"s3_region":        &config.S3Region,
		"s3_base_endpoint": &config.S3BaseEndpoint,
		"public_base_url":  &config.PublicBaseURL,
		"cors_origin":      &config.CORSOrigin,
		"log_level":        &config.LogLevel,
	}
	durations := map[string]*time.Duration{
		"access_token_validity_duration":  &config.AccessTokenValidityDuration,
		"refresh_token_validity_duration": &config.RefreshTokenValidityDuration,
		"default_share_ttl":               &config.DefaultShareTTL,
		"max_share_ttl":                   &config.MaxShareTTL,
		"shutdown_timeout":                &config.ShutdownTimeout,
	}

	for key, dst := range strs {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	for key, dst := range durations {
		_ = v.BindEnv(key)
		if !v.IsSet(key) {
			continue
		}
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(key), err)
		}
		*dst = d
	}

	_ = v.BindEnv("max_upload_bytes")
	if v.IsSet("max_upload_bytes") {
		n, err := strconv.ParseInt(v.GetString("max_upload_bytes"), 10, 64)
		if err != nil {
			return fmt.Errorf("%s_MAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		config.MaxUploadBytes = n
	}

	return nil
}
