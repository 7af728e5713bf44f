package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/flagx"
	"github.com/dmitrijs2005/fileshare/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// strings such as "24h" as well as integer nanoseconds. Absent keys leave
// the current value untouched, hence the pointer fields.
type JsonConfig struct {
	HTTPAddr                     *string         `json:"http_addr"`
	GRPCAddr                     *string         `json:"grpc_addr"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	DefaultShareTTL              *timex.Duration `json:"default_share_ttl"`
	MaxShareTTL                  *timex.Duration `json:"max_share_ttl"`
	MaxUploadBytes               *int64          `json:"max_upload_bytes"`
	BlobBackend                  *string         `json:"blob_backend"`
	UploadsDir                   *string         `json:"uploads_dir"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	PublicBaseURL                *string         `json:"public_base_url"`
	CORSOrigin                   *string         `json:"cors_origin"`
	LogLevel                     *string         `json:"log_level"`
	ShutdownTimeout              *timex.Duration `json:"shutdown_timeout"`
}

// parseJson overlays config with the file named by -c/-config, if any.
// An unreadable file or invalid JSON panics: the server must not start on
// a half-applied config.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.DefaultShareTTL, c.DefaultShareTTL)
	setDuration(&config.MaxShareTTL, c.MaxShareTTL)
	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.UploadsDir, c.UploadsDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.CORSOrigin, c.CORSOrigin)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
