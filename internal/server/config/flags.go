package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-b", "-u", "-l",
	"-share-ttl", "-max-upload",
	"-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       HTTP bind address (e.g., ":8080")
//	-g string       gRPC bind address (e.g., ":50051")
//	-d string       PostgreSQL DSN
//	-s string       JWT HMAC secret key
//	-t int          access token validity, minutes
//	-r int          refresh token validity, minutes
//	-b string       blob backend, "fs" or "s3"
//	-u string       uploads directory for the fs backend
//	-l string       log level
//	-share-ttl int  default share lifetime, hours
//	-max-upload int upload size limit, bytes
//	-s3-user, -s3-password, -s3-bucket, -s3-region, -s3-endpoint
//
// Unknown arguments are filtered out first with flagx.FilterArgs so the
// JSON loader's -c flag does not collide. Invalid values panic.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to run server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	shareHours := fs.Int("share-ttl", int(config.DefaultShareTTL.Hours()), "default share lifetime (in hours)")

	fs.Int64Var(&config.MaxUploadBytes, "max-upload", config.MaxUploadBytes, "upload size limit (in bytes)")
	fs.StringVar(&config.BlobBackend, "b", config.BlobBackend, "blob backend: fs or s3")
	fs.StringVar(&config.UploadsDir, "u", config.UploadsDir, "uploads directory")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		panic(err)
	}

	// Durations are only taken from flags that were given, so a JSON value
	// such as "90m" is not truncated to whole flag units.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
		case "share-ttl":
			config.DefaultShareTTL = time.Duration(*shareHours) * time.Hour
		}
	})
}
