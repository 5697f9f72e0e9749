package config

import (
	"flag"
	"io"
	"os"

	"github.com/dmitrijs2005/emissionkeeper/internal/flagx"
)

var flagNames = []string{
	"-local-db", "-log-level",
	"-identity-dsn", "-secret-key", "-token-ttl", "-redis-url", "-reset-ttl", "-reset-url",
	"-smtp-addr", "-mail-from",
	"-mongo-uri", "-mongo-db",
	"-s3-user", "-s3-password", "-s3-bucket", "-s3-region", "-s3-endpoint", "-s3-public-url", "-presign-ttl",
	"-oauth-client-id", "-oauth-client-secret", "-oauth-callback",
}

// parseFlags overlays command-line flags. Only the flags listed in
// flagNames are considered; everything else in os.Args is left for other
// parsers (e.g. -c/-config).
//
// Durations accept Go syntax: -token-ttl 12h, -presign-ttl 30m.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("emissionkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.LocalDBPath, "local-db", cfg.LocalDBPath, "path to the local SQLite state file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	fs.StringVar(&cfg.IdentityDSN, "identity-dsn", cfg.IdentityDSN, "PostgreSQL DSN of the account directory")
	fs.StringVar(&cfg.SecretKey, "secret-key", cfg.SecretKey, "HMAC key for credential tokens")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "credential token lifetime")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for password-reset tokens (empty: in memory)")
	fs.DurationVar(&cfg.ResetTTL, "reset-ttl", cfg.ResetTTL, "password-reset token lifetime")
	fs.StringVar(&cfg.ResetURL, "reset-url", cfg.ResetURL, "link prefix put in reset emails")
	fs.StringVar(&cfg.SMTPAddr, "smtp-addr", cfg.SMTPAddr, "SMTP relay host:port (empty: log only)")
	fs.StringVar(&cfg.MailFrom, "mail-from", cfg.MailFrom, "sender address of reset emails")

	fs.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDatabase, "mongo-db", cfg.MongoDatabase, "MongoDB database name")

	fs.StringVar(&cfg.S3RootUser, "s3-user", cfg.S3RootUser, "S3 access key")
	fs.StringVar(&cfg.S3RootPassword, "s3-password", cfg.S3RootPassword, "S3 secret key")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "s3-endpoint", cfg.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&cfg.S3PublicBaseURL, "s3-public-url", cfg.S3PublicBaseURL, "public base URL of the bucket (empty: presigned URLs)")
	fs.DurationVar(&cfg.PresignTTL, "presign-ttl", cfg.PresignTTL, "lifetime of presigned download URLs")

	fs.StringVar(&cfg.OAuthClientID, "oauth-client-id", cfg.OAuthClientID, "OAuth client id")
	fs.StringVar(&cfg.OAuthClientSecret, "oauth-client-secret", cfg.OAuthClientSecret, "OAuth client secret")
	fs.StringVar(&cfg.OAuthCallbackAddr, "oauth-callback", cfg.OAuthCallbackAddr, "loopback address for the OAuth redirect")

	return fs.Parse(args)
}
