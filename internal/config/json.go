package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/flagx"
	"github.com/dmitrijs2005/emissionkeeper/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Durations go through
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Keys absent from the file leave the corresponding Config field untouched.
type JsonConfig struct {
	LocalDBPath string `json:"local_db_path"`
	LogLevel    string `json:"log_level"`

	IdentityDSN string         `json:"identity_dsn"`
	SecretKey   string         `json:"secret_key"`
	TokenTTL    timex.Duration `json:"token_ttl"`
	RedisURL    string         `json:"redis_url"`
	ResetTTL    timex.Duration `json:"reset_ttl"`
	ResetURL    string         `json:"reset_url"`
	SMTPAddr    string         `json:"smtp_addr"`
	SMTPUser    string         `json:"smtp_user"`
	SMTPPass    string         `json:"smtp_password"`
	MailFrom    string         `json:"mail_from"`

	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	S3PublicBaseURL string         `json:"s3_public_base_url"`
	PresignTTL      timex.Duration `json:"presign_ttl"`

	OAuthProvider     string         `json:"oauth_provider"`
	OAuthClientID     string         `json:"oauth_client_id"`
	OAuthClientSecret string         `json:"oauth_client_secret"`
	OAuthAuthURL      string         `json:"oauth_auth_url"`
	OAuthTokenURL     string         `json:"oauth_token_url"`
	OAuthUserInfoURL  string         `json:"oauth_userinfo_url"`
	OAuthScopes       string         `json:"oauth_scopes"`
	OAuthCallbackAddr string         `json:"oauth_callback_addr"`
	OAuthTimeout      timex.Duration `json:"oauth_timeout"`
}

// parseJson overlays values from the file named by -c/-config. Without the
// flag nothing is loaded.
func parseJson(cfg *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var c JsonConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}

	setString(&cfg.LocalDBPath, c.LocalDBPath)
	setString(&cfg.LogLevel, c.LogLevel)

	setString(&cfg.IdentityDSN, c.IdentityDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setDuration(&cfg.TokenTTL, c.TokenTTL)
	setString(&cfg.RedisURL, c.RedisURL)
	setDuration(&cfg.ResetTTL, c.ResetTTL)
	setString(&cfg.ResetURL, c.ResetURL)
	setString(&cfg.SMTPAddr, c.SMTPAddr)
	setString(&cfg.SMTPUser, c.SMTPUser)
	setString(&cfg.SMTPPass, c.SMTPPass)
	setString(&cfg.MailFrom, c.MailFrom)

	setString(&cfg.MongoURI, c.MongoURI)
	setString(&cfg.MongoDatabase, c.MongoDatabase)

	setString(&cfg.S3RootUser, c.S3RootUser)
	setString(&cfg.S3RootPassword, c.S3RootPassword)
	setString(&cfg.S3Bucket, c.S3Bucket)
	setString(&cfg.S3Region, c.S3Region)
	setString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&cfg.S3PublicBaseURL, c.S3PublicBaseURL)
	setDuration(&cfg.PresignTTL, c.PresignTTL)

	setString(&cfg.OAuthProvider, c.OAuthProvider)
	setString(&cfg.OAuthClientID, c.OAuthClientID)
	setString(&cfg.OAuthClientSecret, c.OAuthClientSecret)
	setString(&cfg.OAuthAuthURL, c.OAuthAuthURL)
	setString(&cfg.OAuthTokenURL, c.OAuthTokenURL)
	setString(&cfg.OAuthUserInfoURL, c.OAuthUserInfoURL)
	setString(&cfg.OAuthScopes, c.OAuthScopes)
	setString(&cfg.OAuthCallbackAddr, c.OAuthCallbackAddr)
	setDuration(&cfg.OAuthTimeout, c.OAuthTimeout)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
