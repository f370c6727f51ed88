// Package config loads engine defaults from file and environment. The
// constructor option structs remain the primary configuration surface; this
// package is a convenience for test harnesses that want a single place to
// tune the simulation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/authsim-dev/authsim/session"
	"github.com/authsim-dev/authsim/token"
)

// Config holds the tunable defaults of the simulation engine.
// Tags use mapstructure for Viper unmarshalling.
type Config struct {
	SigningSecret    string `mapstructure:"SIGNING_SECRET"`
	SigningAlgorithm string `mapstructure:"SIGNING_ALGORITHM"`
	Issuer           string `mapstructure:"ISSUER"`
	Audience         string `mapstructure:"AUDIENCE"`

	AccessTokenTTLMin   int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`

	SessionMaxAgeMin     int  `mapstructure:"SESSION_MAX_AGE_MIN"`
	SessionSliding       bool `mapstructure:"SESSION_SLIDING"`
	SessionMaxConcurrent int  `mapstructure:"SESSION_MAX_CONCURRENT"`
	SessionCleanupSec    int  `mapstructure:"SESSION_CLEANUP_SEC"`

	CookieName     string `mapstructure:"COOKIE_NAME"`
	CookiePath     string `mapstructure:"COOKIE_PATH"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieHTTPOnly bool   `mapstructure:"COOKIE_HTTP_ONLY"`
	CookieSameSite string `mapstructure:"COOKIE_SAME_SITE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// Load reads configuration from an optional authsim.yaml in the working
// directory, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("authsim")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SIGNING_SECRET", "authsim-test-signing-secret")
	v.SetDefault("SIGNING_ALGORITHM", "HS256")
	v.SetDefault("ISSUER", "authsim")
	v.SetDefault("AUDIENCE", "authsim-clients")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("SESSION_MAX_AGE_MIN", 60)
	v.SetDefault("SESSION_SLIDING", true)
	v.SetDefault("SESSION_MAX_CONCURRENT", 5)
	v.SetDefault("SESSION_CLEANUP_SEC", 60)
	v.SetDefault("COOKIE_NAME", "sessionId")
	v.SetDefault("COOKIE_PATH", "/")
	v.SetDefault("COOKIE_HTTP_ONLY", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// TokenOptions converts the config into token engine options.
func (c *Config) TokenOptions() token.Options {
	return token.Options{
		Secret:     c.SigningSecret,
		Algorithm:  c.SigningAlgorithm,
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		DefaultTTL: time.Duration(c.AccessTokenTTLMin) * time.Minute,
	}
}

// SessionOptions converts the config into session manager options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		MaxAge:          time.Duration(c.SessionMaxAgeMin) * time.Minute,
		Sliding:         c.SessionSliding,
		MaxConcurrent:   c.SessionMaxConcurrent,
		CleanupInterval: time.Duration(c.SessionCleanupSec) * time.Second,
		Cookie: session.CookieOptions{
			Name:     c.CookieName,
			Path:     c.CookiePath,
			Domain:   c.CookieDomain,
			Secure:   c.CookieSecure,
			HTTPOnly: c.CookieHTTPOnly,
			SameSite: c.CookieSameSite,
		},
	}
}
