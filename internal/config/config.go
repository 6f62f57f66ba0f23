// Package config loads relay configuration from a .env file, the environment and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
)

const (
	// DefaultPort is the port the relay listens on when PORT is unset.
	DefaultPort = 8888

	// DefaultFrontendURL is where the browser is sent after a successful login.
	DefaultFrontendURL = "https://spotifytracker426.netlify.app"

	// DefaultRedirectURI must match the redirect URI registered with the Spotify app.
	DefaultRedirectURI = DefaultFrontendURL + "/callback"

	// DefaultAPIBaseURL is the Spotify Web API root.
	DefaultAPIBaseURL = "https://api.spotify.com/v1"

	defaultEnvFile         = ".env"
	defaultUpstreamTimeout = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// DefaultScopes are requested on login.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
}

var (
	// ErrMissingCredentials is returned when SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET is not set.
	ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET environment variable")

	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is built once at startup and passed to every component.
type Config struct {
	Spotify SpotifyConfig
	Server  ServerConfig
	Log     LogConfig
}

// SpotifyConfig holds provider credentials and endpoints.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	FrontendURL     string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FrontendOrigin returns the scheme and host of FrontendURL, the only origin CORS allows.
func (s ServerConfig) FrontendOrigin() string {
	u, err := url.Parse(s.FrontendURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s.FrontendURL, "/")
	}
	return u.Scheme + "://" + u.Host
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string
	Format string // "console" or "json"
	File   string // empty disables the file sink
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("env-file", defaultEnvFile, "Path to a .env file (ignored if missing)")
	fs.String("host", "", "Host interface to listen on")
	fs.Int("port", DefaultPort, "Port to listen on")
	fs.String("frontend-url", DefaultFrontendURL, "Frontend URL that receives the access token")
	fs.String("redirect-uri", DefaultRedirectURI, "OAuth redirect URI registered with Spotify")
	fs.String("log-level", "info", "Log level (debug|info|warn|error)")
}

// Load reads configuration. Values resolve as flag, then environment (including
// anything loaded from the .env file), then default. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("env-file", defaultEnvFile)
	v.SetDefault("host", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("frontend-url", DefaultFrontendURL)
	v.SetDefault("redirect-uri", DefaultRedirectURI)
	v.SetDefault("spotify-scopes", strings.Join(DefaultScopes, " "))
	v.SetDefault("spotify-auth-url", spotifyauth.AuthURL)
	v.SetDefault("spotify-token-url", spotifyauth.TokenURL)
	v.SetDefault("spotify-api-base-url", DefaultAPIBaseURL)
	v.SetDefault("upstream-timeout", defaultUpstreamTimeout)
	v.SetDefault("shutdown-timeout", defaultShutdownTimeout)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("log-file", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(v.GetString("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := &Config{
		Spotify: SpotifyConfig{
			ClientID:     v.GetString("spotify-client-id"),
			ClientSecret: v.GetString("spotify-client-secret"),
			RedirectURI:  v.GetString("redirect-uri"),
			Scopes:       strings.Fields(v.GetString("spotify-scopes")),
			AuthURL:      v.GetString("spotify-auth-url"),
			TokenURL:     v.GetString("spotify-token-url"),
			APIBaseURL:   strings.TrimRight(v.GetString("spotify-api-base-url"), "/"),
			Timeout:      v.GetDuration("upstream-timeout"),
		},
		Server: ServerConfig{
			Host:            v.GetString("host"),
			Port:            v.GetInt("port"),
			FrontendURL:     strings.TrimRight(v.GetString("frontend-url"), "/"),
			ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
			File:   v.GetString("log-file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	urls := map[string]string{
		"redirect-uri":         c.Spotify.RedirectURI,
		"frontend-url":         c.Server.FrontendURL,
		"spotify-auth-url":     c.Spotify.AuthURL,
		"spotify-token-url":    c.Spotify.TokenURL,
		"spotify-api-base-url": c.Spotify.APIBaseURL,
	}
	for name, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, name, raw)
		}
	}

	if len(c.Spotify.Scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", ErrInvalidConfig)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log format %q (want console or json)", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}
