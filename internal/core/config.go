package core

import (
	"time"
)

type Config struct {
	Spotify SpotifyConfig
	Server  ServerConfig
	Session SessionConfig
	Log     LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	// AccountsURL is the OAuth2 host (authorize + token endpoints).
	AccountsURL string
	// APIURL is the Web API base, including the version segment.
	APIURL string
	// CallbackScheme is the scheme used when building the OAuth2 redirect
	// target from the inbound request's Host header.
	CallbackScheme string

	SearchRetryLimit int
	SearchMaxOffset  int
	PlaylistPageSize int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// StaticDir, when set, is served under /public.
	StaticDir string
}

type SessionConfig struct {
	CookieName  string
	TTL         time.Duration
	MaxSessions int
}

type LogConfig struct {
	Level string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			AccountsURL:      "https://accounts.spotify.com",
			APIURL:           "https://api.spotify.com/v1",
			CallbackScheme:   "http",
			SearchRetryLimit: 50,
			SearchMaxOffset:  1000,
			PlaylistPageSize: 100,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			CookieName:  "rapmich_session",
			TTL:         time.Hour,
			MaxSessions: 10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the startup invariants. A missing client id or secret is a
// ConfigError: the process must not start without Spotify credentials.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return &ConfigError{Msg: "spotify client id and client secret are required, " +
			"set RAPMICH_SPOTIFY_CLIENT_ID and RAPMICH_SPOTIFY_CLIENT_SECRET"}
	}
	if c.Spotify.CallbackScheme != "http" && c.Spotify.CallbackScheme != "https" {
		return &ConfigError{Msg: "callback scheme must be http or https, got " + c.Spotify.CallbackScheme}
	}
	return nil
}
