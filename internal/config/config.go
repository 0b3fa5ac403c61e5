package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	MigrationsDir        string
	SpotifyClientID      string
	SpotifyClientSecret  string
	RedirectURI          string
	AuthorizeURL         string
	TokenURL             string
	ProfileURL           string
	Scopes               []string
	StateSecret          string
	StateTTL             time.Duration
	SweepInterval        time.Duration
	SkewWindow           time.Duration
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Scopes requested during authorization. Read-only access to the profile and
// playlists; the bot never mutates anything on the user's behalf.
var defaultScopes = []string{
	"user-read-email",
	"user-read-private",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	clientID := strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("SPOTIFY_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("SPOTIFY_CLIENT_SECRET is required")
	}
	redirectURI := strings.TrimSpace(os.Getenv("REDIRECT_URI"))
	if redirectURI == "" {
		return Config{}, fmt.Errorf("REDIRECT_URI is required")
	}
	stateSecret := strings.TrimSpace(os.Getenv("STATE_SECRET"))
	if stateSecret == "" {
		return Config{}, fmt.Errorf("STATE_SECRET is required")
	}
	if len(stateSecret) < 32 {
		return Config{}, fmt.Errorf("STATE_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("PORT", "3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
		SpotifyClientID:      clientID,
		SpotifyClientSecret:  clientSecret,
		RedirectURI:          redirectURI,
		AuthorizeURL:         getEnv("SPOTIFY_AUTHORIZE_URL", "https://accounts.spotify.com/authorize"),
		TokenURL:             getEnv("SPOTIFY_TOKEN_URL", "https://accounts.spotify.com/api/token"),
		ProfileURL:           getEnv("SPOTIFY_PROFILE_URL", "https://api.spotify.com/v1/me"),
		Scopes:               getList("SPOTIFY_SCOPES", defaultScopes),
		StateSecret:          stateSecret,
		StateTTL:             getDuration("STATE_TTL", 10*time.Minute),
		SweepInterval:        getDuration("SWEEP_INTERVAL", 5*time.Minute),
		SkewWindow:           getDuration("SKEW_WINDOW", 10*time.Minute),
		ServiceName:          getEnv("SERVICE_NAME", "lyro-spotify-link"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.SkewWindow <= 0 {
		cfg.SkewWindow = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
