package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds application-level configuration. It is loaded once at
// start-up and treated as read-only afterwards.
type AppConfig struct {
	CORS       CORSConfig
	Graph      GraphConfig
	AppConfig  AppConfigSettings
	Server     ServerConfig
	PolicyFile string
}

// CORSConfig holds the origin allow-list. An empty list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

// GraphConfig holds Conversions API settings.
type GraphConfig struct {
	APIEndpoint   string // e.g., "https://graph.facebook.com"
	APIVersion    string // e.g., "v19.0"
	PixelID       string
	AccessToken   string
	SecretName    string // Secrets Manager secret holding the access token
	TestEventCode string
	Timeout       time.Duration
}

// AppConfigSettings holds AWS AppConfig settings for the normalizer policy.
type AppConfigSettings struct {
	Endpoint      string
	PolicyProfile string
}

// ServerConfig holds settings for the local HTTP server.
type ServerConfig struct {
	Port         string
	MaxBodyBytes int64
}

// Configured reports whether both the pixel id and the access token are set.
func (g GraphConfig) Configured() bool {
	return g.PixelID != "" && g.AccessToken != ""
}

// LoadFromEnv loads configuration from environment variables with sensible defaults.
func LoadFromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		CORS: CORSConfig{
			AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
			MaxAge:         parseDuration(os.Getenv("CORS_MAX_AGE"), 24*time.Hour),
		},
		Graph: GraphConfig{
			APIEndpoint:   strings.TrimRight(getEnvOrDefault("GRAPH_API_ENDPOINT", "https://graph.facebook.com"), "/"),
			APIVersion:    getEnvOrDefault("GRAPH_API_VERSION", "v19.0"),
			PixelID:       firstEnv("FACEBOOK_PIXEL_ID", "FB_PIXEL_ID"),
			AccessToken:   firstEnv("FACEBOOK_ACCESS_TOKEN", "FB_ACCESS_TOKEN"),
			SecretName:    os.Getenv("FACEBOOK_SECRET_NAME"),
			TestEventCode: os.Getenv("TEST_EVENT_CODE"),
			Timeout:       parseDuration(os.Getenv("GRAPH_TIMEOUT"), 10*time.Second),
		},
		AppConfig: AppConfigSettings{
			Endpoint:      getEnvOrDefault("APPCONFIG_ENDPOINT", "http://localhost:2772"),
			PolicyProfile: os.Getenv("APPCONFIG_POLICY_PROFILE"),
		},
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", "8080"),
			MaxBodyBytes: parseInt(os.Getenv("MAX_BODY_BYTES"), 64<<10),
		},
		PolicyFile: os.Getenv("NORMALIZER_POLICY_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
