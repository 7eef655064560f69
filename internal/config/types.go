package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Policy    PolicyConfig    `yaml:"policy" mapstructure:"policy"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Usage     UsageConfig     `yaml:"usage" mapstructure:"usage"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// CatalogConfig controls where pattern and dictionary definitions are loaded from
// and how often the in-memory snapshot is refreshed.
type CatalogConfig struct {
	Source          string        `yaml:"source" mapstructure:"source"` // builtin or postgres
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
}

// PolicyConfig contains routing policy configuration
type PolicyConfig struct {
	// TrustLocalProviders exempts local providers from all classification,
	// including showstopper detection. An explicitly requested provider is
	// never exempted.
	TrustLocalProviders bool `yaml:"trust_local_providers" mapstructure:"trust_local_providers"`
}

// ProviderEndpoint describes a single LLM provider target.
type ProviderEndpoint struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// TextPath is the gjson path to the completion text in the provider's
	// JSON response, e.g. "choices.0.message.content" or "response".
	TextPath string `yaml:"text_path" mapstructure:"text_path"`
	Model    string `yaml:"model" mapstructure:"model"`
	// Format selects the request body shape: "prompt" (Ollama-style
	// generate) or "chat" (OpenAI-style messages).
	Format string `yaml:"format" mapstructure:"format"`
}

// ProvidersConfig contains provider endpoints and call settings
type ProvidersConfig struct {
	Local    ProviderEndpoint            `yaml:"local" mapstructure:"local"`
	External map[string]ProviderEndpoint `yaml:"external" mapstructure:"external"`
	Default  string                      `yaml:"default" mapstructure:"default"`
	Timeout  time.Duration               `yaml:"timeout" mapstructure:"timeout"`
}

// UsageConfig contains usage recording configuration
type UsageConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	RecordTTL      time.Duration `yaml:"record_ttl" mapstructure:"record_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"` // json or console
	File   LoggingFileConfig `yaml:"file" mapstructure:"file"`
}

// LoggingFileConfig contains file logging configuration
type LoggingFileConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// WebSocketConfig contains WebSocket event stream configuration
type WebSocketConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	Path                string `yaml:"path" mapstructure:"path"`
	MaxConnections      int    `yaml:"max_connections" mapstructure:"max_connections"`
	BroadcastDetections bool   `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastRoutes     bool   `yaml:"broadcast_routes" mapstructure:"broadcast_routes"`
	BroadcastSystem     bool   `yaml:"broadcast_system" mapstructure:"broadcast_system"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			Source:          "builtin",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			RefreshInterval: 5 * time.Minute,
		},
		Policy: PolicyConfig{
			TrustLocalProviders: true,
		},
		Providers: ProvidersConfig{
			Local: ProviderEndpoint{
				Endpoint: "http://localhost:11434/api/generate",
				TextPath: "response",
				Model:    "llama3",
				Format:   "prompt",
			},
			External: map[string]ProviderEndpoint{
				"openai": {
					Endpoint: "https://api.openai.com/v1/chat/completions",
					TextPath: "choices.0.message.content",
					Model:    "gpt-4o-mini",
					Format:   "chat",
				},
			},
			Default: "openai",
			Timeout: 30 * time.Second,
		},
		Usage: UsageConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "piigate",
			RecordTTL:      24 * time.Hour,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerSec: 10,
			Burst:          20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LoggingFileConfig{
				Enabled:  false,
				Path:     "logs/gateway.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:             true,
			Path:                "/ws",
			MaxConnections:      100,
			BroadcastDetections: true,
			BroadcastRoutes:     true,
			BroadcastSystem:     true,
		},
	}
}
