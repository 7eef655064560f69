package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Record holds the usage fields the core populates for each processed
// request. It never contains matched values or prompt text.
type Record struct {
	RequestID               string    `json:"request_id"`
	Decision                string    `json:"decision"`
	Provider                string    `json:"provider"`
	ShowstopperDetected     bool      `json:"showstopper_detected"`
	PIIDetected             bool      `json:"pii_detected"`
	PseudonymsUsed          int       `json:"pseudonyms_used"`
	PseudonymTypes          []string  `json:"pseudonym_types"`
	RedactionsApplied       int       `json:"redactions_applied"`
	RedactionTypes          []string  `json:"redaction_types"`
	DataSanitizationApplied bool      `json:"data_sanitization_applied"`
	SanitizationLevel       string    `json:"sanitization_level"`
	CreatedAt               time.Time `json:"created_at"`
}

// Recorder persists usage records. The gateway treats recording as
// best-effort observability: a recorder failure never fails the request.
type Recorder interface {
	Record(ctx context.Context, record *Record) error
	Close() error
}

// Config contains usage recorder configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	RecordTTL      time.Duration `yaml:"record_ttl" mapstructure:"record_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// Stats aggregates the counters the recorder maintains.
type Stats struct {
	TotalRequests  int64 `json:"total_requests"`
	Blocked        int64 `json:"blocked"`
	Bypassed       int64 `json:"bypassed"`
	Sanitized      int64 `json:"sanitized"`
	TotalRedaction int64 `json:"total_redactions"`
	TotalPseudonym int64 `json:"total_pseudonyms"`
}

// RedisRecorder stores per-request usage records with a TTL and keeps
// aggregate counters, all written through one pipeline round trip.
type RedisRecorder struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
}

// NewRedisRecorder creates a Redis-backed usage recorder
func NewRedisRecorder(config *Config, logger *zap.Logger) (*RedisRecorder, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	recorder := &RedisRecorder{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Usage recorder initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("record_ttl", config.RecordTTL))

	return recorder, nil
}

// Record persists one usage record and bumps the aggregate counters.
func (r *RedisRecorder) Record(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	key := fmt.Sprintf("%s:usage:%s", r.config.KeyPrefix, record.RequestID)

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, r.config.RecordTTL)
	pipe.Incr(ctx, r.counterKey("requests_total"))
	pipe.Incr(ctx, r.counterKey(record.Decision))
	if record.RedactionsApplied > 0 {
		pipe.IncrBy(ctx, r.counterKey("redactions_total"), int64(record.RedactionsApplied))
	}
	if record.PseudonymsUsed > 0 {
		pipe.IncrBy(ctx, r.counterKey("pseudonyms_total"), int64(record.PseudonymsUsed))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write usage record: %w", err)
	}

	r.logger.Debug("Usage record written",
		zap.String("request_id", record.RequestID),
		zap.String("decision", record.Decision))

	return nil
}

// GetStats returns the aggregate counters.
func (r *RedisRecorder) GetStats(ctx context.Context) (*Stats, error) {
	keys := []string{
		r.counterKey("requests_total"),
		r.counterKey("blocked"),
		r.counterKey("bypassed"),
		r.counterKey("sanitized"),
		r.counterKey("redactions_total"),
		r.counterKey("pseudonyms_total"),
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counters: %w", err)
	}

	stats := &Stats{}
	targets := []*int64{
		&stats.TotalRequests, &stats.Blocked, &stats.Bypassed,
		&stats.Sanitized, &stats.TotalRedaction, &stats.TotalPseudonym,
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			fmt.Sscanf(s, "%d", targets[i])
		}
	}

	return stats, nil
}

// Close closes the Redis connection
func (r *RedisRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisRecorder) counterKey(name string) string {
	return fmt.Sprintf("%s:counters:%s", r.config.KeyPrefix, name)
}

// NopRecorder discards records; used when usage recording is disabled and in
// tests.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, record *Record) error { return nil }

// Close implements Recorder.
func (NopRecorder) Close() error { return nil }

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
