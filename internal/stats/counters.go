// Package stats keeps rule-hit and signal counters in Redis so several
// sidecar replicas report one total.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/masking"
)

// Counters handles Redis-backed masking counters
type Counters struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewCounters connects to Redis and verifies the connection
func NewCounters(config *Config, logger *zap.Logger) (*Counters, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	counters := NewCountersWithClient(redis.NewClient(opts), config.KeyPrefix, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := counters.client.Ping(ctx).Err(); err != nil {
		counters.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis counters initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.String("key_prefix", counters.prefix))

	return counters, nil
}

// NewCountersWithClient wraps an existing client
func NewCountersWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Counters {
	if prefix == "" {
		prefix = "logmask"
	}
	return &Counters{client: client, prefix: prefix, logger: logger}
}

func (c *Counters) hitsKey() string    { return c.prefix + ":hits" }
func (c *Counters) signalsKey() string { return c.prefix + ":signals" }

// RecordFindings adds one render's findings to the per-expression hit counts
func (c *Counters) RecordFindings(ctx context.Context, findings []masking.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, f := range findings {
		pipe.HIncrBy(ctx, c.hitsKey(), f.Expression, int64(f.Count))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record findings: %w", err)
	}
	return nil
}

// Name identifies the counters as a signal forwarder
func (c *Counters) Name() string {
	return "redis"
}

// Forward counts a signal by kind
func (c *Counters) Forward(ctx context.Context, sig masking.Signal) error {
	if err := c.client.HIncrBy(ctx, c.signalsKey(), string(sig.Kind), 1).Err(); err != nil {
		return fmt.Errorf("failed to count signal: %w", err)
	}
	return nil
}

// Snapshot reads every counter
func (c *Counters) Snapshot(ctx context.Context) (*Snapshot, error) {
	pipe := c.client.Pipeline()
	hits := pipe.HGetAll(ctx, c.hitsKey())
	signals := pipe.HGetAll(ctx, c.signalsKey())

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	snapshot := &Snapshot{
		Hits:    parseCounts(hits.Val(), c.logger),
		Signals: parseCounts(signals.Val(), c.logger),
	}
	return snapshot, nil
}

// Reset clears every counter
func (c *Counters) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.hitsKey(), c.signalsKey()).Err(); err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}

	c.logger.Info("Counters reset", zap.String("key_prefix", c.prefix))
	return nil
}

// Close closes the Redis connection
func (c *Counters) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func parseCounts(raw map[string]string, logger *zap.Logger) map[string]int64 {
	counts := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Warn("Ignoring non-numeric counter", zap.String("field", k))
			continue
		}
		counts[k] = n
	}
	return counts
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}

	userPart := url[:at]
	scheme := ""
	if i := strings.Index(userPart, "://"); i >= 0 {
		scheme, userPart = userPart[:i+3], userPart[i+3:]
	}

	if colon := strings.Index(userPart, ":"); colon >= 0 {
		userPart = userPart[:colon+1] + "***"
	} else if userPart != "" {
		// redis://password@host form
		userPart = "***"
	}
	return scheme + userPart + url[at:]
}
