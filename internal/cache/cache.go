// Package cache wraps a Redis-backed cache of planned itineraries, with a
// distributed lock so a burst of identical queries computes the itinerary
// once instead of stampeding the router.
package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dsgvo/journeyplanner/internal/itinerary"
	"github.com/redis/go-redis/v9"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds Redis connection and TTL settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	LockTTL  time.Duration
}

// LoadConfigFromEnv loads Config from REDIS_* environment variables.
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, _ := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	lockTTL, _ := time.ParseDuration(getEnv("CACHE_LOCK_TTL", "5s"))

	return &Config{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     port,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
		TTL:      ttl,
		LockTTL:  lockTTL,
	}
}

// GetClient returns the process-wide Redis client, connecting on first use.
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		cfg := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}

		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
		}
	})
	return client, clientErr
}

// Close releases the client's connection pool.
func Close() {
	if client != nil {
		client.Close()
	}
}

// PlanKey derives a deterministic cache key from a plan query.
func PlanKey(fromLat, fromLng, toLat, toLng float64, date, timeOfDay uint32) string {
	data := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%d,%d", fromLat, fromLng, toLat, toLng, date, timeOfDay)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("plan:%x", hash[:8])
}

func lockKey(planKey string) string { return "lock:" + planKey }

// GetPlan returns the cached legs for key, or nil on a cache miss.
func GetPlan(ctx context.Context, key string) ([]itinerary.Leg, error) {
	c, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var legs []itinerary.Leg
	if err := json.Unmarshal(data, &legs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached plan: %w", err)
	}
	return legs, nil
}

// SetPlan caches legs under key for ttl.
func SetPlan(ctx context.Context, key string, legs []itinerary.Leg, ttl time.Duration) error {
	c, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(legs)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return c.Set(ctx, key, data, ttl).Err()
}

// AcquireLock tries to take the stampede lock for planKey, returning true
// if this caller now owns it and should compute the itinerary itself.
func AcquireLock(ctx context.Context, planKey string, ttl time.Duration) (bool, error) {
	c, err := GetClient()
	if err != nil {
		return false, err
	}
	return c.SetNX(ctx, lockKey(planKey), "1", ttl).Result()
}

// ReleaseLock drops the stampede lock for planKey.
func ReleaseLock(ctx context.Context, planKey string) error {
	c, err := GetClient()
	if err != nil {
		return err
	}
	return c.Del(ctx, lockKey(planKey)).Err()
}

// WaitForResult polls until planKey's lock is released, then returns
// whatever landed in the cache — the "wait for the other computer" side of
// the stampede lock, avoiding every waiter recomputing the same itinerary.
func WaitForResult(ctx context.Context, planKey string, maxWait time.Duration) ([]itinerary.Leg, error) {
	c, err := GetClient()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		exists, err := c.Exists(ctx, lockKey(planKey)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return GetPlan(ctx, planKey)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("timeout waiting for plan lock %s", planKey)
}

// HealthCheck pings Redis.
func HealthCheck(ctx context.Context) error {
	c, err := GetClient()
	if err != nil {
		return fmt.Errorf("redis client not initialized: %w", err)
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
