package config

// Redis backs the seat lock store, the cross-instance room broadcast, the
// asynq lapse queue and the booking rate limiter.  Unlike the HTTP cache it
// once served, the lock store cannot degrade gracefully, so a failed ping is
// reported to the caller instead of silently returning nil.

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters shared by every Redis consumer.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadRedisConfig reads the Redis settings.  Supported variables are:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port win when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
func LoadRedisConfig() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
		TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
	}
}

func (rc RedisConfig) tlsConfig() *tls.Config {
	if !rc.TLS {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true}
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The client is closed and an error returned when the ping fails.
func NewRedisClient(rc RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: rc.tlsConfig(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
	}
	return client, nil
}

// AsynqOpt returns the same connection parameters in the form asynq expects.
func (rc RedisConfig) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: rc.tlsConfig(),
	}
}
