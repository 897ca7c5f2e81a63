// Configuration management for the gateway binary.
package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// getEnvOr returns the environment variable value or a default if not set.
func getEnvOr(env, defaultValue string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDurationOr(env string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvIntOr(env string, defaultValue int) int {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// Config holds runtime configuration coming from environment and CLI flags.
type Config struct {
	Addr      string
	RelayURL  string
	RedisAddr string
	Verbose   string

	IdleTimeout    time.Duration
	EmptyTimeout   time.Duration
	HardTimeout    time.Duration
	PublishTimeout time.Duration
	MaxAttempts    int
}

// LoadConfig reads environment variables and flags. Flags override env
// values, matching the gateway's own conventions for overrideable defaults.
func LoadConfig() *Config {
	addr := flag.String("addr", getEnvOr("ADDR", ":8080"), "address to listen on (env: ADDR)")
	relayURL := flag.String("relay-url", os.Getenv("RELAY_URL"), "upstream relay websocket URL (env: RELAY_URL)")
	redisAddr := flag.String("redis-addr", getEnvOr("REDIS_ADDR", "localhost:6379"), "Redis address for the cache store and publish queue (env: REDIS_ADDR)")
	verbose := flag.String("verbose", os.Getenv("VERBOSE"), "verbose logging control: 'true'/'all' for all, 'relayexec' for module, 'relayexec.Query,publish' for specific methods (env: VERBOSE)")

	idleTimeout := flag.Duration("idle-timeout", getEnvDurationOr("IDLE_TIMEOUT", 300*time.Millisecond), "post-first-event idle deadline (env: IDLE_TIMEOUT)")
	emptyTimeout := flag.Duration("empty-timeout", getEnvDurationOr("EMPTY_TIMEOUT", 1000*time.Millisecond), "empty-result deadline (env: EMPTY_TIMEOUT)")
	hardTimeout := flag.Duration("hard-timeout", getEnvDurationOr("HARD_TIMEOUT", 5000*time.Millisecond), "worst-case query deadline (env: HARD_TIMEOUT)")
	publishTimeout := flag.Duration("publish-timeout", getEnvDurationOr("PUBLISH_TIMEOUT", 3000*time.Millisecond), "publish OK wait deadline (env: PUBLISH_TIMEOUT)")
	maxAttempts := flag.Int("max-publish-attempts", getEnvIntOr("MAX_PUBLISH_ATTEMPTS", 6), "publish attempts before dead-lettering (env: MAX_PUBLISH_ATTEMPTS)")

	flag.Parse()

	return &Config{
		Addr:           *addr,
		RelayURL:       *relayURL,
		RedisAddr:      *redisAddr,
		Verbose:        *verbose,
		IdleTimeout:    *idleTimeout,
		EmptyTimeout:   *emptyTimeout,
		HardTimeout:    *hardTimeout,
		PublishTimeout: *publishTimeout,
		MaxAttempts:    *maxAttempts,
	}
}
