// Package config reads the service configuration from environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds every setting the service reads at startup.
type Config struct {
	ListenAddr string
	Debug      bool

	// RedisConnectionString selects the Redis store when set. Either a
	// redis:// URL or "host:port,password=...,ssl=True".
	RedisConnectionString string
	RedisKeyPrefix        string

	StorageConnectionString string
	EventsQueue             string
	ActivityTable           string

	EventWorkers        int
	EventBuffer         int
	EventTimeout        time.Duration
	EventHandoffTimeout time.Duration

	ShutdownTimeout time.Duration
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads the configuration through lookup, which has the signature
// of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		ListenAddr:              r.str("LISTEN_ADDR", "0.0.0.0:8000"),
		Debug:                   r.boolean("DEBUG", false),
		RedisConnectionString:   r.str("REDIS_CONNECTION_STRING", ""),
		RedisKeyPrefix:          r.str("REDIS_KEY_PREFIX", "taskboard"),
		StorageConnectionString: r.str("STORAGE_CONNECTION_STRING", ""),
		EventsQueue:             r.str("EVENTS_QUEUE", ""),
		ActivityTable:           r.str("ACTIVITY_TABLE", ""),
		EventWorkers:            r.positiveInt("EVENT_WORKERS", 4),
		EventBuffer:             r.positiveInt("EVENT_BUFFER", 1024),
		EventTimeout:            r.duration("EVENT_TIMEOUT", 10*time.Second),
		EventHandoffTimeout:     r.duration("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond),
		ShutdownTimeout:         r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if (cfg.EventsQueue != "" || cfg.ActivityTable != "") && cfg.StorageConnectionString == "" {
		r.errs = append(r.errs, errors.New("STORAGE_CONNECTION_STRING is required when EVENTS_QUEUE or ACTIVITY_TABLE is set"))
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

// RedisOptions converts RedisConnectionString into client options.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisConnectionString == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(c.RedisConnectionString); err == nil {
		return opts, nil
	}
	parts := strings.Split(c.RedisConnectionString, ",")
	if strings.Contains(parts[0], "=") || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING: %q is not host:port", parts[0])
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) positiveInt(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: must be greater than zero", key))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: must be greater than zero", key))
		return def
	}
	return d
}
