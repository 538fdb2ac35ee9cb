package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

type Options struct {
	Kind        string
	Dir         string
	RedisURL    string
	DatabaseURL string
	TTL         time.Duration
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindMemory:
		return NewMemory(), nil
	case KindFile:
		return NewFile(opts.Dir)
	case KindRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.TTL)
	case KindPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown state store %q", opts.Kind)
	}
}
