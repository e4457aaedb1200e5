package endpoint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

const redisKey = "imgrelay:backend_url"

// RedisStore shares the URL between relay replicas through a single Redis key.
// The last value read or written by this process is kept as a fallback when
// Redis cannot be reached.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	last   atomic.Value
}

// NewRedisStore connects to the Redis URL addr and resets the shared key to
// initial, so the backend URL does not survive a relay restart.
func NewRedisStore(ctx context.Context, addr, initial string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	rs := &RedisStore{client: c, key: redisKey}
	if err := rs.Store(ctx, initial); err != nil {
		_ = c.Close()
		return nil, err
	}
	return rs, nil
}

func (r *RedisStore) Load(ctx context.Context) string {
	v, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		fallback, _ := r.last.Load().(string)
		logx.Log.Warn().Err(err).Str("fallback", fallback).Msg("read backend url from redis")
		return fallback
	}
	r.last.Store(v)
	return v
}

func (r *RedisStore) Store(ctx context.Context, u string) error {
	if err := r.client.Set(ctx, r.key, u, 0).Err(); err != nil {
		return fmt.Errorf("store backend url: %w", err)
	}
	r.last.Store(u)
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// parseRedisURL parses addr into UniversalOptions supporting single, cluster,
// and sentinel Redis deployments. If no scheme is present, addr is treated as
// a plain host:port string.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	opts.Addrs = strings.Split(u.Host, ",")

	q := u.Query()
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch u.Scheme {
	case "redis", "rediss":
		db := strings.TrimPrefix(u.Path, "/")
		if db == "" {
			db = q.Get("db")
		}
		if db != "" {
			n, err := strconv.Atoi(db)
			if err != nil {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
			opts.DB = n
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = tlsCfg
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if db := q.Get("db"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
			opts.DB = n
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = tlsCfg
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}

	return opts, nil
}
