package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore is the alternate cache.Store backend for deployments that
// want a shared, non-filesystem cache, mirroring the teacher's
// NewRedisCache. Unlike the teacher's httpcache-backed Redis cache
// (which relies on ETag revalidation and has no notion of freshness),
// this store needs a timestamp to support spec §4.2's mtime-based
// expiry, so each value is a small JSON envelope instead of a raw blob.
type RedisStore struct {
	pool *redis.Pool
}

type envelope struct {
	Body       []byte `json:"body"`
	StoredAtMS int64  `json:"stored_at_ms"`
}

// NewRedisStore creates a RedisStore dialing addr lazily through a
// connection pool, the same gomodule/redigo client the teacher uses.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		pool: &redis.Pool{
			MaxIdle:     8,
			IdleTimeout: 5 * time.Minute,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr) },
		},
	}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}

// Open implements Store.
func (s *RedisStore) Open(key string, expire time.Duration) (io.ReadCloser, time.Time, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, err
	}
	storedAt := time.UnixMilli(env.StoredAtMS)
	if expire > 0 && time.Since(storedAt) > expire {
		return nil, time.Time{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(env.Body)), storedAt, nil
}

// Write implements Store.
func (s *RedisStore) Write(key string, body []byte) error {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := json.Marshal(envelope{Body: body, StoredAtMS: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	_, err = conn.Do("SET", key, raw)
	return err
}
