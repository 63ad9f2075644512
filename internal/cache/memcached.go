package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedCache implements Cache using memcached with JSON-encoded values.
// namespace separates document kinds sharing one server (e.g. "current", "forecast").
type MemcachedCache[T any] struct {
	client    *memcache.Client
	namespace string
}

// NewMemcacheClient builds a memcache client. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcacheClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache creates a MemcachedCache over an existing client.
func NewMemcachedCache[T any](client *memcache.Client, namespace string) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client, namespace: namespace}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// MaxKeyLength is the memcached key limit in bytes.
const MaxKeyLength = 250

// Key builds a memcached-safe key from prefix and k. Whitespace and control
// characters become '_'. Keys longer than MaxKeyLength are replaced by
// prefix plus the SHA-256 of k.
func Key(prefix, k string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, k)
	if len(prefix)+len(safe) <= MaxKeyLength {
		return prefix + safe
	}
	sum := sha256.Sum256([]byte(k))
	return prefix + "sha256:" + hex.EncodeToString(sum[:])
}

func (c *MemcachedCache[T]) key(k string) string {
	return Key("sweth:"+c.namespace+":", k)
}

func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}
