package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Key layout consumed by the data-plane proxy. The cache is a derived
// projection of the durable store, never the authoritative read path.
//
//	routes:{id}                                  serialized Route
//	routes:index:host:{host}                     set of route ids
//	routes:index:enabled                         set of route ids
//	upstreams:{route_id}                         list of "addr:port:weight"
//	upstreams:health:{route_id}:{addr}:{port}    "healthy"/"unhealthy", 60 s TTL
//	certs:{domain}                               serialized Certificate
//	certs:index:expiring                         zset scored by expiry
//	acme:challenge:{token}                       key authorization, 300 s TTL
//	config:version                               monotonic change counter
const (
	upstreamHealthTTL = 60 * time.Second
	challengeTTL      = 300 * time.Second
)

// Cache is the hot layer backed by Redis.
type Cache struct {
	rdb *redis.Client
}

// OpenCache connects to Redis and verifies the connection.
func OpenCache(ctx context.Context, url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Cache{rdb: rdb}, nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// MirrorRoute writes the route projection in one pipelined batch and bumps
// config:version so the proxy sees the change. A host move also drops the
// id from the previous host's index set.
func (c *Cache) MirrorRoute(ctx context.Context, r core.Route) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding route %s: %w", r.ID, err)
	}
	prevHost := ""
	if raw, err := c.rdb.Get(ctx, "routes:"+r.ID).Bytes(); err == nil {
		var prev core.Route
		if json.Unmarshal(raw, &prev) == nil {
			prevHost = prev.Host
		}
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, "routes:"+r.ID, data, 0)
	if prevHost != "" && prevHost != r.Host {
		pipe.SRem(ctx, "routes:index:host:"+prevHost, r.ID)
	}
	pipe.SAdd(ctx, "routes:index:host:"+r.Host, r.ID)
	if r.Enabled {
		pipe.SAdd(ctx, "routes:index:enabled", r.ID)
	} else {
		pipe.SRem(ctx, "routes:index:enabled", r.ID)
	}
	pipe.Del(ctx, "upstreams:"+r.ID)
	for _, u := range r.Upstreams {
		pipe.RPush(ctx, "upstreams:"+r.ID, fmt.Sprintf("%s:%d:%d", u.Address, u.Port, u.Weight))
	}
	pipe.Incr(ctx, "config:version")
	_, err = pipe.Exec(ctx)
	return err
}

// PurgeRoute removes the route projection, including its host-index and
// enabled-set entries, and bumps config:version.
func (c *Cache) PurgeRoute(ctx context.Context, r core.Route) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, "routes:"+r.ID)
	pipe.Del(ctx, "upstreams:"+r.ID)
	pipe.SRem(ctx, "routes:index:host:"+r.Host, r.ID)
	pipe.SRem(ctx, "routes:index:enabled", r.ID)
	pipe.Incr(ctx, "config:version")
	_, err := pipe.Exec(ctx)
	return err
}

// HasRoute reports whether the projection holds the route.
func (c *Cache) HasRoute(ctx context.Context, id string) (bool, error) {
	n, err := c.rdb.Exists(ctx, "routes:"+id).Result()
	return n > 0, err
}

// SetUpstreamHealth flags one upstream. The flag expires on its own so a
// dead health checker demotes nothing forever.
func (c *Cache) SetUpstreamHealth(ctx context.Context, routeID, address string, port int, healthy bool) error {
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	key := fmt.Sprintf("upstreams:health:%s:%s:%d", routeID, address, port)
	return c.rdb.Set(ctx, key, status, upstreamHealthTTL).Err()
}

// UpstreamHealth reads one upstream flag; "" when the flag is absent or
// expired.
func (c *Cache) UpstreamHealth(ctx context.Context, routeID, address string, port int) (string, error) {
	key := fmt.Sprintf("upstreams:health:%s:%s:%d", routeID, address, port)
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// MirrorCertificate writes the certificate projection and its expiry-index
// entry.
func (c *Cache) MirrorCertificate(ctx context.Context, cert core.Certificate) error {
	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encoding certificate %s: %w", cert.Domain, err)
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, "certs:"+cert.Domain, data, 0)
	pipe.ZAdd(ctx, "certs:index:expiring", redis.Z{
		Score:  float64(cert.ExpiresAt.Unix()),
		Member: cert.Domain,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// PurgeCertificate removes the certificate projection.
func (c *Cache) PurgeCertificate(ctx context.Context, domain string) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, "certs:"+domain)
	pipe.ZRem(ctx, "certs:index:expiring", domain)
	_, err := pipe.Exec(ctx)
	return err
}

// SetChallenge publishes an ACME HTTP-01 key authorization for the external
// proxy to serve. The TTL bounds how long a stale order can linger.
func (c *Cache) SetChallenge(ctx context.Context, token, keyAuth string) error {
	return c.rdb.Set(ctx, "acme:challenge:"+token, keyAuth, challengeTTL).Err()
}

// GetChallenge returns the key authorization for a token.
func (c *Cache) GetChallenge(ctx context.Context, token string) (string, error) {
	v, err := c.rdb.Get(ctx, "acme:challenge:"+token).Result()
	if err == redis.Nil {
		return "", core.Errorf(core.KindNotFound, "challenge %s not found", token)
	}
	return v, err
}

// DeleteChallenge removes a published key authorization.
func (c *Cache) DeleteChallenge(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, "acme:challenge:"+token).Err()
}

// ConfigVersion returns the current routing-table version; 0 before the
// first mutation.
func (c *Cache) ConfigVersion(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, "config:version").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
