package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"charging-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/reserve_port.lua
var reservePortScript string

//go:embed scripts/release_port.lua
var releasePortScript string

//go:embed scripts/unlock.lua
var unlockScript string

const (
	defaultLockTTL        = 10 * time.Second
	lockRetryInterval     = 20 * time.Millisecond
	defaultIdempotencyTTL = 24 * time.Hour
)

type Client struct {
	rdb            *redis.Client
	reserveScript  *redis.Script
	releaseScript  *redis.Script
	unlockScript   *redis.Script
	idempotencyTTL time.Duration
	lockTTL        time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		reserveScript:  redis.NewScript(reservePortScript),
		releaseScript:  redis.NewScript(releasePortScript),
		unlockScript:   redis.NewScript(unlockScript),
		idempotencyTTL: defaultIdempotencyTTL,
		lockTTL:        defaultLockTTL,
	}
}

// SetIdempotencyTTL overrides how long stored responses are replayed.
func (c *Client) SetIdempotencyTTL(ttl time.Duration) {
	if ttl > 0 {
		c.idempotencyTTL = ttl
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func portsKey(stationID string) string {
	return fmt.Sprintf("station:%s:ports", stationID)
}

// InitStation overwrites the port counters of a station
func (c *Client) InitStation(ctx context.Context, stationID string, total, available int, offline bool) error {
	return c.rdb.HSet(ctx, portsKey(stationID),
		"total", total,
		"available", available,
		"offline", boolFlag(offline),
	).Err()
}

// SetStationOffline toggles the offline flag without touching the counters
func (c *Client) SetStationOffline(ctx context.Context, stationID string, offline bool) error {
	key := portsKey(stationID)
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrStationNotFound
	}
	return c.rdb.HSet(ctx, key, "offline", boolFlag(offline)).Err()
}

// ReservePort atomically takes one port using a Lua script and returns the
// assigned port number.
func (c *Client) ReservePort(ctx context.Context, stationID string) (int, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{portsKey(stationID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("reserve port script failed: %w", err)
	}

	switch {
	case result == -1:
		return 0, models.ErrStationNotFound
	case result == -2:
		return 0, models.ErrStationOffline
	case result == 0:
		return 0, models.ErrNoPortsAvailable
	}
	return result, nil
}

// ReleasePort atomically returns one port, capped at the station total
func (c *Client) ReleasePort(ctx context.Context, stationID string) error {
	result, err := c.releaseScript.Run(ctx, c.rdb, []string{portsKey(stationID)}).Int()
	if err != nil {
		return fmt.Errorf("release port script failed: %w", err)
	}
	if result == -1 {
		return models.ErrStationNotFound
	}
	return nil
}

// GetAvailability returns the available count of every known station in ids
func (c *Client) GetAvailability(ctx context.Context, stationIDs []string) (map[string]int, error) {
	pipe := c.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(stationIDs))
	for _, id := range stationIDs {
		cmds[id] = pipe.HGet(ctx, portsKey(id), "available")
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	availability := make(map[string]int, len(stationIDs))
	for id, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("corrupt availability for station %s: %w", id, err)
		}
		availability[id] = n
	}
	return availability, nil
}

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// LoadResponse returns the response stored under an idempotency key
func (c *Client) LoadResponse(ctx context.Context, key string) (int, []byte, bool, error) {
	raw, err := c.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}

	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return 0, nil, false, fmt.Errorf("corrupt idempotency record: %w", err)
	}
	return stored.Status, stored.Body, true, nil
}

// SaveResponse stores a response under an idempotency key. The first
// writer wins.
func (c *Client) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	raw, err := json.Marshal(storedResponse{Status: status, Body: body})
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, idempotencyKey(key), raw, c.idempotencyTTL).Err()
}

// AcquireLock acquires a distributed lock owned by the returned token
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.unlockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

// Lock blocks until the lock is acquired or ctx is done.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		token, ok, err := c.AcquireLock(ctx, key, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = c.ReleaseLock(releaseCtx, key, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
