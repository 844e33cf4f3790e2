package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only when it is still held by the caller.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisOptions configures a RedisManager.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string        // Namespace for lock keys, e.g. "bucketfs:lock:"
	TTL       time.Duration // Upper bound on how long a crashed owner can hold a lock
}

// RedisManager implements locking shared by every host mounting the same
// localfs root, using SET NX with an owner token and a TTL.
type RedisManager struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	ttl       time.Duration
	ownerID   string
}

// NewRedisManager connects to Redis and returns a lock manager owned by this process.
func NewRedisManager(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisManager, error) {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "bucketfs:lock:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return &RedisManager{
		client:    client,
		logger:    logger,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		ownerID:   uuid.NewString(),
	}, nil
}

// Acquire takes the lock for key if no other owner holds it
func (m *RedisManager) Acquire(ctx context.Context, key string) (bool, error) {
	acquired, err := m.client.SetNX(ctx, m.keyPrefix+key, m.ownerID, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
	}

	if acquired {
		m.logger.Debug("Lock acquired",
			zap.String("key", key),
			zap.Duration("ttl", m.ttl))
	}
	return acquired, nil
}

// Release drops the lock for key when this manager still owns it
func (m *RedisManager) Release(ctx context.Context, key string) error {
	deleted, err := releaseScript.Run(ctx, m.client, []string{m.keyPrefix + key}, m.ownerID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock for key %s: %w", key, err)
	}

	if deleted == 0 {
		m.logger.Warn("Lock expired before release", zap.String("key", key))
	}
	return nil
}

// Close closes the Redis client connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}
