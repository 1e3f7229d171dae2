package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
)

// Key layout for distributions in Redis
const (
	keyPrefixDistribution = "rewards:dist:"
	keyPrefixCampaignSet  = "rewards:campaign:"
	keySetCampaigns       = "rewards:campaigns:index"
	keySchemaVersion      = "rewards:metadata:schema_version"
	currentSchemaVersion  = "v1"

	defaultOpTimeout = 5 * time.Second
)

// RedisStore is an IDistributionStore backed by Redis, for deployments where several
// processes serve proofs from the same distributions.
//
// Redis has no prefix iteration, so each campaign keeps a set of its roots and a global
// set tracks campaign ids.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IDistributionStore = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string `json:"address" yaml:"address"`
	// Password is the optional Redis password
	Password string `json:"password" yaml:"password"`
	// DB is the Redis database number (0-15)
	DB int `json:"db" yaml:"db"`
	// KeyPrefix is prepended to every key, e.g. "staging:" gives "staging:rewards:dist:..."
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// NewRedisStore connects to Redis and validates the schema version
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis distribution store initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rs, nil
}

func (r *RedisStore) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisStore) distributionKey(campaignID uint32, root common.Hash) string {
	return r.prefixKey(fmt.Sprintf("%s%d:%s", keyPrefixDistribution, campaignID, root.Hex()))
}

func (r *RedisStore) campaignSetKey(campaignID uint32) string {
	return r.prefixKey(fmt.Sprintf("%s%d:roots", keyPrefixCampaignSet, campaignID))
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// SaveDistribution persists a distribution and indexes it under its campaign
func (r *RedisStore) SaveDistribution(dist *distribution.Distribution) error {
	if dist == nil {
		return fmt.Errorf("cannot save nil Distribution")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("distribution store is closed")
	}

	data, err := persistence.MarshalDistribution(dist)
	if err != nil {
		return fmt.Errorf("failed to marshal Distribution: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.distributionKey(dist.CampaignID, dist.Root), data, 0)
		pipe.SAdd(ctx, r.campaignSetKey(dist.CampaignID), dist.Root.Hex())
		pipe.SAdd(ctx, r.prefixKey(keySetCampaigns), dist.CampaignID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save Distribution: %w", err)
	}
	return nil
}

// LoadDistribution retrieves a distribution
func (r *RedisStore) LoadDistribution(campaignID uint32, root common.Hash) (*distribution.Distribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	return r.load(ctx, campaignID, root)
}

func (r *RedisStore) load(ctx context.Context, campaignID uint32, root common.Hash) (*distribution.Distribution, error) {
	data, err := r.client.Get(ctx, r.distributionKey(campaignID, root)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Distribution: %w", err)
	}

	dist, err := persistence.UnmarshalDistribution(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Distribution: %w", err)
	}
	return dist, nil
}

// ListDistributions returns a campaign's distributions sorted by creation time
func (r *RedisStore) ListDistributions(campaignID uint32) ([]*distribution.Distribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	roots, err := r.client.SMembers(ctx, r.campaignSetKey(campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Distributions: %w", err)
	}

	dists := make([]*distribution.Distribution, 0, len(roots))
	for _, rootHex := range roots {
		dist, err := r.load(ctx, campaignID, common.HexToHash(rootHex))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to load Distribution, skipping",
				"campaign", campaignID, "root", rootHex, "error", err)
			continue
		}
		if dist == nil {
			// Stale index entry
			r.client.SRem(ctx, r.campaignSetKey(campaignID), rootHex)
			continue
		}
		dists = append(dists, dist)
	}

	persistence.SortDistributions(dists)
	return dists, nil
}

// ListCampaigns returns every campaign id with a stored distribution
func (r *RedisStore) ListCampaigns() ([]uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.prefixKey(keySetCampaigns)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			r.logger.Sugar().Warnw("Invalid campaign id in index, skipping", "member", m, "error", err)
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids, nil
}

// DeleteDistribution removes a distribution and its index entries
func (r *RedisStore) DeleteDistribution(campaignID uint32, root common.Hash) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("distribution store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	var remaining *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.distributionKey(campaignID, root))
		pipe.SRem(ctx, r.campaignSetKey(campaignID), root.Hex())
		remaining = pipe.SCard(ctx, r.campaignSetKey(campaignID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete Distribution: %w", err)
	}

	if remaining.Val() == 0 {
		if err := r.client.SRem(ctx, r.prefixKey(keySetCampaigns), campaignID).Err(); err != nil {
			return fmt.Errorf("failed to update campaign index: %w", err)
		}
	}
	return nil
}

// Close shuts down the store
func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis distribution store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("distribution store is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may be corrupted")
	}
	return err
}
