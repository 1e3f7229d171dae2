package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/config"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence/badger"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence/memory"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence/redis"
)

// openStore creates the distribution store selected by the config
func openStore(cfg *config.StoreConfig, l *zap.Logger) (persistence.IDistributionStore, error) {
	switch cfg.Type {
	case persistence.StoreTypeMemory:
		return memory.NewMemoryStore(), nil
	case persistence.StoreTypeBadger:
		store, err := badger.NewBadgerStore(cfg.BadgerPath, nil, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	case persistence.StoreTypeRedis:
		store, err := redis.NewRedisStore(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}
