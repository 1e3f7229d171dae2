package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixDistribution = "dist:"
	keySchemaVersion      = "metadata:schema_version"
	currentSchemaVersion  = "v1"

	defaultGCInterval = 5 * time.Minute
)

// BadgerStore is a durable IDistributionStore backed by Badger.
//
// Distributions are stored as JSON under dist:<campaign id, 4 bytes big-endian><root, 32 bytes>,
// so a prefix scan over dist:<campaign id> lists one campaign.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IDistributionStore = (*BadgerStore)(nil)

// Options tunes the Badger store
type Options struct {
	// InMemory keeps the database off disk, used by tests
	InMemory   bool
	GCInterval time.Duration
}

// NewBadgerStore opens a Badger-backed store at dataPath.
// The database is opened with SyncWrites enabled for durability and a background
// goroutine runs value log garbage collection.
func NewBadgerStore(dataPath string, opts *Options, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = &Options{}
	}

	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		absPath, err := filepath.Abs(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		dataPath = absPath
		bopts = badgerdb.DefaultOptions(absPath)
		bopts.SyncWrites = true
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = newBadgerLoggerAdapter(logger)
	bopts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dataPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	gcInterval := opts.GCInterval
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx, gcInterval, opts.InMemory)

	logger.Sugar().Infow("Badger distribution store initialized", "path", dataPath, "inMemory", opts.InMemory)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

// runGC runs periodic value log garbage collection until ctx is cancelled
func (b *BadgerStore) runGC(ctx context.Context, interval time.Duration, inMemory bool) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if inMemory {
				continue
			}
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func campaignPrefix(campaignID uint32) []byte {
	key := make([]byte, 0, len(keyPrefixDistribution)+4)
	key = append(key, keyPrefixDistribution...)
	return binary.BigEndian.AppendUint32(key, campaignID)
}

func distributionKey(campaignID uint32, root common.Hash) []byte {
	return append(campaignPrefix(campaignID), root[:]...)
}

// SaveDistribution persists a distribution
func (b *BadgerStore) SaveDistribution(dist *distribution.Distribution) error {
	if dist == nil {
		return fmt.Errorf("cannot save nil Distribution")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("distribution store is closed")
	}

	data, err := persistence.MarshalDistribution(dist)
	if err != nil {
		return fmt.Errorf("failed to marshal Distribution: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(distributionKey(dist.CampaignID, dist.Root), data)
	})
}

// LoadDistribution retrieves a distribution
func (b *BadgerStore) LoadDistribution(campaignID uint32, root common.Hash) (*distribution.Distribution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(distributionKey(campaignID, root))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Distribution: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	dist, err := persistence.UnmarshalDistribution(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Distribution: %w", err)
	}
	return dist, nil
}

// ListDistributions returns a campaign's distributions sorted by creation time
func (b *BadgerStore) ListDistributions(campaignID uint32) ([]*distribution.Distribution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	dists := make([]*distribution.Distribution, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = campaignPrefix(campaignID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			dist, err := persistence.UnmarshalDistribution(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Distribution, skipping",
					"key", fmt.Sprintf("%x", item.Key()), "error", err)
				continue
			}
			dists = append(dists, dist)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Distributions: %w", err)
	}

	persistence.SortDistributions(dists)
	return dists, nil
}

// ListCampaigns returns every campaign id with a stored distribution
func (b *BadgerStore) ListCampaigns() ([]uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	seen := make(map[uint32]struct{})
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixDistribution)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) != len(keyPrefixDistribution)+4+common.HashLength {
				continue
			}
			seen[binary.BigEndian.Uint32(key[len(keyPrefixDistribution):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	ids := make([]uint32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids, nil
}

// DeleteDistribution removes a distribution
func (b *BadgerStore) DeleteDistribution(campaignID uint32, root common.Hash) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("distribution store is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(distributionKey(campaignID, root))
	})
}

// Close shuts down the store
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger distribution store closed")
	return nil
}

// HealthCheck verifies the store is operational
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("distribution store is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
