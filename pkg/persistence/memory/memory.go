package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
)

// MemoryStore is an in-memory implementation of IDistributionStore.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Distributions are deep copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	// campaign id -> root -> distribution
	campaigns map[uint32]map[common.Hash]*distribution.Distribution

	closed bool
}

var _ persistence.IDistributionStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory distribution store.
// Prints a loud warning since this should only be used for testing.
func NewMemoryStore() *MemoryStore {
	fmt.Println("⚠️  WARNING: Using in-memory distribution store - ALL DATA WILL BE LOST ON EXIT")
	fmt.Println("⚠️  This should ONLY be used for testing. Set REWARD_TREE_STORE_TYPE=badger to keep distributions")

	return &MemoryStore{
		campaigns: make(map[uint32]map[common.Hash]*distribution.Distribution),
	}
}

// SaveDistribution persists a distribution.
func (m *MemoryStore) SaveDistribution(dist *distribution.Distribution) error {
	if dist == nil {
		return fmt.Errorf("cannot save nil Distribution")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("distribution store is closed")
	}

	roots, ok := m.campaigns[dist.CampaignID]
	if !ok {
		roots = make(map[common.Hash]*distribution.Distribution)
		m.campaigns[dist.CampaignID] = roots
	}
	roots[dist.Root] = dist.Copy()

	return nil
}

// LoadDistribution retrieves a distribution by campaign and root.
func (m *MemoryStore) LoadDistribution(campaignID uint32, root common.Hash) (*distribution.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	dist, exists := m.campaigns[campaignID][root]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return dist.Copy(), nil
}

// ListDistributions returns a campaign's distributions sorted by creation time.
func (m *MemoryStore) ListDistributions(campaignID uint32) ([]*distribution.Distribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	result := make([]*distribution.Distribution, 0, len(m.campaigns[campaignID]))
	for _, dist := range m.campaigns[campaignID] {
		result = append(result, dist.Copy())
	}
	persistence.SortDistributions(result)

	return result, nil
}

// ListCampaigns returns every campaign id with a stored distribution.
func (m *MemoryStore) ListCampaigns() ([]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("distribution store is closed")
	}

	ids := make([]uint32, 0, len(m.campaigns))
	for id, roots := range m.campaigns {
		if len(roots) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	return ids, nil
}

// DeleteDistribution removes a distribution.
func (m *MemoryStore) DeleteDistribution(campaignID uint32, root common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("distribution store is closed")
	}

	roots, ok := m.campaigns[campaignID]
	if !ok {
		return nil
	}
	delete(roots, root)
	if len(roots) == 0 {
		delete(m.campaigns, campaignID)
	}

	return nil
}

// Close marks the store as closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck reports whether the store is open.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("distribution store is closed")
	}
	return nil
}
