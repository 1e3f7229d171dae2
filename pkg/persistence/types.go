package persistence

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
)

// StoreType names a persistence backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// DistributionKey identifies a stored distribution
type DistributionKey struct {
	CampaignID uint32
	Root       common.Hash
}

// KeyOf returns the storage key of a distribution
func KeyOf(dist *distribution.Distribution) DistributionKey {
	return DistributionKey{CampaignID: dist.CampaignID, Root: dist.Root}
}

// String renders the key as campaign/root, as used by the key-value backends
func (k DistributionKey) String() string {
	return fmt.Sprintf("%010d/%s", k.CampaignID, k.Root.Hex())
}

// SortDistributions orders distributions by creation time, then root
func SortDistributions(dists []*distribution.Distribution) {
	sort.Slice(dists, func(i, j int) bool {
		if !dists[i].CreatedAt.Equal(dists[j].CreatedAt) {
			return dists[i].CreatedAt.Before(dists[j].CreatedAt)
		}
		return dists[i].Root.Cmp(dists[j].Root) < 0
	})
}
