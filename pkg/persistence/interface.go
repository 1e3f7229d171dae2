package persistence

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
)

// IDistributionStore defines the interface for persisting published distributions.
// All implementations must be thread-safe as builds and lookups run concurrently.
//
// A distribution is keyed by its campaign id and merkle root. A campaign may have
// several distributions, one per published root.
type IDistributionStore interface {
	// SaveDistribution persists a distribution under (campaignID, root).
	// Overwrites any existing distribution with the same key (idempotent).
	SaveDistribution(dist *distribution.Distribution) error

	// LoadDistribution retrieves a distribution by campaign and root.
	// Returns nil if the distribution doesn't exist, error only on storage failure.
	LoadDistribution(campaignID uint32, root common.Hash) (*distribution.Distribution, error)

	// ListDistributions returns all distributions of a campaign sorted by creation time (ascending).
	// Returns empty slice if none exist, error only on storage failure.
	ListDistributions(campaignID uint32) ([]*distribution.Distribution, error)

	// ListCampaigns returns the ids of every campaign with at least one distribution, ascending.
	ListCampaigns() ([]uint32, error)

	// DeleteDistribution removes a distribution.
	// Idempotent - returns nil if it doesn't exist.
	DeleteDistribution(campaignID uint32, root common.Hash) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
