// Package testonly holds a conformance suite run against every IDistributionStore backend.
package testonly

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// NewStoreFunc opens a fresh, empty store for one test
type NewStoreFunc func(t *testing.T) persistence.IDistributionStore

// MustBuildDistribution builds a small claim-balance distribution for tests
func MustBuildDistribution(t *testing.T, campaignID uint32, sortPairs bool, firstClaimID uint64) *distribution.Distribution {
	t.Helper()

	records := make([]*types.EntitlementRecord, 4)
	for i := range records {
		records[i] = &types.EntitlementRecord{
			Claimant: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
			ClaimID:  firstClaimID + uint64(i),
			Amount:   uint256.NewInt(uint64(100 * (i + 1))),
		}
	}

	b, err := distribution.NewBuilder(&distribution.Config{
		CampaignID: campaignID,
		Schema:     types.SchemaClaimBalance,
		SortPairs:  sortPairs,
	}, nil)
	require.NoError(t, err)

	dist, err := b.Build(context.Background(), records)
	require.NoError(t, err)
	return dist
}

// RequireSameDistribution compares two distributions, treating equal instants as equal times
func RequireSameDistribution(t *testing.T, expected, actual *distribution.Distribution) {
	t.Helper()
	require.NotNil(t, actual)
	require.True(t, expected.CreatedAt.Equal(actual.CreatedAt), "createdAt %v != %v", expected.CreatedAt, actual.CreatedAt)

	e := expected.Copy()
	a := actual.Copy()
	e.CreatedAt = time.Time{}
	a.CreatedAt = time.Time{}
	require.Equal(t, e, a)
}

// RunStoreTests runs the conformance suite against a backend
func RunStoreTests(t *testing.T, newStore NewStoreFunc) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := newStore(t)
		dist := MustBuildDistribution(t, 1, true, 1)

		require.NoError(t, store.SaveDistribution(dist))

		loaded, err := store.LoadDistribution(dist.CampaignID, dist.Root)
		require.NoError(t, err)
		RequireSameDistribution(t, dist, loaded)

		// Loaded proofs still verify
		for _, claim := range loaded.Claims {
			assert.True(t, loaded.Verifier().Verify(claim.Proof.Leaf, claim.Proof))
		}
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		store := newStore(t)

		loaded, err := store.LoadDistribution(404, common.HexToHash("0x01"))
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveNil", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.SaveDistribution(nil))
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		store := newStore(t)
		dist := MustBuildDistribution(t, 2, false, 1)
		require.NoError(t, store.SaveDistribution(dist))

		updated := dist.Copy()
		updated.CreatedAt = dist.CreatedAt.Add(time.Hour)
		require.NoError(t, store.SaveDistribution(updated))

		loaded, err := store.LoadDistribution(dist.CampaignID, dist.Root)
		require.NoError(t, err)
		RequireSameDistribution(t, updated, loaded)

		list, err := store.ListDistributions(dist.CampaignID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("MutationIsolation", func(t *testing.T) {
		store := newStore(t)
		dist := MustBuildDistribution(t, 3, true, 1)
		require.NoError(t, store.SaveDistribution(dist))

		dist.Claims[0].Record.Amount.SetUint64(1)

		loaded, err := store.LoadDistribution(dist.CampaignID, dist.Root)
		require.NoError(t, err)
		assert.True(t, loaded.Claims[0].Record.Amount.Eq(uint256.NewInt(100)))
	})

	t.Run("ListByCampaign", func(t *testing.T) {
		store := newStore(t)

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		first := MustBuildDistribution(t, 5, true, 1)
		first.CreatedAt = base.Add(2 * time.Minute)
		second := MustBuildDistribution(t, 5, true, 10)
		second.CreatedAt = base.Add(time.Minute)
		other := MustBuildDistribution(t, 6, true, 1)
		other.CreatedAt = base

		for _, d := range []*distribution.Distribution{first, second, other} {
			require.NoError(t, store.SaveDistribution(d))
		}

		list, err := store.ListDistributions(5)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.Root, list[0].Root)
		assert.Equal(t, first.Root, list[1].Root)

		empty, err := store.ListDistributions(7)
		require.NoError(t, err)
		assert.Empty(t, empty)

		campaigns, err := store.ListCampaigns()
		require.NoError(t, err)
		assert.Equal(t, []uint32{5, 6}, campaigns)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		dist := MustBuildDistribution(t, 8, false, 1)
		require.NoError(t, store.SaveDistribution(dist))

		require.NoError(t, store.DeleteDistribution(dist.CampaignID, dist.Root))

		loaded, err := store.LoadDistribution(dist.CampaignID, dist.Root)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		campaigns, err := store.ListCampaigns()
		require.NoError(t, err)
		assert.Empty(t, campaigns)

		// Idempotent
		require.NoError(t, store.DeleteDistribution(dist.CampaignID, dist.Root))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := newStore(t)

		dists := make([]*distribution.Distribution, 8)
		for i := range dists {
			dists[i] = MustBuildDistribution(t, 9, true, uint64(i*10+1))
		}

		var wg sync.WaitGroup
		errs := make(chan error, 2*len(dists))
		for _, d := range dists {
			wg.Add(2)
			go func(d *distribution.Distribution) {
				defer wg.Done()
				errs <- store.SaveDistribution(d)
			}(d)
			go func(d *distribution.Distribution) {
				defer wg.Done()
				_, err := store.LoadDistribution(d.CampaignID, d.Root)
				errs <- err
			}(d)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		list, err := store.ListDistributions(9)
		require.NoError(t, err)
		assert.Len(t, list, len(dists))
	})

	t.Run("Closed", func(t *testing.T) {
		store := newStore(t)
		dist := MustBuildDistribution(t, 10, true, 1)

		require.NoError(t, store.HealthCheck())
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		assert.Error(t, store.HealthCheck())
		assert.Error(t, store.SaveDistribution(dist))
		_, err := store.LoadDistribution(dist.CampaignID, dist.Root)
		assert.Error(t, err)
		_, err = store.ListDistributions(dist.CampaignID)
		assert.Error(t, err)
		_, err = store.ListCampaigns()
		assert.Error(t, err)
		assert.Error(t, store.DeleteDistribution(dist.CampaignID, dist.Root))
	})
}
