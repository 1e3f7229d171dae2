package distribution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-merkle-go/pkg/leaf"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

const (
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	aliceHex = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	bob      = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	bobHex   = "0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"

	pinnedPositionalRoot = "0xb0885a06a169891b562c9ed1b43510422328d6975923d72b661e084e119dde80"
	pinnedSortedRoot     = "0x2e97ed383fd6a5fa631d015eb018432ebb49fe1054850e35e009c3b324d0a2de"
)

func idBalanceRecords() []*types.EntitlementRecord {
	return []*types.EntitlementRecord{
		{ID: uint256.NewInt(2), Amount: uint256.NewInt(10)},
		{ID: uint256.NewInt(3), Amount: uint256.NewInt(25)},
		{ID: uint256.NewInt(4), Amount: uint256.NewInt(50)},
		{ID: uint256.NewInt(5), Amount: uint256.NewInt(75)},
	}
}

func accountRecords() []*types.EntitlementRecord {
	return []*types.EntitlementRecord{
		{Claimant: alice, Amount: uint256.NewInt(100)},
		{Claimant: bobHex, Amount: uint256.NewInt(200)},
		{Claimant: "0x" + strings.Repeat("11", 32), Amount: uint256.NewInt(300)},
		{Claimant: "0x" + strings.Repeat("22", 32), Amount: uint256.NewInt(400)},
	}
}

func claimRecords(n int) []*types.EntitlementRecord {
	records := make([]*types.EntitlementRecord, n)
	for i := range records {
		records[i] = &types.EntitlementRecord{
			Claimant: alice,
			ClaimID:  uint64(i + 1),
			Amount:   uint256.NewInt(uint64(1000 + i)),
		}
	}
	return records
}

func nftRecords(n int) []*types.EntitlementRecord {
	records := make([]*types.EntitlementRecord, n)
	for i := range records {
		records[i] = &types.EntitlementRecord{
			Claimant: bob,
			ClaimID:  uint64(i + 1),
			Tokens:   []types.NftToken{{ClassID: 7, TokenID: uint64(i)}, {ClassID: 8, TokenID: uint64(i)}},
		}
	}
	return records
}

func newTestBuilder(t *testing.T, cfg *Config) *Builder {
	t.Helper()
	b, err := NewBuilder(cfg, nil)
	require.NoError(t, err)
	return b
}

func assertAllClaimsVerify(t *testing.T, dist *Distribution) {
	t.Helper()
	verifier := dist.Verifier()
	for i, claim := range dist.Claims {
		require.NotNil(t, claim, "claim %d", i)
		require.Equal(t, i, claim.Proof.LeafIndex)
		require.Equal(t, merkle.HashLeaf(claim.Leaf), claim.Proof.Leaf)
		require.True(t, verifier.Verify(claim.Proof.Leaf, claim.Proof), "claim %d should verify", i)
		require.True(t, merkle.VerifyHexProof(claim.Proof.ToHex(), dist.Root.Hex(), dist.Depth, dist.SortPairs))
	}
}

func TestBuild_PinnedRoots(t *testing.T) {
	testCases := []struct {
		name      string
		sortPairs bool
		root      string
		protocol  string
	}{
		{"positional", false, pinnedPositionalRoot, merkle.ProtocolPositional},
		{"sorted", true, pinnedSortedRoot, merkle.ProtocolSorted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(t, &Config{CampaignID: 9, Schema: types.SchemaIdBalance, SortPairs: tc.sortPairs})

			dist, err := b.Build(context.Background(), idBalanceRecords())
			require.NoError(t, err)

			assert.Equal(t, tc.root, dist.Root.Hex())
			assert.Equal(t, tc.protocol, dist.Protocol)
			assert.Equal(t, uint32(9), dist.CampaignID)
			assert.Equal(t, types.SchemaIdBalance, dist.Schema)
			assert.Equal(t, 2, dist.Depth)
			assert.Equal(t, 4, dist.LeafCount)
			assert.Equal(t, 0, dist.Padding)
			assert.Len(t, dist.Claims, 4)
			assert.Len(t, dist.ClaimIndex, 4)
			assert.False(t, dist.CreatedAt.IsZero())
			assertAllClaimsVerify(t, dist)

			claim, err := dist.ClaimFor("id:3", 0)
			require.NoError(t, err)
			assert.Equal(t, "id:3", claim.Claimant)
			assert.Equal(t, 1, claim.Proof.LeafIndex)
			assert.True(t, claim.Record.Amount.Eq(uint256.NewInt(25)))
		})
	}
}

func TestBuild_SortedRootIgnoresInputOrder(t *testing.T) {
	b := newTestBuilder(t, &Config{Schema: types.SchemaIdBalance, SortPairs: true})

	records := idBalanceRecords()
	reversed := []*types.EntitlementRecord{records[3], records[2], records[1], records[0]}

	dist, err := b.Build(context.Background(), records)
	require.NoError(t, err)
	distReversed, err := b.Build(context.Background(), reversed)
	require.NoError(t, err)

	require.Equal(t, dist.Root, distReversed.Root)
	require.NotEqual(t, dist.ID, distReversed.ID)

	// The claim index follows the input, so the same claimant now points at a different leaf index
	entry, ok := dist.Lookup("id:2", 0)
	require.True(t, ok)
	entryReversed, ok := distReversed.Lookup("id:2", 0)
	require.True(t, ok)
	require.Equal(t, 0, entry.LeafIndex)
	require.Equal(t, 3, entryReversed.LeafIndex)
	require.Equal(t, dist.Claims[0].Proof.Hashes(), distReversed.Claims[3].Proof.Hashes())
}

func TestBuild_AllSchemas(t *testing.T) {
	testCases := []struct {
		schema  types.Schema
		records []*types.EntitlementRecord
	}{
		{types.SchemaIdBalance, idBalanceRecords()},
		{types.SchemaAccountBalance, accountRecords()},
		{types.SchemaClaimBalance, claimRecords(8)},
		{types.SchemaClaimNft, nftRecords(16)},
	}

	for _, tc := range testCases {
		for _, sortPairs := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/sorted=%v", tc.schema, sortPairs), func(t *testing.T) {
				b := newTestBuilder(t, &Config{Schema: tc.schema, SortPairs: sortPairs})

				dist, err := b.Build(context.Background(), tc.records)
				require.NoError(t, err)
				require.Equal(t, len(tc.records), dist.LeafCount)
				assertAllClaimsVerify(t, dist)

				require.True(t, sort.SliceIsSorted(dist.ClaimIndex, func(a, b int) bool {
					return dist.ClaimIndex[a].Less(dist.ClaimIndex[b].Claimant, dist.ClaimIndex[b].ClaimID)
				}))
				for _, entry := range dist.ClaimIndex {
					claim, err := dist.ClaimFor(entry.Claimant, entry.ClaimID)
					require.NoError(t, err)
					require.Equal(t, entry.LeafIndex, claim.Proof.LeafIndex)
				}
			})
		}
	}
}

func TestBuild_AccountLookupAcceptsEitherForm(t *testing.T) {
	b := newTestBuilder(t, &Config{Schema: types.SchemaAccountBalance})

	dist, err := b.Build(context.Background(), accountRecords())
	require.NoError(t, err)

	bySS58, err := dist.ClaimFor(alice, 0)
	require.NoError(t, err)
	byHex, err := dist.ClaimFor(aliceHex, 0)
	require.NoError(t, err)
	require.Same(t, bySS58, byHex)
	require.Equal(t, aliceHex, bySS58.Claimant)

	bobClaim, err := dist.ClaimFor(bob, 0)
	require.NoError(t, err)
	require.Equal(t, 1, bobClaim.Proof.LeafIndex)

	_, err = dist.ClaimFor(alice, 1)
	require.ErrorIs(t, err, ErrClaimNotFound)
}

func TestBuild_Unbalanced(t *testing.T) {
	b := newTestBuilder(t, &Config{Schema: types.SchemaIdBalance})

	_, err := b.Build(context.Background(), idBalanceRecords()[:3])
	require.ErrorIs(t, err, merkle.ErrUnbalancedTree)
}

func TestBuild_PadToPowerOfTwo(t *testing.T) {
	testCases := []struct {
		schema  types.Schema
		records []*types.EntitlementRecord
	}{
		{types.SchemaIdBalance, idBalanceRecords()[:3]},
		{types.SchemaAccountBalance, accountRecords()[:3]},
		{types.SchemaClaimBalance, claimRecords(5)},
		{types.SchemaClaimNft, nftRecords(9)},
	}

	for _, tc := range testCases {
		t.Run(tc.schema.String(), func(t *testing.T) {
			b := newTestBuilder(t, &Config{Schema: tc.schema, SortPairs: true, PadToPowerOfTwo: true})

			dist, err := b.Build(context.Background(), tc.records)
			require.NoError(t, err)

			expectedLeaves := merkle.NextPowerOfTwo(len(tc.records))
			require.Equal(t, expectedLeaves, dist.LeafCount)
			require.Equal(t, expectedLeaves-len(tc.records), dist.Padding)
			require.Len(t, dist.Claims, len(tc.records))
			require.Len(t, dist.ClaimIndex, len(tc.records))
			assertAllClaimsVerify(t, dist)
		})
	}
}

func TestPadToPowerOfTwo(t *testing.T) {
	records := claimRecords(5)

	padded, fillers := PadToPowerOfTwo(types.SchemaClaimBalance, records)
	require.Equal(t, 3, fillers)
	require.Len(t, padded, 8)
	require.Len(t, records, 5)

	// Fillers are zero-amount and pairwise distinct
	encoded, err := leaf.EncodeAll(context.Background(), types.SchemaClaimBalance, padded, nil)
	require.NoError(t, err)
	require.NoError(t, checkDuplicateLeaves(encoded))
	for _, f := range padded[5:] {
		require.True(t, f.Amount.IsZero())
	}

	balanced, fillers := PadToPowerOfTwo(types.SchemaClaimBalance, claimRecords(4))
	require.Equal(t, 0, fillers)
	require.Len(t, balanced, 4)
}

func TestPadToPowerOfTwo_FillerSentinels(t *testing.T) {
	// The k-th filler takes the top of the schema's identifying range
	ids, fillers := PadToPowerOfTwo(types.SchemaIdBalance, idBalanceRecords()[:3])
	require.Equal(t, 1, fillers)
	assert.Equal(t, "0x"+strings.Repeat("ff", 16), ids[3].ID.Hex())
	assert.Empty(t, ids[3].Claimant)

	accounts, fillers := PadToPowerOfTwo(types.SchemaAccountBalance, accountRecords()[:3])
	require.Equal(t, 1, fillers)
	assert.Equal(t, "0x"+strings.Repeat("ff", 32), accounts[3].Claimant)

	accounts, fillers = PadToPowerOfTwo(types.SchemaAccountBalance, accountRecords()[:1])
	require.Equal(t, 0, fillers)
	require.Len(t, accounts, 1)

	padded, fillers := PadToPowerOfTwo(types.SchemaClaimBalance, claimRecords(5))
	require.Equal(t, 3, fillers)
	for k, f := range padded[5:] {
		assert.Empty(t, f.Claimant)
		assert.Equal(t, math.MaxUint64-uint64(k), f.ClaimID)
		assert.True(t, f.Amount.IsZero())
	}

	nfts, fillers := PadToPowerOfTwo(types.SchemaClaimNft, nftRecords(6))
	require.Equal(t, 2, fillers)
	for k, f := range nfts[6:] {
		assert.Empty(t, f.Claimant)
		assert.Equal(t, math.MaxUint64-uint64(k), f.ClaimID)
	}

	// Fillers never reach the claim index
	b := newTestBuilder(t, &Config{Schema: types.SchemaClaimBalance, PadToPowerOfTwo: true})
	dist, err := b.Build(context.Background(), claimRecords(5))
	require.NoError(t, err)
	assert.Equal(t, 3, dist.Padding)
	assert.Len(t, dist.Claims, 5)
	for _, claim := range dist.Claims {
		assert.Less(t, claim.ClaimID, uint64(6))
	}
}

func TestBuild_PaddingCollisionIsDuplicateLeaf(t *testing.T) {
	records := append(claimRecords(2), &types.EntitlementRecord{
		Claimant: bob,
		ClaimID:  math.MaxUint64,
		Amount:   uint256.NewInt(0),
	})

	b, err := NewBuilder(&Config{Schema: types.SchemaClaimBalance, PadToPowerOfTwo: true}, nil)
	require.NoError(t, err)
	_, err = b.Build(context.Background(), records)
	require.ErrorIs(t, err, ErrDuplicateLeaf)
}

func TestBuild_Errors(t *testing.T) {
	dup := idBalanceRecords()
	dup[1] = dup[0].Copy()

	sameClaim := claimRecords(2)
	sameClaim[1].ClaimID = sameClaim[0].ClaimID

	// The same account in hex and SS58 form with different amounts
	sameAccount := accountRecords()
	sameAccount[2].Claimant = aliceHex

	badAmount := idBalanceRecords()
	badAmount[2].Amount = nil

	testCases := []struct {
		name    string
		config  *Config
		records []*types.EntitlementRecord
		target  error
	}{
		{"no records", &Config{Schema: types.SchemaIdBalance}, nil, ErrNoRecords},
		{"too many records", &Config{Schema: types.SchemaIdBalance, MaxRecords: 2}, idBalanceRecords(), ErrTooManyRecords},
		{"duplicate leaf", &Config{Schema: types.SchemaIdBalance}, dup, ErrDuplicateLeaf},
		{"duplicate claim id", &Config{Schema: types.SchemaClaimBalance}, sameClaim, ErrDuplicateClaimant},
		{"duplicate account", &Config{Schema: types.SchemaAccountBalance}, sameAccount, ErrDuplicateClaimant},
		{"encoding failure", &Config{Schema: types.SchemaIdBalance}, badAmount, leaf.ErrEncoding},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(t, tc.config)
			dist, err := b.Build(context.Background(), tc.records)
			require.Nil(t, dist)
			require.ErrorIs(t, err, tc.target)
		})
	}
}

func TestBuild_MissingClaimant(t *testing.T) {
	records := claimRecords(2)
	records[1].Claimant = ""

	b := newTestBuilder(t, &Config{Schema: types.SchemaClaimBalance})
	_, err := b.Build(context.Background(), records)
	require.Error(t, err)
	require.Contains(t, err.Error(), "record 1")
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newTestBuilder(t, &Config{Schema: types.SchemaClaimBalance})
	_, err := b.Build(ctx, claimRecords(1024))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		config *Config
	}{
		{"nil config", nil},
		{"unknown schema", &Config{Schema: "balance"}},
		{"negative max records", &Config{Schema: types.SchemaIdBalance, MaxRecords: -1}},
		{"negative max tokens", &Config{Schema: types.SchemaClaimNft, MaxTokensPerLeaf: -1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBuilder(tc.config, nil)
			require.Error(t, err)
		})
	}
}

func TestDistributionCopy(t *testing.T) {
	b := newTestBuilder(t, &Config{Schema: types.SchemaIdBalance})
	dist, err := b.Build(context.Background(), idBalanceRecords())
	require.NoError(t, err)

	c := dist.Copy()
	require.Equal(t, dist, c)

	c.Claims[0].Proof.Siblings[0].Hash[0] ^= 0xff
	c.Claims[0].Record.Amount.SetUint64(1)
	c.ClaimIndex[0].LeafIndex = 3
	assertAllClaimsVerify(t, dist)
	require.True(t, dist.Claims[0].Record.Amount.Eq(uint256.NewInt(10)))
	require.Equal(t, 0, dist.ClaimIndex[0].LeafIndex)
}
