package distribution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/leaf"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

// Builder turns entitlement records into a Distribution
type Builder struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time
}

// NewBuilder creates a builder for one campaign configuration
func NewBuilder(cfg *Config, logger *zap.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid distribution config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := *cfg
	return &Builder{
		config: &c,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Build encodes the records, commits to them and generates every claimant's proof.
// The records are not modified.
func (b *Builder) Build(ctx context.Context, records []*types.EntitlementRecord) (*Distribution, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if len(records) > b.config.maxRecords() {
		return nil, fmt.Errorf("%w: %d records exceeds the maximum of %d", ErrTooManyRecords, len(records), b.config.maxRecords())
	}

	sugar := b.logger.Sugar()
	schema := b.config.Schema

	leafRecords := records
	padding := 0
	if b.config.PadToPowerOfTwo {
		leafRecords, padding = PadToPowerOfTwo(schema, records)
		if padding > 0 {
			sugar.Debugw("Padded distribution with filler leaves",
				"campaign", b.config.CampaignID,
				"records", len(records),
				"fillers", padding,
			)
		}
	}

	encoded, err := leaf.EncodeAll(ctx, schema, leafRecords, b.config.limits())
	if err != nil {
		return nil, fmt.Errorf("failed to encode leaves: %w", err)
	}

	if err := checkDuplicateLeaves(encoded); err != nil {
		return nil, err
	}

	index, err := buildClaimIndex(schema, records)
	if err != nil {
		return nil, err
	}

	tree, err := merkle.BuildMerkleTree(encoded, &merkle.Options{
		SortPairs: b.config.SortPairs,
		MaxLeaves: merkle.NextPowerOfTwo(b.config.maxRecords()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	claims := make([]*Claim, len(records))
	err = util.ParallelChunks(ctx, len(records), func(ctx context.Context, start, end int) error {
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			proof, err := tree.GenerateProof(i)
			if err != nil {
				return fmt.Errorf("failed to generate proof for record %d: %w", i, err)
			}
			claimant, _ := CanonicalClaimant(schema, records[i])
			claims[i] = &Claim{
				Claimant: claimant,
				ClaimID:  records[i].ClaimID,
				Record:   records[i].Copy(),
				Leaf:     encoded[i],
				Proof:    proof,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dist := &Distribution{
		ID:         uuid.New(),
		CampaignID: b.config.CampaignID,
		Protocol:   b.config.Protocol(),
		Schema:     schema,
		SortPairs:  b.config.SortPairs,
		Root:       tree.Root,
		Depth:      tree.Depth(),
		LeafCount:  tree.LeafCount(),
		Padding:    padding,
		Claims:     claims,
		ClaimIndex: index,
		CreatedAt:  b.now().UTC(),
	}

	sugar.Infow("Built reward distribution",
		"campaign", dist.CampaignID,
		"protocol", dist.Protocol,
		"schema", dist.Schema,
		"leaves", dist.LeafCount,
		"depth", dist.Depth,
		"root", dist.Root.Hex(),
	)
	return dist, nil
}

// checkDuplicateLeaves rejects inputs where two records share their encoded bytes.
// Such records would be indistinguishable to the verifier.
func checkDuplicateLeaves(encoded [][]byte) error {
	seen := make(map[string]int, len(encoded))
	for i, l := range encoded {
		if first, ok := seen[string(l)]; ok {
			return fmt.Errorf("%w: records %d and %d encode to the same leaf", ErrDuplicateLeaf, first, i)
		}
		seen[string(l)] = i
	}
	return nil
}

// buildClaimIndex builds the sorted (claimant, claimId) -> input index table
func buildClaimIndex(schema types.Schema, records []*types.EntitlementRecord) ([]ClaimIndexEntry, error) {
	index := make([]ClaimIndexEntry, len(records))
	for i, r := range records {
		claimant, err := CanonicalClaimant(schema, r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		index[i] = ClaimIndexEntry{
			Claimant:  claimant,
			ClaimID:   r.ClaimID,
			LeafIndex: i,
		}
	}

	sort.Slice(index, func(a, b int) bool {
		return index[a].Less(index[b].Claimant, index[b].ClaimID)
	})
	for i := 1; i < len(index); i++ {
		if index[i].Claimant == index[i-1].Claimant && index[i].ClaimID == index[i-1].ClaimID {
			return nil, fmt.Errorf("%w: claimant %s, claim id %d appears in records %d and %d",
				ErrDuplicateClaimant, index[i].Claimant, index[i].ClaimID, index[i-1].LeafIndex, index[i].LeafIndex)
		}
	}
	return index, nil
}
