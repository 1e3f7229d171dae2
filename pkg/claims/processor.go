// Package claims mirrors the claim side of a reward pool: it holds each campaign's published
// roots and claim index and accepts a claim only once, and only with a proof that folds to
// one of those roots.
package claims

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/leaf"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

// DefaultMaxProofNodes is the longest proof accepted, which bounds tree depth
const DefaultMaxProofNodes = 30

// Options configures a Processor
type Options struct {
	MaxProofNodes    int
	MaxTokensPerLeaf int
}

// ClaimRequest is what a claimant submits
type ClaimRequest struct {
	Claimant string
	ClaimID  uint64
	Record   *types.EntitlementRecord
	Siblings []common.Hash

	// Sides is only read for positional campaigns and must match Siblings in length
	Sides []merkle.Side
}

// NewClaimRequest builds the request a claimant would submit for a published claim
func NewClaimRequest(claim *distribution.Claim) *ClaimRequest {
	req := &ClaimRequest{
		Claimant: claim.Claimant,
		ClaimID:  claim.ClaimID,
		Record:   claim.Record.Copy(),
		Siblings: claim.Proof.Hashes(),
		Sides:    make([]merkle.Side, len(claim.Proof.Siblings)),
	}
	for i, node := range claim.Proof.Siblings {
		req.Sides[i] = node.Side
	}
	return req
}

type campaign struct {
	schema    types.Schema
	sortPairs bool
	roots     map[common.Hash]struct{}
	// index is kept sorted by (claimant, claimId)
	index []distribution.ClaimIndexEntry
}

// Processor validates and records claims. It is safe for concurrent use.
type Processor struct {
	mu        sync.RWMutex
	campaigns map[uint32]*campaign

	maxProofNodes int
	limits        *leaf.Limits
	logger        *zap.Logger
}

// NewProcessor creates an empty claim processor
func NewProcessor(opts *Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		campaigns:     make(map[uint32]*campaign),
		maxProofNodes: DefaultMaxProofNodes,
		limits:        leaf.DefaultLimits(),
		logger:        logger,
	}
	if opts != nil {
		if opts.MaxProofNodes > 0 {
			p.maxProofNodes = opts.MaxProofNodes
		}
		if opts.MaxTokensPerLeaf > 0 {
			p.limits.MaxTokensPerLeaf = opts.MaxTokensPerLeaf
		}
	}
	return p
}

// Register adds a distribution's root to its campaign and merges its claim index.
// A campaign keeps the schema and protocol of its first distribution.
func (p *Processor) Register(dist *distribution.Distribution) error {
	if dist == nil {
		return fmt.Errorf("distribution cannot be nil")
	}
	if dist.Depth > p.maxProofNodes {
		return fmt.Errorf("%w: distribution depth %d exceeds the maximum of %d", ErrProofTooLong, dist.Depth, p.maxProofNodes)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.campaigns[dist.CampaignID]
	if !ok {
		c = &campaign{
			schema:    dist.Schema,
			sortPairs: dist.SortPairs,
			roots:     make(map[common.Hash]struct{}),
		}
	} else if c.schema != dist.Schema || c.sortPairs != dist.SortPairs {
		return fmt.Errorf("%w: campaign %d uses %s/%s, distribution uses %s/%s", ErrSchemaMismatch,
			dist.CampaignID, c.schema, merkle.ProtocolVersion(c.sortPairs), dist.Schema, dist.Protocol)
	}

	if _, exists := c.roots[dist.Root]; exists {
		return fmt.Errorf("%w: campaign %d, root %s", ErrRootAlreadySet, dist.CampaignID, dist.Root.Hex())
	}

	merged := make([]distribution.ClaimIndexEntry, 0, len(c.index)+len(dist.ClaimIndex))
	merged = append(merged, c.index...)
	merged = append(merged, dist.ClaimIndex...)
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].Less(merged[b].Claimant, merged[b].ClaimID)
	})
	for i := 1; i < len(merged); i++ {
		if merged[i].Claimant == merged[i-1].Claimant && merged[i].ClaimID == merged[i-1].ClaimID {
			return fmt.Errorf("%w: claimant %s, claim id %d is already indexed for campaign %d",
				distribution.ErrDuplicateClaimant, merged[i].Claimant, merged[i].ClaimID, dist.CampaignID)
		}
	}

	c.roots[dist.Root] = struct{}{}
	c.index = merged
	p.campaigns[dist.CampaignID] = c

	p.logger.Sugar().Infow("Registered merkle root",
		"campaign", dist.CampaignID,
		"root", dist.Root.Hex(),
		"protocol", dist.Protocol,
		"entries", len(dist.ClaimIndex),
	)
	return nil
}

// Claim checks a claim against the campaign and, if it is valid, consumes its index entry.
// It returns the root the proof folded to.
func (p *Processor) Claim(campaignID uint32, req *ClaimRequest) (common.Hash, error) {
	if req == nil || req.Record == nil {
		return common.Hash{}, fmt.Errorf("%w: claim has no record", ErrClaimMismatch)
	}
	if len(req.Siblings) > p.maxProofNodes {
		return common.Hash{}, fmt.Errorf("%w: %d siblings exceeds the maximum of %d", ErrProofTooLong, len(req.Siblings), p.maxProofNodes)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.campaigns[campaignID]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrCampaignNotFound, campaignID)
	}

	claimant := util.CanonicalAccountID(req.Claimant)
	pos := distribution.SearchClaimIndex(c.index, claimant, req.ClaimID)
	if pos < 0 {
		return common.Hash{}, fmt.Errorf("%w: campaign %d, claimant %s, claim id %d", ErrNoClaimIndexEntry, campaignID, claimant, req.ClaimID)
	}

	recordClaimant, err := distribution.CanonicalClaimant(c.schema, req.Record)
	if err != nil || recordClaimant != claimant || req.Record.ClaimID != req.ClaimID {
		return common.Hash{}, fmt.Errorf("%w: claimant %s, claim id %d", ErrClaimMismatch, claimant, req.ClaimID)
	}

	encoded, err := leaf.EncodeWithLimits(c.schema, req.Record, p.limits)
	if err != nil {
		return common.Hash{}, err
	}
	digest := merkle.HashLeaf(encoded)

	var root common.Hash
	if c.sortPairs {
		root = merkle.ComputeRoot(digest, req.Siblings)
	} else {
		if len(req.Sides) != len(req.Siblings) {
			return common.Hash{}, fmt.Errorf("%w: %d siblings but %d side flags", ErrInvalidProof, len(req.Siblings), len(req.Sides))
		}
		proof := &merkle.MerkleProof{Leaf: digest, Siblings: make([]merkle.ProofNode, len(req.Siblings))}
		for i := range req.Siblings {
			proof.Siblings[i] = merkle.ProofNode{Hash: req.Siblings[i], Side: req.Sides[i]}
		}
		root, ok = merkle.RootFromProof(digest, proof, false)
		if !ok {
			return common.Hash{}, fmt.Errorf("%w: malformed side flag", ErrInvalidProof)
		}
	}

	if _, ok := c.roots[root]; !ok {
		return common.Hash{}, fmt.Errorf("%w: campaign %d, computed root %s", ErrRootNotRelatedToCampaign, campaignID, root.Hex())
	}

	c.index = append(c.index[:pos], c.index[pos+1:]...)

	p.logger.Sugar().Infow("Processed claim",
		"campaign", campaignID,
		"claimant", claimant,
		"claimId", req.ClaimID,
		"root", root.Hex(),
	)
	return root, nil
}

// Remaining returns the number of unclaimed index entries of a campaign
func (p *Processor) Remaining(campaignID uint32) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.campaigns[campaignID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrCampaignNotFound, campaignID)
	}
	return len(c.index), nil
}

// Roots returns the registered roots of a campaign in byte order
func (p *Processor) Roots(campaignID uint32) []common.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.campaigns[campaignID]
	if !ok {
		return nil
	}
	roots := make([]common.Hash, 0, len(c.roots))
	for r := range c.roots {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(a, b int) bool {
		return roots[a].Cmp(roots[b]) < 0
	})
	return roots
}
