package distribution

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

// Distribution is a published commitment to a campaign's entitlements: the root, the proof for
// every claimant and the claim index mapping claimants to leaves
type Distribution struct {
	ID         uuid.UUID    `json:"id"`
	CampaignID uint32       `json:"campaignId"`
	Protocol   string       `json:"protocol"`
	Schema     types.Schema `json:"schema"`
	SortPairs  bool         `json:"sortPairs"`
	Root       common.Hash  `json:"root"`
	Depth      int          `json:"depth"`
	LeafCount  int          `json:"leafCount"`

	// Padding is the number of filler leaves appended after the real records
	Padding int `json:"padding"`

	// Claims holds one entry per real record, in input order
	Claims []*Claim `json:"claims"`

	// ClaimIndex is sorted by (Claimant, ClaimID)
	ClaimIndex []ClaimIndexEntry `json:"claimIndex"`

	CreatedAt time.Time `json:"createdAt"`
}

// Claim is everything a claimant needs to submit a claim
type Claim struct {
	Claimant string                   `json:"claimant"`
	ClaimID  uint64                   `json:"claimId"`
	Record   *types.EntitlementRecord `json:"record"`
	Leaf     hexutil.Bytes            `json:"leaf"`
	Proof    *merkle.MerkleProof      `json:"proof"`
}

// ClaimIndexEntry maps a claimant and claim id to the input index of its leaf
type ClaimIndexEntry struct {
	Claimant  string `json:"claimant"`
	ClaimID   uint64 `json:"claimId"`
	LeafIndex int    `json:"leafIndex"`
}

// Less orders index entries by claimant, then claim id
func (e ClaimIndexEntry) Less(claimant string, claimID uint64) bool {
	if e.Claimant != claimant {
		return e.Claimant < claimant
	}
	return e.ClaimID < claimID
}

// CanonicalClaimant returns the claim index key for a record's claimant.
// Account identities are normalized to lowercase 0x hex so SS58 and hex forms of the same
// account collide. id-balance records without a claimant are keyed by their id.
func CanonicalClaimant(schema types.Schema, record *types.EntitlementRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("record cannot be nil")
	}
	if strings.TrimSpace(record.Claimant) != "" {
		return util.CanonicalAccountID(record.Claimant), nil
	}
	if schema == types.SchemaIdBalance && record.ID != nil {
		return "id:" + record.ID.Dec(), nil
	}
	return "", fmt.Errorf("record has no claimant")
}

// SearchClaimIndex binary searches a sorted claim index and returns the position of the
// matching entry or -1
func SearchClaimIndex(index []ClaimIndexEntry, claimant string, claimID uint64) int {
	i := sort.Search(len(index), func(i int) bool {
		return !index[i].Less(claimant, claimID)
	})
	if i < len(index) && index[i].Claimant == claimant && index[i].ClaimID == claimID {
		return i
	}
	return -1
}

// Lookup finds the claim index entry for a claimant and claim id
func (d *Distribution) Lookup(claimant string, claimID uint64) (ClaimIndexEntry, bool) {
	i := SearchClaimIndex(d.ClaimIndex, util.CanonicalAccountID(claimant), claimID)
	if i < 0 {
		return ClaimIndexEntry{}, false
	}
	return d.ClaimIndex[i], true
}

// ClaimFor returns the claim of a claimant
func (d *Distribution) ClaimFor(claimant string, claimID uint64) (*Claim, error) {
	entry, ok := d.Lookup(claimant, claimID)
	if !ok {
		return nil, fmt.Errorf("%w: claimant %s, claim id %d", ErrClaimNotFound, claimant, claimID)
	}
	if entry.LeafIndex < 0 || entry.LeafIndex >= len(d.Claims) {
		return nil, fmt.Errorf("claim index entry for %s points at leaf %d outside %d claims", claimant, entry.LeafIndex, len(d.Claims))
	}
	return d.Claims[entry.LeafIndex], nil
}

// Verifier returns a verifier for this distribution's root
func (d *Distribution) Verifier() *merkle.Verifier {
	return merkle.NewVerifier(d.Root, d.Depth, d.SortPairs)
}

// Copy returns a deep copy of the distribution
func (d *Distribution) Copy() *Distribution {
	if d == nil {
		return nil
	}
	c := *d
	c.Claims = make([]*Claim, len(d.Claims))
	for i, claim := range d.Claims {
		c.Claims[i] = claim.Copy()
	}
	c.ClaimIndex = make([]ClaimIndexEntry, len(d.ClaimIndex))
	copy(c.ClaimIndex, d.ClaimIndex)
	return &c
}

// Copy returns a deep copy of the claim
func (c *Claim) Copy() *Claim {
	if c == nil {
		return nil
	}
	out := &Claim{
		Claimant: c.Claimant,
		ClaimID:  c.ClaimID,
		Record:   c.Record.Copy(),
		Proof:    c.Proof.Copy(),
	}
	if c.Leaf != nil {
		out.Leaf = append(hexutil.Bytes{}, c.Leaf...)
	}
	return out
}
