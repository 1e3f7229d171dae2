package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Side records which operand a sibling digest is when re-hashing a proof step
type Side string

const (
	// SideLeft means the sibling is hashed as the left operand: H(sibling || current)
	SideLeft Side = "left"
	// SideRight means the sibling is hashed as the right operand: H(current || sibling)
	SideRight Side = "right"
)

func (s Side) String() string {
	return string(s)
}

// ParseSide converts a wire side flag into a Side. "l" and "r" are accepted as shorthands.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "left", "l", "L":
		return SideLeft, true
	case "right", "r", "R":
		return SideRight, true
	default:
		return "", false
	}
}

// Options controls how a tree is built
type Options struct {
	// SortPairs sorts level 0 by digest value and hashes every pair as H(min || max).
	// The root then does not depend on input order, but positions must be published
	// separately through a claim index.
	SortPairs bool

	// MaxLeaves bounds the tree size. Zero means DefaultMaxLeaves.
	MaxLeaves int
}

// MerkleTree represents a perfectly balanced binary merkle tree.
// The tree uses keccak256 hashing to match the on-chain verifier.
// It is immutable once built and safe for concurrent proof generation.
type MerkleTree struct {
	// Leaves contains the leaf digests in tree order (sorted when SortPairs is set)
	Leaves []common.Hash

	// Root is the merkle root hash
	Root common.Hash

	// SortPairs records the pairing discipline used to build the tree
	SortPairs bool

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][]common.Hash

	// positions maps an input index to its position in levels[0]
	positions []int
}

// ProofNode is one step of a proof: the sibling digest and the side it sits on
type ProofNode struct {
	Hash common.Hash `json:"hash"`
	Side Side        `json:"side"`
}

// MerkleProof represents a proof that a leaf is included in the tree.
// The proof consists of sibling hashes along the path from leaf to root.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in the input sequence
	LeafIndex int `json:"leafIndex"`

	// Position is the index of the leaf in level 0 of the tree
	Position int `json:"position"`

	// Leaf is the digest of the leaf being proven
	Leaf common.Hash `json:"leaf"`

	// Siblings contains the sibling hashes from leaf to root
	// Siblings[0] is the sibling of the leaf, Siblings[len-1] is a child of the root
	Siblings []ProofNode `json:"siblings"`
}

// Hashes returns the sibling digests without side flags, as consumed by sorted verifiers
func (p *MerkleProof) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(p.Siblings))
	for i, node := range p.Siblings {
		hashes[i] = node.Hash
	}
	return hashes
}

// Copy returns a deep copy of the proof
func (p *MerkleProof) Copy() *MerkleProof {
	if p == nil {
		return nil
	}
	c := *p
	c.Siblings = make([]ProofNode, len(p.Siblings))
	copy(c.Siblings, p.Siblings)
	return &c
}

// HexProof is the wire form of a proof, typically submitted by an untrusted claimant
type HexProof struct {
	Leaf     string   `json:"leaf"`
	Siblings []string `json:"siblings"`
	Sides    []string `json:"sides,omitempty"`
}

const (
	// ProtocolPositional names trees built with positional pair hashing
	ProtocolPositional = "v1-positional"
	// ProtocolSorted names trees built from sorted leaves with sorted pair hashing
	ProtocolSorted = "v1-sorted"
)

// ProtocolVersion returns the protocol name for a pairing discipline.
// The two protocols are not root-compatible.
func ProtocolVersion(sortPairs bool) string {
	if sortPairs {
		return ProtocolSorted
	}
	return ProtocolPositional
}

// ParseProtocol returns the pairing discipline named by a protocol version
func ParseProtocol(name string) (bool, error) {
	switch name {
	case ProtocolPositional:
		return false, nil
	case ProtocolSorted:
		return true, nil
	default:
		return false, errors.Errorf("unknown merkle protocol version %q", name)
	}
}
