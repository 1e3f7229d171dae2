package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// VerifyProof verifies that a leaf is included in the merkle tree with the given root.
// It recomputes the root from the leaf digest and the proof's siblings and compares it to root.
//
// Verification is total: a nil or malformed proof yields false, never a panic. In sorted mode
// side flags are ignored and each pair is ordered by value, exactly as the builder did.
func VerifyProof(leaf common.Hash, proof *MerkleProof, root common.Hash, sortPairs bool) bool {
	if proof == nil {
		return false
	}

	computed, ok := RootFromProof(leaf, proof, sortPairs)
	if !ok {
		return false
	}
	return computed == root
}

// RootFromProof recomputes the root a proof commits to. ok is false for a nil proof or,
// in positional mode, a sibling without a valid side flag.
func RootFromProof(leaf common.Hash, proof *MerkleProof, sortPairs bool) (common.Hash, bool) {
	if proof == nil {
		return common.Hash{}, false
	}
	return foldProof(leaf, proof.Siblings, sortPairs)
}

// Verify checks the proof's own leaf digest against root
func (p *MerkleProof) Verify(root common.Hash, sortPairs bool) bool {
	if p == nil {
		return false
	}
	return VerifyProof(p.Leaf, p, root, sortPairs)
}

// Verifier checks proofs against a published root whose tree depth is known.
// Proofs with a different number of levels are rejected before any hashing.
type Verifier struct {
	Root      common.Hash
	Depth     int
	SortPairs bool
}

// NewVerifier creates a verifier for a published root
func NewVerifier(root common.Hash, depth int, sortPairs bool) *Verifier {
	return &Verifier{
		Root:      root,
		Depth:     depth,
		SortPairs: sortPairs,
	}
}

// Verify returns true only if the proof has exactly Depth levels and folds to Root
func (v *Verifier) Verify(leaf common.Hash, proof *MerkleProof) bool {
	if v == nil || proof == nil || len(proof.Siblings) != v.Depth {
		return false
	}
	return VerifyProof(leaf, proof, v.Root, v.SortPairs)
}

// ComputeRoot folds a plain sibling list onto a leaf digest using sorted pair hashing.
// This is the fold the on-chain claim verifier runs, which never sees side flags.
func ComputeRoot(leaf common.Hash, siblings []common.Hash) common.Hash {
	current := leaf
	for _, sibling := range siblings {
		current = sortedHashPair(current, sibling)
	}
	return current
}

func foldProof(leaf common.Hash, siblings []ProofNode, sortPairs bool) (common.Hash, bool) {
	current := leaf
	for _, node := range siblings {
		if sortPairs {
			current = sortedHashPair(current, node.Hash)
			continue
		}

		switch node.Side {
		case SideLeft:
			current = hashPair(node.Hash, current)
		case SideRight:
			current = hashPair(current, node.Hash)
		default:
			return common.Hash{}, false
		}
	}
	return current, true
}

// ToHex renders the proof in its wire form
func (p *MerkleProof) ToHex() *HexProof {
	hp := &HexProof{
		Leaf:     p.Leaf.Hex(),
		Siblings: make([]string, len(p.Siblings)),
		Sides:    make([]string, len(p.Siblings)),
	}
	for i, node := range p.Siblings {
		hp.Siblings[i] = node.Hash.Hex()
		hp.Sides[i] = node.Side.String()
	}
	return hp
}

// ParseHexProof decodes a wire proof. It fails on any digest that is not exactly 32 bytes of
// 0x-prefixed hex, or when side flags are present but malformed or of the wrong count.
func ParseHexProof(hp *HexProof) (*MerkleProof, bool) {
	if hp == nil {
		return nil, false
	}

	leaf, ok := decodeDigest(hp.Leaf)
	if !ok {
		return nil, false
	}
	if len(hp.Sides) != 0 && len(hp.Sides) != len(hp.Siblings) {
		return nil, false
	}

	proof := &MerkleProof{
		LeafIndex: -1,
		Position:  -1,
		Leaf:      leaf,
		Siblings:  make([]ProofNode, len(hp.Siblings)),
	}
	for i, s := range hp.Siblings {
		digest, ok := decodeDigest(s)
		if !ok {
			return nil, false
		}
		proof.Siblings[i].Hash = digest
		if len(hp.Sides) != 0 {
			side, ok := ParseSide(hp.Sides[i])
			if !ok {
				return nil, false
			}
			proof.Siblings[i].Side = side
		}
	}
	return proof, true
}

// VerifyHexProof verifies an untrusted wire proof against a hex root.
// A negative depth skips the level count check. Positional verification requires side flags.
func VerifyHexProof(hp *HexProof, root string, depth int, sortPairs bool) bool {
	expectedRoot, ok := decodeDigest(root)
	if !ok {
		return false
	}

	proof, ok := ParseHexProof(hp)
	if !ok {
		return false
	}
	if depth >= 0 && len(proof.Siblings) != depth {
		return false
	}
	if !sortPairs && len(hp.Sides) != len(hp.Siblings) {
		return false
	}

	return VerifyProof(proof.Leaf, proof, expectedRoot, sortPairs)
}

// decodeDigest decodes a 0x-prefixed 32-byte hex digest
func decodeDigest(s string) (common.Hash, bool) {
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}
