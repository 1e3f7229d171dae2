package merkle

import (
	"bytes"
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

const (
	// DefaultMaxLeaves bounds tree depth and memory when Options.MaxLeaves is unset
	DefaultMaxLeaves = 1 << 24
)

// BuildMerkleTree creates a binary merkle tree from encoded leaves.
// Each leaf is hashed twice, keccak256(keccak256(leaf)), so a leaf digest can never be
// confused with an internal node, which is hashed once.
//
// The number of leaves must be a non-zero power of two. Unlike a padded tree, odd levels are
// never completed by duplicating the last node, since that lets a single unpaired leaf be
// proven with a forged sibling.
func BuildMerkleTree(leaves [][]byte, opts *Options) (*MerkleTree, error) {
	if err := checkLeafCount(len(leaves), opts); err != nil {
		return nil, err
	}

	digests := make([]common.Hash, len(leaves))
	err := util.ParallelChunks(context.Background(), len(leaves), func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			digests[i] = HashLeaf(leaves[i])
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash leaves")
	}

	return buildFromDigests(digests, opts)
}

// BuildMerkleTreeFromDigests creates a tree from leaf digests that were already produced by HashLeaf
func BuildMerkleTreeFromDigests(digests []common.Hash, opts *Options) (*MerkleTree, error) {
	if err := checkLeafCount(len(digests), opts); err != nil {
		return nil, err
	}

	owned := make([]common.Hash, len(digests))
	copy(owned, digests)
	return buildFromDigests(owned, opts)
}

func buildFromDigests(digests []common.Hash, opts *Options) (*MerkleTree, error) {
	sortPairs := opts != nil && opts.SortPairs

	// Level 0 and the input index -> position map
	positions := make([]int, len(digests))
	leaves := digests
	if sortPairs {
		order := make([]int, len(digests))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return bytes.Compare(digests[order[a]][:], digests[order[b]][:]) < 0
		})

		leaves = make([]common.Hash, len(digests))
		for pos, inputIndex := range order {
			leaves[pos] = digests[inputIndex]
			positions[inputIndex] = pos
		}
	} else {
		for i := range positions {
			positions[i] = i
		}
	}

	// Build tree levels bottom-up
	levels := make([][]common.Hash, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([]common.Hash, len(currentLevel)/2)
		for i := 0; i < len(currentLevel); i += 2 {
			nextLevel[i/2] = HashNode(currentLevel[i], currentLevel[i+1], sortPairs)
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	if len(currentLevel) != 1 {
		return nil, errors.Errorf("merkle tree construction failed: final level has %d nodes instead of 1", len(currentLevel))
	}

	return &MerkleTree{
		Leaves:    leaves,
		Root:      currentLevel[0],
		SortPairs: sortPairs,
		levels:    levels,
		positions: positions,
	}, nil
}

// checkLeafCount enforces the balance and size rules before any hashing is done
func checkLeafCount(n int, opts *Options) error {
	maxLeaves := DefaultMaxLeaves
	if opts != nil && opts.MaxLeaves > 0 {
		maxLeaves = opts.MaxLeaves
	}

	if n == 0 {
		return errors.Wrap(ErrUnbalancedTree, "cannot build merkle tree from empty leaf list")
	}
	if n > maxLeaves {
		return errors.Wrapf(ErrTooManyLeaves, "%d leaves exceeds the maximum of %d", n, maxLeaves)
	}
	if !IsPowerOfTwo(n) {
		return errors.Wrapf(ErrUnbalancedTree, "leaf count %d is not a power of two", n)
	}
	return nil
}

// IsPowerOfTwo reports whether n is 1, 2, 4, 8, ...
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two that is >= n (1 for n <= 1)
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// LeafCount returns the number of leaves in the tree
func (mt *MerkleTree) LeafCount() int {
	return len(mt.Leaves)
}

// Depth returns the number of levels above the leaves, which is also the proof length
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Level returns a copy of the digests at the given level (0 = leaves)
func (mt *MerkleTree) Level(level int) ([]common.Hash, error) {
	if level < 0 || level >= len(mt.levels) {
		return nil, errors.Errorf("level %d out of bounds (tree has %d levels)", level, len(mt.levels))
	}
	out := make([]common.Hash, len(mt.levels[level]))
	copy(out, mt.levels[level])
	return out, nil
}

// Position returns the level 0 position of the leaf at the given input index
func (mt *MerkleTree) Position(leafIndex int) (int, error) {
	if leafIndex < 0 || leafIndex >= len(mt.positions) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(mt.positions))
	}
	return mt.positions[leafIndex], nil
}

// GenerateProof creates a merkle proof for the leaf at the given input index.
// The proof consists of sibling hashes along the path from leaf to root.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	position, err := mt.Position(leafIndex)
	if err != nil {
		return nil, err
	}

	siblings := make([]ProofNode, 0, mt.Depth())
	index := position

	// Traverse from leaf to root, collecting sibling hashes
	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		if index%2 == 0 {
			// Node is on the left, sibling is on the right
			siblings = append(siblings, ProofNode{Hash: currentLevel[index+1], Side: SideRight})
		} else {
			// Node is on the right, sibling is on the left
			siblings = append(siblings, ProofNode{Hash: currentLevel[index-1], Side: SideLeft})
		}

		// Move to parent index in next level
		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Position:  position,
		Leaf:      mt.Leaves[position],
		Siblings:  siblings,
	}, nil
}

// HashLeaf computes the leaf digest keccak256(keccak256(leaf))
func HashLeaf(leaf []byte) common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(leaf))
}

// HashNode computes the parent of two nodes with the given pairing discipline
func HashNode(left, right common.Hash, sortPairs bool) common.Hash {
	if sortPairs {
		return sortedHashPair(left, right)
	}
	return hashPair(left, right)
}

// hashPair computes keccak256(left || right) for two 32-byte hashes.
func hashPair(left, right common.Hash) common.Hash {
	data := make([]byte, 2*common.HashLength)
	copy(data[:common.HashLength], left[:])
	copy(data[common.HashLength:], right[:])

	return crypto.Keccak256Hash(data)
}

// sortedHashPair computes keccak256(min(a,b) || max(a,b)), comparing digests byte-wise
func sortedHashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) < 0 {
		return hashPair(a, b)
	}
	return hashPair(b, a)
}
