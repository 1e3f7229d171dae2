package merkle

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// Reference fixture: records (2,10), (3,25), (4,50), (5,75) encoded as u128 id || u128 amount
const (
	fixtureLeaf0 = "0x64b39d59f54b02b6d862584c58735a0d3ff7c8d1ee46250809f4c244ca13d5ca"
	fixtureLeaf1 = "0xd90b5864238131f03c065e80a5e0c04aadb2493984702ef3bb279dcd3cb8ac7d"
	fixtureLeaf2 = "0x77ead2ce9a216ed6ac05f5d8a2c7d12373428794b33d56f65163073769976208"
	fixtureLeaf3 = "0x7ecf6a4f9809680533d36217de280ae07964f4c65595308405e2c860bc52d4bf"

	fixturePositionalRoot     = "0xb0885a06a169891b562c9ed1b43510422328d6975923d72b661e084e119dde80"
	fixturePositionalNode01   = "0x8903505f09ba64010935c4ff9155d37f572578ffdf205dbfdf4381d41a9a83cd"
	fixturePositionalNode23   = "0xaddd535f444323fab87b3350449e85e8ca478541d55a3697caa567d06b45ec3a"
	fixtureReversedRoot       = "0xccf6a1b763271830da6d633a1598d76ee217c302ed2fa63f162f2b735564fe25"
	fixtureSortedRoot         = "0x2e97ed383fd6a5fa631d015eb018432ebb49fe1054850e35e009c3b324d0a2de"
	fixtureSortedNodeLow      = "0xffc622288fa1a095b4f6166760077162eb3e4d3dee273820098b26c4873aea40"
	fixtureSortedNodeHigh     = "0xc6822bfe18941b5f78fbe0b1739ed5de87a8ae11ddc012aa568fa274a0f41097"
	fixtureSortedLeafPosition = 3 // position of fixtureLeaf1 after sorting
)

// encodeIdBalance lays out a u128 id and u128 amount the way the leaf encoder does
func encodeIdBalance(id, amount uint64) []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint64(out[0:8], id)
	binary.LittleEndian.PutUint64(out[16:24], amount)
	return out
}

func fixtureLeaves() [][]byte {
	return [][]byte{
		encodeIdBalance(2, 10),
		encodeIdBalance(3, 25),
		encodeIdBalance(4, 50),
		encodeIdBalance(5, 75),
	}
}

// createTestLeaves creates n random encoded leaves
func createTestLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := 0; i < n; i++ {
		leaf := make([]byte, 32)
		_, _ = rand.Read(leaf) // Ignore error in test helper
		leaves[i] = leaf
	}
	return leaves
}

func TestPinnedVector_Positional(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves(), &Options{SortPairs: false})
	require.NoError(t, err)

	require.Equal(t, []common.Hash{
		common.HexToHash(fixtureLeaf0),
		common.HexToHash(fixtureLeaf1),
		common.HexToHash(fixtureLeaf2),
		common.HexToHash(fixtureLeaf3),
	}, tree.Leaves)
	require.Equal(t, fixturePositionalRoot, tree.Root.Hex())
	require.Equal(t, 2, tree.Depth())

	level1, err := tree.Level(1)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash(fixturePositionalNode01), common.HexToHash(fixturePositionalNode23)}, level1)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Equal(t, []ProofNode{
		{Hash: common.HexToHash(fixtureLeaf1), Side: SideRight},
		{Hash: common.HexToHash(fixturePositionalNode23), Side: SideRight},
	}, proof.Siblings)
	require.True(t, VerifyProof(common.HexToHash(fixtureLeaf0), proof, tree.Root, false))

	proof3, err := tree.GenerateProof(3)
	require.NoError(t, err)
	require.Equal(t, []ProofNode{
		{Hash: common.HexToHash(fixtureLeaf2), Side: SideLeft},
		{Hash: common.HexToHash(fixturePositionalNode01), Side: SideLeft},
	}, proof3.Siblings)
}

func TestPinnedVector_Sorted(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves(), &Options{SortPairs: true})
	require.NoError(t, err)

	require.Equal(t, fixtureSortedRoot, tree.Root.Hex())
	require.Equal(t, []common.Hash{
		common.HexToHash(fixtureLeaf0),
		common.HexToHash(fixtureLeaf2),
		common.HexToHash(fixtureLeaf3),
		common.HexToHash(fixtureLeaf1),
	}, tree.Leaves)

	position, err := tree.Position(1)
	require.NoError(t, err)
	require.Equal(t, fixtureSortedLeafPosition, position)

	proof, err := tree.GenerateProof(1)
	require.NoError(t, err)
	require.Equal(t, 1, proof.LeafIndex)
	require.Equal(t, fixtureSortedLeafPosition, proof.Position)
	require.Equal(t, common.HexToHash(fixtureLeaf1), proof.Leaf)
	require.Equal(t, []common.Hash{common.HexToHash(fixtureLeaf3), common.HexToHash(fixtureSortedNodeLow)}, proof.Hashes())
	require.True(t, proof.Verify(tree.Root, true))

	// The plain sibling fold used by the on-chain verifier reaches the same root
	require.Equal(t, tree.Root, ComputeRoot(proof.Leaf, proof.Hashes()))

	level1, err := tree.Level(1)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash(fixtureSortedNodeLow), common.HexToHash(fixtureSortedNodeHigh)}, level1)
}

// TestBuildMerkleTree tests balanced construction and round-trip proofs in both modes
func TestBuildMerkleTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
		depth     int
	}{
		{"Single leaf", 1, 0},
		{"Two leaves", 2, 1},
		{"Four leaves", 4, 2},
		{"Eight leaves", 8, 3},
		{"Sixteen leaves", 16, 4},
		{"1024 leaves", 1024, 10},
	}

	for _, tc := range testCases {
		for _, sortPairs := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/sorted=%v", tc.name, sortPairs), func(t *testing.T) {
				leaves := createTestLeaves(tc.numLeaves)
				tree, err := BuildMerkleTree(leaves, &Options{SortPairs: sortPairs})
				require.NoError(t, err)
				require.NotNil(t, tree)

				require.Equal(t, tc.numLeaves, tree.LeafCount())
				require.Equal(t, tc.depth, tree.Depth())
				require.Equal(t, sortPairs, tree.SortPairs)

				verifier := NewVerifier(tree.Root, tree.Depth(), sortPairs)
				for i := 0; i < tc.numLeaves; i++ {
					proof, err := tree.GenerateProof(i)
					require.NoError(t, err)
					require.Equal(t, i, proof.LeafIndex)
					require.Equal(t, HashLeaf(leaves[i]), proof.Leaf)
					require.Len(t, proof.Siblings, tc.depth)

					require.True(t, VerifyProof(HashLeaf(leaves[i]), proof, tree.Root, sortPairs), "proof for leaf %d should be valid", i)
					require.True(t, verifier.Verify(proof.Leaf, proof))
				}
			})
		}
	}
}

func TestBuildMerkleTree_SingleLeafRootIsLeaf(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves()[:1], nil)
	require.NoError(t, err)
	require.Equal(t, fixtureLeaf0, tree.Root.Hex())

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Empty(t, proof.Siblings)
	require.True(t, proof.Verify(tree.Root, false))
}

// TestBuildMerkleTree_Unbalanced tests that non power of two inputs are rejected rather than padded
func TestBuildMerkleTree_Unbalanced(t *testing.T) {
	for _, n := range []int{0, 3, 5, 6, 7, 9, 100} {
		t.Run(fmt.Sprintf("%d_leaves", n), func(t *testing.T) {
			tree, err := BuildMerkleTree(createTestLeaves(n), nil)
			require.Nil(t, tree)
			require.ErrorIs(t, err, ErrUnbalancedTree)

			tree, err = BuildMerkleTree(createTestLeaves(n), &Options{SortPairs: true})
			require.Nil(t, tree)
			require.ErrorIs(t, err, ErrUnbalancedTree)
		})
	}
}

func TestBuildMerkleTree_TooManyLeaves(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(8), &Options{MaxLeaves: 4})
	require.Nil(t, tree)
	require.ErrorIs(t, err, ErrTooManyLeaves)

	tree, err = BuildMerkleTree(createTestLeaves(4), &Options{MaxLeaves: 4})
	require.NoError(t, err)
	require.NotNil(t, tree)
}

func TestBuildMerkleTreeFromDigests(t *testing.T) {
	leaves := fixtureLeaves()
	digests := make([]common.Hash, len(leaves))
	for i, l := range leaves {
		digests[i] = HashLeaf(l)
	}

	tree, err := BuildMerkleTreeFromDigests(digests, nil)
	require.NoError(t, err)
	require.Equal(t, fixturePositionalRoot, tree.Root.Hex())

	// Mutating the caller's slice must not affect the tree
	digests[0] = common.Hash{}
	require.Equal(t, common.HexToHash(fixtureLeaf0), tree.Leaves[0])

	_, err = BuildMerkleTreeFromDigests(digests[:3], nil)
	require.ErrorIs(t, err, ErrUnbalancedTree)
}

// TestGenerateProofInvalidIndex tests proof generation with invalid indices
func TestGenerateProofInvalidIndex(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(4), nil)
	require.NoError(t, err)

	t.Run("Negative index", func(t *testing.T) {
		proof, err := tree.GenerateProof(-1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.Nil(t, proof)
	})

	t.Run("Index out of bounds", func(t *testing.T) {
		proof, err := tree.GenerateProof(4)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.Nil(t, proof)
	})

	t.Run("Level out of bounds", func(t *testing.T) {
		_, err := tree.Level(3)
		require.Error(t, err)
	})
}

// TestMerkleProofVerification tests proof verification with valid and invalid cases
func TestMerkleProofVerification(t *testing.T) {
	for _, sortPairs := range []bool{false, true} {
		t.Run(fmt.Sprintf("sorted=%v", sortPairs), func(t *testing.T) {
			tree, err := BuildMerkleTree(fixtureLeaves(), &Options{SortPairs: sortPairs})
			require.NoError(t, err)

			proof, err := tree.GenerateProof(0)
			require.NoError(t, err)

			t.Run("Valid proof", func(t *testing.T) {
				require.True(t, VerifyProof(proof.Leaf, proof, tree.Root, sortPairs))
			})

			t.Run("Wrong root", func(t *testing.T) {
				otherTree, err := BuildMerkleTree(createTestLeaves(4), &Options{SortPairs: sortPairs})
				require.NoError(t, err)
				require.False(t, VerifyProof(proof.Leaf, proof, otherTree.Root, sortPairs))
			})

			t.Run("Different leaf", func(t *testing.T) {
				require.False(t, VerifyProof(tree.Leaves[1], proof, tree.Root, sortPairs))
				require.False(t, VerifyProof(HashLeaf(encodeIdBalance(2, 11)), proof, tree.Root, sortPairs))
			})

			t.Run("Tampered sibling", func(t *testing.T) {
				tampered := proof.Copy()
				tampered.Siblings[0].Hash[0] ^= 0xFF
				require.False(t, VerifyProof(tampered.Leaf, tampered, tree.Root, sortPairs))
			})

			t.Run("Truncated proof", func(t *testing.T) {
				truncated := proof.Copy()
				truncated.Siblings = truncated.Siblings[:1]
				require.False(t, VerifyProof(truncated.Leaf, truncated, tree.Root, sortPairs))
				require.False(t, NewVerifier(tree.Root, tree.Depth(), sortPairs).Verify(truncated.Leaf, truncated))
			})

			t.Run("Extra level", func(t *testing.T) {
				extended := proof.Copy()
				extended.Siblings = append(extended.Siblings, ProofNode{Hash: tree.Root, Side: SideRight})
				require.False(t, VerifyProof(extended.Leaf, extended, tree.Root, sortPairs))
				require.False(t, NewVerifier(tree.Root, tree.Depth(), sortPairs).Verify(extended.Leaf, extended))
			})

			t.Run("Nil proof", func(t *testing.T) {
				require.False(t, VerifyProof(proof.Leaf, nil, tree.Root, sortPairs))
				require.False(t, NewVerifier(tree.Root, tree.Depth(), sortPairs).Verify(proof.Leaf, nil))
				var nilProof *MerkleProof
				require.False(t, nilProof.Verify(tree.Root, sortPairs))
			})
		})
	}
}

// TestSecondPreimage checks that an internal node cannot be passed off as a leaf digest
func TestSecondPreimage(t *testing.T) {
	for _, sortPairs := range []bool{false, true} {
		tree, err := BuildMerkleTree(fixtureLeaves(), &Options{SortPairs: sortPairs})
		require.NoError(t, err)

		level1, err := tree.Level(1)
		require.NoError(t, err)

		// Presenting the 64 bytes of two children as a "leaf" hashes twice, so it never lands on the parent
		forgedLeaf := make([]byte, 0, 64)
		forgedLeaf = append(forgedLeaf, tree.Leaves[0][:]...)
		forgedLeaf = append(forgedLeaf, tree.Leaves[1][:]...)
		require.NotEqual(t, level1[0], HashLeaf(forgedLeaf))

		forgedProof := &MerkleProof{Siblings: []ProofNode{{Hash: level1[1], Side: SideRight}}}
		require.False(t, VerifyProof(HashLeaf(forgedLeaf), forgedProof, tree.Root, sortPairs))
		require.False(t, NewVerifier(tree.Root, tree.Depth(), sortPairs).Verify(level1[0], forgedProof))
	}
}

func TestVerifyProof_PositionalRequiresSides(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves(), nil)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)

	noSides := proof.Copy()
	for i := range noSides.Siblings {
		noSides.Siblings[i].Side = ""
	}
	require.False(t, VerifyProof(noSides.Leaf, noSides, tree.Root, false))
	// Sorted verification ignores sides entirely
	sortedTree, err := BuildMerkleTree(fixtureLeaves(), &Options{SortPairs: true})
	require.NoError(t, err)
	sortedProof, err := sortedTree.GenerateProof(0)
	require.NoError(t, err)
	for i := range sortedProof.Siblings {
		sortedProof.Siblings[i].Side = ""
	}
	require.True(t, VerifyProof(sortedProof.Leaf, sortedProof, sortedTree.Root, true))

	flipped := proof.Copy()
	flipped.Siblings[0].Side = SideLeft
	require.False(t, VerifyProof(flipped.Leaf, flipped, tree.Root, false))
}

// TestMerkleTreeOrderSensitivity tests that only positional trees depend on input order
func TestMerkleTreeOrderSensitivity(t *testing.T) {
	leaves := fixtureLeaves()
	reversed := [][]byte{leaves[3], leaves[2], leaves[1], leaves[0]}

	positional, err := BuildMerkleTree(leaves, nil)
	require.NoError(t, err)
	positionalReversed, err := BuildMerkleTree(reversed, nil)
	require.NoError(t, err)
	require.NotEqual(t, positional.Root, positionalReversed.Root)
	require.Equal(t, fixtureReversedRoot, positionalReversed.Root.Hex())

	sorted, err := BuildMerkleTree(leaves, &Options{SortPairs: true})
	require.NoError(t, err)
	sortedReversed, err := BuildMerkleTree(reversed, &Options{SortPairs: true})
	require.NoError(t, err)
	require.Equal(t, sorted.Root, sortedReversed.Root)

	// The same record now sits at a different input index but the same tree position
	pos, err := sorted.Position(0)
	require.NoError(t, err)
	posReversed, err := sortedReversed.Position(3)
	require.NoError(t, err)
	require.Equal(t, pos, posReversed)
}

// TestMerkleTreeDeterminism tests that the same leaves always produce the same tree
func TestMerkleTreeDeterminism(t *testing.T) {
	leaves := createTestLeaves(64)

	for _, sortPairs := range []bool{false, true} {
		tree1, err := BuildMerkleTree(leaves, &Options{SortPairs: sortPairs})
		require.NoError(t, err)
		tree2, err := BuildMerkleTree(leaves, &Options{SortPairs: sortPairs})
		require.NoError(t, err)

		require.Equal(t, tree1.Root, tree2.Root)
		require.Equal(t, tree1.Leaves, tree2.Leaves)
	}
}

func TestMerkleTreeDuplicateLeavesSorted(t *testing.T) {
	leaves := fixtureLeaves()
	leaves[2] = leaves[0]

	tree, err := BuildMerkleTree(leaves, &Options{SortPairs: true})
	require.NoError(t, err)

	p0, err := tree.Position(0)
	require.NoError(t, err)
	p2, err := tree.Position(2)
	require.NoError(t, err)
	require.NotEqual(t, p0, p2, "identical digests must still map to distinct positions")
}

func TestLevelReturnsCopy(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves(), nil)
	require.NoError(t, err)

	level0, err := tree.Level(0)
	require.NoError(t, err)
	level0[0] = common.Hash{}

	require.Equal(t, common.HexToHash(fixtureLeaf0), tree.Leaves[0])
}

func TestPowerOfTwoHelpers(t *testing.T) {
	require.False(t, IsPowerOfTwo(0))
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(2))
	require.False(t, IsPowerOfTwo(3))
	require.True(t, IsPowerOfTwo(1<<20))
	require.False(t, IsPowerOfTwo(-4))

	require.Equal(t, 1, NextPowerOfTwo(0))
	require.Equal(t, 1, NextPowerOfTwo(1))
	require.Equal(t, 4, NextPowerOfTwo(3))
	require.Equal(t, 8, NextPowerOfTwo(5))
	require.Equal(t, 8, NextPowerOfTwo(8))
}

func TestParseSide(t *testing.T) {
	for _, s := range []string{"left", "l", "L"} {
		side, ok := ParseSide(s)
		require.True(t, ok)
		require.Equal(t, SideLeft, side)
	}
	for _, s := range []string{"right", "r", "R"} {
		side, ok := ParseSide(s)
		require.True(t, ok)
		require.Equal(t, SideRight, side)
	}
	_, ok := ParseSide("up")
	require.False(t, ok)
}

func TestProtocolVersion(t *testing.T) {
	require.Equal(t, "v1-positional", ProtocolVersion(false))
	require.Equal(t, "v1-sorted", ProtocolVersion(true))

	for _, sortPairs := range []bool{false, true} {
		parsed, err := ParseProtocol(ProtocolVersion(sortPairs))
		require.NoError(t, err)
		require.Equal(t, sortPairs, parsed)
	}

	_, err := ParseProtocol("v2-sorted")
	require.Error(t, err)
}

func TestRootFromProof(t *testing.T) {
	tree, err := BuildMerkleTree(fixtureLeaves(), nil)
	require.NoError(t, err)
	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)

	root, ok := RootFromProof(proof.Leaf, proof, false)
	require.True(t, ok)
	require.Equal(t, tree.Root, root)

	_, ok = RootFromProof(proof.Leaf, nil, false)
	require.False(t, ok)

	proof.Siblings[1].Side = "up"
	_, ok = RootFromProof(proof.Leaf, proof, false)
	require.False(t, ok)
}
