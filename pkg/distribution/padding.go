package distribution

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

// maxUint128 is the largest id a filler record can take
var maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// PadToPowerOfTwo returns the records followed by zero-amount filler records, enough to make
// the total a power of two, and the number of fillers added. The input slice is not modified.
//
// Filler ids count down from the top of each id space, so fillers are distinct from each other.
// A filler colliding with a real record is caught by the duplicate leaf check.
func PadToPowerOfTwo(schema types.Schema, records []*types.EntitlementRecord) ([]*types.EntitlementRecord, int) {
	target := merkle.NextPowerOfTwo(len(records))
	fillers := target - len(records)

	padded := make([]*types.EntitlementRecord, 0, target)
	padded = append(padded, records...)
	for k := 0; k < fillers; k++ {
		padded = append(padded, fillerRecord(schema, uint64(k)))
	}
	return padded, fillers
}

// fillerRecord builds the k-th filler for a schema
func fillerRecord(schema types.Schema, k uint64) *types.EntitlementRecord {
	switch schema {
	case types.SchemaIdBalance:
		return &types.EntitlementRecord{
			ID:     new(uint256.Int).Sub(maxUint128, uint256.NewInt(k)),
			Amount: uint256.NewInt(0),
		}
	case types.SchemaAccountBalance:
		var account [util.AccountIDLength]byte
		for i := range account {
			account[i] = 0xff
		}
		binary.BigEndian.PutUint64(account[util.AccountIDLength-8:], math.MaxUint64-k)
		return &types.EntitlementRecord{
			Claimant: hexutil.Encode(account[:]),
			Amount:   uint256.NewInt(0),
		}
	case types.SchemaClaimBalance:
		return &types.EntitlementRecord{
			ClaimID: math.MaxUint64 - k,
			Amount:  uint256.NewInt(0),
		}
	case types.SchemaClaimNft:
		return &types.EntitlementRecord{
			ClaimID: math.MaxUint64 - k,
			Tokens:  []types.NftToken{{ClassID: 0, TokenID: 0}},
		}
	default:
		// Unknown schemas fail in the encoder
		return &types.EntitlementRecord{}
	}
}
