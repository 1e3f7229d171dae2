// Package leaf maps entitlement records onto canonical fixed-width byte layouts.
//
// Every field has a fixed width and all integers are little-endian (SCALE compact
// encoding is never used), so two distinct records of the same schema can never
// produce the same bytes. Field order and widths are part of the protocol: changing
// them changes every derived root and invalidates all prior proofs.
package leaf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

const (
	U32Width  = 4
	U64Width  = 8
	U128Width = 16

	// NftTokenWidth is classId u32 || tokenId u64
	NftTokenWidth = U32Width + U64Width

	// DefaultMaxTokensPerLeaf bounds the size of a single claim-nft leaf
	DefaultMaxTokensPerLeaf = 256
)

// Limits bounds the encoding cost of a single record
type Limits struct {
	MaxTokensPerLeaf int
}

// DefaultLimits returns the limits used by Encode
func DefaultLimits() *Limits {
	return &Limits{MaxTokensPerLeaf: DefaultMaxTokensPerLeaf}
}

// Width returns the encoded length of a leaf. tokens is only used by the claim-nft schema.
func Width(schema types.Schema, tokens int) (int, error) {
	switch schema {
	case types.SchemaIdBalance:
		return U128Width + U128Width, nil
	case types.SchemaAccountBalance:
		return util.AccountIDLength + U128Width, nil
	case types.SchemaClaimBalance:
		return U64Width + U128Width, nil
	case types.SchemaClaimNft:
		if tokens < 1 {
			return 0, fmt.Errorf("claim-nft leaf needs at least one token")
		}
		return U64Width + tokens*NftTokenWidth, nil
	default:
		return 0, fmt.Errorf("unsupported leaf schema: %q", schema)
	}
}

// Encode encodes a record with the default limits
func Encode(schema types.Schema, record *types.EntitlementRecord) ([]byte, error) {
	return EncodeWithLimits(schema, record, DefaultLimits())
}

// EncodeWithLimits encodes a single record into its canonical leaf bytes.
// It is a pure function; every failure is an *EncodingError.
func EncodeWithLimits(schema types.Schema, record *types.EntitlementRecord, limits *Limits) ([]byte, error) {
	if record == nil {
		return nil, newEncodingError(schema, "record", "record cannot be nil")
	}
	if limits == nil {
		limits = DefaultLimits()
	}

	switch schema {
	case types.SchemaIdBalance:
		out := make([]byte, 0, U128Width+U128Width)
		out, err := appendUint128(out, record.ID)
		if err != nil {
			return nil, wrapFieldError(schema, "id", err)
		}
		out, err = appendUint128(out, record.Amount)
		if err != nil {
			return nil, wrapFieldError(schema, "amount", err)
		}
		return out, nil

	case types.SchemaAccountBalance:
		account, err := util.DecodeAccountID(record.Claimant)
		if err != nil {
			return nil, wrapFieldError(schema, "claimant", err)
		}
		out := make([]byte, 0, util.AccountIDLength+U128Width)
		out = append(out, account[:]...)
		out, err = appendUint128(out, record.Amount)
		if err != nil {
			return nil, wrapFieldError(schema, "amount", err)
		}
		return out, nil

	case types.SchemaClaimBalance:
		out := make([]byte, 0, U64Width+U128Width)
		out = binary.LittleEndian.AppendUint64(out, record.ClaimID)
		out, err := appendUint128(out, record.Amount)
		if err != nil {
			return nil, wrapFieldError(schema, "amount", err)
		}
		return out, nil

	case types.SchemaClaimNft:
		if len(record.Tokens) == 0 {
			return nil, newEncodingError(schema, "tokens", "claim-nft record needs at least one token")
		}
		if limits.MaxTokensPerLeaf > 0 && len(record.Tokens) > limits.MaxTokensPerLeaf {
			return nil, newEncodingError(schema, "tokens", "%d tokens exceeds the maximum of %d per leaf",
				len(record.Tokens), limits.MaxTokensPerLeaf)
		}
		out := make([]byte, 0, U64Width+len(record.Tokens)*NftTokenWidth)
		out = binary.LittleEndian.AppendUint64(out, record.ClaimID)
		for _, token := range record.Tokens {
			out = binary.LittleEndian.AppendUint32(out, token.ClassID)
			out = binary.LittleEndian.AppendUint64(out, token.TokenID)
		}
		return out, nil

	default:
		return nil, newEncodingError(schema, "schema", "unsupported leaf schema")
	}
}

// EncodeAll encodes records in parallel, preserving input order.
// The returned error carries the index of the first failing record found.
func EncodeAll(ctx context.Context, schema types.Schema, records []*types.EntitlementRecord, limits *Limits) ([][]byte, error) {
	encoded := make([][]byte, len(records))

	err := util.ParallelChunks(ctx, len(records), func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			leaf, err := EncodeWithLimits(schema, records[i], limits)
			if err != nil {
				var encErr *EncodingError
				if errors.As(err, &encErr) {
					encErr.Index = i
				}
				return err
			}
			encoded[i] = leaf
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return encoded, nil
}

// appendUint128 appends v as 16 little-endian bytes
func appendUint128(dst []byte, v *uint256.Int) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("value is missing")
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("value %s does not fit in 128 bits", v.Dec())
	}

	be := v.Bytes32()
	for i := 0; i < U128Width; i++ {
		dst = append(dst, be[len(be)-1-i])
	}
	return dst, nil
}

func wrapFieldError(schema types.Schema, field string, err error) *EncodingError {
	return &EncodingError{
		Schema: schema,
		Index:  -1,
		Field:  field,
		Err:    err,
	}
}
