package types

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Schema names the fixed-width leaf layout used to encode a campaign's entitlements.
// The schema is part of the protocol: the claim-processing counterpart must encode
// claims with exactly the same schema or every proof fails.
type Schema string

func (s Schema) String() string {
	return string(s)
}

const (
	// SchemaIdBalance is id u128 || amount u128 (32 bytes)
	SchemaIdBalance Schema = "id-balance"
	// SchemaAccountBalance is AccountId (32 bytes) || amount u128 (48 bytes)
	SchemaAccountBalance Schema = "account-balance"
	// SchemaClaimBalance is claimId u64 || amount u128 (24 bytes)
	SchemaClaimBalance Schema = "claim-balance"
	// SchemaClaimNft is claimId u64 || n * (classId u32 || tokenId u64)
	SchemaClaimNft Schema = "claim-nft"
)

// SupportedSchemas returns every leaf schema known to the encoder
func SupportedSchemas() []Schema {
	return []Schema{
		SchemaIdBalance,
		SchemaAccountBalance,
		SchemaClaimBalance,
		SchemaClaimNft,
	}
}

// ParseSchema converts a schema name into a Schema
func ParseSchema(name string) (Schema, error) {
	for _, s := range SupportedSchemas() {
		if string(s) == strings.TrimSpace(name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported leaf schema: %q", name)
}

// SupportedSchemasString returns the supported schema names for CLI help
func SupportedSchemasString() string {
	names := make([]string, 0, len(SupportedSchemas()))
	for _, s := range SupportedSchemas() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

// NftToken identifies a single NFT within a class
type NftToken struct {
	ClassID uint32 `json:"classId"`
	TokenID uint64 `json:"tokenId"`
}

// EntitlementRecord is a claimant's identity plus what they may claim.
// Which fields are meaningful depends on the leaf schema of the campaign:
//   - id-balance:      ID, Amount (Claimant optional, used only for the claim index)
//   - account-balance: Claimant (SS58 or 0x hex AccountId), Amount
//   - claim-balance:   Claimant, ClaimID, Amount
//   - claim-nft:       Claimant, ClaimID, Tokens
//
// Records are treated as immutable once handed to the pipeline.
type EntitlementRecord struct {
	Claimant string       `json:"claimant,omitempty"`
	ID       *uint256.Int `json:"id,omitempty"`
	ClaimID  uint64       `json:"claimId,omitempty"`
	Amount   *uint256.Int `json:"amount,omitempty"`
	Tokens   []NftToken   `json:"tokens,omitempty"`
}

// Copy returns a deep copy of the record
func (r *EntitlementRecord) Copy() *EntitlementRecord {
	if r == nil {
		return nil
	}
	c := &EntitlementRecord{
		Claimant: r.Claimant,
		ClaimID:  r.ClaimID,
	}
	if r.ID != nil {
		c.ID = r.ID.Clone()
	}
	if r.Amount != nil {
		c.Amount = r.Amount.Clone()
	}
	if r.Tokens != nil {
		c.Tokens = make([]NftToken, len(r.Tokens))
		copy(c.Tokens, r.Tokens)
	}
	return c
}
