package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
)

// MarshalDistribution serializes a Distribution to JSON bytes.
// Digests and leaves are written as 0x-prefixed hex, amounts as decimal strings.
func MarshalDistribution(dist *distribution.Distribution) ([]byte, error) {
	if dist == nil {
		return nil, fmt.Errorf("cannot marshal nil Distribution")
	}

	data, err := json.Marshal(dist)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Distribution to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDistribution deserializes a Distribution from JSON bytes.
// The protocol field must agree with sortPairs, so a tampered file cannot switch verifiers.
func UnmarshalDistribution(data []byte) (*distribution.Distribution, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var dist distribution.Distribution
	if err := json.Unmarshal(data, &dist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Distribution: %w", err)
	}

	sortPairs, err := merkle.ParseProtocol(dist.Protocol)
	if err != nil {
		return nil, err
	}
	if sortPairs != dist.SortPairs {
		return nil, fmt.Errorf("distribution protocol %s does not match sortPairs=%v", dist.Protocol, dist.SortPairs)
	}
	if err := checkClaims(&dist); err != nil {
		return nil, err
	}

	return &dist, nil
}

// checkClaims rejects claims that cannot be proven and index entries pointing outside Claims
func checkClaims(dist *distribution.Distribution) error {
	for i, claim := range dist.Claims {
		if claim == nil {
			return fmt.Errorf("claim %d is null", i)
		}
		if claim.Record == nil {
			return fmt.Errorf("claim %d has no record", i)
		}
		if claim.Proof == nil {
			return fmt.Errorf("claim %d has no proof", i)
		}
	}
	for _, entry := range dist.ClaimIndex {
		if entry.LeafIndex < 0 || entry.LeafIndex >= len(dist.Claims) {
			return fmt.Errorf("claim index entry for %s points at leaf %d outside %d claims",
				entry.Claimant, entry.LeafIndex, len(dist.Claims))
		}
	}
	return nil
}
