package distribution

import (
	"fmt"

	"github.com/Layr-Labs/reward-merkle-go/pkg/leaf"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// DefaultMaxRecords bounds a single distribution when Config.MaxRecords is unset
const DefaultMaxRecords = merkle.DefaultMaxLeaves

// Config describes how a campaign's entitlements are committed
type Config struct {
	CampaignID uint32
	Schema     types.Schema

	// SortPairs selects the v1-sorted protocol instead of v1-positional
	SortPairs bool

	// PadToPowerOfTwo appends zero-amount filler records until the leaf count is balanced.
	// Without it, unbalanced inputs are rejected.
	PadToPowerOfTwo bool

	MaxRecords       int
	MaxTokensPerLeaf int
}

// Validate checks the config before a build starts
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("distribution config is required")
	}
	if _, err := types.ParseSchema(c.Schema.String()); err != nil {
		return err
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("max records cannot be negative")
	}
	if c.MaxTokensPerLeaf < 0 {
		return fmt.Errorf("max tokens per leaf cannot be negative")
	}
	return nil
}

// Protocol returns the protocol version this config builds
func (c *Config) Protocol() string {
	return merkle.ProtocolVersion(c.SortPairs)
}

func (c *Config) maxRecords() int {
	if c.MaxRecords > 0 {
		return c.MaxRecords
	}
	return DefaultMaxRecords
}

func (c *Config) limits() *leaf.Limits {
	limits := leaf.DefaultLimits()
	if c.MaxTokensPerLeaf > 0 {
		limits.MaxTokensPerLeaf = c.MaxTokensPerLeaf
	}
	return limits
}
