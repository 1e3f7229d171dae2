package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/reward-merkle-go/pkg/claims"
	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/leaf"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// Environment variable names for rewardTree configuration
const (
	EnvRewardTreeConfig           = "REWARD_TREE_CONFIG"
	EnvRewardTreeCampaignID       = "REWARD_TREE_CAMPAIGN_ID"
	EnvRewardTreeSchema           = "REWARD_TREE_SCHEMA"
	EnvRewardTreeSortPairs        = "REWARD_TREE_SORT_PAIRS"
	EnvRewardTreePad              = "REWARD_TREE_PAD"
	EnvRewardTreeMaxRecords       = "REWARD_TREE_MAX_RECORDS"
	EnvRewardTreeMaxTokensPerLeaf = "REWARD_TREE_MAX_TOKENS_PER_LEAF"
	EnvRewardTreeMaxProofNodes    = "REWARD_TREE_MAX_PROOF_NODES"
	EnvRewardTreeStoreType        = "REWARD_TREE_STORE_TYPE"
	EnvRewardTreeBadgerPath       = "REWARD_TREE_BADGER_PATH"
	EnvRewardTreeRedisAddress     = "REWARD_TREE_REDIS_ADDRESS"
	EnvRewardTreeRedisPassword    = "REWARD_TREE_REDIS_PASSWORD"
	EnvRewardTreeRedisDB          = "REWARD_TREE_REDIS_DB"
	EnvRewardTreeRedisKeyPrefix   = "REWARD_TREE_REDIS_KEY_PREFIX"
	EnvRewardTreeDebug            = "REWARD_TREE_DEBUG"
)

const (
	DefaultBadgerPath = "./data/distributions"

	// maxRedisDB is the highest database number of a default Redis server
	maxRedisDB = 15
)

// StoreConfig selects where published distributions are kept
type StoreConfig struct {
	Type       persistence.StoreType `json:"type" yaml:"type"`
	BadgerPath string                `json:"badgerPath" yaml:"badgerPath"`
	Redis      RedisConfig           `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// RewardTreeConfig is the complete configuration of the rewardTree tool
type RewardTreeConfig struct {
	CampaignID      uint32       `json:"campaignId" yaml:"campaignId"`
	Schema          types.Schema `json:"schema" yaml:"schema"`
	SortPairs       bool         `json:"sortPairs" yaml:"sortPairs"`
	PadToPowerOfTwo bool         `json:"padToPowerOfTwo" yaml:"padToPowerOfTwo"`

	// Limits
	MaxRecords       int `json:"maxRecords" yaml:"maxRecords"`
	MaxTokensPerLeaf int `json:"maxTokensPerLeaf" yaml:"maxTokensPerLeaf"`
	MaxProofNodes    int `json:"maxProofNodes" yaml:"maxProofNodes"`

	Store StoreConfig `json:"store" yaml:"store"`

	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultRewardTreeConfig returns the configuration used when nothing is set
func DefaultRewardTreeConfig() *RewardTreeConfig {
	return &RewardTreeConfig{
		Schema:           types.SchemaAccountBalance,
		SortPairs:        true,
		MaxRecords:       distribution.DefaultMaxRecords,
		MaxTokensPerLeaf: leaf.DefaultMaxTokensPerLeaf,
		MaxProofNodes:    claims.DefaultMaxProofNodes,
		Store: StoreConfig{
			Type:       persistence.StoreTypeMemory,
			BadgerPath: DefaultBadgerPath,
		},
	}
}

// LoadConfigFile reads a YAML config file on top of the defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadConfigFile(path string) (*RewardTreeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes on top of the defaults
func ParseConfig(data []byte) (*RewardTreeConfig, error) {
	cfg := DefaultRewardTreeConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate validates the rewardTree configuration
func (c *RewardTreeConfig) Validate() error {
	var allErrors field.ErrorList

	if _, err := types.ParseSchema(c.Schema.String()); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("schema"), c.Schema.String(), schemaNames()))
	}
	if c.MaxRecords < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxRecords"), c.MaxRecords, "must be at least 1"))
	}
	if c.MaxTokensPerLeaf < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxTokensPerLeaf"), c.MaxTokensPerLeaf, "must be at least 1"))
	}
	if c.MaxProofNodes < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxProofNodes"), c.MaxProofNodes, "must be at least 1"))
	}

	storePath := field.NewPath("store")
	switch c.Store.Type {
	case persistence.StoreTypeMemory:
	case persistence.StoreTypeBadger:
		if c.Store.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(storePath.Child("badgerPath"), "badgerPath is required for the badger store"))
		}
	case persistence.StoreTypeRedis:
		if c.Store.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(storePath.Child("redis", "address"), "address is required for the redis store"))
		}
		if c.Store.Redis.DB < 0 || c.Store.Redis.DB > maxRedisDB {
			allErrors = append(allErrors, field.Invalid(storePath.Child("redis", "db"), c.Store.Redis.DB, fmt.Sprintf("must be between 0-%d", maxRedisDB)))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(storePath.Child("type"), string(c.Store.Type), []string{
			string(persistence.StoreTypeMemory),
			string(persistence.StoreTypeBadger),
			string(persistence.StoreTypeRedis),
		}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// DistributionConfig returns the distribution builder config
func (c *RewardTreeConfig) DistributionConfig() *distribution.Config {
	return &distribution.Config{
		CampaignID:       c.CampaignID,
		Schema:           c.Schema,
		SortPairs:        c.SortPairs,
		PadToPowerOfTwo:  c.PadToPowerOfTwo,
		MaxRecords:       c.MaxRecords,
		MaxTokensPerLeaf: c.MaxTokensPerLeaf,
	}
}

// ProcessorOptions returns the claim processor options
func (c *RewardTreeConfig) ProcessorOptions() *claims.Options {
	return &claims.Options{
		MaxProofNodes:    c.MaxProofNodes,
		MaxTokensPerLeaf: c.MaxTokensPerLeaf,
	}
}

func schemaNames() []string {
	names := make([]string, 0, len(types.SupportedSchemas()))
	for _, s := range types.SupportedSchemas() {
		names = append(names, s.String())
	}
	return names
}
