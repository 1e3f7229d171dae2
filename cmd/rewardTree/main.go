package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/config"
	"github.com/Layr-Labs/reward-merkle-go/pkg/logger"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rewardTree",
		Usage: "Build and verify merkle commitments over reward pool entitlements",
		Description: `Commits a campaign's entitlement records to a single merkle root and produces
the inclusion proof each claimant submits to the claim verifier.

This tool can:
- Build a distribution (root, proofs and claim index) from a CSV or JSON record file
- Publish distributions to a memory, Badger or Redis store
- Print the proof for one claimant
- Verify an untrusted hex proof against a published root`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file; flags override its values",
				EnvVars: []string{config.EnvRewardTreeConfig},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvRewardTreeDebug},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Build a distribution from entitlement records",
				Flags: append(append(treeFlags(), storeFlags()...),
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Entitlement record file (.csv or .json)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Record file format: csv or json (default: from the file extension)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file for the distribution JSON (default: stdout)",
					},
					&cli.StringFlag{
						Name:  "claims-csv",
						Usage: "Also write one CSV row per claim to this file",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "Save the distribution to the configured store",
					},
				),
				Action: buildCommand,
			},
			{
				Name:  "prove",
				Usage: "Print the proof for one claimant",
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:  "distribution",
						Usage: "Distribution JSON file written by build",
					},
					&cli.UintFlag{
						Name:    "campaign-id",
						Usage:   "Campaign of the stored distribution (with --root)",
						EnvVars: []string{config.EnvRewardTreeCampaignID},
					},
					&cli.StringFlag{
						Name:  "root",
						Usage: "Root of the stored distribution (default: the latest for the campaign)",
					},
					&cli.StringFlag{
						Name:     "claimant",
						Usage:    "Claimant account (SS58, 0x hex, or id:<n> for id-balance records)",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "claim-id",
						Usage: "Claim id for claim-balance and claim-nft schemas",
					},
					&cli.IntFlag{
						Name:    "max-proof-nodes",
						Usage:   "Longest proof the claim verifier accepts",
						EnvVars: []string{config.EnvRewardTreeMaxProofNodes},
					},
				),
				Action: proveCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a hex proof against a root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "proof",
						Usage:    "Proof JSON ({leaf, siblings, sides}) or path to a file containing it",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "root",
						Usage:    "Published merkle root (0x hex)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Expected number of proof levels, -1 to skip the check",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:    "sort-pairs",
						Usage:   "Verify with sorted pair hashing (v1-sorted)",
						Value:   true,
						EnvVars: []string{config.EnvRewardTreeSortPairs},
					},
				},
				Action: verifyCommand,
			},
			{
				Name:      "address",
				Usage:     "Decode an SS58 address or encode a 0x AccountId",
				ArgsUsage: "<address>",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "prefix",
						Usage: "Network prefix used when encoding a hex AccountId",
						Value: 42,
					},
				},
				Action: addressCommand,
			},
		},
	}
}

// treeFlags are the flags that shape the tree
func treeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:    "campaign-id",
			Usage:   "Campaign the distribution belongs to",
			EnvVars: []string{config.EnvRewardTreeCampaignID},
		},
		&cli.StringFlag{
			Name:    "schema",
			Usage:   fmt.Sprintf("Leaf schema (%s)", types.SupportedSchemasString()),
			EnvVars: []string{config.EnvRewardTreeSchema},
		},
		&cli.BoolFlag{
			Name:    "sort-pairs",
			Usage:   "Sort leaves and hash pairs as H(min || max)",
			Value:   true,
			EnvVars: []string{config.EnvRewardTreeSortPairs},
		},
		&cli.BoolFlag{
			Name:    "pad",
			Usage:   "Pad the record set to a power of two with zero-amount filler leaves",
			EnvVars: []string{config.EnvRewardTreePad},
		},
		&cli.IntFlag{
			Name:    "max-records",
			Usage:   "Maximum number of records in one distribution",
			EnvVars: []string{config.EnvRewardTreeMaxRecords},
		},
		&cli.IntFlag{
			Name:    "max-tokens-per-leaf",
			Usage:   "Maximum NFT tokens in one claim-nft leaf",
			EnvVars: []string{config.EnvRewardTreeMaxTokensPerLeaf},
		},
	}
}

// storeFlags select the distribution store
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store-type",
			Usage:   "Distribution store: memory, badger or redis",
			EnvVars: []string{config.EnvRewardTreeStoreType},
		},
		&cli.StringFlag{
			Name:    "badger-path",
			Usage:   "Data directory of the badger store",
			EnvVars: []string{config.EnvRewardTreeBadgerPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port)",
			EnvVars: []string{config.EnvRewardTreeRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRewardTreeRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvRewardTreeRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every Redis key",
			EnvVars: []string{config.EnvRewardTreeRedisKeyPrefix},
		},
	}
}

// setup loads the config file, applies flag overrides, validates the result and creates the logger
func setup(c *cli.Context) (*config.RewardTreeConfig, *zap.Logger, error) {
	cfg, err := parseRewardTreeConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, l, nil
}

func parseRewardTreeConfig(c *cli.Context) (*config.RewardTreeConfig, error) {
	cfg := config.DefaultRewardTreeConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("verbose") {
		cfg.Debug = c.Bool("verbose")
	}
	if c.IsSet("campaign-id") {
		cfg.CampaignID = uint32(c.Uint("campaign-id"))
	}
	if c.IsSet("schema") {
		schema, err := types.ParseSchema(c.String("schema"))
		if err != nil {
			return nil, err
		}
		cfg.Schema = schema
	}
	if c.IsSet("sort-pairs") {
		cfg.SortPairs = c.Bool("sort-pairs")
	}
	if c.IsSet("pad") {
		cfg.PadToPowerOfTwo = c.Bool("pad")
	}
	if c.IsSet("max-records") {
		cfg.MaxRecords = c.Int("max-records")
	}
	if c.IsSet("max-tokens-per-leaf") {
		cfg.MaxTokensPerLeaf = c.Int("max-tokens-per-leaf")
	}
	if c.IsSet("max-proof-nodes") {
		cfg.MaxProofNodes = c.Int("max-proof-nodes")
	}

	if c.IsSet("store-type") {
		cfg.Store.Type = persistence.StoreType(c.String("store-type"))
	}
	if c.IsSet("badger-path") {
		cfg.Store.BadgerPath = c.String("badger-path")
	}
	if c.IsSet("redis-address") {
		cfg.Store.Redis.Address = c.String("redis-address")
	}
	if c.IsSet("redis-password") {
		cfg.Store.Redis.Password = c.String("redis-password")
	}
	if c.IsSet("redis-db") {
		cfg.Store.Redis.DB = c.Int("redis-db")
	}
	if c.IsSet("redis-key-prefix") {
		cfg.Store.Redis.KeyPrefix = c.String("redis-key-prefix")
	}

	return cfg, nil
}
