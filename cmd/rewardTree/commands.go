package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-merkle-go/pkg/claims"
	"github.com/Layr-Labs/reward-merkle-go/pkg/config"
	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/reward-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/reward-merkle-go/pkg/source"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
	"github.com/Layr-Labs/reward-merkle-go/pkg/util"
)

func buildCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	input := c.String("input")
	formatName := c.String("format")
	if formatName == "" {
		formatName = input
	}
	format, err := source.ParseFormat(formatName)
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input %s: %w", input, err)
	}
	records, err := source.Load(f, format)
	_ = f.Close()
	if err != nil {
		return err
	}
	l.Sugar().Infow("Loaded entitlement records", "input", input, "format", format, "records", len(records))

	builder, err := distribution.NewBuilder(cfg.DistributionConfig(), l)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	dist, err := builder.Build(c.Context, records)
	if err != nil {
		return fmt.Errorf("failed to build distribution: %w", err)
	}

	data, err := persistence.MarshalDistribution(dist)
	if err != nil {
		return err
	}
	if err := writeOutput(c, c.String("output"), data); err != nil {
		return err
	}

	if path := c.String("claims-csv"); path != "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create claims CSV %s: %w", path, err)
		}
		if err := source.WriteClaimsCSV(dist, out); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("failed to close claims CSV %s: %w", path, err)
		}
		l.Sugar().Infow("Wrote claims CSV", "path", path, "claims", len(dist.Claims))
	}

	if c.Bool("publish") {
		if err := publish(cfg, l, dist); err != nil {
			return err
		}
	}
	return nil
}

func publish(cfg *config.RewardTreeConfig, l *zap.Logger, dist *distribution.Distribution) error {
	store, err := openStore(&cfg.Store, l)
	if err != nil {
		return fmt.Errorf("failed to open distribution store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close distribution store", "error", err)
		}
	}()

	if err := store.SaveDistribution(dist); err != nil {
		return fmt.Errorf("failed to publish distribution: %w", err)
	}
	l.Sugar().Infow("Published distribution",
		"store", cfg.Store.Type,
		"key", persistence.KeyOf(dist).String(),
		"distribution_id", dist.ID.String())
	return nil
}

// claimOutput is what prove prints for one claimant
type claimOutput struct {
	CampaignID uint32                   `json:"campaignId"`
	Protocol   string                   `json:"protocol"`
	Root       common.Hash              `json:"root"`
	Depth      int                      `json:"depth"`
	Claimant   string                   `json:"claimant"`
	ClaimID    uint64                   `json:"claimId"`
	LeafIndex  int                      `json:"leafIndex"`
	Record     *types.EntitlementRecord `json:"record"`
	Leaf       hexutil.Bytes            `json:"leaf"`
	Proof      *merkle.HexProof         `json:"proof"`
}

func proveCommand(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	dist, err := loadDistribution(c, cfg, l)
	if err != nil {
		return err
	}

	claim, err := dist.ClaimFor(c.String("claimant"), c.Uint64("claim-id"))
	if err != nil {
		return err
	}

	// A published distribution is untrusted input until its proof checks out
	if claim.Proof == nil || !dist.Verifier().Verify(claim.Proof.Leaf, claim.Proof) {
		return fmt.Errorf("stored proof for %s does not verify against root %s", claim.Claimant, dist.Root.Hex())
	}

	// Replay the claim the way the claim verifier will, on a throwaway processor
	processor := claims.NewProcessor(cfg.ProcessorOptions(), l)
	if err := processor.Register(dist); err != nil {
		return fmt.Errorf("distribution would be rejected by the claim verifier: %w", err)
	}
	if _, err := processor.Claim(dist.CampaignID, claims.NewClaimRequest(claim)); err != nil {
		return fmt.Errorf("claim would be rejected by the claim verifier: %w", err)
	}

	out := &claimOutput{
		CampaignID: dist.CampaignID,
		Protocol:   dist.Protocol,
		Root:       dist.Root,
		Depth:      dist.Depth,
		Claimant:   claim.Claimant,
		ClaimID:    claim.ClaimID,
		LeafIndex:  claim.Proof.LeafIndex,
		Record:     claim.Record,
		Leaf:       claim.Leaf,
		Proof:      claim.Proof.ToHex(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proof: %w", err)
	}
	return writeOutput(c, "", data)
}

// loadDistribution reads the distribution named by --distribution, or from the configured store
func loadDistribution(c *cli.Context, cfg *config.RewardTreeConfig, l *zap.Logger) (*distribution.Distribution, error) {
	if path := c.String("distribution"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read distribution %s: %w", path, err)
		}
		return persistence.UnmarshalDistribution(data)
	}

	store, err := openStore(&cfg.Store, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open distribution store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if rootHex := c.String("root"); rootHex != "" {
		root, err := hexutil.Decode(rootHex)
		if err != nil || len(root) != common.HashLength {
			return nil, fmt.Errorf("invalid root %q", rootHex)
		}
		dist, err := store.LoadDistribution(cfg.CampaignID, common.BytesToHash(root))
		if err != nil {
			return nil, err
		}
		if dist == nil {
			return nil, fmt.Errorf("no distribution for campaign %d with root %s", cfg.CampaignID, rootHex)
		}
		return dist, nil
	}

	dists, err := store.ListDistributions(cfg.CampaignID)
	if err != nil {
		return nil, err
	}
	if len(dists) == 0 {
		return nil, fmt.Errorf("no distributions stored for campaign %d", cfg.CampaignID)
	}
	return dists[len(dists)-1], nil
}

func verifyCommand(c *cli.Context) error {
	raw := strings.TrimSpace(c.String("proof"))
	if !strings.HasPrefix(raw, "{") {
		data, err := os.ReadFile(raw)
		if err != nil {
			return fmt.Errorf("failed to read proof %s: %w", raw, err)
		}
		raw = string(data)
	}

	// Accept the full prove output as well as a bare proof
	var wrapped struct {
		Proof *merkle.HexProof `json:"proof"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return fmt.Errorf("failed to parse proof: %w", err)
	}
	hp := wrapped.Proof
	if hp == nil {
		hp = &merkle.HexProof{}
		if err := json.Unmarshal([]byte(raw), hp); err != nil {
			return fmt.Errorf("failed to parse proof: %w", err)
		}
	}

	if !merkle.VerifyHexProof(hp, c.String("root"), c.Int("depth"), c.Bool("sort-pairs")) {
		return cli.Exit("proof is invalid", 1)
	}
	_, err := fmt.Fprintln(c.App.Writer, "proof is valid")
	return err
}

func addressCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one address argument")
	}
	address := strings.TrimSpace(c.Args().First())

	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		account, err := util.DecodeAccountID(address)
		if err != nil {
			return err
		}
		prefix := c.Uint("prefix")
		if prefix > 0xffff {
			return fmt.Errorf("ss58 prefix %d out of range", prefix)
		}
		encoded, err := util.EncodeSS58(uint16(prefix), account)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.App.Writer, "ss58:      %s\naccountId: %s\nprefix:    %d\n", encoded, hexutil.Encode(account[:]), prefix)
		return err
	}

	prefix, account, err := util.DecodeSS58(address)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "ss58:      %s\naccountId: %s\nprefix:    %d\n", address, hexutil.Encode(account[:]), prefix)
	return err
}

// writeOutput writes data to path, or to stdout when path is empty
func writeOutput(c *cli.Context, path string, data []byte) error {
	if path == "" {
		if _, err := c.App.Writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
