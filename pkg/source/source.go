// Package source loads entitlement records from CSV or JSON exports and writes claim tables back out.
package source

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/reward-merkle-go/pkg/distribution"
	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// Format names an input file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat picks a format from a name or file extension
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "csv" || strings.HasSuffix(name, ".csv"):
		return FormatCSV, nil
	case name == "json" || strings.HasSuffix(name, ".json"):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported input format: %q", name)
	}
}

// EntitlementRow is one CSV row. Columns that a schema does not use may be left out.
type EntitlementRow struct {
	Claimant string `csv:"claimant"`
	ID       string `csv:"id"`
	ClaimID  string `csv:"claim_id"`
	Amount   string `csv:"amount"`
	// Tokens is class:token pairs separated by ';', e.g. "7:1;7:2"
	Tokens string `csv:"tokens"`
}

// Load reads records in the given format
func Load(r io.Reader, format Format) ([]*types.EntitlementRecord, error) {
	switch format {
	case FormatCSV:
		return LoadCSV(r)
	case FormatJSON:
		return LoadJSON(r)
	default:
		return nil, fmt.Errorf("unsupported input format: %q", format)
	}
}

// LoadCSV reads records from a CSV file with a header row
func LoadCSV(r io.Reader) ([]*types.EntitlementRecord, error) {
	rows := make([]EntitlementRow, 0)
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse entitlement CSV: %w", err)
	}

	records := make([]*types.EntitlementRecord, len(rows))
	for i, row := range rows {
		record, err := row.toRecord()
		if err != nil {
			// Row 1 is the header
			return nil, fmt.Errorf("CSV row %d: %w", i+2, err)
		}
		records[i] = record
	}
	return records, nil
}

// LoadJSON reads a JSON array of records. Amounts and ids may be decimal strings or 0x hex.
func LoadJSON(r io.Reader) ([]*types.EntitlementRecord, error) {
	var records []*types.EntitlementRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse entitlement JSON: %w", err)
	}
	for i, record := range records {
		if record == nil {
			return nil, fmt.Errorf("JSON record %d is null", i)
		}
	}
	return records, nil
}

func (row *EntitlementRow) toRecord() (*types.EntitlementRecord, error) {
	record := &types.EntitlementRecord{
		Claimant: strings.TrimSpace(row.Claimant),
	}

	var err error
	if record.ID, err = parseUint(row.ID); err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}
	if record.Amount, err = parseUint(row.Amount); err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	if s := strings.TrimSpace(row.ClaimID); s != "" {
		if record.ClaimID, err = strconv.ParseUint(s, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid claim_id: %w", err)
		}
	}
	if record.Tokens, err = ParseTokens(row.Tokens); err != nil {
		return nil, fmt.Errorf("invalid tokens: %w", err)
	}
	return record, nil
}

// parseUint parses a decimal or 0x hex integer; empty input yields nil
func parseUint(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	// big.Int accepts a sign, amounts never carry one
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return nil, fmt.Errorf("%q is not an unsigned integer", s)
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("%q is not an unsigned integer", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%q does not fit in 256 bits", s)
	}
	return v, nil
}

// ParseTokens parses "class:token;class:token"
func ParseTokens(s string) ([]types.NftToken, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ";")
	tokens := make([]types.NftToken, 0, len(parts))
	for _, part := range parts {
		classPart, tokenPart, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("token %q is not class:token", part)
		}
		classID, err := strconv.ParseUint(strings.TrimSpace(classPart), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid class id in %q: %w", part, err)
		}
		tokenID, err := strconv.ParseUint(strings.TrimSpace(tokenPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid token id in %q: %w", part, err)
		}
		tokens = append(tokens, types.NftToken{ClassID: uint32(classID), TokenID: tokenID})
	}
	return tokens, nil
}

// FormatTokens is the inverse of ParseTokens
func FormatTokens(tokens []types.NftToken) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = fmt.Sprintf("%d:%d", t.ClassID, t.TokenID)
	}
	return strings.Join(parts, ";")
}

// ClaimRow is one row of an exported claim table
type ClaimRow struct {
	Claimant  string `csv:"claimant"`
	ClaimID   uint64 `csv:"claim_id"`
	LeafIndex int    `csv:"leaf_index"`
	Leaf      string `csv:"leaf"`
	// Proof is the sibling digests separated by ';'
	Proof string `csv:"proof"`
	// Sides is the matching side flags separated by ';'
	Sides string `csv:"sides"`
}

// WriteClaimsCSV writes one row per claim, ordered like the claim index
func WriteClaimsCSV(dist *distribution.Distribution, w io.Writer) error {
	rows := make([]ClaimRow, 0, len(dist.ClaimIndex))
	for _, entry := range dist.ClaimIndex {
		if entry.LeafIndex < 0 || entry.LeafIndex >= len(dist.Claims) || dist.Claims[entry.LeafIndex] == nil {
			return fmt.Errorf("claim index entry for %s points at leaf %d outside %d claims",
				entry.Claimant, entry.LeafIndex, len(dist.Claims))
		}
		claim := dist.Claims[entry.LeafIndex]
		if claim.Proof == nil {
			return fmt.Errorf("claim for %s has no proof", entry.Claimant)
		}
		hp := claim.Proof.ToHex()
		rows = append(rows, ClaimRow{
			Claimant:  entry.Claimant,
			ClaimID:   entry.ClaimID,
			LeafIndex: entry.LeafIndex,
			Leaf:      hp.Leaf,
			Proof:     strings.Join(hp.Siblings, ";"),
			Sides:     strings.Join(hp.Sides, ";"),
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write claims CSV: %w", err)
	}
	return nil
}
