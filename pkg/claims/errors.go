package claims

import "errors"

var (
	// ErrCampaignNotFound is returned when a claim names a campaign with no registered roots
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrRootAlreadySet is returned when the same root is registered twice for a campaign
	ErrRootAlreadySet = errors.New("merkle root already set for campaign")

	// ErrRootNotRelatedToCampaign is returned when a proof folds to a root the campaign does not have
	ErrRootNotRelatedToCampaign = errors.New("merkle root not related to campaign")

	// ErrNoClaimIndexEntry is returned when the claimant has no unclaimed entry
	ErrNoClaimIndexEntry = errors.New("no claim index entry")

	// ErrProofTooLong is returned when a proof has more siblings than any accepted tree depth
	ErrProofTooLong = errors.New("proof too long")

	// ErrInvalidProof is returned when a positional proof is missing side flags
	ErrInvalidProof = errors.New("invalid proof")

	// ErrClaimMismatch is returned when the record does not belong to the claimant or claim id
	ErrClaimMismatch = errors.New("record does not match claim")

	// ErrSchemaMismatch is returned when a distribution is registered under a different schema or protocol
	ErrSchemaMismatch = errors.New("distribution does not match campaign")
)
