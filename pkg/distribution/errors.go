package distribution

import "errors"

var (
	// ErrNoRecords is returned when a build is started without any records
	ErrNoRecords = errors.New("no entitlement records")

	// ErrTooManyRecords is returned when the input exceeds Config.MaxRecords
	ErrTooManyRecords = errors.New("too many entitlement records")

	// ErrDuplicateLeaf is returned when two records encode to the same leaf bytes
	ErrDuplicateLeaf = errors.New("duplicate leaf")

	// ErrDuplicateClaimant is returned when two records share a (claimant, claimId) pair
	ErrDuplicateClaimant = errors.New("duplicate claim index entry")

	// ErrClaimNotFound is returned when a lookup has no matching claim index entry
	ErrClaimNotFound = errors.New("claim not found")
)
