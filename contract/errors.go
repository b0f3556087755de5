package contract

import "errors"

// Sentinel errors surfaced to callers. Operations wrap these with
// fmt.Errorf("...: %w", ...) so clients can match with errors.Is while
// still getting a descriptive message. None of these are retried
// internally: a repeated identical call against unchanged state always
// produces the same error.
var (
	// ErrForbidden marks an authorization failure.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a referenced entity that does not exist on the ledger.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists guards duplicate account registrations and software
	// submissions.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyLicensed guards duplicate license issuance for a key.
	ErrAlreadyLicensed = errors.New("already licensed")

	// ErrAlreadyCracked guards repeated crack reports for a license.
	ErrAlreadyCracked = errors.New("already cracked")

	// ErrInvalidTransition marks a state-machine violation, usually a stale
	// client view of the entity.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotArchived marks an unarchive attempt on a non-archived account.
	ErrNotArchived = errors.New("not archived")

	// ErrNotApproved marks a license issuance against a digest with no
	// approved software entry.
	ErrNotApproved = errors.New("not approved")
)
