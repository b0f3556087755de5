package model

import "time"

// SoftwareStatus represents the review state of a software submission.
// PENDING is the only state an admin decision is valid from; APPROVED and
// REJECTED are terminal (a new submission under a new digest is the only
// remedy for a rejection).
type SoftwareStatus string

const (
	SoftwarePending  SoftwareStatus = "PENDING"
	SoftwareApproved SoftwareStatus = "APPROVED"
	SoftwareRejected SoftwareStatus = "REJECTED"
)

// String returns the string representation of the SoftwareStatus.
func (s SoftwareStatus) String() string {
	return string(s)
}

// SoftwareEntry records a submitted software artifact. The entry is keyed by
// the content digest of the artifact, so identical bytes can never produce
// two entries.
type SoftwareEntry struct {
	ObjectType      string         `json:"objectType"` // Set to the composite key object type (SoftwareEntry)
	Digest          string         `json:"digest"`     // Hex content digest of the artifact, primary key
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Submitter       string         `json:"submitter"`      // FullID of the submitting account
	SubmitterEmail  string         `json:"submitterEmail"` // Denormalized for admin review listings
	Status          SoftwareStatus `json:"status"`
	ReviewedBy      string         `json:"reviewedBy,omitempty"`      // FullID of the deciding admin
	RejectionReason string         `json:"rejectionReason,omitempty"` // Present iff Status is REJECTED
	SubmittedAt     time.Time      `json:"submittedAt"`
	LastUpdatedAt   time.Time      `json:"lastUpdatedAt"`
}
