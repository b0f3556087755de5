// File: model/accounts.go
package model

import "time"

// AccountStatus represents where an account is in the approval workflow.
type AccountStatus string

const (
	AccountPending  AccountStatus = "PENDING"
	AccountApproved AccountStatus = "APPROVED"
	AccountRejected AccountStatus = "REJECTED"
	AccountArchived AccountStatus = "ARCHIVED"
)

// String returns the string representation of the AccountStatus.
func (s AccountStatus) String() string {
	return string(s)
}

// Account stores a registered participant and its approval state.
// Admin privilege is authoritative in a separate AdminFlag ledger key;
// IsAdmin here is a queryable mirror only.
type Account struct {
	ObjectType      string        `json:"objectType"`      // Set to the composite key object type (Account)
	FullID          string        `json:"fullId"`          // Full X.509 identity string
	Email           string        `json:"email"`           // Unique alias for this account
	Status          AccountStatus `json:"status"`          // Approval lifecycle state
	PriorStatus     AccountStatus `json:"priorStatus,omitempty"`     // Status before archiving; restore target for unarchive
	RejectionReason string        `json:"rejectionReason,omitempty"` // Present iff Status is REJECTED
	IsAdmin         bool          `json:"isAdmin"`
	RegisteredAt    time.Time     `json:"registeredAt"`
	LastUpdatedAt   time.Time     `json:"lastUpdatedAt"`
}
