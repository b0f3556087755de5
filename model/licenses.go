// File: model/licenses.go
package model

import "time"

// LicenseState tracks the integrity state of an issued license.
// Transitions are monotonic: ACTIVE -> TAMPERED, ACTIVE -> CRACKED,
// TAMPERED -> CRACKED. CRACKED is terminal.
type LicenseState string

const (
	LicenseActive   LicenseState = "ACTIVE"
	LicenseTampered LicenseState = "TAMPERED"
	LicenseCracked  LicenseState = "CRACKED"
)

// String returns the string representation of the LicenseState.
func (s LicenseState) String() string {
	return string(s)
}

// License binds a content digest to a human-readable name and an owning
// account. The key doubles as the digest the content must still hash to
// for the license to be authentic.
type License struct {
	ObjectType    string       `json:"objectType"` // Set to the composite key object type (License)
	Key           string       `json:"key"`        // Hex content digest, primary key
	SoftwareName  string       `json:"softwareName"`
	Owner         string       `json:"owner"` // FullID of the owning account
	State         LicenseState `json:"state"`
	IssuedAt      time.Time    `json:"issuedAt"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
}

// Verdict is the outcome of an authenticity check. Reason is empty when the
// content is authentic.
type Verdict struct {
	Authentic bool   `json:"authentic"`
	Reason    string `json:"reason,omitempty"`
}
