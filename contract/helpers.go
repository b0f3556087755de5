package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *LicenseManagerContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// --- Validation Helper Functions ---

func (s *LicenseManagerContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func (s *LicenseManagerContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func (s *LicenseManagerContract) validateEmail(email string) error {
	if err := s.validateRequiredString(email, "email", maxStringInputLength); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email '%s' is not a valid address", email)
	}
	return nil
}

// validateDigest checks that the input is a hex-encoded 256-bit digest and
// returns it normalized to lower case. The digest's cryptographic strength
// is the client's concern; the registry only requires the shape.
func (s *LicenseManagerContract) validateDigest(digest, field string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(digest))
	if d == "" {
		return "", fmt.Errorf("%s cannot be empty", field)
	}
	if len(d) != digestHexLength {
		return "", fmt.Errorf("%s must be %d hex characters, got %d", field, digestHexLength, len(d))
	}
	for _, c := range d {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%s contains non-hex character %q", field, c)
		}
	}
	return d, nil
}

// --- Authorization Helpers ---

// requireAdmin checks that the current caller holds the admin flag.
func (s *LicenseManagerContract) requireAdmin(ctx contractapi.TransactionContextInterface, am *AccountManager) error {
	isCallerAdmin, err := am.IsCallerAdmin()
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		callerID, _ := am.CallerFullID() // Best effort to get ID for logging
		return fmt.Errorf("caller '%s' is not an admin: %w", callerID, ErrForbidden)
	}
	return nil
}

// requireAdminOrSelf checks that the caller is an admin or is the account
// identified by targetFullID. Used by read paths that expose per-account data.
func (s *LicenseManagerContract) requireAdminOrSelf(ctx contractapi.TransactionContextInterface, am *AccountManager, targetFullID string) error {
	isCallerAdmin, err := am.IsCallerAdmin()
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if isCallerAdmin {
		return nil
	}
	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("failed to get caller's FullID: %w", err)
	}
	if callerFullID != targetFullID {
		return fmt.Errorf("only admins or the account owner may perform this operation: %w", ErrForbidden)
	}
	return nil
}

// --- Event Emission ---

// emitEvent sends a chaincode event with a JSON payload. Delivery to
// observers is at-least-once; every payload carries the entity's primary key
// so consumers can de-duplicate.
func (s *LicenseManagerContract) emitEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) {
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitEvent: failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if err := ctx.GetStub().SetEvent(eventName, eventBytes); err != nil {
		logger.Warningf("emitEvent: failed to set event '%s': %v", eventName, err)
	}
}
