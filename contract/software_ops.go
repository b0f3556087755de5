package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// softwareObjectType is used for composite keys and as a 'docType' for CouchDB queries.
const softwareObjectType = "SoftwareEntry"

func (s *LicenseManagerContract) createSoftwareCompositeKey(ctx contractapi.TransactionContextInterface, digest string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(softwareObjectType, []string{digest})
}

// getSoftwareByDigest is an internal helper to retrieve and unmarshal a
// software entry.
func (s *LicenseManagerContract) getSoftwareByDigest(ctx contractapi.TransactionContextInterface, digest string) (*model.SoftwareEntry, error) {
	softwareKey, err := s.createSoftwareCompositeKey(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for software '%s': %w", digest, err)
	}
	entryBytes, err := ctx.GetStub().GetState(softwareKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read software '%s' from ledger: %w", digest, err)
	}
	if entryBytes == nil {
		return nil, fmt.Errorf("software entry '%s': %w", digest, ErrNotFound)
	}
	var entry model.SoftwareEntry
	if err := json.Unmarshal(entryBytes, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal software '%s': %w", digest, err)
	}
	return &entry, nil
}

func (s *LicenseManagerContract) putSoftware(ctx contractapi.TransactionContextInterface, entry *model.SoftwareEntry) error {
	softwareKey, err := s.createSoftwareCompositeKey(ctx, entry.Digest)
	if err != nil {
		return fmt.Errorf("failed to create key for software '%s': %w", entry.Digest, err)
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal software '%s': %w", entry.Digest, err)
	}
	if err := ctx.GetStub().PutState(softwareKey, entryBytes); err != nil {
		return fmt.Errorf("failed to save software '%s': %w", entry.Digest, err)
	}
	return nil
}

// --- Lifecycle: Software Operations ---

// SubmitSoftware records a new software submission keyed by its content
// digest. The caller must be an approved account; a digest that is already
// known is rejected as a duplicate rather than silently reusing the entry.
func (s *LicenseManagerContract) SubmitSoftware(ctx contractapi.TransactionContextInterface, digest, name, version string) error {
	am := NewAccountManager(ctx)
	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("SubmitSoftware: failed to get caller identity: %w", err)
	}

	submitter, err := am.getAccountByFullID(callerFullID)
	if err != nil {
		return fmt.Errorf("SubmitSoftware: submitter is not a registered account: %w", ErrForbidden)
	}
	if submitter.Status != model.AccountApproved {
		return fmt.Errorf("SubmitSoftware: submitter '%s' has status %s, only approved accounts may submit: %w",
			submitter.Email, submitter.Status, ErrForbidden)
	}

	normalized, err := s.validateDigest(digest, "digest")
	if err != nil {
		return fmt.Errorf("SubmitSoftware: %w", err)
	}
	if err := s.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return fmt.Errorf("SubmitSoftware: %w", err)
	}
	if err := s.validateRequiredString(version, "version", maxStringInputLength); err != nil {
		return fmt.Errorf("SubmitSoftware: %w", err)
	}

	softwareKey, err := s.createSoftwareCompositeKey(ctx, normalized)
	if err != nil {
		return fmt.Errorf("SubmitSoftware: failed to create composite key for '%s': %w", normalized, err)
	}
	existing, err := ctx.GetStub().GetState(softwareKey)
	if err != nil {
		return fmt.Errorf("SubmitSoftware: failed to check for existing software '%s': %w", normalized, err)
	}
	if existing != nil {
		return fmt.Errorf("SubmitSoftware: software with digest '%s': %w", normalized, ErrAlreadyExists)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("SubmitSoftware: %w", err)
	}
	entry := &model.SoftwareEntry{
		ObjectType:     softwareObjectType,
		Digest:         normalized,
		Name:           name,
		Version:        version,
		Submitter:      submitter.FullID,
		SubmitterEmail: submitter.Email,
		Status:         model.SoftwarePending,
		SubmittedAt:    now,
		LastUpdatedAt:  now,
	}
	if err := s.putSoftware(ctx, entry); err != nil {
		return fmt.Errorf("SubmitSoftware: %w", err)
	}
	logger.Infof("Software '%s' v%s (digest %s) submitted by '%s', pending review.", name, version, normalized, submitter.Email)
	return nil
}

// ApproveSoftware transitions a pending submission to Approved, making its
// digest eligible for license issuance. Admin-only.
func (s *LicenseManagerContract) ApproveSoftware(ctx contractapi.TransactionContextInterface, digest string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("ApproveSoftware: %w", err)
	}
	normalized, err := s.validateDigest(digest, "digest")
	if err != nil {
		return fmt.Errorf("ApproveSoftware: %w", err)
	}

	entry, err := s.getSoftwareByDigest(ctx, normalized)
	if err != nil {
		return fmt.Errorf("ApproveSoftware: %w", err)
	}
	if entry.Status != model.SoftwarePending {
		return fmt.Errorf("ApproveSoftware: software '%s' has status %s, approve is only valid from %s: %w",
			normalized, entry.Status, model.SoftwarePending, ErrInvalidTransition)
	}

	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("ApproveSoftware: failed to get caller identity: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ApproveSoftware: %w", err)
	}
	entry.Status = model.SoftwareApproved
	entry.ReviewedBy = callerFullID
	entry.LastUpdatedAt = now
	if err := s.putSoftware(ctx, entry); err != nil {
		return fmt.Errorf("ApproveSoftware: %w", err)
	}

	s.emitEvent(ctx, "SoftwareApproved", map[string]interface{}{
		"digest":    entry.Digest,
		"name":      entry.Name,
		"version":   entry.Version,
		"submitter": entry.Submitter,
	})
	logger.Infof("Software '%s' (digest %s) approved.", entry.Name, entry.Digest)
	return nil
}

// RejectSoftware transitions a pending submission to Rejected. The rejection
// is terminal but remains queryable. Admin-only.
func (s *LicenseManagerContract) RejectSoftware(ctx contractapi.TransactionContextInterface, digest, reason string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}
	normalized, err := s.validateDigest(digest, "digest")
	if err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}
	if err := s.validateOptionalString(reason, "reason", maxReasonLength); err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}

	entry, err := s.getSoftwareByDigest(ctx, normalized)
	if err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}
	if entry.Status != model.SoftwarePending {
		return fmt.Errorf("RejectSoftware: software '%s' has status %s, reject is only valid from %s: %w",
			normalized, entry.Status, model.SoftwarePending, ErrInvalidTransition)
	}

	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("RejectSoftware: failed to get caller identity: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}
	entry.Status = model.SoftwareRejected
	entry.ReviewedBy = callerFullID
	entry.RejectionReason = reason
	entry.LastUpdatedAt = now
	if err := s.putSoftware(ctx, entry); err != nil {
		return fmt.Errorf("RejectSoftware: %w", err)
	}

	s.emitEvent(ctx, "SoftwareRejected", map[string]interface{}{
		"digest":    entry.Digest,
		"name":      entry.Name,
		"submitter": entry.Submitter,
		"reason":    reason,
	})
	logger.Infof("Software '%s' (digest %s) rejected: %s", entry.Name, entry.Digest, reason)
	return nil
}

// GetSoftware returns a single software entry by digest.
func (s *LicenseManagerContract) GetSoftware(ctx contractapi.TransactionContextInterface, digest string) (*model.SoftwareEntry, error) {
	logger.Debugf("GetSoftware: %s", digest)
	normalized, err := s.validateDigest(digest, "digest")
	if err != nil {
		return nil, fmt.Errorf("GetSoftware: %w", err)
	}
	return s.getSoftwareByDigest(ctx, normalized)
}

// ListSoftwareByStatus returns all software entries in the given status.
func (s *LicenseManagerContract) ListSoftwareByStatus(ctx contractapi.TransactionContextInterface, status string) ([]model.SoftwareEntry, error) {
	logger.Debugf("ListSoftwareByStatus: %s", status)
	wanted, err := parseSoftwareStatus(status)
	if err != nil {
		return nil, fmt.Errorf("ListSoftwareByStatus: %w", err)
	}
	return s.listSoftware(ctx, func(e *model.SoftwareEntry) bool { return e.Status == wanted })
}

// ListSoftwareBySubmitter returns all software entries submitted by the
// given account. Admins may query any submitter; other callers only
// themselves.
func (s *LicenseManagerContract) ListSoftwareBySubmitter(ctx contractapi.TransactionContextInterface, idOrEmail string) ([]model.SoftwareEntry, error) {
	logger.Debugf("ListSoftwareBySubmitter: %s", idOrEmail)
	am := NewAccountManager(ctx)
	submitterFullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		return nil, fmt.Errorf("ListSoftwareBySubmitter: %w", err)
	}
	if err := s.requireAdminOrSelf(ctx, am, submitterFullID); err != nil {
		return nil, fmt.Errorf("ListSoftwareBySubmitter: %w", err)
	}
	return s.listSoftware(ctx, func(e *model.SoftwareEntry) bool { return e.Submitter == submitterFullID })
}

func (s *LicenseManagerContract) listSoftware(ctx contractapi.TransactionContextInterface, keep func(*model.SoftwareEntry) bool) ([]model.SoftwareEntry, error) {
	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(softwareObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get software iterator: %w", err)
	}
	defer resultsIterator.Close()

	entries := []model.SoftwareEntry{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("listSoftware: failed to get next entry from iterator: %v. Skipping.", iterErr)
			continue
		}
		var entry model.SoftwareEntry
		if err := json.Unmarshal(queryResponse.Value, &entry); err != nil {
			logger.Warningf("listSoftware: failed to unmarshal entry for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if keep(&entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil // Will be [] if empty, not null
}

func parseSoftwareStatus(status string) (model.SoftwareStatus, error) {
	switch model.SoftwareStatus(strings.ToUpper(strings.TrimSpace(status))) {
	case model.SoftwarePending:
		return model.SoftwarePending, nil
	case model.SoftwareApproved:
		return model.SoftwareApproved, nil
	case model.SoftwareRejected:
		return model.SoftwareRejected, nil
	default:
		return "", fmt.Errorf("invalid software status '%s'. Valid statuses: %s, %s, %s",
			status, model.SoftwarePending, model.SoftwareApproved, model.SoftwareRejected)
	}
}
