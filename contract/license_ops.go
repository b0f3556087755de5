package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Object types for composite keys.
const (
	licenseObjectType      = "License"      // Stores License objects. Attribute for composite key: Key.
	ownerLicenseObjectType = "OwnerLicense" // Owner index. Attributes for composite key: Owner FullID, License Key.
)

func (s *LicenseManagerContract) createLicenseCompositeKey(ctx contractapi.TransactionContextInterface, key string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(licenseObjectType, []string{key})
}

// getLicenseByKey is an internal helper to retrieve and unmarshal a license.
func (s *LicenseManagerContract) getLicenseByKey(ctx contractapi.TransactionContextInterface, key string) (*model.License, error) {
	licenseKey, err := s.createLicenseCompositeKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for license '%s': %w", key, err)
	}
	licenseBytes, err := ctx.GetStub().GetState(licenseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read license '%s' from ledger: %w", key, err)
	}
	if licenseBytes == nil {
		return nil, fmt.Errorf("license '%s': %w", key, ErrNotFound)
	}
	var lic model.License
	if err := json.Unmarshal(licenseBytes, &lic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal license '%s': %w", key, err)
	}
	return &lic, nil
}

func (s *LicenseManagerContract) putLicense(ctx contractapi.TransactionContextInterface, lic *model.License) error {
	licenseKey, err := s.createLicenseCompositeKey(ctx, lic.Key)
	if err != nil {
		return fmt.Errorf("failed to create key for license '%s': %w", lic.Key, err)
	}
	licenseBytes, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("failed to marshal license '%s': %w", lic.Key, err)
	}
	if err := ctx.GetStub().PutState(licenseKey, licenseBytes); err != nil {
		return fmt.Errorf("failed to save license '%s': %w", lic.Key, err)
	}
	return nil
}

// --- Lifecycle: License Operations ---

// IssueLicense creates an Active license for the given key. The key must
// correspond to an approved software entry submitted by the caller, and no
// license may already exist for it. A license is never overwritten.
func (s *LicenseManagerContract) IssueLicense(ctx contractapi.TransactionContextInterface, key, softwareName string) error {
	am := NewAccountManager(ctx)
	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("IssueLicense: failed to get caller identity: %w", err)
	}

	normalized, err := s.validateDigest(key, "key")
	if err != nil {
		return fmt.Errorf("IssueLicense: %w", err)
	}
	if err := s.validateOptionalString(softwareName, "softwareName", maxStringInputLength); err != nil {
		return fmt.Errorf("IssueLicense: %w", err)
	}

	entry, err := s.getSoftwareByDigest(ctx, normalized)
	if err != nil {
		return fmt.Errorf("IssueLicense: no software entry for key '%s': %w", normalized, ErrNotApproved)
	}
	if entry.Status != model.SoftwareApproved {
		return fmt.Errorf("IssueLicense: software '%s' has status %s: %w", normalized, entry.Status, ErrNotApproved)
	}
	// Owner binding: only the submitter of the approved artifact may license
	// it, so a third party cannot squat on someone else's approval.
	if entry.Submitter != callerFullID {
		return fmt.Errorf("IssueLicense: caller is not the submitter of software '%s': %w", normalized, ErrForbidden)
	}

	licenseKey, err := s.createLicenseCompositeKey(ctx, normalized)
	if err != nil {
		return fmt.Errorf("IssueLicense: failed to create composite key for '%s': %w", normalized, err)
	}
	existing, err := ctx.GetStub().GetState(licenseKey)
	if err != nil {
		return fmt.Errorf("IssueLicense: failed to check for existing license '%s': %w", normalized, err)
	}
	if existing != nil {
		return fmt.Errorf("IssueLicense: license for key '%s': %w", normalized, ErrAlreadyLicensed)
	}

	name := strings.TrimSpace(softwareName)
	if name == "" {
		name = defaultSoftwareName
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("IssueLicense: %w", err)
	}
	lic := &model.License{
		ObjectType:    licenseObjectType,
		Key:           normalized,
		SoftwareName:  name,
		Owner:         callerFullID,
		State:         model.LicenseActive,
		IssuedAt:      now,
		LastUpdatedAt: now,
	}
	if err := s.putLicense(ctx, lic); err != nil {
		return fmt.Errorf("IssueLicense: %w", err)
	}

	ownerIndexKey, err := ctx.GetStub().CreateCompositeKey(ownerLicenseObjectType, []string{callerFullID, normalized})
	if err != nil {
		return fmt.Errorf("IssueLicense: failed to create owner index key for '%s': %w", normalized, err)
	}
	if err := ctx.GetStub().PutState(ownerIndexKey, []byte(normalized)); err != nil {
		return fmt.Errorf("IssueLicense: failed to save owner index for '%s': %w", normalized, err)
	}

	s.emitEvent(ctx, "LicenseIssued", map[string]interface{}{
		"key":            lic.Key,
		"owner":          lic.Owner,
		"softwareDigest": entry.Digest,
		"softwareName":   lic.SoftwareName,
	})
	logger.Infof("License '%s' (name: '%s') issued to '%s'.", lic.Key, lic.SoftwareName, lic.Owner)
	return nil
}

// GetLicense returns a single license snapshot by key.
func (s *LicenseManagerContract) GetLicense(ctx contractapi.TransactionContextInterface, key string) (*model.License, error) {
	logger.Debugf("GetLicense: %s", key)
	normalized, err := s.validateDigest(key, "key")
	if err != nil {
		return nil, fmt.Errorf("GetLicense: %w", err)
	}
	return s.getLicenseByKey(ctx, normalized)
}

// ListLicensesByOwner returns all licenses owned by the given account.
// Admins may query any owner; other callers only themselves.
func (s *LicenseManagerContract) ListLicensesByOwner(ctx contractapi.TransactionContextInterface, idOrEmail string) ([]model.License, error) {
	logger.Debugf("ListLicensesByOwner: %s", idOrEmail)
	am := NewAccountManager(ctx)
	ownerFullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		return nil, fmt.Errorf("ListLicensesByOwner: %w", err)
	}
	if err := s.requireAdminOrSelf(ctx, am, ownerFullID); err != nil {
		return nil, fmt.Errorf("ListLicensesByOwner: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(ownerLicenseObjectType, []string{ownerFullID})
	if err != nil {
		return nil, fmt.Errorf("ListLicensesByOwner: failed to get owner index iterator: %w", err)
	}
	defer resultsIterator.Close()

	licenses := []model.License{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("ListLicensesByOwner: failed to get next index entry from iterator: %v. Skipping.", iterErr)
			continue
		}
		lic, err := s.getLicenseByKey(ctx, string(queryResponse.Value))
		if err != nil {
			logger.Warningf("ListLicensesByOwner: owner index points at missing license '%s': %v. Skipping.", string(queryResponse.Value), err)
			continue
		}
		licenses = append(licenses, *lic)
	}
	return licenses, nil // Will be [] if empty, not null
}
