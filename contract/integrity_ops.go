package contract

import (
	"errors"
	"fmt"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Verdict reasons returned by CheckAuthenticity.
const (
	ReasonNoLicense       = "no license for key"
	ReasonContentModified = "content modified"
	ReasonCompromised     = "license compromised"
)

// --- Integrity Protocol ---

// CheckAuthenticity compares a digest the caller recomputed over a candidate
// file against a claimed license key and returns a verdict.
//
//	license missing                         -> Inauthentic, "no license for key"
//	digest != key                           -> Inauthentic, "content modified";
//	                                           an Active license transitions to
//	                                           Tampered as a side effect
//	digest == key, state Active             -> Authentic
//	digest == key, state Tampered/Cracked   -> Inauthentic, "license compromised"
//
// The Tampered transition is derived from the failed check; it is never
// taken if the license has already left Active, so the state machine stays
// monotonic.
func (s *LicenseManagerContract) CheckAuthenticity(ctx contractapi.TransactionContextInterface, key, recomputedDigest string) (*model.Verdict, error) {
	normalizedKey, err := s.validateDigest(key, "key")
	if err != nil {
		return nil, fmt.Errorf("CheckAuthenticity: %w", err)
	}
	normalizedDigest, err := s.validateDigest(recomputedDigest, "recomputedDigest")
	if err != nil {
		return nil, fmt.Errorf("CheckAuthenticity: %w", err)
	}

	lic, err := s.getLicenseByKey(ctx, normalizedKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debugf("CheckAuthenticity: no license for key '%s'", normalizedKey)
			return &model.Verdict{Authentic: false, Reason: ReasonNoLicense}, nil
		}
		return nil, fmt.Errorf("CheckAuthenticity: %w", err)
	}

	if normalizedDigest != normalizedKey {
		if lic.State == model.LicenseActive {
			now, err := s.getCurrentTxTimestamp(ctx)
			if err != nil {
				return nil, fmt.Errorf("CheckAuthenticity: %w", err)
			}
			lic.State = model.LicenseTampered
			lic.LastUpdatedAt = now
			if err := s.putLicense(ctx, lic); err != nil {
				return nil, fmt.Errorf("CheckAuthenticity: %w", err)
			}
			reporter, _ := NewAccountManager(ctx).CallerFullID() // Best effort; the verdict stands either way
			s.emitEvent(ctx, "LicenseTampered", map[string]interface{}{
				"key":      lic.Key,
				"reporter": reporter,
			})
			logger.Infof("License '%s' marked Tampered: recomputed digest %s does not match.", lic.Key, normalizedDigest)
		}
		return &model.Verdict{Authentic: false, Reason: ReasonContentModified}, nil
	}

	if lic.State != model.LicenseActive {
		return &model.Verdict{Authentic: false, Reason: ReasonCompromised}, nil
	}
	return &model.Verdict{Authentic: true}, nil
}

// ReportCracked marks a license as Cracked on the word of the reporting
// caller. Unlike tampering, this transition is independent of any digest
// comparison: the bytes may still match while the license is known-bad
// (e.g. leaked key material). Cracked is terminal.
func (s *LicenseManagerContract) ReportCracked(ctx contractapi.TransactionContextInterface, key string) error {
	am := NewAccountManager(ctx)
	reporterFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("ReportCracked: failed to get caller identity: %w", err)
	}

	normalized, err := s.validateDigest(key, "key")
	if err != nil {
		return fmt.Errorf("ReportCracked: %w", err)
	}

	lic, err := s.getLicenseByKey(ctx, normalized)
	if err != nil {
		return fmt.Errorf("ReportCracked: %w", err)
	}
	if lic.State == model.LicenseCracked {
		return fmt.Errorf("ReportCracked: license '%s': %w", normalized, ErrAlreadyCracked)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ReportCracked: %w", err)
	}
	lic.State = model.LicenseCracked
	lic.LastUpdatedAt = now
	if err := s.putLicense(ctx, lic); err != nil {
		return fmt.Errorf("ReportCracked: %w", err)
	}

	s.emitEvent(ctx, "LicenseCracked", map[string]interface{}{
		"key":      lic.Key,
		"reporter": reporterFullID,
	})
	logger.Infof("License '%s' reported Cracked by '%s'.", lic.Key, reporterFullID)
	return nil
}
