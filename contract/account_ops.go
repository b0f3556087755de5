package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Account Operations ---

// RegisterAccount self-registers the calling identity with a unique email
// alias. The account starts Pending and must be approved by an admin before
// it may submit software.
func (s *LicenseManagerContract) RegisterAccount(ctx contractapi.TransactionContextInterface, email string) error {
	am := NewAccountManager(ctx)
	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("RegisterAccount: failed to get caller identity: %w", err)
	}
	if err := s.validateEmail(email); err != nil {
		return fmt.Errorf("RegisterAccount: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterAccount: %w", err)
	}
	if _, err := am.CreateAccount(callerFullID, email, now); err != nil {
		return fmt.Errorf("RegisterAccount: %w", err)
	}
	return nil
}

// ApproveAccount transitions a pending account to Approved. Admin-only.
func (s *LicenseManagerContract) ApproveAccount(ctx contractapi.TransactionContextInterface, idOrEmail string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("ApproveAccount: %w", err)
	}

	acct, err := am.GetAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("ApproveAccount: %w", err)
	}
	if acct.Status != model.AccountPending {
		return fmt.Errorf("ApproveAccount: account '%s' has status %s, approve is only valid from %s: %w",
			acct.Email, acct.Status, model.AccountPending, ErrInvalidTransition)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ApproveAccount: %w", err)
	}
	acct.Status = model.AccountApproved
	acct.LastUpdatedAt = now
	if err := am.putAccount(acct); err != nil {
		return fmt.Errorf("ApproveAccount: %w", err)
	}
	logger.Infof("Account '%s' (%s) approved.", acct.Email, acct.FullID)
	return nil
}

// RejectAccount transitions a pending account to Rejected with a reason.
// Admin-only.
func (s *LicenseManagerContract) RejectAccount(ctx contractapi.TransactionContextInterface, idOrEmail, reason string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("RejectAccount: %w", err)
	}
	if err := s.validateRequiredString(reason, "reason", maxReasonLength); err != nil {
		return fmt.Errorf("RejectAccount: %w", err)
	}

	acct, err := am.GetAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("RejectAccount: %w", err)
	}
	if acct.Status != model.AccountPending {
		return fmt.Errorf("RejectAccount: account '%s' has status %s, reject is only valid from %s: %w",
			acct.Email, acct.Status, model.AccountPending, ErrInvalidTransition)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RejectAccount: %w", err)
	}
	acct.Status = model.AccountRejected
	acct.RejectionReason = reason
	acct.LastUpdatedAt = now
	if err := am.putAccount(acct); err != nil {
		return fmt.Errorf("RejectAccount: %w", err)
	}
	logger.Infof("Account '%s' (%s) rejected: %s", acct.Email, acct.FullID, reason)
	return nil
}

// ArchiveAccount suspends an account from any of Pending, Approved or
// Rejected, remembering the prior status so unarchive can restore it.
// Admin-only.
func (s *LicenseManagerContract) ArchiveAccount(ctx contractapi.TransactionContextInterface, idOrEmail string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("ArchiveAccount: %w", err)
	}

	acct, err := am.GetAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("ArchiveAccount: %w", err)
	}
	if acct.Status == model.AccountArchived {
		return fmt.Errorf("ArchiveAccount: account '%s' is already archived: %w", acct.Email, ErrInvalidTransition)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ArchiveAccount: %w", err)
	}
	acct.PriorStatus = acct.Status
	acct.Status = model.AccountArchived
	acct.LastUpdatedAt = now
	if err := am.putAccount(acct); err != nil {
		return fmt.Errorf("ArchiveAccount: %w", err)
	}
	logger.Infof("Account '%s' (%s) archived (prior status %s).", acct.Email, acct.FullID, acct.PriorStatus)
	return nil
}

// UnarchiveAccount restores an archived account to its remembered prior
// status. Admin-only.
func (s *LicenseManagerContract) UnarchiveAccount(ctx contractapi.TransactionContextInterface, idOrEmail string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("UnarchiveAccount: %w", err)
	}

	acct, err := am.GetAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("UnarchiveAccount: %w", err)
	}
	if acct.Status != model.AccountArchived {
		return fmt.Errorf("UnarchiveAccount: account '%s' has status %s: %w", acct.Email, acct.Status, ErrNotArchived)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("UnarchiveAccount: %w", err)
	}
	acct.Status = acct.PriorStatus
	acct.PriorStatus = ""
	acct.LastUpdatedAt = now
	if err := am.putAccount(acct); err != nil {
		return fmt.Errorf("UnarchiveAccount: %w", err)
	}
	logger.Infof("Account '%s' (%s) unarchived, restored to %s.", acct.Email, acct.FullID, acct.Status)
	return nil
}

// GetAccountDetails returns a single account snapshot. Admins may query any
// account; other callers only their own.
func (s *LicenseManagerContract) GetAccountDetails(ctx contractapi.TransactionContextInterface, idOrEmail string) (*model.Account, error) {
	logger.Debugf("GetAccountDetails for '%s'", idOrEmail)
	am := NewAccountManager(ctx)
	targetFullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		return nil, fmt.Errorf("GetAccountDetails: %w", err)
	}
	if err := s.requireAdminOrSelf(ctx, am, targetFullID); err != nil {
		return nil, fmt.Errorf("GetAccountDetails: %w", err)
	}
	return am.getAccountByFullID(targetFullID)
}

// ListAccountsByStatus returns all accounts currently in the given status.
// Admin-only: the pending-review queue is an administrative view.
func (s *LicenseManagerContract) ListAccountsByStatus(ctx contractapi.TransactionContextInterface, status string) ([]model.Account, error) {
	logger.Debugf("ListAccountsByStatus: %s", status)
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return nil, fmt.Errorf("ListAccountsByStatus: %w", err)
	}
	wanted, err := parseAccountStatus(status)
	if err != nil {
		return nil, fmt.Errorf("ListAccountsByStatus: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(accountObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("ListAccountsByStatus: failed to get accounts iterator: %w", err)
	}
	defer resultsIterator.Close()

	accounts := []model.Account{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("ListAccountsByStatus: failed to get next account from iterator: %v. Skipping.", iterErr)
			continue
		}
		var acct model.Account
		if err := json.Unmarshal(queryResponse.Value, &acct); err != nil {
			logger.Warningf("ListAccountsByStatus: failed to unmarshal account for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if acct.Status == wanted {
			accounts = append(accounts, acct)
		}
	}
	return accounts, nil // Will be [] if empty, not null
}

func parseAccountStatus(status string) (model.AccountStatus, error) {
	switch model.AccountStatus(strings.ToUpper(strings.TrimSpace(status))) {
	case model.AccountPending:
		return model.AccountPending, nil
	case model.AccountApproved:
		return model.AccountApproved, nil
	case model.AccountRejected:
		return model.AccountRejected, nil
	case model.AccountArchived:
		return model.AccountArchived, nil
	default:
		return "", fmt.Errorf("invalid account status '%s'. Valid statuses: %s, %s, %s, %s",
			status, model.AccountPending, model.AccountApproved, model.AccountRejected, model.AccountArchived)
	}
}
