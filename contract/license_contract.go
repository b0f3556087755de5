package contract

import (
	"errors"
	"fmt"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("licenseledger.contract")

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxReasonLength      = 512
	digestHexLength      = 64 // 256-bit digest, hex encoded
)

// defaultSoftwareName is used when a license is issued without a name.
const defaultSoftwareName = "Untitled License"

// LicenseManagerContract provides functions for managing accounts, software
// submissions, licenses and their integrity state.
// @contract:LicenseManagerContract
type LicenseManagerContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
func (s *LicenseManagerContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("LicenseManagerContract Instantiated/Upgraded")
}

// BootstrapLedger seeds the first admin when no admin exists yet. The
// calling identity becomes an approved, admin-flagged account. Re-running
// after an admin exists is an error so deployment scripts can detect it.
func (s *LicenseManagerContract) BootstrapLedger(ctx contractapi.TransactionContextInterface, email string) error {
	logger.Info("Attempting to bootstrap ledger with initial admin...")
	am := NewAccountManager(ctx)

	anyAdminExists, err := am.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to check if any admin exists: %w", err)
	}
	if anyAdminExists {
		return errors.New("system already has admins or is bootstrapped. BootstrapLedger should not be re-run")
	}

	if err := s.validateEmail(email); err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}

	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get caller identity for bootstrap: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}

	acct, err := am.CreateAccount(callerFullID, email, now)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to register bootstrap admin '%s': %w", callerFullID, err)
	}
	// The bootstrap admin skips the approval queue.
	acct.Status = model.AccountApproved
	if err := am.setAdminFlag(acct, true, now); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to flag bootstrap admin '%s': %w", callerFullID, err)
	}

	logger.Infof("Ledger bootstrapped. Account '%s' (email: '%s') is now an admin.", callerFullID, acct.Email)
	return nil
}

// GrantAdmin promotes an approved account to admin. Admin-only.
func (s *LicenseManagerContract) GrantAdmin(ctx contractapi.TransactionContextInterface, idOrEmail string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("GrantAdmin: %w", err)
	}

	acct, err := am.GetAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("GrantAdmin: %w", err)
	}
	if acct.Status != model.AccountApproved {
		return fmt.Errorf("GrantAdmin: account '%s' has status %s: %w", acct.Email, acct.Status, ErrNotApproved)
	}
	if acct.IsAdmin {
		logger.Infof("GrantAdmin: account '%s' is already an admin. No action needed.", acct.Email)
		return nil
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("GrantAdmin: %w", err)
	}
	if err := am.setAdminFlag(acct, true, now); err != nil {
		return fmt.Errorf("GrantAdmin: %w", err)
	}
	logger.Infof("Account '%s' (%s) has been made an admin.", acct.Email, acct.FullID)
	return nil
}

// RevokeAdmin removes admin privileges from an account. Admin-only; admins
// cannot revoke their own privileges.
func (s *LicenseManagerContract) RevokeAdmin(ctx contractapi.TransactionContextInterface, idOrEmail string) error {
	am := NewAccountManager(ctx)
	if err := s.requireAdmin(ctx, am); err != nil {
		return fmt.Errorf("RevokeAdmin: %w", err)
	}

	callerFullID, err := am.CallerFullID()
	if err != nil {
		return fmt.Errorf("RevokeAdmin: failed to get caller's FullID: %w", err)
	}
	targetFullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		return fmt.Errorf("RevokeAdmin: %w", err)
	}
	if targetFullID == callerFullID {
		return fmt.Errorf("RevokeAdmin: admins cannot revoke their own admin status: %w", ErrForbidden)
	}

	acct, err := am.getAccountByFullID(targetFullID)
	if err != nil {
		return fmt.Errorf("RevokeAdmin: %w", err)
	}
	if !acct.IsAdmin {
		logger.Infof("RevokeAdmin: account '%s' is not an admin. No action taken.", acct.Email)
		return nil
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RevokeAdmin: %w", err)
	}
	if err := am.setAdminFlag(acct, false, now); err != nil {
		return fmt.Errorf("RevokeAdmin: %w", err)
	}
	logger.Infof("Admin privileges removed from account '%s' (%s).", acct.Email, acct.FullID)
	return nil
}
