package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"licenseledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var acctLogger = flogging.MustGetLogger("licenseledger.accounts")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	accountObjectType   = "Account"   // Stores Account objects. Attribute for composite key: FullID.
	emailObjectType     = "Email"     // Maps Email (alias) to FullID. Attribute for composite key: Email.
	adminFlagObjectType = "AdminFlag" // Stores a flag for admin status. Attribute for composite key: FullID.
)

// AccountManager handles account storage, email alias resolution and admin
// privileges. It is the access guard consulted by every mutating operation.
type AccountManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewAccountManager creates a new instance of AccountManager.
func NewAccountManager(ctx contractapi.TransactionContextInterface) *AccountManager {
	return &AccountManager{Ctx: ctx}
}

func isValidX509ID(id string) bool {
	// Basic check, can be enhanced if specific X.509 formats are enforced.
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

// --- Key Creation Helpers (using Composite Keys) ---

func (am *AccountManager) createAccountCompositeKey(fullID string) (string, error) {
	return am.Ctx.GetStub().CreateCompositeKey(accountObjectType, []string{fullID})
}

func (am *AccountManager) createEmailCompositeKey(email string) (string, error) {
	return am.Ctx.GetStub().CreateCompositeKey(emailObjectType, []string{email})
}

func (am *AccountManager) createAdminFlagCompositeKey(fullID string) (string, error) {
	return am.Ctx.GetStub().CreateCompositeKey(adminFlagObjectType, []string{fullID})
}

// --- Caller Identity ---

// CallerFullID retrieves the full X.509 ID of the current transactor.
func (am *AccountManager) CallerFullID() (string, error) {
	clientIdentity := am.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	if !isValidX509ID(id) {
		acctLogger.Warningf("Current client ID '%s' does not appear to be a standard X.509 format.", id)
	}
	return id, nil
}

// --- Resolution & Retrieval ---

// ResolveAccount maps an identifier that may be a full X.509 ID or an email
// alias to a full ID. Full IDs pass through unchanged.
func (am *AccountManager) ResolveAccount(idOrEmail string) (string, error) {
	trimmed := strings.TrimSpace(idOrEmail)
	if trimmed == "" {
		return "", errors.New("account identifier cannot be empty")
	}
	if isValidX509ID(trimmed) {
		return trimmed, nil
	}

	emailKey, err := am.createEmailCompositeKey(strings.ToLower(trimmed))
	if err != nil {
		return "", fmt.Errorf("failed to create email composite key for '%s': %w", trimmed, err)
	}
	fullIDBytes, err := am.Ctx.GetStub().GetState(emailKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when querying email '%s': %w", trimmed, err)
	}
	if fullIDBytes == nil {
		return "", fmt.Errorf("account with email '%s': %w", trimmed, ErrNotFound)
	}
	return string(fullIDBytes), nil
}

// GetAccount retrieves an account by full ID or email alias.
func (am *AccountManager) GetAccount(idOrEmail string) (*model.Account, error) {
	fullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		return nil, err
	}
	return am.getAccountByFullID(fullID)
}

func (am *AccountManager) getAccountByFullID(fullID string) (*model.Account, error) {
	accountKey, err := am.createAccountCompositeKey(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create account composite key for '%s': %w", fullID, err)
	}
	accountBytes, err := am.Ctx.GetStub().GetState(accountKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving account '%s': %w", fullID, err)
	}
	if accountBytes == nil {
		return nil, fmt.Errorf("account '%s': %w", fullID, ErrNotFound)
	}
	var acct model.Account
	if err := json.Unmarshal(accountBytes, &acct); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account '%s': %w", fullID, err)
	}
	return &acct, nil
}

// putAccount marshals and saves an account record.
func (am *AccountManager) putAccount(acct *model.Account) error {
	accountKey, err := am.createAccountCompositeKey(acct.FullID)
	if err != nil {
		return fmt.Errorf("failed to create account composite key for '%s': %w", acct.FullID, err)
	}
	accountBytes, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to marshal account '%s': %w", acct.FullID, err)
	}
	if err := am.Ctx.GetStub().PutState(accountKey, accountBytes); err != nil {
		return fmt.Errorf("failed to save account '%s': %w", acct.FullID, err)
	}
	return nil
}

// --- Registration ---

// CreateAccount writes a new account record plus its email alias mapping.
// Fails if either the full ID or the email is already taken.
func (am *AccountManager) CreateAccount(fullID, email string, now time.Time) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	accountKey, err := am.createAccountCompositeKey(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create account composite key for '%s': %w", fullID, err)
	}
	existing, err := am.Ctx.GetStub().GetState(accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing account '%s': %w", fullID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("account '%s': %w", fullID, ErrAlreadyExists)
	}

	emailKey, err := am.createEmailCompositeKey(email)
	if err != nil {
		return nil, fmt.Errorf("failed to create email composite key for '%s': %w", email, err)
	}
	existingFullID, err := am.Ctx.GetStub().GetState(emailKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check email availability for '%s': %w", email, err)
	}
	if existingFullID != nil {
		return nil, fmt.Errorf("email '%s' is already in use by account '%s': %w", email, string(existingFullID), ErrAlreadyExists)
	}

	acct := &model.Account{
		ObjectType:    accountObjectType,
		FullID:        fullID,
		Email:         email,
		Status:        model.AccountPending,
		RegisteredAt:  now,
		LastUpdatedAt: now,
	}
	if err := am.putAccount(acct); err != nil {
		return nil, err
	}
	if err := am.Ctx.GetStub().PutState(emailKey, []byte(fullID)); err != nil {
		return nil, fmt.Errorf("failed to save email mapping '%s' -> '%s': %w", email, fullID, err)
	}
	acctLogger.Infof("Registered new account '%s' with email '%s' (status %s)", fullID, email, acct.Status)
	return acct, nil
}

// --- Admin Privileges ---

// IsAdmin checks if an account has admin privileges based on the AdminFlag
// ledger key, which is authoritative over the Account.IsAdmin mirror.
func (am *AccountManager) IsAdmin(idOrEmail string) (bool, error) {
	fullID, err := am.ResolveAccount(idOrEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) { // Unknown identifier means not admin.
			return false, nil
		}
		return false, fmt.Errorf("error resolving account '%s' for admin check: %w", idOrEmail, err)
	}
	adminFlagKey, err := am.createAdminFlagCompositeKey(fullID)
	if err != nil {
		return false, fmt.Errorf("failed to create admin flag key for '%s': %w", fullID, err)
	}
	flagBytes, err := am.Ctx.GetStub().GetState(adminFlagKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking admin flag for '%s': %w", fullID, err)
	}
	return flagBytes != nil && string(flagBytes) == "true", nil
}

// IsCallerAdmin checks the current transactor's admin privilege.
func (am *AccountManager) IsCallerAdmin() (bool, error) {
	callerFullID, err := am.CallerFullID()
	if err != nil {
		return false, fmt.Errorf("failed to get caller's FullID for admin check: %w", err)
	}
	return am.IsAdmin(callerFullID)
}

// AnyAdminExists checks if any admin flag is set on the ledger. Used to
// gate the one-time bootstrap path.
func (am *AccountManager) AnyAdminExists() (bool, error) {
	iterator, err := am.Ctx.GetStub().GetStateByPartialCompositeKey(adminFlagObjectType, []string{})
	if err != nil {
		return false, fmt.Errorf("failed to query admin flags: %w", err)
	}
	defer iterator.Close()
	return iterator.HasNext(), nil
}

// setAdminFlag sets or clears the authoritative admin flag and keeps the
// Account.IsAdmin mirror in sync.
func (am *AccountManager) setAdminFlag(acct *model.Account, isAdmin bool, now time.Time) error {
	adminFlagKey, err := am.createAdminFlagCompositeKey(acct.FullID)
	if err != nil {
		return fmt.Errorf("failed to create admin flag key for '%s': %w", acct.FullID, err)
	}
	acct.IsAdmin = isAdmin
	acct.LastUpdatedAt = now
	if err := am.putAccount(acct); err != nil {
		return err
	}
	if isAdmin {
		if err := am.Ctx.GetStub().PutState(adminFlagKey, []byte("true")); err != nil {
			return fmt.Errorf("failed to set admin flag for '%s': %w", acct.FullID, err)
		}
	} else {
		if err := am.Ctx.GetStub().DelState(adminFlagKey); err != nil {
			return fmt.Errorf("failed to clear admin flag for '%s': %w", acct.FullID, err)
		}
	}
	return nil
}
