// Package credentials keeps warehouse passwords in the operating system keyring.
package credentials

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"starload/pkg/errors"
)

// Keyring service name
const keyringService = "starload"

// Credential is the value stored under an account.
type Credential struct {
	Account  string    `json:"account"`
	Password string    `json:"password"`
	StoredAt time.Time `json:"stored_at"`
}

// Keyring stores one credential per warehouse account (user@host).
type Keyring struct{}

// NewKeyring returns a keyring-backed credential store.
func NewKeyring() *Keyring {
	return &Keyring{}
}

// Store saves the password for account, replacing any earlier one.
func (k *Keyring) Store(account, password string) error {
	account = strings.TrimSpace(account)
	if account == "" || password == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "Account and password are required")
	}

	data, err := json.Marshal(Credential{
		Account:  account,
		Password: password,
		StoredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(keyringService, account, string(data)); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "Failed to store in keyring").
			WithContext("account", account).
			WithSuggestions("Set CLUSTER.PASSWORD or STARLOAD_CLUSTER_PASSWORD instead")
	}
	return nil
}

// Get returns the stored credential for account.
func (k *Keyring) Get(account string) (*Credential, error) {
	data, err := keyring.Get(keyringService, account)
	if err == keyring.ErrNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "No password stored for account").
			WithContext("account", account).
			WithSuggestions("Run 'starload login' to store one")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "Failed to read from keyring").
			WithContext("account", account)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Lookup returns the stored password for account.
func (k *Keyring) Lookup(account string) (string, error) {
	cred, err := k.Get(account)
	if err != nil {
		return "", err
	}
	return cred.Password, nil
}

// Delete removes the stored password for account. Deleting a missing entry
// is not an error.
func (k *Keyring) Delete(account string) error {
	err := keyring.Delete(keyringService, account)
	if err != nil && err != keyring.ErrNotFound {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "Failed to delete from keyring").
			WithContext("account", account)
	}
	return nil
}
