// Package identity defines the subject of engagement tracking: an anonymous
// browser session or an authenticated account. Exactly one of the two ids is
// set at a time; after login the anonymous state is merged into the account
// state and the session id is abandoned.
package identity

import (
	"errors"
	"fmt"
)

var ErrInvalidIdentity = errors.New("identity must carry exactly one of accountId or sessionId")

// Identity identifies a visitor or account.
type Identity struct {
	AccountID string `json:"accountId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ForAccount returns an account-bound identity.
func ForAccount(accountID string) Identity {
	return Identity{AccountID: accountID}
}

// ForSession returns an anonymous session identity.
func ForSession(sessionID string) Identity {
	return Identity{SessionID: sessionID}
}

// Validate checks that exactly one id is set.
func (i Identity) Validate() error {
	if (i.AccountID == "") == (i.SessionID == "") {
		return ErrInvalidIdentity
	}
	return nil
}

// IsAccount reports whether the identity is bound to an account.
func (i Identity) IsAccount() bool {
	return i.AccountID != ""
}

// Key returns the storage key segment for this identity. Account and session
// namespaces are kept distinct so a session id can never collide with an
// account id.
func (i Identity) Key() string {
	if i.AccountID != "" {
		return "acct:" + i.AccountID
	}
	return "sess:" + i.SessionID
}

func (i Identity) String() string {
	if i.AccountID != "" {
		return fmt.Sprintf("account %s", i.AccountID)
	}
	return fmt.Sprintf("session %s", i.SessionID)
}
