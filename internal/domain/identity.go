/**
 * @description
 * This file defines the Identity domain model: an authenticable principal with
 * a role tier and the login-throttling state the session manager maintains.
 *
 * @notes
 * - The failed-attempt counter and lockout timestamp live on the identity
 *   record itself so a lockout survives process restarts and is visible to
 *   every session manager instance sharing the store.
 * - Identities are created through NewIdentity, which requires every mandatory
 *   field up front instead of accepting a loose attribute bag.
 */

package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccessRole is a position in the ordered Customer < Employee < Administrator
// hierarchy. The numeric values encode the ordering.
type AccessRole int

const (
	RoleCustomer      AccessRole = 1
	RoleEmployee      AccessRole = 2
	RoleAdministrator AccessRole = 3
)

var ErrUnknownRole = errors.New("unknown access role")

// AtLeast reports whether the role's tier meets the given minimum tier.
func (r AccessRole) AtLeast(min AccessRole) bool {
	return r >= min
}

func (r AccessRole) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleEmployee:
		return "employee"
	case RoleAdministrator:
		return "administrator"
	default:
		return "unknown"
	}
}

// ParseAccessRole converts a stored or transported role name back to its tier.
func ParseAccessRole(s string) (AccessRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "employee":
		return RoleEmployee, nil
	case "administrator", "admin":
		return RoleAdministrator, nil
	default:
		return 0, ErrUnknownRole
	}
}

// Identity represents an authenticable principal. The session manager owns the
// FailedAttempts/LockoutUntil/LastLogin fields; the credential-update
// operations own SecretHash; nothing else mutates a persisted identity.
type Identity struct {
	ID             uuid.UUID  `json:"id"`
	LoginID        string     `json:"login_id"`
	Role           AccessRole `json:"role"`
	SecretHash     string     `json:"-"`
	FailedAttempts int        `json:"failed_attempts"`
	LockoutUntil   *time.Time `json:"lockout_until,omitempty"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

var ErrMissingField = errors.New("missing required field")

// NewIdentity builds an identity with all mandatory fields supplied. The
// secret hash comes from the hashing collaborator; this package never sees a
// raw secret.
func NewIdentity(loginID string, role AccessRole, secretHash string) (*Identity, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" || secretHash == "" {
		return nil, ErrMissingField
	}
	if _, err := ParseAccessRole(role.String()); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Identity{
		ID:         uuid.New(),
		LoginID:    loginID,
		Role:       role,
		SecretHash: secretHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// LockedAt reports whether the identity is inside a lockout window at the
// given instant. Expiry is evaluated lazily; there is no background timer.
func (i *Identity) LockedAt(now time.Time) bool {
	return i.LockoutUntil != nil && now.Before(*i.LockoutUntil)
}
