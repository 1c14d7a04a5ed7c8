/**
 * @description
 * This file defines the permission tokens and the static role-to-permission
 * table the evaluator consults. Tokens are grouped by domain: identity
 * management, account management, transaction initiation, audit viewing, and
 * self-service updates.
 *
 * @notes
 * - The table is immutable at runtime. Role changes take effect because the
 *   evaluator re-reads the identity's role from the store on every check, not
 *   because the table ever changes.
 */

package domain

// Permission is a fine-grained capability token granted to one or more roles.
type Permission string

const (
	// Identity management
	PermManageIdentities Permission = "identities:manage"

	// Account management
	PermManageAccounts Permission = "accounts:manage"
	PermFreezeAccount  Permission = "accounts:freeze"

	// Transaction initiation
	PermInitiateTransaction    Permission = "transactions:initiate"
	PermInitiateOwnTransaction Permission = "transactions:initiate_own"

	// Audit viewing
	PermViewAllTransactions Permission = "transactions:view_all"
	PermViewOwnTransactions Permission = "transactions:view_own"
	PermViewAuditLog        Permission = "audit:view"

	// Self-service updates
	PermUpdateOwnCredentials Permission = "self:update_credentials"
)

// RolePermissions maps each role tier to its granted token set.
var RolePermissions = map[AccessRole][]Permission{
	RoleAdministrator: {
		PermManageIdentities,
		PermManageAccounts,
		PermFreezeAccount,
		PermInitiateTransaction,
		PermViewAllTransactions,
		PermViewAuditLog,
		PermUpdateOwnCredentials,
	},
	RoleEmployee: {
		PermManageIdentities,
		PermManageAccounts,
		PermInitiateTransaction,
		PermViewAllTransactions,
		PermUpdateOwnCredentials,
	},
	RoleCustomer: {
		PermInitiateOwnTransaction,
		PermViewOwnTransactions,
		PermUpdateOwnCredentials,
	},
}

// RoleGrants reports whether the role's granted set contains the token.
func RoleGrants(role AccessRole, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
