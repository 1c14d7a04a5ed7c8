package domain

import "testing"

func TestRoleOrdering(t *testing.T) {
	tests := []struct {
		name string
		role AccessRole
		min  AccessRole
		want bool
	}{
		{name: "customer meets customer", role: RoleCustomer, min: RoleCustomer, want: true},
		{name: "customer below employee", role: RoleCustomer, min: RoleEmployee, want: false},
		{name: "employee meets customer", role: RoleEmployee, min: RoleCustomer, want: true},
		{name: "employee below administrator", role: RoleEmployee, min: RoleAdministrator, want: false},
		{name: "administrator meets everything", role: RoleAdministrator, min: RoleCustomer, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.role.AtLeast(tc.min); got != tc.want {
				t.Fatalf("AtLeast(%s, %s) = %v, want %v", tc.role, tc.min, got, tc.want)
			}
		})
	}
}

func TestRoleGrants(t *testing.T) {
	tests := []struct {
		name string
		role AccessRole
		perm Permission
		want bool
	}{
		{name: "customer own transactions", role: RoleCustomer, perm: PermInitiateOwnTransaction, want: true},
		{name: "customer cannot manage identities", role: RoleCustomer, perm: PermManageIdentities, want: false},
		{name: "customer cannot view all", role: RoleCustomer, perm: PermViewAllTransactions, want: false},
		{name: "employee manages identities", role: RoleEmployee, perm: PermManageIdentities, want: true},
		{name: "employee cannot freeze", role: RoleEmployee, perm: PermFreezeAccount, want: false},
		{name: "employee cannot view audit log", role: RoleEmployee, perm: PermViewAuditLog, want: false},
		{name: "administrator freezes accounts", role: RoleAdministrator, perm: PermFreezeAccount, want: true},
		{name: "administrator views audit log", role: RoleAdministrator, perm: PermViewAuditLog, want: true},
		{name: "everyone updates own credentials", role: RoleCustomer, perm: PermUpdateOwnCredentials, want: true},
		{name: "unknown role grants nothing", role: AccessRole(0), perm: PermUpdateOwnCredentials, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoleGrants(tc.role, tc.perm); got != tc.want {
				t.Fatalf("RoleGrants(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
			}
		})
	}
}

func TestParseAccessRole(t *testing.T) {
	if role, err := ParseAccessRole("Administrator"); err != nil || role != RoleAdministrator {
		t.Fatalf("expected administrator, got %v / %v", role, err)
	}
	if role, err := ParseAccessRole("  employee "); err != nil || role != RoleEmployee {
		t.Fatalf("expected employee, got %v / %v", role, err)
	}
	if _, err := ParseAccessRole("superuser"); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}
