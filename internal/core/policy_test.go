package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyAuthorize(t *testing.T) {
	branch1, branch2 := int64(1), int64(2)
	pharmacy1 := int64(10)

	order := Resource{OwnerUserID: 500, BranchID: branch1, PharmacyID: pharmacy1}
	foreign := Resource{OwnerUserID: 600, BranchID: branch2, PharmacyID: 20}

	owner := Principal{ID: 500, Role: RoleUser}
	stranger := Principal{ID: 501, Role: RoleUser}
	cashier := Principal{ID: 1, Role: RoleCashier, BranchID: &branch1}
	branchAdmin := Principal{ID: 2, Role: RoleBranchAdmin, BranchID: &branch2}
	pharmacyAdmin := Principal{ID: 3, Role: RolePharmacyAdmin, PharmacyID: &pharmacy1}
	superadmin := Principal{ID: 4, Role: RoleSuperadmin}

	tests := []struct {
		name    string
		p       Principal
		action  Action
		res     Resource
		allowed bool
	}{
		{"owner views own order", owner, ActionView, order, true},
		{"owner cancels own order", owner, ActionCancel, order, true},
		{"user views foreign order", stranger, ActionView, order, false},
		{"user cancels foreign order", stranger, ActionCancel, order, false},
		{"user cannot scan", owner, ActionScan, order, false},
		{"user cannot view stock", owner, ActionViewStock, Resource{BranchID: branch1, PharmacyID: pharmacy1}, false},
		{"cashier scans in branch", cashier, ActionScan, order, true},
		{"cashier scans other branch", cashier, ActionScan, foreign, false},
		{"branch admin scans other branch", branchAdmin, ActionScan, order, false},
		{"branch admin cancels in branch", branchAdmin, ActionCancel, foreign, true},
		{"pharmacy admin views in pharmacy", pharmacyAdmin, ActionView, order, true},
		{"pharmacy admin views other pharmacy", pharmacyAdmin, ActionView, foreign, false},
		{"pharmacy admin never scans", pharmacyAdmin, ActionScan, order, false},
		{"superadmin scans anywhere", superadmin, ActionScan, foreign, true},
		{"unknown role", Principal{ID: 9, Role: "auditor"}, ActionView, order, false},
		{"staff without branch", Principal{ID: 7, Role: RoleCashier}, ActionView, order, false},
	}

	var pol Policy
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pol.Authorize(tt.p, tt.action, tt.res)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestPolicyScope(t *testing.T) {
	var pol Policy
	assert.Equal(t, ScopeOwn, pol.Scope(RoleUser, ActionList))
	assert.Equal(t, ScopeBranch, pol.Scope(RoleCashier, ActionList))
	assert.Equal(t, ScopePharmacy, pol.Scope(RolePharmacyAdmin, ActionList))
	assert.Equal(t, ScopeAll, pol.Scope(RoleOperator, ActionList))
	assert.Equal(t, ScopeNone, pol.Scope(RolePharmacyAdmin, ActionScan))
	assert.Equal(t, ScopeNone, pol.Scope(RoleUser, numActions))

	for _, r := range []Role{RoleUser, RoleCashier, RoleBranchAdmin, RolePharmacyAdmin, RoleOperator, RoleSuperadmin} {
		assert.NoError(t, pol.Require(Principal{Role: r}, ActionCreate), "role %s", r)
	}
	assert.ErrorIs(t, pol.Require(Principal{Role: "guest"}, ActionCreate), ErrForbidden)
}
