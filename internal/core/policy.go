package core

import "fmt"

// Action is an operation subject to the access policy.
type Action int

const (
	ActionCreate Action = iota
	ActionView
	ActionList
	ActionScan
	ActionCancel
	ActionViewStock
	numActions
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create orders"
	case ActionView:
		return "view this order"
	case ActionList:
		return "list orders"
	case ActionScan:
		return "confirm orders"
	case ActionCancel:
		return "cancel this order"
	case ActionViewStock:
		return "view branch stock"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Scope is how far a role's capability for an action reaches.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeBranch
	ScopePharmacy
	ScopeAll
)

type capabilities [numActions]Scope

var (
	staffCaps = capabilities{
		ActionCreate:    ScopeAll,
		ActionView:      ScopeBranch,
		ActionList:      ScopeBranch,
		ActionScan:      ScopeBranch,
		ActionCancel:    ScopeBranch,
		ActionViewStock: ScopeBranch,
	}
	elevatedCaps = capabilities{
		ActionCreate:    ScopeAll,
		ActionView:      ScopeAll,
		ActionList:      ScopeAll,
		ActionScan:      ScopeAll,
		ActionCancel:    ScopeAll,
		ActionViewStock: ScopeAll,
	}
)

// roleCapabilities is the whole policy. Roles missing from the table can do nothing.
var roleCapabilities = map[Role]capabilities{
	RoleUser: {
		ActionCreate: ScopeAll,
		ActionView:   ScopeOwn,
		ActionList:   ScopeOwn,
		ActionCancel: ScopeOwn,
	},
	RoleCashier:     staffCaps,
	RoleBranchAdmin: staffCaps,
	RolePharmacyAdmin: {
		ActionCreate:    ScopeAll,
		ActionView:      ScopePharmacy,
		ActionList:      ScopePharmacy,
		ActionCancel:    ScopePharmacy,
		ActionViewStock: ScopePharmacy,
	},
	RoleOperator:   elevatedCaps,
	RoleSuperadmin: elevatedCaps,
}

// Resource locates the object an action targets.
type Resource struct {
	OwnerUserID int64 // zero when the resource has no owner, e.g. a branch
	BranchID    int64
	PharmacyID  int64
}

// Policy is the static role capability table. The zero value is ready to use.
type Policy struct{}

// Scope returns the reach of role for action.
func (Policy) Scope(role Role, action Action) Scope {
	caps, ok := roleCapabilities[role]
	if !ok || action < 0 || action >= numActions {
		return ScopeNone
	}
	return caps[action]
}

// Require fails unless p holds action at some scope. Used to reject early,
// before any lookup.
func (pol Policy) Require(p Principal, action Action) error {
	if pol.Scope(p.Role, action) == ScopeNone {
		return Forbidden("role %q may not %s", p.Role, action)
	}
	return nil
}

// Authorize decides whether p may perform action on res.
func (pol Policy) Authorize(p Principal, action Action, res Resource) error {
	scope := pol.Scope(p.Role, action)
	if scope == ScopeNone {
		return Forbidden("role %q may not %s", p.Role, action)
	}

	// Whoever placed an order may always look at it and cancel it.
	if (action == ActionView || action == ActionCancel) && res.OwnerUserID != 0 && res.OwnerUserID == p.ID {
		return nil
	}

	var allowed bool
	switch scope {
	case ScopeAll:
		allowed = true
	case ScopePharmacy:
		allowed = p.PharmacyID != nil && *p.PharmacyID == res.PharmacyID
	case ScopeBranch:
		allowed = p.BranchID != nil && *p.BranchID == res.BranchID
	case ScopeOwn:
		allowed = res.OwnerUserID != 0 && res.OwnerUserID == p.ID
	}
	if !allowed {
		return Forbidden("not allowed to %s", action)
	}
	return nil
}
