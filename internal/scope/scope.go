// Package scope decides which branches a signed-in identity may see and
// what the current session is allowed to do.
//
// Visibility is derived from the identity alone. Permission checks use the
// session's effective capability alone. The two are never mixed: an owner
// working in the downgraded STAFF capability still sees every branch it
// owns, and an owner's identity role never grants admin actions by itself.
package scope

import (
	"errors"
	"sort"

	"tirepos/backend/internal/domain"
)

var (
	ErrBranchNotVisible = errors.New("branch not visible to this account")
	ErrBranchRequired   = errors.New("branch selection required")
)

type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	HomeStoreID string `json:"home_store_id,omitempty"`
}

type Session struct {
	Identity   Identity `json:"identity"`
	StoreID    string   `json:"store_id,omitempty"`
	Capability string   `json:"capability"`
}

// NewSession starts a session for a freshly authenticated identity. Owners
// start in STAFF capability with no branch selected.
func NewSession(identity Identity) Session {
	if identity.Role == domain.RoleSuperAdmin {
		return Session{Identity: identity, StoreID: domain.AllStores, Capability: domain.RoleSuperAdmin}
	}
	return Session{Identity: identity, Capability: domain.RoleStaff}
}

func (s Session) NeedsBranch() bool {
	return s.StoreID == ""
}

// SelectBranch picks one owned branch or AllStores. The capability drops
// back to STAFF.
func (s Session) SelectBranch(storeID string, stores []domain.StoreAccount) (Session, error) {
	if storeID == "" {
		return s, ErrBranchRequired
	}
	if s.Identity.Role == domain.RoleSuperAdmin {
		s.StoreID = storeID
		return s, nil
	}
	if storeID != domain.AllStores {
		visible := Visible(s.Identity, stores)
		if !visible.Contains(storeID) {
			return s, ErrBranchNotVisible
		}
	}
	s.StoreID = storeID
	s.Capability = domain.RoleStaff
	return s, nil
}

// Unlock raises an owner session to admin capability. The caller verifies
// the password first.
func (s Session) Unlock() Session {
	if s.Identity.Role == domain.RoleStoreAdmin {
		s.Capability = domain.RoleStoreAdmin
	}
	return s
}

func (s Session) Lock() Session {
	if s.Identity.Role == domain.RoleStoreAdmin {
		s.Capability = domain.RoleStaff
	}
	return s
}

// Can reports whether the effective capability covers required.
func (s Session) Can(required string) bool {
	return capabilityRank(s.Capability) >= capabilityRank(required) && capabilityRank(required) > 0
}

// DefaultStore returns the branch new records land in when the request
// names none.
func (s Session) DefaultStore() string {
	if s.StoreID != "" && s.StoreID != domain.AllStores {
		return s.StoreID
	}
	return s.Identity.HomeStoreID
}

func capabilityRank(capability string) int {
	switch capability {
	case domain.RoleStaff:
		return 1
	case domain.RoleStoreAdmin:
		return 2
	case domain.RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Visibility is the set of branch ids an identity may see. The zero value
// sees nothing.
type Visibility struct {
	all bool
	ids map[string]struct{}
}

func Unrestricted() Visibility {
	return Visibility{all: true}
}

func FromStoreIDs(ids []string) Visibility {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Visibility{ids: set}
}

// Visible computes the branch set for identity: everything for a super
// admin, otherwise the branches whose owner is the identity.
func Visible(identity Identity, stores []domain.StoreAccount) Visibility {
	if identity.Role == domain.RoleSuperAdmin {
		return Unrestricted()
	}
	ids := make([]string, 0, len(stores))
	for _, st := range stores {
		if st.OwnerID == identity.ID {
			ids = append(ids, st.ID)
		}
	}
	return FromStoreIDs(ids)
}

func (v Visibility) Unrestricted() bool {
	return v.all
}

func (v Visibility) Contains(storeID string) bool {
	if v.all {
		return true
	}
	_, ok := v.ids[storeID]
	return ok
}

// StoreIDs lists the visible branch ids in order. It returns nil for an
// unrestricted set.
func (v Visibility) StoreIDs() []string {
	if v.all {
		return nil
	}
	ids := make([]string, 0, len(v.ids))
	for id := range v.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Filter keeps the items whose branch is visible.
func Filter[T any](v Visibility, items []T, storeOf func(T) string) []T {
	if v.all {
		return items
	}
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if v.Contains(storeOf(item)) {
			kept = append(kept, item)
		}
	}
	return kept
}

func FilterSales(v Visibility, sales []domain.Sale) []domain.Sale {
	return Filter(v, sales, func(s domain.Sale) string { return s.StoreID })
}

func FilterExpenses(v Visibility, expenses []domain.Expense) []domain.Expense {
	return Filter(v, expenses, func(e domain.Expense) string { return e.StoreID })
}

func FilterStockIns(v Visibility, records []domain.StockInRecord) []domain.StockInRecord {
	return Filter(v, records, func(r domain.StockInRecord) string { return r.StoreID })
}

// FilterTransfers keeps a transfer when either end is visible.
func FilterTransfers(v Visibility, records []domain.StockTransferRecord) []domain.StockTransferRecord {
	if v.all {
		return records
	}
	kept := make([]domain.StockTransferRecord, 0, len(records))
	for _, r := range records {
		if v.Contains(r.FromStoreID) || v.Contains(r.ToStoreID) {
			kept = append(kept, r)
		}
	}
	return kept
}

func FilterReservations(v Visibility, reservations []domain.Reservation) []domain.Reservation {
	return Filter(v, reservations, func(r domain.Reservation) string { return r.StoreID })
}

func FilterStaff(v Visibility, staff []domain.Staff) []domain.Staff {
	return Filter(v, staff, func(s domain.Staff) string { return s.StoreID })
}

func FilterStores(v Visibility, stores []domain.StoreAccount) []domain.StoreAccount {
	return Filter(v, stores, func(s domain.StoreAccount) string { return s.ID })
}

// FilterCustomers matches on the customer's owner id directly.
func FilterCustomers(identity Identity, customers []domain.Customer) []domain.Customer {
	if identity.Role == domain.RoleSuperAdmin {
		return customers
	}
	kept := make([]domain.Customer, 0, len(customers))
	for _, c := range customers {
		if c.OwnerID == identity.ID {
			kept = append(kept, c)
		}
	}
	return kept
}
