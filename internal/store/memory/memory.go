package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/store"
	"tirepos/backend/internal/tenant"
	"tirepos/backend/internal/xid"
)

type state struct {
	products     map[string]*domain.Product
	productOrder []string
	brands       []string
	stores       []domain.StoreAccount
	users        map[string]domain.User
	staff        map[string]domain.Staff
	sales        map[string]domain.Sale
	customers    []domain.Customer
	stockIns     []domain.StockInRecord
	transfers    []domain.StockTransferRecord
	reservations map[string]domain.Reservation
	expenses     []domain.Expense
	auditLogs    []domain.AuditLog

	// ids of deleted owners; orphaned records still reference them
	retiredOwners []string
}

type Store struct {
	mu sync.RWMutex
	state
}

// Snapshot is an independent copy of the whole repository state.
type Snapshot struct {
	st state
}

// NewSeeded builds a store from the embedded demo data set.
func NewSeeded() *Store {
	data, err := seed.Default()
	if err != nil {
		panic(fmt.Sprintf("memory store: embedded seed is invalid: %v", err))
	}
	s, err := NewFromSeed(data)
	if err != nil {
		panic(fmt.Sprintf("memory store: %v", err))
	}
	return s
}

// NewFromSeed builds a store from a validated data set. Plain-text seed
// passwords are hashed with bcrypt.
func NewFromSeed(data *seed.Data) (*Store, error) {
	st := state{
		products:     make(map[string]*domain.Product, len(data.Products)),
		productOrder: make([]string, 0, len(data.Products)),
		brands:       slices.Clone(data.Brands),
		stores:       slices.Clone(data.Stores),
		users:        make(map[string]domain.User, len(data.Users)),
		staff:        make(map[string]domain.Staff, len(data.Staff)),
		sales:        make(map[string]domain.Sale, len(data.Sales)),
		customers:    slices.Clone(data.Customers),
		stockIns:     make([]domain.StockInRecord, 0, 64),
		transfers:    make([]domain.StockTransferRecord, 0, 64),
		reservations: make(map[string]domain.Reservation, len(data.Reservations)),
		expenses:     slices.Clone(data.Expenses),
		auditLogs:    make([]domain.AuditLog, 0, 128),
	}

	now := time.Now().UTC()
	for _, u := range data.Users {
		hash, err := seed.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.ID, err)
		}
		u.Password = hash
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		st.users[u.ID] = u
	}
	for _, p := range data.Products {
		cp := p.Clone()
		ledger.Recount(&cp)
		st.products[cp.ID] = &cp
		st.productOrder = append(st.productOrder, cp.ID)
	}
	for _, s := range data.Staff {
		st.staff[s.ID] = s
	}
	for _, sale := range data.Sales {
		st.sales[sale.ID] = sale.Clone()
	}
	for _, r := range data.Reservations {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		st.reservations[r.ID] = r
	}

	return &Store{state: st}, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{st: s.state.clone()}
}

func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap.st.clone()
}

func (st state) clone() state {
	out := state{
		products:     make(map[string]*domain.Product, len(st.products)),
		productOrder: slices.Clone(st.productOrder),
		brands:       slices.Clone(st.brands),
		stores:       slices.Clone(st.stores),
		users:        make(map[string]domain.User, len(st.users)),
		staff:        make(map[string]domain.Staff, len(st.staff)),
		sales:        make(map[string]domain.Sale, len(st.sales)),
		customers:    slices.Clone(st.customers),
		stockIns:     slices.Clone(st.stockIns),
		transfers:    slices.Clone(st.transfers),
		reservations: make(map[string]domain.Reservation, len(st.reservations)),
		expenses:     slices.Clone(st.expenses),
		auditLogs:    slices.Clone(st.auditLogs),

		retiredOwners: slices.Clone(st.retiredOwners),
	}
	for id, p := range st.products {
		cp := p.Clone()
		out.products[id] = &cp
	}
	for id, u := range st.users {
		out.users[id] = u
	}
	for id, sf := range st.staff {
		out.staff[id] = sf
	}
	for id, sale := range st.sales {
		out.sales[id] = sale.Clone()
	}
	for id, r := range st.reservations {
		out.reservations[id] = r
	}
	return out
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, id := range s.productOrder {
		products = append(products, s.products[id].Clone())
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.Specification, b.Specification)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p.Clone()
	return &cp, nil
}

func (s *Store) UpdateProductPrice(_ context.Context, id string, unitPrice int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price must not be negative", store.ErrInvalid)
	}
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.UnitPrice = unitPrice
	cp := p.Clone()
	return &cp, nil
}

func (s *Store) ListBrands(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.brands), nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.StoreAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stores), nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.storeOwner(sale.StoreID)
	if !ok {
		return nil, fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, sale.StoreID)
	}
	if err := validateSaleLines(sale); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.IsCanceled = false
	sale.CanceledAt = nil
	sale.TaxInvoice = nil
	s.fillProductNames(sale.Items)

	adjustments := ledger.ApplySale(s.products, sale.StoreID, sale.Items)
	customer := s.upsertCustomer(owner, sale)

	s.sales[sale.ID] = sale.Clone()
	return &store.SaleResult{Sale: sale.Clone(), Customer: customer, Adjustments: adjustments}, nil
}

func (s *Store) UpdateSale(_ context.Context, next domain.Sale) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.sales[next.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if prev.IsCanceled {
		return nil, fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, prev.ID)
	}
	if next.StoreID != "" && next.StoreID != prev.StoreID {
		return nil, fmt.Errorf("%w: a sale cannot move to another branch", store.ErrInvalid)
	}
	if err := validateSaleLines(next); err != nil {
		return nil, err
	}

	next.StoreID = prev.StoreID
	next.Date = prev.Date
	next.IsCanceled = false
	next.CanceledAt = nil
	next.TaxInvoice = prev.TaxInvoice
	s.fillProductNames(next.Items)

	adjustments := ledger.ApplySaleEdit(s.products, prev, next)
	s.sales[next.ID] = next.Clone()
	return &store.SaleResult{Sale: next.Clone(), Adjustments: adjustments}, nil
}

func (s *Store) CancelSale(_ context.Context, id string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.IsCanceled {
		return nil, fmt.Errorf("%w: sale %s is already canceled", store.ErrConflict, id)
	}
	sale.IsCanceled = true
	sale.CanceledAt = &at
	s.sales[id] = sale
	out := sale.Clone()
	return &out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := sale.Clone()
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !inRange(sale.Date, from, to) {
			continue
		}
		result = append(result, sale.Clone())
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) MarkSaleInvoiced(_ context.Context, id string, invoice domain.TaxInvoice) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.IsCanceled {
		return nil, fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, id)
	}
	if sale.TaxInvoice != nil {
		return nil, fmt.Errorf("%w: sale %s already has a tax invoice", store.ErrConflict, id)
	}
	sale.TaxInvoice = &invoice
	s.sales[id] = sale
	out := sale.Clone()
	return &out, nil
}

func (s *Store) ReceiveStock(_ context.Context, rec domain.StockInRecord, unitPrice int64) (*store.StockInResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storeOwner(rec.StoreID); !ok {
		return nil, fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, rec.StoreID)
	}
	if strings.TrimSpace(rec.ProductName) == "" || rec.Quantity < 1 {
		return nil, fmt.Errorf("%w: product name and a positive quantity are required", store.ErrInvalid)
	}
	if rec.ID == "" {
		rec.ID = xid.New("stockin")
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	product, created, err := ledger.ApplyStockIn(s.catalog(), s.storeIDs(), rec, xid.New("prod"), unitPrice)
	if err != nil {
		return nil, err
	}
	if created {
		s.products[product.ID] = product
		s.productOrder = append(s.productOrder, product.ID)
	}
	rec.ProductID = product.ID

	newBrand := false
	if brand := strings.TrimSpace(rec.Brand); brand != "" && !slices.Contains(s.brands, brand) {
		s.brands = append(s.brands, brand)
		slices.Sort(s.brands)
		newBrand = true
	}
	s.stockIns = append(s.stockIns, rec)

	return &store.StockInResult{Record: rec, Product: product.Clone(), Created: created, NewBrand: newBrand}, nil
}

func (s *Store) TransferStock(_ context.Context, rec domain.StockTransferRecord) (*store.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[rec.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, storeID := range []string{rec.FromStoreID, rec.ToStoreID} {
		if _, ok := s.storeOwner(storeID); !ok && storeID != "" {
			return nil, fmt.Errorf("%w: store %s does not exist", ledger.ErrTransferRejected, storeID)
		}
	}
	if err := ledger.ApplyTransfer(p, rec.FromStoreID, rec.ToStoreID, rec.Quantity); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = xid.New("transfer")
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}
	s.transfers = append(s.transfers, rec)
	return &store.TransferResult{Record: rec, Product: p.Clone()}, nil
}

func (s *Store) ListStockIns(_ context.Context, limit int) ([]domain.StockInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.stockIns)
	slices.SortFunc(result, func(a, b domain.StockInRecord) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) ListTransfers(_ context.Context, limit int) ([]domain.StockTransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.transfers)
	slices.SortFunc(result, func(a, b domain.StockTransferRecord) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.customers)
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return newestFirst(a.LastVisit, b.LastVisit, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalid
	}
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = passwordHash
	s.users[id] = u
	return nil
}

// CreateOwner allocates the next tenant id and the owner's first branch
// under the write lock, so concurrent callers never share an id.
func (s *Store) CreateOwner(_ context.Context, owner domain.User, regionCode string, now time.Time) (*store.OwnerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(owner.Name) == "" || owner.Password == "" {
		return nil, fmt.Errorf("%w: owner name and password are required", store.ErrInvalid)
	}

	ids := make([]string, 0, len(s.users)+len(s.retiredOwners))
	for id := range s.users {
		ids = append(ids, id)
	}
	ids = append(ids, s.retiredOwners...)
	owner.ID = tenant.NextOwnerID(ids, now)
	owner.Role = domain.RoleStoreAdmin
	owner.CreatedAt = now

	branch := domain.StoreAccount{
		ID:         tenant.BranchID(owner.ID, 1),
		Name:       tenant.BranchName(owner.Name, regionCode),
		RegionCode: strings.ToUpper(strings.TrimSpace(regionCode)),
		OwnerID:    owner.ID,
		Active:     true,
	}
	owner.HomeStoreID = branch.ID

	s.users[owner.ID] = owner
	s.stores = append(s.stores, branch)
	ledger.OpenBranch(s.catalog(), branch.ID)

	return &store.OwnerResult{Owner: owner, Store: branch}, nil
}

func (s *Store) CreateBranch(_ context.Context, ownerID string, regionCode string, name string) (*domain.StoreAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerID]
	if !ok || owner.Role != domain.RoleStoreAdmin {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(name) == "" {
		name = tenant.BranchName(owner.Name, regionCode)
	}
	branch := domain.StoreAccount{
		ID:         tenant.NextBranchID(ownerID, s.stores),
		Name:       strings.TrimSpace(name),
		RegionCode: strings.ToUpper(strings.TrimSpace(regionCode)),
		OwnerID:    ownerID,
		Active:     true,
	}
	s.stores = append(s.stores, branch)
	ledger.OpenBranch(s.catalog(), branch.ID)
	return &branch, nil
}

// DeleteOwner removes the owner and its branches. Stock entries, sales and
// customers that reference the removed branches are left in place, so the
// owner id is retired and CreateOwner never hands it out again.
func (s *Store) DeleteOwner(_ context.Context, ownerID string) (*store.DeleteOwnerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if owner.Role != domain.RoleStoreAdmin {
		return nil, fmt.Errorf("%w: only owner accounts can be deleted", store.ErrInvalid)
	}

	kept := make([]domain.StoreAccount, 0, len(s.stores))
	removed := make([]domain.StoreAccount, 0, 2)
	for _, st := range s.stores {
		if st.OwnerID == ownerID {
			removed = append(removed, st)
			continue
		}
		kept = append(kept, st)
	}
	s.stores = kept
	delete(s.users, ownerID)
	s.retiredOwners = append(s.retiredOwners, ownerID)

	return &store.DeleteOwnerResult{Owner: owner, Stores: removed}, nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(staff.Name) == "" {
		return nil, fmt.Errorf("%w: staff name is required", store.ErrInvalid)
	}
	if _, ok := s.storeOwner(staff.StoreID); !ok {
		return nil, fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, staff.StoreID)
	}
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	staff.Active = true
	s.staff[staff.ID] = staff
	return &staff, nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Staff, 0, len(s.staff))
	for _, sf := range s.staff {
		result = append(result, sf)
	}
	slices.SortFunc(result, func(a, b domain.Staff) int {
		if a.StoreID == b.StoreID {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.StoreID, b.StoreID)
	})
	return result, nil
}

func (s *Store) SetStaffActive(_ context.Context, id string, active bool) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, ok := s.staff[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sf.Active = active
	s.staff[id] = sf
	return &sf, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storeOwner(expense.StoreID); !ok {
		return nil, fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, expense.StoreID)
	}
	if expense.Amount < 1 || strings.TrimSpace(expense.Category) == "" {
		return nil, fmt.Errorf("%w: category and a positive amount are required", store.ErrInvalid)
	}
	if expense.ID == "" {
		expense.ID = xid.New("expense")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	s.expenses = append(s.expenses, expense)
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if inRange(e.Date, from, to) {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateReservation(_ context.Context, r domain.Reservation) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storeOwner(r.StoreID); !ok {
		return nil, fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, r.StoreID)
	}
	if r.ID == "" {
		r.ID = xid.New("rsv")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.ReservationPending
	s.reservations[r.ID] = r
	return &r, nil
}

func (s *Store) ListReservations(_ context.Context) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b domain.Reservation) int {
		if c := strings.Compare(a.Date+a.Time, b.Date+b.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) UpdateReservationStatus(_ context.Context, id string, status string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.ReservationTransitionAllowed(r.Status, status) {
		return nil, fmt.Errorf("%w: reservation cannot move from %s to %s", store.ErrConflict, r.Status, status)
	}
	r.Status = status
	s.reservations[id] = r
	return &r, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if inRange(entry.CreatedAt, from, to) {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

// LogState writes a one-line summary of the repository contents.
func (s *Store) LogState(logger *slog.Logger) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logger.Info("memory store ready",
		"users", len(s.users),
		"stores", len(s.stores),
		"products", len(s.products),
		"sales", len(s.sales),
	)
}

func (s *Store) storeOwner(storeID string) (string, bool) {
	for _, st := range s.stores {
		if st.ID == storeID {
			return st.OwnerID, true
		}
	}
	return "", false
}

func (s *Store) storeIDs() []string {
	ids := make([]string, 0, len(s.stores))
	for _, st := range s.stores {
		ids = append(ids, st.ID)
	}
	return ids
}

func (s *Store) catalog() []*domain.Product {
	catalog := make([]*domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		catalog = append(catalog, s.products[id])
	}
	return catalog
}

func (s *Store) fillProductNames(items []domain.SaleItem) {
	for i := range items {
		if items[i].ProductName != "" {
			continue
		}
		if p, ok := s.products[items[i].ProductID]; ok {
			items[i].ProductName = p.Name
		}
	}
}

// upsertCustomer folds a sale into the customer aggregate keyed by phone
// number within the owning tenant.
func (s *Store) upsertCustomer(ownerID string, sale domain.Sale) *domain.Customer {
	if sale.Customer == nil || strings.TrimSpace(sale.Customer.Phone) == "" {
		return nil
	}
	phone := strings.TrimSpace(sale.Customer.Phone)
	for i := range s.customers {
		c := &s.customers[i]
		if c.Phone != phone || c.OwnerID != ownerID {
			continue
		}
		c.VisitCount++
		c.TotalSpent += sale.TotalAmount
		c.LastVisit = sale.Date
		if name := strings.TrimSpace(sale.Customer.Name); name != "" {
			c.Name = name
		}
		if vehicle := strings.TrimSpace(sale.Customer.Vehicle); vehicle != "" {
			c.Vehicle = vehicle
		}
		out := *c
		return &out
	}

	c := domain.Customer{
		ID:         xid.New("cust"),
		Name:       strings.TrimSpace(sale.Customer.Name),
		Phone:      phone,
		Vehicle:    strings.TrimSpace(sale.Customer.Vehicle),
		TotalSpent: sale.TotalAmount,
		VisitCount: 1,
		LastVisit:  sale.Date,
		OwnerID:    ownerID,
	}
	s.customers = append(s.customers, c)
	return &c
}

func validateSaleLines(sale domain.Sale) error {
	if len(sale.Items) == 0 {
		return fmt.Errorf("%w: a sale needs at least one line", store.ErrInvalid)
	}
	for _, item := range sale.Items {
		if item.ProductID == "" || item.Quantity < 1 || item.PriceAtSale < 0 {
			return fmt.Errorf("%w: invalid sale line for product %q", store.ErrInvalid, item.ProductID)
		}
	}
	if sale.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must not be negative", store.ErrInvalid)
	}
	return nil
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if a.Equal(b) {
		return strings.Compare(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
