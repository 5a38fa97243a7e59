package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/store"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return scope.FilterCustomers(session.Identity, customers), nil
}

// CreateReservation books a visit. Its stock status is a hint taken from
// the branch stock at booking time and is never enforced.
func (s *Service) CreateReservation(ctx context.Context, req domain.ReservationCreateRequest) (domain.Reservation, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.Reservation{}, err
	}
	storeID, err := s.targetStore(ctx, session, req.StoreID)
	if err != nil {
		return domain.Reservation{}, err
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.CustomerName == "" {
		return domain.Reservation{}, invalid("customer_name", "is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return domain.Reservation{}, invalid("date", "expected YYYY-MM-DD")
	}
	if req.Time != "" {
		if _, err := time.Parse("15:04", req.Time); err != nil {
			return domain.Reservation{}, invalid("time", "expected HH:MM")
		}
	}
	if req.Quantity < 0 || req.Quantity > ledger.MaxQuantity {
		return domain.Reservation{}, invalid("quantity", fmt.Sprintf("must be between 0 and %d", ledger.MaxQuantity))
	}

	r := domain.Reservation{
		StoreID:       storeID,
		Date:          req.Date,
		Time:          req.Time,
		CustomerName:  req.CustomerName,
		Phone:         strings.TrimSpace(req.Phone),
		CarModel:      strings.TrimSpace(req.CarModel),
		ProductName:   strings.TrimSpace(req.ProductName),
		Specification: strings.TrimSpace(req.Specification),
		Quantity:      req.Quantity,
		Memo:          strings.TrimSpace(req.Memo),
		CreatedAt:     s.now(),
	}
	r.StockStatus, err = s.stockStatus(ctx, r)
	if err != nil {
		return domain.Reservation{}, err
	}

	saved, err := s.repo.CreateReservation(ctx, r)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.logAudit(ctx, storeID, "reservation_create", "reservation", saved.ID,
		fmt.Sprintf("date=%s,time=%s,stock=%s", saved.Date, saved.Time, saved.StockStatus))
	return *saved, nil
}

func (s *Service) ListReservations(ctx context.Context, storeID string, date string) ([]domain.Reservation, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListReservations(ctx)
	if err != nil {
		return nil, err
	}
	reservations = scope.FilterReservations(v, reservations)
	date = strings.TrimSpace(date)
	if date == "" {
		return reservations, nil
	}
	kept := make([]domain.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Date == date {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (s *Service) UpdateReservationStatus(ctx context.Context, reservationID string, req domain.ReservationStatusRequest) (domain.Reservation, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.Reservation{}, err
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch status {
	case domain.ReservationConfirmed, domain.ReservationCompleted, domain.ReservationCanceled:
	default:
		return domain.Reservation{}, invalid("status", "must be CONFIRMED, COMPLETED or CANCELED")
	}

	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return domain.Reservation{}, err
	}
	reservations, err := s.repo.ListReservations(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	found := false
	for _, r := range scope.FilterReservations(v, reservations) {
		if r.ID == reservationID {
			found = true
			break
		}
	}
	if !found {
		return domain.Reservation{}, store.ErrNotFound
	}

	updated, err := s.repo.UpdateReservationStatus(ctx, reservationID, status)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.logAudit(ctx, updated.StoreID, "reservation_status", "reservation", updated.ID, "status="+updated.Status)
	return *updated, nil
}

// stockStatus looks the reserved product up by name and specification in
// the reservation's branch.
func (s *Service) stockStatus(ctx context.Context, r domain.Reservation) (string, error) {
	if r.ProductName == "" {
		return domain.StockStatusUnknown, nil
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return "", err
	}
	catalog := make([]*domain.Product, 0, len(products))
	for i := range products {
		catalog = append(catalog, &products[i])
	}
	p := ledger.FindForStockIn(catalog, r.ProductName, r.Specification)
	if p == nil {
		return domain.StockStatusUnknown, nil
	}
	if ledger.IsServiceItem(*p) {
		return domain.StockStatusAvailable, nil
	}

	want := r.Quantity
	if want < 1 {
		want = 1
	}
	qty := p.StockByStore[r.StoreID]
	switch {
	case qty < want:
		return domain.StockStatusUnavailable, nil
	case qty-want <= s.lowStockThreshold:
		return domain.StockStatusLow, nil
	default:
		return domain.StockStatusAvailable, nil
	}
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Expense{}, err
	}
	storeID, err := s.targetStore(ctx, session, req.StoreID)
	if err != nil {
		return domain.Expense{}, err
	}
	if strings.TrimSpace(req.Category) == "" {
		return domain.Expense{}, invalid("category", "is required")
	}
	if req.Amount < 1 {
		return domain.Expense{}, invalid("amount", "must be positive")
	}
	spentAt := s.now()
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
		if err != nil {
			return domain.Expense{}, invalid("date", "expected YYYY-MM-DD")
		}
		spentAt = parsed.UTC().Add(12 * time.Hour)
	}

	saved, err := s.repo.CreateExpense(ctx, domain.Expense{
		Date:        spentAt,
		StoreID:     storeID,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, storeID, "expense_create", "expense", saved.ID, fmt.Sprintf("category=%s,amount=%d", saved.Category, saved.Amount))
	return *saved, nil
}

func (s *Service) ListExpenses(ctx context.Context, storeID string, from string, to string) ([]domain.Expense, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	start, end, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return scope.FilterExpenses(v, expenses), nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.Staff, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Staff{}, err
	}
	storeID, err := s.targetStore(ctx, session, req.StoreID)
	if err != nil {
		return domain.Staff{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Staff{}, invalid("name", "is required")
	}

	saved, err := s.repo.CreateStaff(ctx, domain.Staff{Name: name, StoreID: storeID})
	if err != nil {
		return domain.Staff{}, err
	}
	s.logAudit(ctx, storeID, "staff_create", "staff", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) ListStaff(ctx context.Context, storeID string) ([]domain.Staff, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	return scope.FilterStaff(v, staff), nil
}

func (s *Service) SetStaffActive(ctx context.Context, staffID string, req domain.StaffUpdateRequest) (domain.Staff, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Staff{}, err
	}
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return domain.Staff{}, err
	}
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return domain.Staff{}, err
	}
	found := false
	for _, member := range scope.FilterStaff(v, staff) {
		if member.ID == staffID {
			found = true
			break
		}
	}
	if !found {
		return domain.Staff{}, store.ErrNotFound
	}

	updated, err := s.repo.SetStaffActive(ctx, staffID, req.Active)
	if err != nil {
		return domain.Staff{}, err
	}
	s.logAudit(ctx, updated.StoreID, "staff_update", "staff", updated.ID, fmt.Sprintf("active=%t", updated.Active))
	return *updated, nil
}

// ListAuditLogs returns one day of audit entries for the visible branches.
// Super admins also see entries with no branch.
func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}

	logs, err := s.repo.ListAuditLogs(ctx, from, to, 0)
	if err != nil {
		return nil, err
	}
	kept := scope.Filter(v, logs, func(l domain.AuditLog) string { return l.StoreID })
	return truncate(kept, limit), nil
}
