package store

import (
	"context"
	"errors"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
	ErrConflict = errors.New("conflict")
)

type SaleResult struct {
	Sale        domain.Sale
	Customer    *domain.Customer
	Adjustments []ledger.Adjustment
}

type StockInResult struct {
	Record   domain.StockInRecord
	Product  domain.Product
	Created  bool
	NewBrand bool
}

type TransferResult struct {
	Record  domain.StockTransferRecord
	Product domain.Product
}

type OwnerResult struct {
	Owner domain.User
	Store domain.StoreAccount
}

type DeleteOwnerResult struct {
	Owner  domain.User
	Stores []domain.StoreAccount
}

// Repository is the persistence boundary. Every method that touches
// product stock runs the matching ledger reducer atomically with the
// records it writes.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProductPrice(ctx context.Context, id string, unitPrice int64) (*domain.Product, error)
	ListBrands(ctx context.Context) ([]string, error)

	ListStores(ctx context.Context) ([]domain.StoreAccount, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*SaleResult, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*SaleResult, error)
	CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	MarkSaleInvoiced(ctx context.Context, id string, invoice domain.TaxInvoice) (*domain.Sale, error)

	ReceiveStock(ctx context.Context, record domain.StockInRecord, unitPrice int64) (*StockInResult, error)
	TransferStock(ctx context.Context, record domain.StockTransferRecord) (*TransferResult, error)
	ListStockIns(ctx context.Context, limit int) ([]domain.StockInRecord, error)
	ListTransfers(ctx context.Context, limit int) ([]domain.StockTransferRecord, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	CreateOwner(ctx context.Context, owner domain.User, regionCode string, now time.Time) (*OwnerResult, error)
	CreateBranch(ctx context.Context, ownerID string, regionCode string, name string) (*domain.StoreAccount, error)
	DeleteOwner(ctx context.Context, ownerID string) (*DeleteOwnerResult, error)

	CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	ListStaff(ctx context.Context) ([]domain.Staff, error)
	SetStaffActive(ctx context.Context, id string, active bool) (*domain.Staff, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateReservation(ctx context.Context, reservation domain.Reservation) (*domain.Reservation, error)
	ListReservations(ctx context.Context) ([]domain.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, status string) (*domain.Reservation, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
