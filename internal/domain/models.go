package domain

import "time"

const (
	// PriorityPaymentProductID is the placeholder line used to book revenue
	// before the correct catalog item is known.
	PriorityPaymentProductID = "99999"

	// ServiceStockThreshold marks a product as an unlimited service item when
	// any branch holds more than this quantity.
	ServiceStockThreshold = 900

	// AllStores is the branch selection that covers every branch of a tenant.
	AllStores = "ALL"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleStoreAdmin = "STORE_ADMIN"
	RoleStaff      = "STAFF"
)

const (
	ReservationPending   = "PENDING"
	ReservationConfirmed = "CONFIRMED"
	ReservationCompleted = "COMPLETED"
	ReservationCanceled  = "CANCELED"
)

const (
	StockStatusAvailable   = "AVAILABLE"
	StockStatusLow         = "LOW"
	StockStatusUnavailable = "UNAVAILABLE"
	StockStatusUnknown     = "UNKNOWN"
)

type Product struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Brand         string         `json:"brand" yaml:"brand"`
	Category      string         `json:"category" yaml:"category"`
	UnitPrice     int64          `json:"unit_price" yaml:"unit_price"`
	Specification string         `json:"specification" yaml:"specification"`
	StockByStore  map[string]int `json:"stock_by_store" yaml:"stock_by_store"`
	Stock         int            `json:"stock" yaml:"-"`
}

// Clone returns a copy whose stock map can be mutated independently.
func (p Product) Clone() Product {
	out := p
	out.StockByStore = make(map[string]int, len(p.StockByStore))
	for storeID, qty := range p.StockByStore {
		out.StockByStore[storeID] = qty
	}
	return out
}

type StoreAccount struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	RegionCode string `json:"region_code" yaml:"region_code"`
	OwnerID    string `json:"owner_id" yaml:"owner_id"`
	Active     bool   `json:"active" yaml:"active"`
}

// User is a login identity. Password always holds a bcrypt hash once stored.
type User struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Role        string    `json:"role" yaml:"role"`
	Password    string    `json:"-" yaml:"password"`
	HomeStoreID string    `json:"home_store_id,omitempty" yaml:"home_store_id"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

type Staff struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	StoreID string `json:"store_id" yaml:"store_id"`
	Active  bool   `json:"active" yaml:"active"`
}

type SaleItem struct {
	ProductID   string `json:"product_id" yaml:"product_id"`
	ProductName string `json:"product_name,omitempty" yaml:"product_name"`
	Quantity    int    `json:"quantity" yaml:"quantity"`
	PriceAtSale int64  `json:"price_at_sale" yaml:"price_at_sale"`
}

type CustomerSnapshot struct {
	Name    string `json:"name" yaml:"name"`
	Phone   string `json:"phone" yaml:"phone"`
	Vehicle string `json:"vehicle,omitempty" yaml:"vehicle"`
}

type TaxInvoiceBuyer struct {
	BusinessNumber string `json:"business_number"`
	CompanyName    string `json:"company_name"`
	Representative string `json:"representative"`
	Address        string `json:"address,omitempty"`
	Email          string `json:"email,omitempty"`
}

type TaxInvoice struct {
	ApprovalNumber string          `json:"approval_number"`
	IssuedAt       time.Time       `json:"issued_at"`
	Buyer          TaxInvoiceBuyer `json:"buyer"`
}

type Sale struct {
	ID            string            `json:"id" yaml:"id"`
	Date          time.Time         `json:"date" yaml:"date"`
	StoreID       string            `json:"store_id" yaml:"store_id"`
	TotalAmount   int64             `json:"total_amount" yaml:"total_amount"`
	PaymentMethod string            `json:"payment_method" yaml:"payment_method"`
	Items         []SaleItem        `json:"items" yaml:"items"`
	Customer      *CustomerSnapshot `json:"customer,omitempty" yaml:"customer"`
	StaffName     string            `json:"staff_name,omitempty" yaml:"staff_name"`
	Memo          string            `json:"memo,omitempty" yaml:"memo"`
	IsCanceled    bool              `json:"is_canceled" yaml:"is_canceled"`
	CanceledAt    *time.Time        `json:"canceled_at,omitempty" yaml:"-"`
	TaxInvoice    *TaxInvoice       `json:"tax_invoice,omitempty" yaml:"-"`
}

// Clone deep-copies the slices and pointers of a sale.
func (s Sale) Clone() Sale {
	out := s
	out.Items = append([]SaleItem(nil), s.Items...)
	if s.Customer != nil {
		c := *s.Customer
		out.Customer = &c
	}
	if s.CanceledAt != nil {
		at := *s.CanceledAt
		out.CanceledAt = &at
	}
	if s.TaxInvoice != nil {
		inv := *s.TaxInvoice
		out.TaxInvoice = &inv
	}
	return out
}

type Customer struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Phone      string    `json:"phone" yaml:"phone"`
	Vehicle    string    `json:"vehicle,omitempty" yaml:"vehicle"`
	TotalSpent int64     `json:"total_spent" yaml:"total_spent"`
	VisitCount int       `json:"visit_count" yaml:"visit_count"`
	LastVisit  time.Time `json:"last_visit" yaml:"last_visit"`
	OwnerID    string    `json:"owner_id" yaml:"owner_id"`
}

type StockInRecord struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	StoreID       string    `json:"store_id"`
	Supplier      string    `json:"supplier"`
	Category      string    `json:"category"`
	Brand         string    `json:"brand"`
	ProductName   string    `json:"product_name"`
	Specification string    `json:"specification"`
	Quantity      int       `json:"quantity"`
	FactoryPrice  int64     `json:"factory_price"`
	PurchasePrice int64     `json:"purchase_price"`
	ProductID     string    `json:"product_id,omitempty"`
}

type StockTransferRecord struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	ProductID   string    `json:"product_id"`
	FromStoreID string    `json:"from_store_id"`
	ToStoreID   string    `json:"to_store_id"`
	Quantity    int       `json:"quantity"`
	StaffName   string    `json:"staff_name,omitempty"`
}

type Reservation struct {
	ID            string    `json:"id" yaml:"id"`
	StoreID       string    `json:"store_id" yaml:"store_id"`
	Date          string    `json:"date" yaml:"date"`
	Time          string    `json:"time" yaml:"time"`
	CustomerName  string    `json:"customer_name" yaml:"customer_name"`
	Phone         string    `json:"phone" yaml:"phone"`
	CarModel      string    `json:"car_model,omitempty" yaml:"car_model"`
	ProductName   string    `json:"product_name,omitempty" yaml:"product_name"`
	Specification string    `json:"specification,omitempty" yaml:"specification"`
	Quantity      int       `json:"quantity" yaml:"quantity"`
	Status        string    `json:"status" yaml:"status"`
	StockStatus   string    `json:"stock_status" yaml:"stock_status"`
	Memo          string    `json:"memo,omitempty" yaml:"memo"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
}

type Expense struct {
	ID          string    `json:"id" yaml:"id"`
	Date        time.Time `json:"date" yaml:"date"`
	StoreID     string    `json:"store_id" yaml:"store_id"`
	Category    string    `json:"category" yaml:"category"`
	Description string    `json:"description" yaml:"description"`
	Amount      int64     `json:"amount" yaml:"amount"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken    string `json:"access_token"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Capability     string `json:"capability"`
	StoreID        string `json:"store_id,omitempty"`
	RequiresBranch bool   `json:"requires_branch"`
	Console        bool   `json:"console"`
	ExpiresAt      string `json:"expires_at"`
}

type BranchSelectRequest struct {
	StoreID string `json:"store_id"`
}

type UnlockRequest struct {
	Password string `json:"password"`
}

type SaleCreateRequest struct {
	StoreID       string            `json:"store_id"`
	PaymentMethod string            `json:"payment_method"`
	TotalAmount   int64             `json:"total_amount"`
	Items         []SaleItem        `json:"items"`
	Customer      *CustomerSnapshot `json:"customer,omitempty"`
	StaffName     string            `json:"staff_name,omitempty"`
	Memo          string            `json:"memo,omitempty"`
}

type SaleUpdateRequest struct {
	StoreID       string            `json:"store_id,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	TotalAmount   int64             `json:"total_amount"`
	Items         []SaleItem        `json:"items"`
	Customer      *CustomerSnapshot `json:"customer,omitempty"`
	StaffName     string            `json:"staff_name,omitempty"`
	Memo          string            `json:"memo,omitempty"`
}

type StockInRequest struct {
	StoreID       string `json:"store_id"`
	Supplier      string `json:"supplier"`
	Category      string `json:"category"`
	Brand         string `json:"brand"`
	ProductName   string `json:"product_name"`
	Specification string `json:"specification"`
	Quantity      int    `json:"quantity"`
	FactoryPrice  int64  `json:"factory_price"`
	PurchasePrice int64  `json:"purchase_price"`
	// UnitPrice is the retail price for a product created by this receipt.
	UnitPrice int64 `json:"unit_price,omitempty"`
}

type StockInResponse struct {
	Record  StockInRecord `json:"record"`
	Product Product       `json:"product"`
	Created bool          `json:"created"`
}

type StockTransferRequest struct {
	ProductID   string `json:"product_id"`
	FromStoreID string `json:"from_store_id"`
	ToStoreID   string `json:"to_store_id"`
	Quantity    int    `json:"quantity"`
	StaffName   string `json:"staff_name,omitempty"`
}

type StockTransferResponse struct {
	Record  StockTransferRecord `json:"record"`
	Product Product             `json:"product"`
}

type ProductPriceRequest struct {
	UnitPrice int64 `json:"unit_price"`
}

type ReservationCreateRequest struct {
	StoreID       string `json:"store_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	CarModel      string `json:"car_model,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	Specification string `json:"specification,omitempty"`
	Quantity      int    `json:"quantity"`
	Memo          string `json:"memo,omitempty"`
}

type ReservationStatusRequest struct {
	Status string `json:"status"`
}

type ExpenseCreateRequest struct {
	StoreID     string `json:"store_id"`
	Date        string `json:"date,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

type StaffCreateRequest struct {
	Name    string `json:"name"`
	StoreID string `json:"store_id"`
}

type StaffUpdateRequest struct {
	Active bool `json:"active"`
}

type TaxInvoiceRequest struct {
	Buyer TaxInvoiceBuyer `json:"buyer"`
}

type OwnerCreateRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	RegionCode string `json:"region_code"`
}

type OwnerResponse struct {
	Owner  User           `json:"owner"`
	Stores []StoreAccount `json:"stores"`
}

type BranchCreateRequest struct {
	RegionCode string `json:"region_code"`
	Name       string `json:"name,omitempty"`
}

type LowStockItem struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Specification string `json:"specification"`
	StoreID       string `json:"store_id"`
	Quantity      int    `json:"quantity"`
}

type SalesSummaryPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalAmount   int64  `json:"total_amount"`
}

type SalesSummaryStore struct {
	StoreID     string `json:"store_id"`
	Sales       int64  `json:"sales"`
	TotalAmount int64  `json:"total_amount"`
}

type SalesSummary struct {
	Date          string                `json:"date"`
	Sales         int64                 `json:"sales"`
	CanceledSales int64                 `json:"canceled_sales"`
	TotalAmount   int64                 `json:"total_amount"`
	ExpenseAmount int64                 `json:"expense_amount"`
	ByPayment     []SalesSummaryPayment `json:"by_payment"`
	ByStore       []SalesSummaryStore   `json:"by_store"`
}

// ReservationTransitionAllowed reports whether a reservation may move from
// one status to another. Any open reservation may be canceled.
func ReservationTransitionAllowed(from string, to string) bool {
	switch to {
	case ReservationConfirmed:
		return from == ReservationPending
	case ReservationCompleted:
		return from == ReservationConfirmed
	case ReservationCanceled:
		return from == ReservationPending || from == ReservationConfirmed
	default:
		return false
	}
}
