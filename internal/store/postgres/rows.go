package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"tirepos/backend/internal/domain"
)

type userRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Role        string    `db:"role"`
	Password    string    `db:"password"`
	HomeStoreID string    `db:"home_store_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type storeRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	RegionCode string `db:"region_code"`
	OwnerID    string `db:"owner_id"`
	Active     bool   `db:"active"`
}

type productRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Brand         string `db:"brand"`
	Category      string `db:"category"`
	UnitPrice     int64  `db:"unit_price"`
	Specification string `db:"specification"`
}

type stockRow struct {
	ProductID string `db:"product_id"`
	StoreID   string `db:"store_id"`
	Qty       int    `db:"qty"`
}

type saleRow struct {
	ID            string       `db:"id"`
	SoldAt        time.Time    `db:"sold_at"`
	StoreID       string       `db:"store_id"`
	TotalAmount   int64        `db:"total_amount"`
	PaymentMethod string       `db:"payment_method"`
	Customer      []byte       `db:"customer"`
	StaffName     string       `db:"staff_name"`
	Memo          string       `db:"memo"`
	IsCanceled    bool         `db:"is_canceled"`
	CanceledAt    sql.NullTime `db:"canceled_at"`
	TaxInvoice    []byte       `db:"tax_invoice"`
}

func (r saleRow) toDomain(items []domain.SaleItem) (domain.Sale, error) {
	if items == nil {
		items = []domain.SaleItem{}
	}
	sale := domain.Sale{
		ID:            r.ID,
		Date:          r.SoldAt,
		StoreID:       r.StoreID,
		TotalAmount:   r.TotalAmount,
		PaymentMethod: r.PaymentMethod,
		Items:         items,
		StaffName:     r.StaffName,
		Memo:          r.Memo,
		IsCanceled:    r.IsCanceled,
	}
	if r.CanceledAt.Valid {
		at := r.CanceledAt.Time
		sale.CanceledAt = &at
	}
	if len(r.Customer) > 0 {
		var c domain.CustomerSnapshot
		if err := json.Unmarshal(r.Customer, &c); err != nil {
			return domain.Sale{}, err
		}
		sale.Customer = &c
	}
	if len(r.TaxInvoice) > 0 {
		var inv domain.TaxInvoice
		if err := json.Unmarshal(r.TaxInvoice, &inv); err != nil {
			return domain.Sale{}, err
		}
		sale.TaxInvoice = &inv
	}
	return sale, nil
}

type saleItemRow struct {
	SaleID      string `db:"sale_id"`
	LineNo      int    `db:"line_no"`
	ProductID   string `db:"product_id"`
	ProductName string `db:"product_name"`
	Quantity    int    `db:"quantity"`
	PriceAtSale int64  `db:"price_at_sale"`
}

func (r saleItemRow) toDomain() domain.SaleItem {
	return domain.SaleItem{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		PriceAtSale: r.PriceAtSale,
	}
}

type customerRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Phone      string    `db:"phone"`
	Vehicle    string    `db:"vehicle"`
	TotalSpent int64     `db:"total_spent"`
	VisitCount int       `db:"visit_count"`
	LastVisit  time.Time `db:"last_visit"`
	OwnerID    string    `db:"owner_id"`
}

type stockInRow struct {
	ID            string    `db:"id"`
	Date          time.Time `db:"received_at"`
	StoreID       string    `db:"store_id"`
	Supplier      string    `db:"supplier"`
	Category      string    `db:"category"`
	Brand         string    `db:"brand"`
	ProductName   string    `db:"product_name"`
	Specification string    `db:"specification"`
	Quantity      int       `db:"quantity"`
	FactoryPrice  int64     `db:"factory_price"`
	PurchasePrice int64     `db:"purchase_price"`
	ProductID     string    `db:"product_id"`
}

type transferRow struct {
	ID          string    `db:"id"`
	Date        time.Time `db:"transferred_at"`
	ProductID   string    `db:"product_id"`
	FromStoreID string    `db:"from_store_id"`
	ToStoreID   string    `db:"to_store_id"`
	Quantity    int       `db:"quantity"`
	StaffName   string    `db:"staff_name"`
}

type staffRow struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	StoreID string `db:"store_id"`
	Active  bool   `db:"active"`
}

type expenseRow struct {
	ID          string    `db:"id"`
	Date        time.Time `db:"spent_at"`
	StoreID     string    `db:"store_id"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	Amount      int64     `db:"amount"`
}

type reservationRow struct {
	ID            string    `db:"id"`
	StoreID       string    `db:"store_id"`
	Date          string    `db:"visit_date"`
	Time          string    `db:"visit_time"`
	CustomerName  string    `db:"customer_name"`
	Phone         string    `db:"phone"`
	CarModel      string    `db:"car_model"`
	ProductName   string    `db:"product_name"`
	Specification string    `db:"specification"`
	Quantity      int       `db:"quantity"`
	Status        string    `db:"status"`
	StockStatus   string    `db:"stock_status"`
	Memo          string    `db:"memo"`
	CreatedAt     time.Time `db:"created_at"`
}

type auditRow struct {
	ID         string    `db:"id"`
	StoreID    string    `db:"store_id"`
	ActorID    string    `db:"actor_id"`
	ActorRole  string    `db:"actor_role"`
	Action     string    `db:"action"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	Detail     string    `db:"detail"`
	CreatedAt  time.Time `db:"created_at"`
}
