package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/store"
	"tirepos/backend/internal/tenant"
	"tirepos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sqlx.DB
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Bootstrap loads data into an empty database. It does nothing when any
// user already exists.
func (s *Store) Bootstrap(ctx context.Context, data *seed.Data) (bool, error) {
	var users int
	if err := s.db.GetContext(ctx, &users, `SELECT count(*) FROM users`); err != nil {
		return false, err
	}
	if users > 0 {
		return false, nil
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, u := range data.Users {
			hash, err := seed.HashPassword(u.Password)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, name, role, password, home_store_id, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, u.ID, u.Name, u.Role, hash, u.HomeStoreID, now); err != nil {
				return err
			}
		}
		for _, st := range data.Stores {
			if err := insertStore(ctx, tx, st); err != nil {
				return err
			}
		}
		for _, b := range data.Brands {
			if _, err := tx.ExecContext(ctx, `INSERT INTO brands (name) VALUES ($1) ON CONFLICT DO NOTHING`, b); err != nil {
				return err
			}
		}
		for i := range data.Products {
			p := data.Products[i].Clone()
			if err := insertProduct(ctx, tx, &p); err != nil {
				return err
			}
		}
		for _, sf := range data.Staff {
			if _, err := tx.ExecContext(ctx, `INSERT INTO staff (id, name, store_id, active) VALUES ($1,$2,$3,$4)`,
				sf.ID, sf.Name, sf.StoreID, sf.Active); err != nil {
				return err
			}
		}
		for _, c := range data.Customers {
			if err := insertCustomer(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, sale := range data.Sales {
			if err := insertSale(ctx, tx, sale); err != nil {
				return err
			}
		}
		for _, r := range data.Reservations {
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			if err := insertReservation(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, e := range data.Expenses {
			if err := insertExpense(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, order, err := loadProducts(ctx, s.db, `TRUE`, nil, false)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Product, 0, len(order))
	for _, id := range order {
		result = append(result, *products[id])
	}
	slices.SortStableFunc(result, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.Specification, b.Specification)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, _, err := loadProducts(ctx, s.db, `id = $1`, []any{id}, false)
	if err != nil {
		return nil, err
	}
	p, ok := products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProductPrice(ctx context.Context, id string, unitPrice int64) (*domain.Product, error) {
	if unitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price must not be negative", store.ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET unit_price = $2 WHERE id = $1`, id, unitPrice)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) ListBrands(ctx context.Context) ([]string, error) {
	brands := make([]string, 0, 16)
	if err := s.db.SelectContext(ctx, &brands, `SELECT name FROM brands ORDER BY name`); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.StoreAccount, error) {
	return listStores(ctx, s.db)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*store.SaleResult, error) {
	if err := validateSaleLines(sale); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.IsCanceled = false
	sale.CanceledAt = nil
	sale.TaxInvoice = nil

	var result *store.SaleResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ownerID, err := storeOwner(ctx, tx, sale.StoreID)
		if err != nil {
			return err
		}
		products, _, err := loadProducts(ctx, tx, `id = ANY($1)`, []any{saleProductIDs(sale.Items)}, true)
		if err != nil {
			return err
		}
		fillProductNames(products, sale.Items)

		adjustments := ledger.ApplySale(products, sale.StoreID, sale.Items)
		if err := saveAdjusted(ctx, tx, products, adjustments); err != nil {
			return err
		}
		customer, err := upsertCustomer(ctx, tx, ownerID, sale)
		if err != nil {
			return err
		}
		if err := insertSale(ctx, tx, sale); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
			}
			return err
		}
		result = &store.SaleResult{Sale: sale, Customer: customer, Adjustments: adjustments}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateSale(ctx context.Context, next domain.Sale) (*store.SaleResult, error) {
	if err := validateSaleLines(next); err != nil {
		return nil, err
	}

	var result *store.SaleResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		prev, err := getSale(ctx, tx, next.ID, true)
		if err != nil {
			return err
		}
		if prev.IsCanceled {
			return fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, prev.ID)
		}
		if next.StoreID != "" && next.StoreID != prev.StoreID {
			return fmt.Errorf("%w: a sale cannot move to another branch", store.ErrInvalid)
		}
		next.StoreID = prev.StoreID
		next.Date = prev.Date
		next.IsCanceled = false
		next.CanceledAt = nil
		next.TaxInvoice = prev.TaxInvoice

		ids := saleProductIDs(append(append([]domain.SaleItem(nil), prev.Items...), next.Items...))
		products, _, err := loadProducts(ctx, tx, `id = ANY($1)`, []any{ids}, true)
		if err != nil {
			return err
		}
		fillProductNames(products, next.Items)

		adjustments := ledger.ApplySaleEdit(products, *prev, next)
		if err := saveAdjusted(ctx, tx, products, adjustments); err != nil {
			return err
		}

		customer, err := marshalNullable(next.Customer)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE sales
			SET total_amount = $2, payment_method = $3, customer = $4, staff_name = $5, memo = $6
			WHERE id = $1
		`, next.ID, next.TotalAmount, next.PaymentMethod, customer, next.StaffName, next.Memo); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, next.ID); err != nil {
			return err
		}
		if err := insertSaleItems(ctx, tx, next.ID, next.Items); err != nil {
			return err
		}
		result = &store.SaleResult{Sale: next, Adjustments: adjustments}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CancelSale(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	var out *domain.Sale
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		sale, err := getSale(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if sale.IsCanceled {
			return fmt.Errorf("%w: sale %s is already canceled", store.ErrConflict, id)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET is_canceled = true, canceled_at = $2 WHERE id = $1`, id, at); err != nil {
			return err
		}
		sale.IsCanceled = true
		sale.CanceledAt = &at
		out = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sold_at, store_id, total_amount, payment_method, customer, staff_name, memo,
		       is_canceled, canceled_at, tax_invoice
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sold_at >= $1)
		  AND ($2::timestamptz IS NULL OR sold_at < $2)
		ORDER BY sold_at DESC, id DESC
	`, nullZeroTime(from), nullZeroTime(to)); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Sale{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var items []saleItemRow
	if err := s.db.SelectContext(ctx, &items, `
		SELECT sale_id, line_no, product_id, product_name, quantity, price_at_sale
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids); err != nil {
		return nil, err
	}
	bySale := make(map[string][]domain.SaleItem, len(rows))
	for _, it := range items {
		bySale[it.SaleID] = append(bySale[it.SaleID], it.toDomain())
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		sale, err := r.toDomain(bySale[r.ID])
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Store) MarkSaleInvoiced(ctx context.Context, id string, invoice domain.TaxInvoice) (*domain.Sale, error) {
	var out *domain.Sale
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		sale, err := getSale(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if sale.IsCanceled {
			return fmt.Errorf("%w: sale %s is canceled", store.ErrConflict, id)
		}
		if sale.TaxInvoice != nil {
			return fmt.Errorf("%w: sale %s already has a tax invoice", store.ErrConflict, id)
		}
		payload, err := json.Marshal(invoice)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET tax_invoice = $2 WHERE id = $1`, id, payload); err != nil {
			return err
		}
		sale.TaxInvoice = &invoice
		out = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReceiveStock(ctx context.Context, rec domain.StockInRecord, unitPrice int64) (*store.StockInResult, error) {
	if strings.TrimSpace(rec.ProductName) == "" || rec.Quantity < 1 {
		return nil, fmt.Errorf("%w: product name and a positive quantity are required", store.ErrInvalid)
	}
	if rec.ID == "" {
		rec.ID = xid.New("stockin")
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	var result *store.StockInResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := storeOwner(ctx, tx, rec.StoreID); err != nil {
			return err
		}
		stores, err := listStores(ctx, tx)
		if err != nil {
			return err
		}
		storeIDs := make([]string, 0, len(stores))
		for _, st := range stores {
			storeIDs = append(storeIDs, st.ID)
		}

		products, order, err := loadProducts(ctx, tx, `name = $1`, []any{rec.ProductName}, true)
		if err != nil {
			return err
		}
		catalog := make([]*domain.Product, 0, len(order))
		for _, id := range order {
			catalog = append(catalog, products[id])
		}

		product, created, err := ledger.ApplyStockIn(catalog, storeIDs, rec, xid.New("prod"), unitPrice)
		if err != nil {
			return err
		}
		if created {
			if err := insertProduct(ctx, tx, product); err != nil {
				return err
			}
		} else if err := saveStock(ctx, tx, product); err != nil {
			return err
		}
		rec.ProductID = product.ID

		newBrand := false
		if brand := strings.TrimSpace(rec.Brand); brand != "" {
			res, err := tx.ExecContext(ctx, `INSERT INTO brands (name) VALUES ($1) ON CONFLICT DO NOTHING`, brand)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			newBrand = n > 0
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_in_records (
				id, received_at, store_id, supplier, category, brand, product_name,
				specification, quantity, factory_price, purchase_price, product_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, rec.ID, rec.Date, rec.StoreID, rec.Supplier, rec.Category, rec.Brand, rec.ProductName,
			rec.Specification, rec.Quantity, rec.FactoryPrice, rec.PurchasePrice, rec.ProductID); err != nil {
			return err
		}
		result = &store.StockInResult{Record: rec, Product: product.Clone(), Created: created, NewBrand: newBrand}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) TransferStock(ctx context.Context, rec domain.StockTransferRecord) (*store.TransferResult, error) {
	if rec.ID == "" {
		rec.ID = xid.New("transfer")
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}

	var result *store.TransferResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		products, _, err := loadProducts(ctx, tx, `id = $1`, []any{rec.ProductID}, true)
		if err != nil {
			return err
		}
		p, ok := products[rec.ProductID]
		if !ok {
			return store.ErrNotFound
		}
		for _, storeID := range []string{rec.FromStoreID, rec.ToStoreID} {
			if storeID == "" {
				continue
			}
			if _, err := storeOwner(ctx, tx, storeID); err != nil {
				return fmt.Errorf("%w: store %s does not exist", ledger.ErrTransferRejected, storeID)
			}
		}
		if err := ledger.ApplyTransfer(p, rec.FromStoreID, rec.ToStoreID, rec.Quantity); err != nil {
			return err
		}
		if err := saveStock(ctx, tx, p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_transfers (id, transferred_at, product_id, from_store_id, to_store_id, quantity, staff_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, rec.ID, rec.Date, rec.ProductID, rec.FromStoreID, rec.ToStoreID, rec.Quantity, rec.StaffName); err != nil {
			return err
		}
		result = &store.TransferResult{Record: rec, Product: p.Clone()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListStockIns(ctx context.Context, limit int) ([]domain.StockInRecord, error) {
	var rows []stockInRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, received_at, store_id, supplier, category, brand, product_name,
		       specification, quantity, factory_price, purchase_price, product_id
		FROM stock_in_records
		ORDER BY received_at DESC, id DESC
		LIMIT $1
	`, nullLimit(limit)); err != nil {
		return nil, err
	}
	records := make([]domain.StockInRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, domain.StockInRecord(r))
	}
	return records, nil
}

func (s *Store) ListTransfers(ctx context.Context, limit int) ([]domain.StockTransferRecord, error) {
	var rows []transferRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, transferred_at, product_id, from_store_id, to_store_id, quantity, staff_name
		FROM stock_transfers
		ORDER BY transferred_at DESC, id DESC
		LIMIT $1
	`, nullLimit(limit)); err != nil {
		return nil, err
	}
	records := make([]domain.StockTransferRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, domain.StockTransferRecord(r))
	}
	return records, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, phone, vehicle, total_spent, visit_count, last_visit, owner_id
		FROM customers
		ORDER BY last_visit DESC, id DESC
	`); err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		customers = append(customers, domain.Customer(r))
	}
	return customers, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, role, password, home_store_id, created_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u := domain.User(row)
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return listUsers(ctx, s.db)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateOwner allocates the tenant id inside a serializable transaction.
// A concurrent allocation of the same id fails on the primary key and is
// reported as a conflict.
func (s *Store) CreateOwner(ctx context.Context, owner domain.User, regionCode string, now time.Time) (*store.OwnerResult, error) {
	if strings.TrimSpace(owner.Name) == "" || owner.Password == "" {
		return nil, fmt.Errorf("%w: owner name and password are required", store.ErrInvalid)
	}

	var result *store.OwnerResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ids := make([]string, 0, 64)
		if err := sqlx.SelectContext(ctx, tx, &ids, `
			SELECT id FROM users
			UNION
			SELECT id FROM retired_owner_ids
		`); err != nil {
			return err
		}
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

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, name, role, password, home_store_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, owner.ID, owner.Name, owner.Role, owner.Password, owner.HomeStoreID, owner.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: owner id %s is taken", store.ErrConflict, owner.ID)
			}
			return err
		}
		if err := insertStore(ctx, tx, branch); err != nil {
			return err
		}
		if err := openBranchStock(ctx, tx, branch.ID); err != nil {
			return err
		}
		result = &store.OwnerResult{Owner: owner, Store: branch}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateBranch(ctx context.Context, ownerID string, regionCode string, name string) (*domain.StoreAccount, error) {
	var branch domain.StoreAccount
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var owner userRow
		err := sqlx.GetContext(ctx, tx, &owner, `
			SELECT id, name, role, password, home_store_id, created_at
			FROM users
			WHERE id = $1 AND role = $2
			FOR UPDATE
		`, ownerID, domain.RoleStoreAdmin)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		stores, err := listStores(ctx, tx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			name = tenant.BranchName(owner.Name, regionCode)
		}
		branch = domain.StoreAccount{
			ID:         tenant.NextBranchID(ownerID, stores),
			Name:       strings.TrimSpace(name),
			RegionCode: strings.ToUpper(strings.TrimSpace(regionCode)),
			OwnerID:    ownerID,
			Active:     true,
		}
		if err := insertStore(ctx, tx, branch); err != nil {
			return err
		}
		return openBranchStock(ctx, tx, branch.ID)
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

// DeleteOwner removes the owner and its branches only. Stock rows, sales
// and customers that reference the removed branches stay, so the owner id
// is retired and never allocated again.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) (*store.DeleteOwnerResult, error) {
	var result *store.DeleteOwnerResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row userRow
		err := sqlx.GetContext(ctx, tx, &row, `
			SELECT id, name, role, password, home_store_id, created_at
			FROM users
			WHERE id = $1
			FOR UPDATE
		`, ownerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if row.Role != domain.RoleStoreAdmin {
			return fmt.Errorf("%w: only owner accounts can be deleted", store.ErrInvalid)
		}

		var removed []storeRow
		if err := sqlx.SelectContext(ctx, tx, &removed, `
			DELETE FROM stores WHERE owner_id = $1
			RETURNING id, name, region_code, owner_id, active
		`, ownerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, ownerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO retired_owner_ids (id) VALUES ($1) ON CONFLICT DO NOTHING
		`, ownerID); err != nil {
			return err
		}

		result = &store.DeleteOwnerResult{Owner: domain.User(row), Stores: make([]domain.StoreAccount, 0, len(removed))}
		for _, st := range removed {
			result.Stores = append(result.Stores, domain.StoreAccount(st))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	if strings.TrimSpace(staff.Name) == "" {
		return nil, fmt.Errorf("%w: staff name is required", store.ErrInvalid)
	}
	if _, err := storeOwner(ctx, s.db, staff.StoreID); err != nil {
		return nil, err
	}
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	staff.Active = true
	if _, err := s.db.ExecContext(ctx, `INSERT INTO staff (id, name, store_id, active) VALUES ($1,$2,$3,$4)`,
		staff.ID, staff.Name, staff.StoreID, staff.Active); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &staff, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	var rows []staffRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, store_id, active FROM staff ORDER BY store_id, name`); err != nil {
		return nil, err
	}
	staff := make([]domain.Staff, 0, len(rows))
	for _, r := range rows {
		staff = append(staff, domain.Staff(r))
	}
	return staff, nil
}

func (s *Store) SetStaffActive(ctx context.Context, id string, active bool) (*domain.Staff, error) {
	var row staffRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE staff SET active = $2 WHERE id = $1
		RETURNING id, name, store_id, active
	`, id, active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	out := domain.Staff(row)
	return &out, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Amount < 1 || strings.TrimSpace(expense.Category) == "" {
		return nil, fmt.Errorf("%w: category and a positive amount are required", store.ErrInvalid)
	}
	if _, err := storeOwner(ctx, s.db, expense.StoreID); err != nil {
		return nil, err
	}
	if expense.ID == "" {
		expense.ID = xid.New("expense")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	if err := insertExpense(ctx, s.db, expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	var rows []expenseRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, spent_at, store_id, category, description, amount
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR spent_at >= $1)
		  AND ($2::timestamptz IS NULL OR spent_at < $2)
		ORDER BY spent_at DESC, id DESC
	`, nullZeroTime(from), nullZeroTime(to)); err != nil {
		return nil, err
	}
	expenses := make([]domain.Expense, 0, len(rows))
	for _, r := range rows {
		expenses = append(expenses, domain.Expense(r))
	}
	return expenses, nil
}

func (s *Store) CreateReservation(ctx context.Context, r domain.Reservation) (*domain.Reservation, error) {
	if _, err := storeOwner(ctx, s.db, r.StoreID); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = xid.New("rsv")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = domain.ReservationPending
	if err := insertReservation(ctx, s.db, r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	var rows []reservationRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+reservationColumns+`
		FROM reservations
		ORDER BY visit_date, visit_time, id
	`); err != nil {
		return nil, err
	}
	reservations := make([]domain.Reservation, 0, len(rows))
	for _, r := range rows {
		reservations = append(reservations, domain.Reservation(r))
	}
	return reservations, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, status string) (*domain.Reservation, error) {
	var out domain.Reservation
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row reservationRow
		err := sqlx.GetContext(ctx, tx, &row, `
			SELECT `+reservationColumns+`
			FROM reservations
			WHERE id = $1
			FOR UPDATE
		`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !domain.ReservationTransitionAllowed(row.Status, status) {
			return fmt.Errorf("%w: reservation cannot move from %s to %s", store.ErrConflict, row.Status, status)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = $2 WHERE id = $1`, id, status); err != nil {
			return err
		}
		row.Status = status
		out = domain.Reservation(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, store_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullZeroTime(from), nullZeroTime(to), nullLimit(limit)); err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, domain.AuditLog(r))
	}
	return logs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// loadProducts reads products matching where together with their branch
// stock. With lock set, both the product rows and their stock rows are
// locked for the rest of the transaction.
func loadProducts(ctx context.Context, q queryer, where string, args []any, lock bool) (map[string]*domain.Product, []string, error) {
	suffix := ""
	if lock {
		suffix = " FOR UPDATE"
	}

	var rows []productRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, name, brand, category, unit_price, specification
		FROM products
		WHERE `+where+`
		ORDER BY position`+suffix, args...); err != nil {
		return nil, nil, err
	}

	products := make(map[string]*domain.Product, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		products[r.ID] = &domain.Product{
			ID:            r.ID,
			Name:          r.Name,
			Brand:         r.Brand,
			Category:      r.Category,
			UnitPrice:     r.UnitPrice,
			Specification: r.Specification,
			StockByStore:  map[string]int{},
		}
		order = append(order, r.ID)
	}
	if len(order) == 0 {
		return products, order, nil
	}

	var stocks []stockRow
	if err := sqlx.SelectContext(ctx, q, &stocks, `
		SELECT product_id, store_id, qty
		FROM product_stocks
		WHERE product_id = ANY($1)
		ORDER BY product_id, store_id`+suffix, order); err != nil {
		return nil, nil, err
	}
	for _, st := range stocks {
		if p, ok := products[st.ProductID]; ok {
			p.StockByStore[st.StoreID] = st.Qty
		}
	}
	for _, p := range products {
		ledger.Recount(p)
	}
	return products, order, nil
}

func saveStock(ctx context.Context, q queryer, p *domain.Product) error {
	for storeID, qty := range p.StockByStore {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO product_stocks (product_id, store_id, qty)
			VALUES ($1,$2,$3)
			ON CONFLICT (product_id, store_id)
			DO UPDATE SET qty = EXCLUDED.qty
		`, p.ID, storeID, qty); err != nil {
			return err
		}
	}
	return nil
}

func saveAdjusted(ctx context.Context, q queryer, products map[string]*domain.Product, adjustments []ledger.Adjustment) error {
	saved := make(map[string]struct{}, len(adjustments))
	for _, adj := range adjustments {
		if adj.Skipped {
			continue
		}
		if _, done := saved[adj.ProductID]; done {
			continue
		}
		if err := saveStock(ctx, q, products[adj.ProductID]); err != nil {
			return err
		}
		saved[adj.ProductID] = struct{}{}
	}
	return nil
}

// openBranchStock sets the new branch to zero for every product, replacing
// any row left behind under the same store id.
func openBranchStock(ctx context.Context, q queryer, storeID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO product_stocks (product_id, store_id, qty)
		SELECT id, $1, 0 FROM products
		ON CONFLICT (product_id, store_id) DO UPDATE SET qty = 0
	`, storeID)
	return err
}

func insertProduct(ctx context.Context, q queryer, p *domain.Product) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, category, unit_price, specification)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.ID, p.Name, p.Brand, p.Category, p.UnitPrice, p.Specification); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: product %s already exists", store.ErrConflict, p.ID)
		}
		return err
	}
	return saveStock(ctx, q, p)
}

func insertStore(ctx context.Context, q queryer, st domain.StoreAccount) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stores (id, name, region_code, owner_id, active)
		VALUES ($1,$2,$3,$4,$5)
	`, st.ID, st.Name, st.RegionCode, st.OwnerID, st.Active)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: store %s already exists", store.ErrConflict, st.ID)
	}
	return err
}

func insertSale(ctx context.Context, q queryer, sale domain.Sale) error {
	customer, err := marshalNullable(sale.Customer)
	if err != nil {
		return err
	}
	invoice, err := marshalNullable(sale.TaxInvoice)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO sales (
			id, sold_at, store_id, total_amount, payment_method, customer,
			staff_name, memo, is_canceled, canceled_at, tax_invoice
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.Date, sale.StoreID, sale.TotalAmount, sale.PaymentMethod, customer,
		sale.StaffName, sale.Memo, sale.IsCanceled, nullTime(sale.CanceledAt), invoice); err != nil {
		return err
	}
	return insertSaleItems(ctx, q, sale.ID, sale.Items)
}

func insertSaleItems(ctx context.Context, q queryer, saleID string, items []domain.SaleItem) error {
	for i, item := range items {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, price_at_sale)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, saleID, i+1, item.ProductID, item.ProductName, item.Quantity, item.PriceAtSale); err != nil {
			return err
		}
	}
	return nil
}

func insertCustomer(ctx context.Context, q queryer, c domain.Customer) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, vehicle, total_spent, visit_count, last_visit, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.Phone, c.Vehicle, c.TotalSpent, c.VisitCount, c.LastVisit, c.OwnerID)
	return err
}

func insertExpense(ctx context.Context, q queryer, e domain.Expense) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (id, spent_at, store_id, category, description, amount)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.Date, e.StoreID, e.Category, e.Description, e.Amount)
	return err
}

const reservationColumns = `id, store_id, visit_date, visit_time, customer_name, phone, car_model,
		       product_name, specification, quantity, status, stock_status, memo, created_at`

func insertReservation(ctx context.Context, q queryer, r domain.Reservation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, r.ID, r.StoreID, r.Date, r.Time, r.CustomerName, r.Phone, r.CarModel,
		r.ProductName, r.Specification, r.Quantity, r.Status, r.StockStatus, r.Memo, r.CreatedAt)
	return err
}

// upsertCustomer folds a sale into the customer aggregate keyed by phone
// number within the owning tenant.
func upsertCustomer(ctx context.Context, q queryer, ownerID string, sale domain.Sale) (*domain.Customer, error) {
	if sale.Customer == nil || strings.TrimSpace(sale.Customer.Phone) == "" {
		return nil, nil
	}
	var row customerRow
	err := sqlx.GetContext(ctx, q, &row, `
		INSERT INTO customers (id, name, phone, vehicle, total_spent, visit_count, last_visit, owner_id)
		VALUES ($1,$2,$3,$4,$5,1,$6,$7)
		ON CONFLICT (phone, owner_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			vehicle = COALESCE(NULLIF(EXCLUDED.vehicle, ''), customers.vehicle),
			total_spent = customers.total_spent + EXCLUDED.total_spent,
			visit_count = customers.visit_count + 1,
			last_visit = EXCLUDED.last_visit
		RETURNING id, name, phone, vehicle, total_spent, visit_count, last_visit, owner_id
	`, xid.New("cust"), strings.TrimSpace(sale.Customer.Name), strings.TrimSpace(sale.Customer.Phone),
		strings.TrimSpace(sale.Customer.Vehicle), sale.TotalAmount, sale.Date, ownerID)
	if err != nil {
		return nil, err
	}
	c := domain.Customer(row)
	return &c, nil
}

func getSale(ctx context.Context, q queryer, id string, lock bool) (*domain.Sale, error) {
	query := `
		SELECT id, sold_at, store_id, total_amount, payment_method, customer, staff_name, memo,
		       is_canceled, canceled_at, tax_invoice
		FROM sales
		WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}
	var row saleRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var items []saleItemRow
	if err := sqlx.SelectContext(ctx, q, &items, `
		SELECT sale_id, line_no, product_id, product_name, quantity, price_at_sale
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY line_no
	`, id); err != nil {
		return nil, err
	}
	lines := make([]domain.SaleItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.toDomain())
	}
	sale, err := row.toDomain(lines)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func storeOwner(ctx context.Context, q queryer, storeID string) (string, error) {
	var ownerID string
	err := sqlx.GetContext(ctx, q, &ownerID, `SELECT owner_id FROM stores WHERE id = $1`, storeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: store %s does not exist", store.ErrInvalid, storeID)
		}
		return "", err
	}
	return ownerID, nil
}

func listStores(ctx context.Context, q queryer) ([]domain.StoreAccount, error) {
	var rows []storeRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, name, region_code, owner_id, active
		FROM stores
		ORDER BY id
	`); err != nil {
		return nil, err
	}
	stores := make([]domain.StoreAccount, 0, len(rows))
	for _, r := range rows {
		stores = append(stores, domain.StoreAccount(r))
	}
	return stores, nil
}

func listUsers(ctx context.Context, q queryer) ([]domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, name, role, password, home_store_id, created_at
		FROM users
		ORDER BY id
	`); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, domain.User(r))
	}
	return users, nil
}

func fillProductNames(products map[string]*domain.Product, items []domain.SaleItem) {
	for i := range items {
		if items[i].ProductName != "" {
			continue
		}
		if p, ok := products[items[i].ProductID]; ok {
			items[i].ProductName = p.Name
		}
	}
}

func saleProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
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

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullLimit(limit int) any {
	if limit < 1 {
		return nil
	}
	return limit
}
