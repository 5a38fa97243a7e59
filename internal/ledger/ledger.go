// Package ledger holds the per-branch inventory reducers. Every function here
// is a pure transformation of product values: callers own locking and
// persistence.
//
// After any reducer returns, each touched product satisfies
// Stock == sum(StockByStore) and no branch quantity is negative.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"tirepos/backend/internal/domain"
)

// MaxQuantity bounds every branch quantity and every single movement. It
// matches the INTEGER stock column.
const MaxQuantity = math.MaxInt32

var (
	// ErrTransferRejected is returned when a transfer would leave the source
	// short or is malformed. The product is unchanged.
	ErrTransferRejected = errors.New("transfer rejected")
	// ErrStockLimit is returned when an increase would push a branch past
	// MaxQuantity.
	ErrStockLimit       = errors.New("branch stock limit exceeded")
)

// Adjustment reports what a reducer did to one product at one branch.
// Requested and Applied are signed, negative for a decrement. Clamped is set
// when a decrement was cut short at zero or an increment at MaxQuantity.
type Adjustment struct {
	ProductID string
	StoreID   string
	Requested int
	Applied   int
	Skipped   bool
	Clamped   bool
}

// IsReserved reports whether productID is the priority-payment placeholder,
// which never carries stock.
func IsReserved(productID string) bool {
	return productID == domain.PriorityPaymentProductID
}

// IsServiceItem reports whether any branch holds more than the service threshold.
func IsServiceItem(p domain.Product) bool {
	for _, qty := range p.StockByStore {
		if qty > domain.ServiceStockThreshold {
			return true
		}
	}
	return false
}

// Total sums the branch quantities.
func Total(stockByStore map[string]int) int {
	total := 0
	for _, qty := range stockByStore {
		total += qty
	}
	return total
}

// Recount sets Stock to the sum of StockByStore.
func Recount(p *domain.Product) {
	if p.StockByStore == nil {
		p.StockByStore = map[string]int{}
	}
	p.Stock = Total(p.StockByStore)
}

// Validate checks the stock invariants of a single product.
func Validate(p domain.Product) error {
	for storeID, qty := range p.StockByStore {
		if qty < 0 {
			return fmt.Errorf("product %s: negative stock %d at %s", p.ID, qty, storeID)
		}
	}
	if total := Total(p.StockByStore); total != p.Stock {
		return fmt.Errorf("product %s: stock %d does not match branch total %d", p.ID, p.Stock, total)
	}
	return nil
}

// ApplySale decrements branch stock for each sold line. Reserved lines and
// service items are skipped. Insufficient stock never blocks the sale: the
// branch quantity is floored at zero instead.
func ApplySale(products map[string]*domain.Product, storeID string, items []domain.SaleItem) []Adjustment {
	adjustments := make([]Adjustment, 0, len(items))
	for _, item := range items {
		adj := decrement(products, storeID, item.ProductID, item.Quantity)
		adjustments = append(adjustments, adj)
	}
	return adjustments
}

// ApplySaleEdit reconciles branch stock between two versions of the same
// sale by applying the per-product quantity delta. The branch of prev is
// used for both versions.
func ApplySaleEdit(products map[string]*domain.Product, prev domain.Sale, next domain.Sale) []Adjustment {
	deltas := QuantityDeltas(prev.Items, next.Items)

	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	adjustments := make([]Adjustment, 0, len(ids))
	for _, id := range ids {
		delta := deltas[id]
		switch {
		case delta > 0:
			adjustments = append(adjustments, decrement(products, prev.StoreID, id, delta))
		case delta < 0:
			adjustments = append(adjustments, increment(products, prev.StoreID, id, -delta))
		}
	}
	return adjustments
}

// QuantityDeltas returns newQty-oldQty per product id, omitting zero deltas.
func QuantityDeltas(prev []domain.SaleItem, next []domain.SaleItem) map[string]int {
	deltas := make(map[string]int)
	for _, item := range prev {
		deltas[item.ProductID] -= item.Quantity
	}
	for _, item := range next {
		deltas[item.ProductID] += item.Quantity
	}
	for id, delta := range deltas {
		if delta == 0 {
			delete(deltas, id)
		}
	}
	return deltas
}

// FindForStockIn locates the catalog entry a receipt belongs to: exact
// name and specification, or name alone when the receipt has no
// specification. The reserved placeholder never matches.
func FindForStockIn(catalog []*domain.Product, name string, specification string) *domain.Product {
	for _, p := range catalog {
		if IsReserved(p.ID) || p.Name != name {
			continue
		}
		if specification == "" || p.Specification == specification {
			return p
		}
	}
	return nil
}

// ApplyStockIn books a receipt against the catalog. When no product matches,
// a new one is built from the record with every known branch at zero and
// the receiving branch at the received quantity; the caller appends it.
// A receipt that would take the branch past MaxQuantity changes nothing.
func ApplyStockIn(catalog []*domain.Product, storeIDs []string, rec domain.StockInRecord, newID string, unitPrice int64) (*domain.Product, bool, error) {
	if rec.Quantity <= 0 || rec.Quantity > MaxQuantity {
		return nil, false, fmt.Errorf("%w: quantity %d", ErrStockLimit, rec.Quantity)
	}
	if existing := FindForStockIn(catalog, rec.ProductName, rec.Specification); existing != nil {
		if existing.StockByStore == nil {
			existing.StockByStore = map[string]int{}
		}
		current := existing.StockByStore[rec.StoreID]
		if rec.Quantity > MaxQuantity-current {
			return nil, false, fmt.Errorf("%w: %d at %s plus %d", ErrStockLimit, current, rec.StoreID, rec.Quantity)
		}
		existing.StockByStore[rec.StoreID] = current + rec.Quantity
		Recount(existing)
		return existing, false, nil
	}

	created := &domain.Product{
		ID:            newID,
		Name:          rec.ProductName,
		Brand:         rec.Brand,
		Category:      rec.Category,
		UnitPrice:     unitPrice,
		Specification: rec.Specification,
		StockByStore:  make(map[string]int, len(storeIDs)+1),
	}
	for _, storeID := range storeIDs {
		created.StockByStore[storeID] = 0
	}
	created.StockByStore[rec.StoreID] = rec.Quantity
	Recount(created)
	return created, true, nil
}

// ApplyTransfer moves qty units between two branches of one product. Unlike
// the sale reducers this one rejects instead of clamping; on rejection the
// product is left untouched.
func ApplyTransfer(p *domain.Product, from string, to string, qty int) error {
	if from == "" || to == "" {
		return fmt.Errorf("%w: branch is required", ErrTransferRejected)
	}
	if from == to {
		return fmt.Errorf("%w: source and destination are the same branch", ErrTransferRejected)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrTransferRejected)
	}
	available := p.StockByStore[from]
	if available < qty {
		return fmt.Errorf("%w: %d available at %s, %d requested", ErrTransferRejected, available, from, qty)
	}
	if p.StockByStore[to] > MaxQuantity-qty {
		return fmt.Errorf("%w: %s would exceed %d units", ErrTransferRejected, to, MaxQuantity)
	}

	p.StockByStore[from] = available - qty
	p.StockByStore[to] += qty
	Recount(p)
	return nil
}

// OpenBranch sets storeID to zero on every product, replacing any quantity
// left behind under the same id.
func OpenBranch(catalog []*domain.Product, storeID string) {
	for _, p := range catalog {
		if p.StockByStore == nil {
			p.StockByStore = map[string]int{}
		}
		p.StockByStore[storeID] = 0
		Recount(p)
	}
}

// ZeroFillBranch adds a zero entry for storeID to every product that lacks one.
func ZeroFillBranch(catalog []*domain.Product, storeID string) {
	for _, p := range catalog {
		if p.StockByStore == nil {
			p.StockByStore = map[string]int{}
		}
		if _, ok := p.StockByStore[storeID]; !ok {
			p.StockByStore[storeID] = 0
		}
		Recount(p)
	}
}

func decrement(products map[string]*domain.Product, storeID string, productID string, qty int) Adjustment {
	adj := Adjustment{ProductID: productID, StoreID: storeID, Requested: -qty}
	p, ok := products[productID]
	if !ok || IsReserved(productID) || qty <= 0 || IsServiceItem(*p) {
		adj.Skipped = true
		return adj
	}
	if p.StockByStore == nil {
		p.StockByStore = map[string]int{}
	}

	current := p.StockByStore[storeID]
	next := current - qty
	if next < 0 {
		next = 0
		adj.Clamped = true
	}
	p.StockByStore[storeID] = next
	adj.Applied = next - current
	Recount(p)
	return adj
}

func increment(products map[string]*domain.Product, storeID string, productID string, qty int) Adjustment {
	adj := Adjustment{ProductID: productID, StoreID: storeID, Requested: qty}
	p, ok := products[productID]
	if !ok || IsReserved(productID) || qty <= 0 || IsServiceItem(*p) {
		adj.Skipped = true
		return adj
	}
	if p.StockByStore == nil {
		p.StockByStore = map[string]int{}
	}

	current := p.StockByStore[storeID]
	next := MaxQuantity
	if qty <= MaxQuantity-current {
		next = current + qty
	} else {
		adj.Clamped = true
	}
	p.StockByStore[storeID] = next
	adj.Applied = next - current
	Recount(p)
	return adj
}
