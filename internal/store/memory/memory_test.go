package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	data, err := seed.Parse([]byte(`
users:
  - {id: admin, name: Admin, role: SUPER_ADMIN, password: "$2a$04$abcdefghijklmnopqrstuuQ6n0eZ9G0x7cWm3T7S9mYtq0pUu5G1u"}
  - {id: "260001", name: Daehan, role: STORE_ADMIN, password: "$2a$04$abcdefghijklmnopqrstuuQ6n0eZ9G0x7cWm3T7S9mYtq0pUu5G1u"}
  - {id: "260002", name: Hanbit, role: STORE_ADMIN, password: "$2a$04$abcdefghijklmnopqrstuuQ6n0eZ9G0x7cWm3T7S9mYtq0pUu5G1u"}
stores:
  - {id: A, owner_id: "260001", active: true}
  - {id: B, owner_id: "260001", active: true}
  - {id: C, owner_id: "260002", active: true}
products:
  - {id: "99999", name: Priority Payment}
  - {id: P1, name: Ventus, brand: Hankook, specification: 205/55R16, unit_price: 100000, stock_by_store: {A: 10, B: 5}}
  - {id: SVC, name: Alignment, stock_by_store: {A: 999, B: 999, C: 999}}
`))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	s, err := NewFromSeed(data)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func assertStock(t *testing.T, s *Store, productID string, want map[string]int, wantTotal int) {
	t.Helper()
	p, err := s.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	for storeID, qty := range want {
		if p.StockByStore[storeID] != qty {
			t.Fatalf("product %s at %s: expected %d, got %d", productID, storeID, qty, p.StockByStore[storeID])
		}
	}
	if p.Stock != wantTotal {
		t.Fatalf("product %s total: expected %d, got %d", productID, wantTotal, p.Stock)
	}
	if err := ledger.Validate(*p); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
}

func TestTransferThenSaleKeepsLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.TransferStock(ctx, domain.StockTransferRecord{ProductID: "P1", FromStoreID: "A", ToStoreID: "B", Quantity: 3}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	assertStock(t, s, "P1", map[string]int{"A": 7, "B": 8, "C": 0}, 15)

	if _, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       "A",
		PaymentMethod: "CARD",
		TotalAmount:   200000,
		Items:         []domain.SaleItem{{ProductID: "P1", Quantity: 2, PriceAtSale: 100000}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	assertStock(t, s, "P1", map[string]int{"A": 5, "B": 8}, 13)

	transfers, err := s.ListTransfers(ctx, 0)
	if err != nil || len(transfers) != 1 {
		t.Fatalf("expected one transfer record, got %d (%v)", len(transfers), err)
	}
}

func TestTransferRejectionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.TransferStock(ctx, domain.StockTransferRecord{ProductID: "P1", FromStoreID: "B", ToStoreID: "A", Quantity: 6})
	if !errors.Is(err, ledger.ErrTransferRejected) {
		t.Fatalf("expected transfer rejection, got %v", err)
	}
	_, err = s.TransferStock(ctx, domain.StockTransferRecord{ProductID: "P1", FromStoreID: "A", ToStoreID: "gone", Quantity: 1})
	if !errors.Is(err, ledger.ErrTransferRejected) {
		t.Fatalf("expected rejection for unknown branch, got %v", err)
	}
	assertStock(t, s, "P1", map[string]int{"A": 10, "B": 5}, 15)

	transfers, _ := s.ListTransfers(ctx, 0)
	if len(transfers) != 0 {
		t.Fatalf("rejected transfers must not be recorded, got %d", len(transfers))
	}
}

func TestCreateSaleUpsertsCustomerPerTenant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	customer := &domain.CustomerSnapshot{Name: "Choi", Phone: "010-1111-2222", Vehicle: "Sonata"}

	for _, storeID := range []string{"A", "B", "C"} {
		if _, err := s.CreateSale(ctx, domain.Sale{
			StoreID:       storeID,
			PaymentMethod: "CASH",
			TotalAmount:   50000,
			Items:         []domain.SaleItem{{ProductID: "SVC", Quantity: 1, PriceAtSale: 50000}},
			Customer:      customer,
		}); err != nil {
			t.Fatalf("sale at %s: %v", storeID, err)
		}
	}

	customers, err := s.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("expected one customer per tenant, got %d", len(customers))
	}
	for _, c := range customers {
		switch c.OwnerID {
		case "260001":
			if c.VisitCount != 2 || c.TotalSpent != 100000 {
				t.Fatalf("unexpected aggregate for tenant 260001: %+v", c)
			}
		case "260002":
			if c.VisitCount != 1 || c.TotalSpent != 50000 {
				t.Fatalf("unexpected aggregate for tenant 260002: %+v", c)
			}
		default:
			t.Fatalf("unexpected owner %s", c.OwnerID)
		}
	}
	assertStock(t, s, "SVC", map[string]int{"A": 999, "B": 999, "C": 999}, 2997)
}

func TestCancelSaleDoesNotRestoreStock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       "A",
		PaymentMethod: "CARD",
		TotalAmount:   400000,
		Items:         []domain.SaleItem{{ProductID: "P1", Quantity: 4, PriceAtSale: 100000}},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	canceled, err := s.CancelSale(ctx, res.Sale.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !canceled.IsCanceled || canceled.CanceledAt == nil {
		t.Fatalf("expected canceled flag and timestamp, got %+v", canceled)
	}
	assertStock(t, s, "P1", map[string]int{"A": 6}, 11)

	if _, err := s.CancelSale(ctx, res.Sale.ID, time.Now().UTC()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
	if _, err := s.UpdateSale(ctx, res.Sale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict editing a canceled sale, got %v", err)
	}
}

func TestUpdateSaleAppliesDeltaAndKeepsBranch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       "B",
		PaymentMethod: "CARD",
		TotalAmount:   200000,
		Items:         []domain.SaleItem{{ProductID: "P1", Quantity: 2, PriceAtSale: 100000}},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	assertStock(t, s, "P1", map[string]int{"B": 3}, 13)

	moved := res.Sale
	moved.StoreID = "A"
	if _, err := s.UpdateSale(ctx, moved); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected branch change to be rejected, got %v", err)
	}

	edited := res.Sale
	edited.Items = []domain.SaleItem{{ProductID: "P1", Quantity: 7, PriceAtSale: 100000}}
	edited.TotalAmount = 700000
	out, err := s.UpdateSale(ctx, edited)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(out.Adjustments) != 1 || !out.Adjustments[0].Clamped {
		t.Fatalf("expected one clamped adjustment, got %+v", out.Adjustments)
	}
	assertStock(t, s, "P1", map[string]int{"A": 10, "B": 0}, 10)

	edited.Items = []domain.SaleItem{{ProductID: "P1", Quantity: 1, PriceAtSale: 100000}}
	if _, err := s.UpdateSale(ctx, edited); err != nil {
		t.Fatalf("edit down: %v", err)
	}
	assertStock(t, s, "P1", map[string]int{"B": 6}, 16)
}

func TestReceiveStockCreatesThenIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := domain.StockInRecord{StoreID: "A", ProductName: "Ecsta PS71", Brand: "Kumho", Specification: "225/45R17", Quantity: 20}

	first, err := s.ReceiveStock(ctx, rec, 158000)
	if err != nil {
		t.Fatalf("stock in: %v", err)
	}
	if !first.Created || !first.NewBrand {
		t.Fatalf("expected new product and brand, got %+v", first)
	}
	if first.Product.StockByStore["A"] != 20 || first.Product.StockByStore["B"] != 0 || first.Product.StockByStore["C"] != 0 {
		t.Fatalf("unexpected stock map %+v", first.Product.StockByStore)
	}

	rec.Quantity = 5
	second, err := s.ReceiveStock(ctx, rec, 0)
	if err != nil {
		t.Fatalf("stock in again: %v", err)
	}
	if second.Created || second.Product.ID != first.Product.ID {
		t.Fatalf("expected increment of %s, got %+v", first.Product.ID, second)
	}
	assertStock(t, s, first.Product.ID, map[string]int{"A": 25}, 25)

	records, _ := s.ListStockIns(ctx, 0)
	if len(records) != 2 || records[0].ProductID != first.Product.ID {
		t.Fatalf("expected two linked stock-in records, got %+v", records)
	}
	brands, _ := s.ListBrands(ctx)
	found := false
	for _, b := range brands {
		if b == "Kumho" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Kumho in brand list, got %v", brands)
	}
}

func TestCreateOwnerAllocatesSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.CreateOwner(ctx, domain.User{Name: "Mirae Tire", Password: "hash"}, "ICN", now)
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	second, err := s.CreateOwner(ctx, domain.User{Name: "Sejong Tire", Password: "hash"}, "DJN", now)
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if first.Owner.ID != "260003" || second.Owner.ID != "260004" {
		t.Fatalf("expected 260003 and 260004, got %s and %s", first.Owner.ID, second.Owner.ID)
	}
	if first.Store.ID != "260003-01" || first.Store.Name != "Mirae Tire Incheon" {
		t.Fatalf("unexpected first branch %+v", first.Store)
	}
	if first.Owner.HomeStoreID != first.Store.ID {
		t.Fatalf("expected home store %s, got %s", first.Store.ID, first.Owner.HomeStoreID)
	}
	assertStock(t, s, "P1", map[string]int{"260003-01": 0, "260004-01": 0}, 15)

	branch, err := s.CreateBranch(ctx, first.Owner.ID, "SEL", "")
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if branch.ID != "260003-02" {
		t.Fatalf("expected 260003-02, got %s", branch.ID)
	}
	p, _ := s.GetProduct(ctx, "P1")
	if _, ok := p.StockByStore[branch.ID]; !ok {
		t.Fatalf("expected zero entry for new branch")
	}
}

func TestDeleteOwnerLeavesOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.CreateSale(ctx, domain.Sale{
		StoreID:       "C",
		PaymentMethod: "CASH",
		TotalAmount:   100000,
		Items:         []domain.SaleItem{{ProductID: "P1", Quantity: 1, PriceAtSale: 100000}},
		Customer:      &domain.CustomerSnapshot{Name: "Lee", Phone: "010-0000-0000"},
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	deleted, err := s.DeleteOwner(ctx, "260002")
	if err != nil {
		t.Fatalf("delete owner: %v", err)
	}
	if len(deleted.Stores) != 1 || deleted.Stores[0].ID != "C" {
		t.Fatalf("expected branch C removed, got %+v", deleted.Stores)
	}
	if _, err := s.GetUser(ctx, "260002"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected owner gone, got %v", err)
	}
	if _, err := s.GetSale(ctx, res.Sale.ID); err != nil {
		t.Fatalf("expected orphaned sale to remain: %v", err)
	}
	p, _ := s.GetProduct(ctx, "P1")
	if _, ok := p.StockByStore["C"]; !ok {
		t.Fatalf("expected orphaned stock entry to remain")
	}
	if _, err := s.DeleteOwner(ctx, "admin"); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected super admin deletion to be invalid, got %v", err)
	}

	snap := s.Snapshot()
	next, err := s.CreateOwner(ctx, domain.User{Name: "Next Tire", Password: "hash"}, "SEL", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create owner after delete: %v", err)
	}
	if next.Owner.ID != "260003" {
		t.Fatalf("expected deleted id 260002 to stay retired, got %s", next.Owner.ID)
	}
	s.Restore(snap)
	again, err := s.CreateOwner(ctx, domain.User{Name: "Next Tire", Password: "hash"}, "SEL", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create owner after restore: %v", err)
	}
	if again.Owner.ID != "260003" {
		t.Fatalf("expected retired ids to survive restore, got %s", again.Owner.ID)
	}
}

func TestReservationTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.CreateReservation(ctx, domain.Reservation{StoreID: "A", Date: "2026-05-02", Time: "10:00", CustomerName: "Kang"})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if _, err := s.UpdateReservationStatus(ctx, r.ID, domain.ReservationCompleted); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected pending->completed to conflict, got %v", err)
	}
	for _, status := range []string{domain.ReservationConfirmed, domain.ReservationCompleted} {
		if _, err := s.UpdateReservationStatus(ctx, r.ID, status); err != nil {
			t.Fatalf("move to %s: %v", status, err)
		}
	}
	if _, err := s.UpdateReservationStatus(ctx, r.ID, domain.ReservationCanceled); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected completed reservation to stay completed, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	snap := s.Snapshot()

	if _, err := s.TransferStock(ctx, domain.StockTransferRecord{ProductID: "P1", FromStoreID: "A", ToStoreID: "B", Quantity: 10}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := s.CreateOwner(ctx, domain.User{Name: "Temp", Password: "hash"}, "SEL", time.Now()); err != nil {
		t.Fatalf("create owner: %v", err)
	}

	s.Restore(snap)
	assertStock(t, s, "P1", map[string]int{"A": 10, "B": 5}, 15)
	stores, _ := s.ListStores(ctx)
	if len(stores) != 3 {
		t.Fatalf("expected 3 stores after restore, got %d", len(stores))
	}

	// the snapshot stays usable after a restore
	if _, err := s.TransferStock(ctx, domain.StockTransferRecord{ProductID: "P1", FromStoreID: "A", ToStoreID: "B", Quantity: 1}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	s.Restore(snap)
	assertStock(t, s, "P1", map[string]int{"A": 10}, 15)
}

func TestSeededStoreHashesPasswords(t *testing.T) {
	s := NewSeeded()
	u, err := s.GetUser(context.Background(), "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if u.Password == "admin1234" || len(u.Password) < 50 {
		t.Fatalf("expected bcrypt hash, got %q", u.Password)
	}
}
