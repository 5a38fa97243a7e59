package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tirepos/backend/internal/domain"
)

func product(id string, stock map[string]int) *domain.Product {
	p := &domain.Product{ID: id, Name: "Tire " + id, Specification: "205/55R16", StockByStore: stock}
	Recount(p)
	return p
}

func TestTransferConservesTotal(t *testing.T) {
	p := product("P1", map[string]int{"A": 10, "B": 5})

	require.NoError(t, ApplyTransfer(p, "A", "B", 3))

	assert.Equal(t, 7, p.StockByStore["A"])
	assert.Equal(t, 8, p.StockByStore["B"])
	assert.Equal(t, 15, p.Stock)
	require.NoError(t, Validate(*p))
}

func TestTransferRejections(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		qty  int
	}{
		{"same branch", "A", "A", 1},
		{"zero quantity", "A", "B", 0},
		{"negative quantity", "A", "B", -2},
		{"insufficient source", "A", "B", 11},
		{"unknown source", "C", "B", 1},
		{"missing destination", "A", "", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := product("P1", map[string]int{"A": 10, "B": 5})
			err := ApplyTransfer(p, tc.from, tc.to, tc.qty)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTransferRejected))
			assert.Equal(t, map[string]int{"A": 10, "B": 5}, p.StockByStore)
			assert.Equal(t, 15, p.Stock)
		})
	}
}

func TestTransferThenSaleScenario(t *testing.T) {
	p := product("P1", map[string]int{"A": 10, "B": 5})
	products := map[string]*domain.Product{"P1": p}

	require.NoError(t, ApplyTransfer(p, "A", "B", 3))
	ApplySale(products, "A", []domain.SaleItem{{ProductID: "P1", Quantity: 2}})

	assert.Equal(t, map[string]int{"A": 5, "B": 8}, p.StockByStore)
	assert.Equal(t, 13, p.Stock)
}

func TestApplySaleClampsAtZero(t *testing.T) {
	p := product("P1", map[string]int{"A": 2, "B": 4})
	products := map[string]*domain.Product{"P1": p}

	adj := ApplySale(products, "A", []domain.SaleItem{{ProductID: "P1", Quantity: 5}})

	require.Len(t, adj, 1)
	assert.True(t, adj[0].Clamped)
	assert.Equal(t, -5, adj[0].Requested)
	assert.Equal(t, -2, adj[0].Applied)
	assert.Equal(t, 0, p.StockByStore["A"])
	assert.Equal(t, 4, p.Stock)
	require.NoError(t, Validate(*p))
}

func TestApplySaleSkipsReservedAndServiceItems(t *testing.T) {
	placeholder := product(domain.PriorityPaymentProductID, map[string]int{"A": 0})
	service := product("SVC", map[string]int{"A": 999, "B": 0})
	products := map[string]*domain.Product{placeholder.ID: placeholder, service.ID: service}

	adj := ApplySale(products, "A", []domain.SaleItem{
		{ProductID: domain.PriorityPaymentProductID, Quantity: 1},
		{ProductID: "SVC", Quantity: 4},
		{ProductID: "missing", Quantity: 1},
	})

	require.Len(t, adj, 3)
	for _, a := range adj {
		assert.True(t, a.Skipped, a.ProductID)
	}
	assert.Equal(t, 999, service.StockByStore["A"])
	assert.Equal(t, 0, placeholder.StockByStore["A"])
}

func TestApplySaleEditAppliesDeltas(t *testing.T) {
	p1 := product("P1", map[string]int{"A": 10})
	p2 := product("P2", map[string]int{"A": 3})
	p3 := product("P3", map[string]int{"A": 1})
	products := map[string]*domain.Product{"P1": p1, "P2": p2, "P3": p3}

	prev := domain.Sale{StoreID: "A", Items: []domain.SaleItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 4},
	}}
	next := domain.Sale{StoreID: "A", Items: []domain.SaleItem{
		{ProductID: "P1", Quantity: 5},
		{ProductID: "P3", Quantity: 3},
	}}

	ApplySaleEdit(products, prev, next)

	assert.Equal(t, 7, p1.StockByStore["A"], "P1 sold 3 more")
	assert.Equal(t, 7, p2.StockByStore["A"], "P2 line removed, 4 returned")
	assert.Equal(t, 0, p3.StockByStore["A"], "P3 clamped at zero")
	for _, p := range products {
		require.NoError(t, Validate(*p))
	}
}

func TestQuantityDeltasOmitsUnchanged(t *testing.T) {
	deltas := QuantityDeltas(
		[]domain.SaleItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}},
		[]domain.SaleItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 3}},
	)
	assert.Equal(t, map[string]int{"P2": 2}, deltas)
}

func TestStockInCreatesThenIncrements(t *testing.T) {
	catalog := []*domain.Product{product("P1", map[string]int{"A": 1, "B": 1})}
	stores := []string{"A", "B", "C"}
	rec := domain.StockInRecord{
		StoreID:       "A",
		ProductName:   "Ventus S1",
		Brand:         "Hankook",
		Specification: "225/45R17",
		Quantity:      20,
	}

	created, isNew, err := ApplyStockIn(catalog, stores, rec, "P2", 120000)
	require.NoError(t, err)
	require.True(t, isNew)
	assert.Equal(t, map[string]int{"A": 20, "B": 0, "C": 0}, created.StockByStore)
	assert.Equal(t, 20, created.Stock)
	assert.Equal(t, int64(120000), created.UnitPrice)
	catalog = append(catalog, created)

	rec.Quantity = 5
	again, isNew, err := ApplyStockIn(catalog, stores, rec, "P3", 0)
	require.NoError(t, err)
	require.False(t, isNew)
	assert.Same(t, created, again)
	assert.Equal(t, 25, again.StockByStore["A"])
	assert.Equal(t, 25, again.Stock)
}

func TestFindForStockInMatching(t *testing.T) {
	a := &domain.Product{ID: "1", Name: "Ventus", Specification: "205/55R16"}
	b := &domain.Product{ID: "2", Name: "Ventus", Specification: "225/45R17"}
	reserved := &domain.Product{ID: domain.PriorityPaymentProductID, Name: "Priority"}
	catalog := []*domain.Product{reserved, a, b}

	assert.Same(t, b, FindForStockIn(catalog, "Ventus", "225/45R17"))
	assert.Same(t, a, FindForStockIn(catalog, "Ventus", ""))
	assert.Nil(t, FindForStockIn(catalog, "Ventus", "195/65R15"))
	assert.Nil(t, FindForStockIn(catalog, "Priority", ""))
}

func TestZeroFillBranchKeepsExisting(t *testing.T) {
	p1 := product("P1", map[string]int{"A": 4})
	p2 := product("P2", map[string]int{"A": 1, "N": 6})

	ZeroFillBranch([]*domain.Product{p1, p2}, "N")

	assert.Equal(t, 0, p1.StockByStore["N"])
	_, ok := p1.StockByStore["N"]
	assert.True(t, ok)
	assert.Equal(t, 6, p2.StockByStore["N"])
	assert.Equal(t, 7, p2.Stock)
}

func TestOpenBranchResetsLeftoverStock(t *testing.T) {
	p1 := product("P1", map[string]int{"A": 4})
	p2 := product("P2", map[string]int{"A": 1, "N": 6})

	OpenBranch([]*domain.Product{p1, p2}, "N")

	_, ok := p1.StockByStore["N"]
	assert.True(t, ok)
	assert.Equal(t, 0, p2.StockByStore["N"])
	assert.Equal(t, 1, p2.Stock)
}

func TestStockInRespectsBranchLimit(t *testing.T) {
	p := product("P1", map[string]int{"A": MaxQuantity - 2, "B": 1})
	catalog := []*domain.Product{p}
	rec := domain.StockInRecord{StoreID: "A", ProductName: p.Name, Specification: p.Specification, Quantity: 3}

	_, _, err := ApplyStockIn(catalog, []string{"A", "B"}, rec, "P2", 0)
	require.ErrorIs(t, err, ErrStockLimit)
	assert.Equal(t, MaxQuantity-2, p.StockByStore["A"])

	rec.Quantity = math.MaxInt
	_, _, err = ApplyStockIn(catalog, []string{"A", "B"}, rec, "P2", 0)
	require.ErrorIs(t, err, ErrStockLimit)

	rec.Quantity = 2
	_, _, err = ApplyStockIn(catalog, []string{"A", "B"}, rec, "P2", 0)
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, p.StockByStore["A"])
	require.NoError(t, Validate(*p))
}

func TestTransferRejectsDestinationOverflow(t *testing.T) {
	p := product("P1", map[string]int{"A": 10, "B": MaxQuantity - 1})

	err := ApplyTransfer(p, "A", "B", 2)
	require.ErrorIs(t, err, ErrTransferRejected)
	assert.Equal(t, map[string]int{"A": 10, "B": MaxQuantity - 1}, p.StockByStore)

	require.NoError(t, ApplyTransfer(p, "A", "B", 1))
	assert.Equal(t, MaxQuantity, p.StockByStore["B"])
}

func TestIsServiceItem(t *testing.T) {
	assert.False(t, IsServiceItem(domain.Product{StockByStore: map[string]int{"A": 900}}))
	assert.True(t, IsServiceItem(domain.Product{StockByStore: map[string]int{"A": 0, "B": 901}}))
}
