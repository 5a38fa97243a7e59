package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/tenant"
)

// Stores lists the branches the signed-in identity may pick from.
func (s *Service) Stores(ctx context.Context) ([]domain.StoreAccount, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	if session.Identity.Role == domain.RoleSuperAdmin {
		return stores, nil
	}
	return tenant.OwnedStores(session.Identity.ID, stores), nil
}

// ListProducts returns the catalog without the reserved placeholder line.
// Branch stock is limited to the branches the identity sees.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if ledger.IsReserved(p.ID) {
			continue
		}
		result = append(result, projectStock(p, v))
	}
	return result, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]string, error) {
	if _, err := s.session(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListBrands(ctx)
}

// LowStock lists branch entries at or below the configured threshold.
// Service items and the placeholder line are never flagged.
func (s *Service) LowStock(ctx context.Context, storeID string) ([]domain.LowStockItem, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(stores))
	for _, st := range stores {
		live[st.ID] = struct{}{}
	}

	items := make([]domain.LowStockItem, 0, 16)
	for _, p := range products {
		if ledger.IsReserved(p.ID) || ledger.IsServiceItem(p) {
			continue
		}
		for branch, qty := range p.StockByStore {
			if _, ok := live[branch]; !ok || !v.Contains(branch) {
				continue
			}
			if qty > s.lowStockThreshold {
				continue
			}
			items = append(items, domain.LowStockItem{
				ProductID:     p.ID,
				Name:          p.Name,
				Specification: p.Specification,
				StoreID:       branch,
				Quantity:      qty,
			})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Quantity != items[j].Quantity {
			return items[i].Quantity < items[j].Quantity
		}
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].StoreID < items[j].StoreID
	})
	return items, nil
}

func (s *Service) UpdateProductPrice(ctx context.Context, productID string, req domain.ProductPriceRequest) (domain.Product, error) {
	session, err := s.require(ctx, domain.RoleStoreAdmin)
	if err != nil {
		return domain.Product{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" || ledger.IsReserved(productID) {
		return domain.Product{}, invalid("product_id", "not a catalog product")
	}
	if req.UnitPrice < 0 {
		return domain.Product{}, invalid("unit_price", "must not be negative")
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	saved, err := s.repo.UpdateProductPrice(ctx, productID, req.UnitPrice)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, session.DefaultStore(), "product_price_update", "product", saved.ID,
		fmt.Sprintf("old=%d,new=%d", existing.UnitPrice, saved.UnitPrice))
	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return domain.Product{}, err
	}
	return projectStock(*saved, v), nil
}

func projectStock(p domain.Product, v scope.Visibility) domain.Product {
	if v.Unrestricted() {
		return p
	}
	out := p
	out.StockByStore = make(map[string]int, len(p.StockByStore))
	for branch, qty := range p.StockByStore {
		if v.Contains(branch) {
			out.StockByStore[branch] = qty
		}
	}
	ledger.Recount(&out)
	return out
}
