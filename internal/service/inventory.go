package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/events"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/scope"
)

func (s *Service) StockIn(ctx context.Context, req domain.StockInRequest) (domain.StockInResponse, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.StockInResponse{}, err
	}
	storeID, err := s.targetStore(ctx, session, req.StoreID)
	if err != nil {
		return domain.StockInResponse{}, err
	}

	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Specification = strings.TrimSpace(req.Specification)
	if req.ProductName == "" {
		return domain.StockInResponse{}, invalid("product_name", "is required")
	}
	if req.Quantity < 1 {
		return domain.StockInResponse{}, invalid("quantity", "must be positive")
	}
	if req.Quantity > ledger.MaxQuantity {
		return domain.StockInResponse{}, invalid("quantity", fmt.Sprintf("must not exceed %d", ledger.MaxQuantity))
	}
	if req.FactoryPrice < 0 || req.PurchasePrice < 0 || req.UnitPrice < 0 {
		return domain.StockInResponse{}, invalid("price", "must not be negative")
	}
	unitPrice := req.UnitPrice
	if unitPrice == 0 {
		unitPrice = req.FactoryPrice
	}

	result, err := s.repo.ReceiveStock(ctx, domain.StockInRecord{
		Date:          s.now(),
		StoreID:       storeID,
		Supplier:      strings.TrimSpace(req.Supplier),
		Category:      strings.TrimSpace(req.Category),
		Brand:         strings.TrimSpace(req.Brand),
		ProductName:   req.ProductName,
		Specification: req.Specification,
		Quantity:      req.Quantity,
		FactoryPrice:  req.FactoryPrice,
		PurchasePrice: req.PurchasePrice,
	}, unitPrice)
	if err != nil {
		if errors.Is(err, ledger.ErrStockLimit) {
			return domain.StockInResponse{}, invalid("quantity", fmt.Sprintf("branch stock would exceed %d", ledger.MaxQuantity))
		}
		return domain.StockInResponse{}, err
	}

	s.metrics.StockReceived.Add(float64(result.Record.Quantity))
	if result.NewBrand {
		s.logger.Info("brand added from stock-in", "brand", result.Record.Brand, "record_id", result.Record.ID)
	}
	s.logAudit(ctx, storeID, "stock_in", "product", result.Product.ID,
		fmt.Sprintf("qty=%d,created=%t,supplier=%s", result.Record.Quantity, result.Created, result.Record.Supplier))
	s.publish(ctx, events.SubjectStockReceived, storeID, result.Record.ID, result.Record)

	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return domain.StockInResponse{}, err
	}
	return domain.StockInResponse{
		Record:  result.Record,
		Product: projectStock(result.Product, v),
		Created: result.Created,
	}, nil
}

// TransferStock moves stock between two branches. Both branches must be
// visible; the source must hold enough units or nothing changes.
func (s *Service) TransferStock(ctx context.Context, req domain.StockTransferRequest) (domain.StockTransferResponse, error) {
	session, err := s.require(ctx, domain.RoleStaff)
	if err != nil {
		return domain.StockTransferResponse{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.FromStoreID = strings.TrimSpace(req.FromStoreID)
	req.ToStoreID = strings.TrimSpace(req.ToStoreID)
	if req.ProductID == "" {
		return domain.StockTransferResponse{}, invalid("product_id", "is required")
	}
	if ledger.IsReserved(req.ProductID) {
		return domain.StockTransferResponse{}, invalid("product_id", "not a catalog product")
	}
	if req.FromStoreID == "" || req.ToStoreID == "" {
		return domain.StockTransferResponse{}, invalid("store_id", "both branches are required")
	}
	if req.Quantity > ledger.MaxQuantity {
		return domain.StockTransferResponse{}, invalid("quantity", fmt.Sprintf("must not exceed %d", ledger.MaxQuantity))
	}

	v, err := s.visibility(ctx, session.Identity)
	if err != nil {
		return domain.StockTransferResponse{}, err
	}
	for _, branch := range []string{req.FromStoreID, req.ToStoreID} {
		if !v.Contains(branch) {
			return domain.StockTransferResponse{}, fmt.Errorf("%w: branch %s is not visible", ErrForbidden, branch)
		}
	}

	result, err := s.repo.TransferStock(ctx, domain.StockTransferRecord{
		Date:        s.now(),
		ProductID:   req.ProductID,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Quantity:    req.Quantity,
		StaffName:   strings.TrimSpace(req.StaffName),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrTransferRejected) {
			s.metrics.Transfers.WithLabelValues("rejected").Inc()
			s.logger.Info("stock transfer rejected", "product_id", req.ProductID, "from", req.FromStoreID, "to", req.ToStoreID, "qty", req.Quantity, "reason", err)
		}
		return domain.StockTransferResponse{}, err
	}

	s.metrics.Transfers.WithLabelValues("applied").Inc()
	s.logAudit(ctx, req.FromStoreID, "stock_transfer", "product", req.ProductID,
		fmt.Sprintf("from=%s,to=%s,qty=%d", req.FromStoreID, req.ToStoreID, req.Quantity))
	s.publish(ctx, events.SubjectStockTransferred, req.FromStoreID, result.Record.ID, result.Record)
	return domain.StockTransferResponse{Record: result.Record, Product: projectStock(result.Product, v)}, nil
}

func (s *Service) ListStockIns(ctx context.Context, storeID string, limit int) ([]domain.StockInRecord, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListStockIns(ctx, 0)
	if err != nil {
		return nil, err
	}
	return truncate(scope.FilterStockIns(v, records), limit), nil
}

func (s *Service) ListTransfers(ctx context.Context, storeID string, limit int) ([]domain.StockTransferRecord, error) {
	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.readScope(ctx, session, storeID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListTransfers(ctx, 0)
	if err != nil {
		return nil, err
	}
	return truncate(scope.FilterTransfers(v, records), limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
