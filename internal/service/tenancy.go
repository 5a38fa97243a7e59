package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/seed"
	"tirepos/backend/internal/tenant"
)

func (s *Service) ListOwners(ctx context.Context) ([]domain.OwnerResponse, error) {
	if _, err := s.require(ctx, domain.RoleSuperAdmin); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, err
	}

	owners := make([]domain.OwnerResponse, 0, len(users))
	for _, u := range users {
		if u.Role != domain.RoleStoreAdmin {
			continue
		}
		owners = append(owners, domain.OwnerResponse{Owner: u, Stores: tenant.OwnedStores(u.ID, stores)})
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Owner.ID < owners[j].Owner.ID })
	return owners, nil
}

// CreateOwner provisions a tenant with its first branch. Every product gets
// a zero stock entry for that branch.
func (s *Service) CreateOwner(ctx context.Context, req domain.OwnerCreateRequest) (domain.OwnerResponse, error) {
	if _, err := s.require(ctx, domain.RoleSuperAdmin); err != nil {
		return domain.OwnerResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.OwnerResponse{}, invalid("name", "is required")
	}
	region := strings.ToUpper(strings.TrimSpace(req.RegionCode))
	if region == "" {
		return domain.OwnerResponse{}, invalid("region_code", "is required")
	}
	password := req.Password
	if strings.TrimSpace(password) == "" {
		password = s.defaultResetPassword
	}
	hash, err := seed.HashPassword(password)
	if err != nil {
		return domain.OwnerResponse{}, fmt.Errorf("hash password: %w", err)
	}

	result, err := s.repo.CreateOwner(ctx, domain.User{Name: name, Password: hash}, region, s.now())
	if err != nil {
		return domain.OwnerResponse{}, err
	}
	s.invalidateScope(ctx, result.Owner.ID)
	s.logAudit(ctx, result.Store.ID, "owner_create", "user", result.Owner.ID,
		fmt.Sprintf("name=%s,branch=%s", result.Owner.Name, result.Store.ID))
	s.logger.Info("owner provisioned", "owner_id", result.Owner.ID, "store_id", result.Store.ID, "known_region", tenant.KnownRegion(region))
	return domain.OwnerResponse{Owner: result.Owner, Stores: []domain.StoreAccount{result.Store}}, nil
}

func (s *Service) AddBranch(ctx context.Context, ownerID string, req domain.BranchCreateRequest) (domain.StoreAccount, error) {
	if _, err := s.require(ctx, domain.RoleSuperAdmin); err != nil {
		return domain.StoreAccount{}, err
	}
	region := strings.ToUpper(strings.TrimSpace(req.RegionCode))
	if region == "" {
		return domain.StoreAccount{}, invalid("region_code", "is required")
	}

	branch, err := s.repo.CreateBranch(ctx, strings.TrimSpace(ownerID), region, req.Name)
	if err != nil {
		return domain.StoreAccount{}, err
	}
	s.invalidateScope(ctx, branch.OwnerID)
	s.logAudit(ctx, branch.ID, "branch_create", "store", branch.ID, "name="+branch.Name)
	return *branch, nil
}

// DeleteOwner removes a tenant and its branches. Records that point at the
// removed branches stay in place.
func (s *Service) DeleteOwner(ctx context.Context, ownerID string) (domain.OwnerResponse, error) {
	if _, err := s.require(ctx, domain.RoleSuperAdmin); err != nil {
		return domain.OwnerResponse{}, err
	}
	result, err := s.repo.DeleteOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return domain.OwnerResponse{}, err
	}
	s.invalidateScope(ctx, result.Owner.ID)
	s.logAudit(ctx, "", "owner_delete", "user", result.Owner.ID, fmt.Sprintf("branches=%d", len(result.Stores)))
	return domain.OwnerResponse{Owner: result.Owner, Stores: result.Stores}, nil
}

// ResetPassword sets the owner's password back to the configured default.
func (s *Service) ResetPassword(ctx context.Context, userID string) error {
	if _, err := s.require(ctx, domain.RoleSuperAdmin); err != nil {
		return err
	}
	user, err := s.repo.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if user.Role != domain.RoleStoreAdmin {
		return invalid("user_id", "only owner passwords can be reset")
	}
	hash, err := seed.HashPassword(s.defaultResetPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logAudit(ctx, user.HomeStoreID, "password_reset", "user", user.ID, "reset to default")
	return nil
}
