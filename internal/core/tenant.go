package core

import (
	"context"

	"estatecore/pkg/domain"
)

// AddTenant creates a tenant under a freshly issued id.
func (s *Service) AddTenant(ctx context.Context, name string) (domain.Tenant, error) {
	var created domain.Tenant
	err := s.run(ctx, OpAddTenant, domain.EntityTenant, true, func() (uint64, error) {
		var (
			id  uint64
			err error
		)
		created, id, err = create(s, s.tenants, func(id uint64) domain.Tenant {
			return domain.Tenant{ID: id, Name: name}
		})
		return id, err
	})
	return created, err
}

// UpdateTenant renames the tenant.
func (s *Service) UpdateTenant(ctx context.Context, id uint64, name string) (domain.Tenant, error) {
	var updated domain.Tenant
	err := s.run(ctx, OpUpdateTenant, domain.EntityTenant, true, func() (uint64, error) {
		var err error
		updated, err = update(s.tenants, id, func(t *domain.Tenant) {
			t.Name = name
		})
		return id, err
	})
	return updated, err
}

// DeleteTenant removes the tenant. Deleting an absent tenant is NotFound.
func (s *Service) DeleteTenant(ctx context.Context, id uint64) error {
	return s.run(ctx, OpDeleteTenant, domain.EntityTenant, true, func() (uint64, error) {
		return id, remove(s.tenants, id)
	})
}

// GetTenant returns the tenant stored under id.
func (s *Service) GetTenant(ctx context.Context, id uint64) (domain.Tenant, error) {
	var found domain.Tenant
	err := s.run(ctx, OpGetTenant, domain.EntityTenant, false, func() (uint64, error) {
		var err error
		found, err = get(s.tenants, id)
		return id, err
	})
	return found, err
}

// ListTenants returns all tenants in ascending id order.
func (s *Service) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	var out []domain.Tenant
	err := s.run(ctx, OpListTenants, domain.EntityTenant, false, func() (uint64, error) {
		var err error
		out, err = s.tenants.List()
		return 0, err
	})
	return out, err
}
