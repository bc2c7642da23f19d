package core

import (
	"context"

	"estatecore/pkg/domain"
)

// CreateLeaseAgreement records a lease under a freshly issued id. The
// property and tenant references are stored as given.
func (s *Service) CreateLeaseAgreement(ctx context.Context, terms domain.LeaseTerms) (domain.LeaseAgreement, error) {
	var created domain.LeaseAgreement
	err := s.run(ctx, OpCreateLeaseAgreement, domain.EntityLeaseAgreement, true, func() (uint64, error) {
		var (
			id  uint64
			err error
		)
		created, id, err = create(s, s.leases, func(id uint64) domain.LeaseAgreement {
			lease := domain.LeaseAgreement{ID: id}
			lease.Apply(terms)
			return lease
		})
		return id, err
	})
	return created, err
}

// UpdateLeaseAgreement replaces the terms of an existing lease.
func (s *Service) UpdateLeaseAgreement(ctx context.Context, id uint64, terms domain.LeaseTerms) (domain.LeaseAgreement, error) {
	var updated domain.LeaseAgreement
	err := s.run(ctx, OpUpdateLeaseAgreement, domain.EntityLeaseAgreement, true, func() (uint64, error) {
		var err error
		updated, err = update(s.leases, id, func(l *domain.LeaseAgreement) {
			l.Apply(terms)
		})
		return id, err
	})
	return updated, err
}

// CancelLeaseAgreement removes the lease.
func (s *Service) CancelLeaseAgreement(ctx context.Context, id uint64) error {
	return s.run(ctx, OpCancelLeaseAgreement, domain.EntityLeaseAgreement, true, func() (uint64, error) {
		return id, remove(s.leases, id)
	})
}

// GetLeaseAgreement returns the lease stored under id.
func (s *Service) GetLeaseAgreement(ctx context.Context, id uint64) (domain.LeaseAgreement, error) {
	var found domain.LeaseAgreement
	err := s.run(ctx, OpGetLeaseAgreement, domain.EntityLeaseAgreement, false, func() (uint64, error) {
		var err error
		found, err = get(s.leases, id)
		return id, err
	})
	return found, err
}

// ListLeaseAgreements returns all leases in ascending id order.
func (s *Service) ListLeaseAgreements(ctx context.Context) ([]domain.LeaseAgreement, error) {
	var out []domain.LeaseAgreement
	err := s.run(ctx, OpListLeaseAgreements, domain.EntityLeaseAgreement, false, func() (uint64, error) {
		var err error
		out, err = s.leases.List()
		return 0, err
	})
	return out, err
}
