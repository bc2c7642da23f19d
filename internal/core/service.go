package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"

	"github.com/google/uuid"
)

// Operation names reported to loggers, tracers, metrics and audit recorders.
const (
	OpAddProperty          = "add_property"
	OpUpdateProperty       = "update_property"
	OpDeleteProperty       = "delete_property"
	OpGetProperty          = "get_property"
	OpListProperties       = "list_properties"
	OpAddTenant            = "add_tenant"
	OpUpdateTenant         = "update_tenant"
	OpDeleteTenant         = "delete_tenant"
	OpGetTenant            = "get_tenant"
	OpListTenants          = "list_tenants"
	OpCreateLeaseAgreement = "create_lease_agreement"
	OpUpdateLeaseAgreement = "update_lease_agreement"
	OpCancelLeaseAgreement = "cancel_lease_agreement"
	OpGetLeaseAgreement    = "get_lease_agreement"
	OpListLeaseAgreements  = "list_lease_agreements"
	OpExportSnapshot       = "export_snapshot"
	OpImportSnapshot       = "import_snapshot"
)

// Service exposes the property, tenant and lease agreement operations over a
// PersistentStore. Mutations hold the write lock for their whole body, reads
// hold the read lock.
type Service struct {
	mu sync.RWMutex

	store      domain.PersistentStore
	counter    *Counter
	properties *EntityStore[domain.Property]
	tenants    *EntityStore[domain.Tenant]
	leases     *EntityStore[domain.LeaseAgreement]

	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping each operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// NewService binds the counter and the three entity stores to their regions
// in store.
func NewService(store domain.PersistentStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("persistent store is required")
	}
	cell, err := store.Counter(domain.RegionCounter)
	if err != nil {
		return nil, fmt.Errorf("open id counter: %w", err)
	}
	props, err := store.Region(domain.RegionProperties)
	if err != nil {
		return nil, fmt.Errorf("open properties region: %w", err)
	}
	leases, err := store.Region(domain.RegionLeases)
	if err != nil {
		return nil, fmt.Errorf("open leases region: %w", err)
	}
	tenants, err := store.Region(domain.RegionTenants)
	if err != nil {
		return nil, fmt.Errorf("open tenants region: %w", err)
	}

	s := &Service{
		store:      store,
		counter:    NewCounter(cell),
		properties: NewEntityStore[domain.Property](domain.EntityProperty, props),
		tenants:    NewEntityStore[domain.Tenant](domain.EntityTenant, tenants),
		leases:     NewEntityStore[domain.LeaseAgreement](domain.EntityLeaseAgreement, leases),
		logger:     noopLogger{},
		clock:      systemClock(),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		audit:      noopAudit{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) *Service {
	svc, err := NewService(memory.NewStore(), opts...)
	if err != nil {
		// the memory store cannot fail to hand out regions
		panic(err)
	}
	return svc
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Close releases the underlying store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

// run wraps fn with locking, tracing, metrics, audit and logging. fn returns
// the id of the entity it touched, or zero when there is none.
func (s *Service) run(ctx context.Context, op string, entity domain.EntityType, write bool, fn func() (uint64, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()

	var (
		id  uint64
		err error
	)
	if err = ctx.Err(); err == nil {
		if write {
			s.mu.Lock()
		} else {
			s.mu.RLock()
		}
		id, err = fn()
		if write {
			s.mu.Unlock()
		} else {
			s.mu.RUnlock()
		}
	}

	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		ID:         uuid.NewString(),
		Operation:  op,
		Entity:     entity,
		EntityID:   id,
		Status:     AuditStatusSuccess,
		RecordedAt: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)

	args := []any{"operation", op, "entity", string(entity), "duration", duration}
	if id != 0 {
		args = append(args, "id", id)
	}
	switch {
	case err == nil:
		s.logger.Debug("operation completed", args...)
	case isDomainError(err):
		s.logger.Warn("operation rejected", append(args, "error", err)...)
	default:
		s.logger.Error("operation failed", append(args, "error", err)...)
	}
	return err
}

func isDomainError(err error) bool {
	var de domain.Error
	return errors.As(err, &de)
}

// create issues a fresh id and stores the record built for it. The id is
// handed back to the counter if the record cannot be written.
func create[T any](s *Service, store *EntityStore[T], build func(id uint64) T) (T, uint64, error) {
	var zero T
	id, err := s.counter.NextID()
	if err != nil {
		return zero, 0, err
	}
	record := build(id)
	if err := store.Insert(id, record); err != nil {
		if rerr := s.counter.release(id); rerr != nil {
			s.logger.Error("release id counter", "id", id, "error", rerr)
		}
		return zero, 0, err
	}
	return record, id, nil
}

// update loads the record under id, applies mutate and stores the result
// under the same id.
func update[T any](store *EntityStore[T], id uint64, mutate func(*T)) (T, error) {
	var zero T
	record, ok, err := store.Get(id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, domain.NotFound(store.Entity(), id)
	}
	mutate(&record)
	if err := store.Insert(id, record); err != nil {
		return zero, err
	}
	return record, nil
}

func remove[T any](store *EntityStore[T], id uint64) error {
	_, ok, err := store.Remove(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound(store.Entity(), id)
	}
	return nil
}

func get[T any](store *EntityStore[T], id uint64) (T, error) {
	record, ok, err := store.Get(id)
	if err != nil {
		return record, err
	}
	if !ok {
		return record, domain.NotFound(store.Entity(), id)
	}
	return record, nil
}
