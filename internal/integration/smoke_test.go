package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"estatecore/internal/backup"
	"estatecore/internal/blob"
	"estatecore/internal/core"
	"estatecore/internal/infra/persistence/memory"
	"estatecore/internal/infra/persistence/sqlite"
	"estatecore/pkg/domain"
)

// TestIntegrationSmoke runs a write/read/backup/restore cycle across every
// in-process record store and blob adapter.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	coreVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore { return memory.NewStore() },
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "core.db"))
				if err != nil {
					t.Skipf("sqlite unavailable: %v", err)
				}
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, cv := range coreVariants {
		for _, bv := range blobVariants {
			t.Run(cv.name+"/"+bv.name, func(t *testing.T) {
				var traceBuffer bytes.Buffer
				tracer := core.NewJSONTracer(&traceBuffer)
				svc, err := core.NewService(cv.open(t), core.WithTracer(tracer))
				if err != nil {
					t.Fatalf("new service: %v", err)
				}
				t.Cleanup(func() { _ = svc.Close() })

				prop, err := svc.AddProperty(ctx, "12 Harbour Rd", domain.PropertyTypeApartment, "2 bed")
				if err != nil {
					t.Fatalf("add property: %v", err)
				}
				tenant, err := svc.AddTenant(ctx, "Dana")
				if err != nil {
					t.Fatalf("add tenant: %v", err)
				}
				lease, err := svc.CreateLeaseAgreement(ctx, domain.LeaseTerms{PropertyID: prop.ID, TenantID: tenant.ID, StartDate: 1, EndDate: 2})
				if err != nil {
					t.Fatalf("create lease: %v", err)
				}
				if prop.ID != 1 || tenant.ID != 2 || lease.ID != 3 {
					t.Fatalf("expected ids 1,2,3 got %d,%d,%d", prop.ID, tenant.ID, lease.ID)
				}

				blobs := bv.open(t)
				mgr := backup.NewManager(svc, blobs)
				info, err := mgr.Create(ctx)
				if err != nil {
					t.Fatalf("create backup: %v", err)
				}

				target := core.NewInMemoryService()
				if _, err := backup.NewManager(target, blobs).Restore(ctx, info.Key); err != nil {
					t.Fatalf("restore backup: %v", err)
				}
				got, err := target.GetLeaseAgreement(ctx, lease.ID)
				if err != nil {
					t.Fatalf("get restored lease: %v", err)
				}
				if got != lease {
					t.Fatalf("restored lease mismatch: %+v vs %+v", got, lease)
				}
				next, err := target.AddTenant(ctx, "Eli")
				if err != nil {
					t.Fatalf("add after restore: %v", err)
				}
				if next.ID != 4 {
					t.Fatalf("expected counter to continue at 4, got %d", next.ID)
				}

				if len(tracer.Entries()) == 0 || traceBuffer.Len() == 0 {
					t.Fatalf("expected trace output")
				}
			})
		}
	}
}
