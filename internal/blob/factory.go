package blob

import (
	"context"
	"fmt"

	infrafs "estatecore/internal/infra/blob/fs"
	inframemory "estatecore/internal/infra/blob/memory"
	infras3 "estatecore/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = infras3.Config

// Config selects and parameterises a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the backend named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		store, err := infrafs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := infras3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return inframemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return inframemory.New() }

// NewMockS3ForTests returns an s3 store backed by an in-process fake bucket.
func NewMockS3ForTests() Store { return infras3.NewMockForTests() }
