package blob

import (
	"testing"

	"estatecore/testutil"
)

// Only this package may construct infra blob backends; everything else
// depends on the Store interface.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertLayering(t, "estatecore/...", testutil.LayerRule{
		Name:    "blob infra",
		Target:  "estatecore/internal/infra/blob",
		Allowed: []string{"estatecore/internal/blob"},
	})
}
