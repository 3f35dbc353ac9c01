package bridge

import (
	"testing"

	"agrobridge/testutil"
)

func TestBridgeAvoidsStorage(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden,
		"the bridge routes calls and never touches storage drivers")
	testutil.AssertNoDirectImports(t, ".", testutil.SnapshotStoreForbidden,
		"snapshots are reached through the rollback manager")
}
