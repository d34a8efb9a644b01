package geometry

import (
	"testing"

	"stowage/testutil"
)

func TestGeometryIsALeaf(t *testing.T) {
	testutil.AssertImports(t, ".", testutil.AnyOf(testutil.Module, testutil.ThirdParty), "geometry depends on the standard library only")
}
