package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"agrobridge/internal/infra/blob/fs", true},
		{"agrobridge/internal/infra/index/sqlite", true},
		{"agrobridge/internal/blob", false},
		{"agrobridge/internal/snapshot", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"agrobridge/internal/bridge", true},
		{"agrobridge/pkg/subsystem", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestSnapshotStoreForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"agrobridge/internal/snapshot", true},
		{"agrobridge/internal/snapshot/core", true},
		{"agrobridge/internal/snapshotter", false},
	}
	for _, c := range cases {
		if got := SnapshotStoreForbidden(c.in); got != c.want {
			t.Fatalf("SnapshotStoreForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportViolationsDetects(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport _ \"agrobridge/internal/infra/blob/fs\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "infra/blob/fs") {
		t.Fatalf("violations = %v, want the fs driver import flagged", viols)
	}
}

func TestTransitiveDependencyViolationsParsesOutput(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nagrobridge/internal/infra/index/sqlite\nagrobridge/internal/bridge\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InfraImportForbidden)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(viols) != 1 || viols[0] != "agrobridge/internal/infra/index/sqlite" {
		t.Fatalf("violations = %v", viols)
	}
}
