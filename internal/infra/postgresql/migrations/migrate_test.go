package migrations

import (
	"strings"
	"testing"
)

func TestMigrationIDsAreOrderedAndUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	prev := ""
	for _, m := range all() {
		if seen[m.ID] {
			t.Fatalf("duplicate migration id %q", m.ID)
		}
		seen[m.ID] = true
		if m.ID <= prev {
			t.Fatalf("migration %q is not ordered after %q", m.ID, prev)
		}
		if m.Migrate == nil || m.Rollback == nil {
			t.Fatalf("migration %q must define Migrate and Rollback", m.ID)
		}
		prev = m.ID
	}
}

func TestLatestVersion(t *testing.T) {
	t.Parallel()

	if got := LatestVersion(); !strings.HasPrefix(got, "000004_") {
		t.Fatalf("LatestVersion() = %q", got)
	}
}
