package sink

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMigrationVersions(t *testing.T) {
	versions, err := MigrationVersions()
	if err != nil {
		t.Fatalf("migration versions: %v", err)
	}
	if diff := cmp.Diff([]uint{1, 2}, versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrationsCreateDefaultTables(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/000001_create_trail_tables.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{DefaultSessionsTable, DefaultPointsTable} {
		if !strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("migration does not create %s", table)
		}
	}
}

func TestMigrateRejectsUnknownScheme(t *testing.T) {
	if _, err := Migrate("mysql://nobody@localhost/trail"); err == nil {
		t.Fatalf("expected an error for a driver that is not linked in")
	}
}
