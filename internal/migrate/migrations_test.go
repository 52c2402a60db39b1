package migrate

import (
	"testing"

	"fieldtasker/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	v, err := SchemaVersion(conn)
	if err != nil {
		t.Fatalf("version before migrate: %v", err)
	}
	if v != 0 {
		t.Fatalf("fresh database should report version 0, got %d", v)
	}

	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, err = SchemaVersion(conn)
	if err != nil {
		t.Fatalf("version after migrate: %v", err)
	}
	if v < 1 {
		t.Fatalf("expected schema version >= 1, got %d", v)
	}

	// A second run must be a no-op, not a re-apply.
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v2, err := SchemaVersion(conn)
	if err != nil {
		t.Fatalf("version after second migrate: %v", err)
	}
	if v2 != v {
		t.Fatalf("version changed on rerun: %d -> %d", v, v2)
	}

	if _, err := conn.Exec(`INSERT INTO organisations(id, name, slug, created_at) VALUES ('o1', 'Org', 'org', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("schema should be usable after migrate: %v", err)
	}
}
