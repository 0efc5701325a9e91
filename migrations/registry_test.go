package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	hookqueue "github.com/goliatone/go-hookqueue"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var labels []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if labels[0] != "go-hookqueue" {
		t.Fatalf("expected default source label, got %q", labels[0])
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register function")
	}
}

func TestVersions_ListsPairsInOrder(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	for _, entry := range filesystems {
		versions, err := Versions(entry.FS)
		if err != nil {
			t.Fatalf("versions %s: %v", entry.Dialect, err)
		}
		if len(versions) != 2 || versions[0] != "00001_hookqueue_core_schema" || versions[1] != "00002_hookqueue_crm_records" {
			t.Fatalf("unexpected %s versions %v", entry.Dialect, versions)
		}
	}
}

func TestVersions_RejectsMissingDownFile(t *testing.T) {
	fsys := fstest.MapFS{
		"00001_init.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")},
	}
	if _, err := Versions(fsys); err == nil {
		t.Fatalf("expected missing down file error")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":  DialectSQLite,
		"postgres": DialectPostgres,
		"PGX":      DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := hookqueue.GetMigrationsFS()
	for _, name := range []string{"00001_hookqueue_core_schema", "00002_hookqueue_crm_records"} {
		paths := []string{
			"data/sql/migrations/" + name + ".up.sql",
			"data/sql/migrations/" + name + ".down.sql",
			"data/sql/migrations/sqlite/" + name + ".up.sql",
			"data/sql/migrations/sqlite/" + name + ".down.sql",
		}
		for _, migrationPath := range paths {
			content, err := fs.ReadFile(root, migrationPath)
			if err != nil {
				t.Fatalf("read migration %s: %v", migrationPath, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected migration %s to have SQL content", migrationPath)
			}
		}
	}
}

func TestSQLiteMigrations_ApplyEnforceUniquenessAndRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", "file:migrations-hookqueue-apply?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(hookqueue.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	for _, migration := range []string{
		"00001_hookqueue_core_schema.up.sql",
		"00002_hookqueue_crm_records.up.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	insertItem := `INSERT INTO hookqueue_work_items (id, queue_type, type, webhook_id, payload) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertItem, "wi-1", "contacts", "ContactCreate", "wh-1", "{}"); err != nil {
		t.Fatalf("insert work item: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertItem, "wi-2", "contacts", "ContactCreate", "wh-1", "{}"); err == nil {
		t.Fatalf("expected duplicate webhook id to be rejected within a queue")
	}
	if _, err := db.ExecContext(ctx, insertItem, "wi-3", "contacts", "ContactCreate", "", "{}"); err != nil {
		t.Fatalf("insert first item without webhook id: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertItem, "wi-4", "contacts", "ContactCreate", "", "{}"); err != nil {
		t.Fatalf("expected items without webhook id to coexist: %v", err)
	}

	insertContact := `INSERT INTO hookqueue_contacts (id, external_id, location_id) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertContact, "c-1", "ghl123", "loc-1"); err != nil {
		t.Fatalf("insert contact: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertContact, "c-2", "ghl123", "loc-1"); err == nil {
		t.Fatalf("expected duplicate contact external id to be rejected")
	}
	if _, err := db.ExecContext(ctx, insertContact, "c-3", "ghl123", "loc-2"); err != nil {
		t.Fatalf("expected same external id in another location to be accepted: %v", err)
	}

	for _, migration := range []string{
		"00002_hookqueue_crm_records.down.sql",
		"00001_hookqueue_core_schema.down.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	var tableCount int
	if err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'hookqueue_%'`,
	).Scan(&tableCount); err != nil {
		t.Fatalf("count tables after down: %v", err)
	}
	if tableCount != 0 {
		t.Fatalf("expected all hookqueue tables to be dropped, got %d", tableCount)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
