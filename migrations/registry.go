package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	hookqueue "github.com/goliatone/go-hookqueue"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-hookqueue"
	migrationsDir      = "data/sql/migrations"
	upSuffix           = ".up.sql"
	downSuffix         = ".down.sql"
)

// dialectDirs maps each dialect to its directory below the migrations root.
// Postgres files live at the root; other dialects override them in a subdir.
var dialectDirs = map[string]string{
	DialectPostgres: ".",
	DialectSQLite:   "sqlite",
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded migration trees, e.g. to layer an
// application's own schema on top.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var kept []FilesystemSpec
		for _, spec := range filesystems {
			spec.Dialect = strings.TrimSpace(strings.ToLower(spec.Dialect))
			if spec.Dialect != "" && spec.FS != nil {
				kept = append(kept, spec)
			}
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// DialectForDriver returns the migration dialect of a database/sql driver name.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Filesystems returns one migration tree per dialect. The embedded tree is
// used unless a source is passed. Every tree must hold at least one up file.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := hookqueue.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}

	dialects := make([]string, 0, len(dialectDirs))
	for dialect := range dialectDirs {
		dialects = append(dialects, dialect)
	}
	sort.Strings(dialects)

	out := make([]FilesystemSpec, 0, len(dialects))
	for _, dialect := range dialects {
		dir := dialectDirs[dialect]
		sub, err := fs.Sub(base, dir)
		if err != nil {
			return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", dialect, err)
		}
		spec := FilesystemSpec{Dialect: dialect, Path: path.Join(basePath, dir), FS: sub}
		versions, err := Versions(sub)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s %s: %w", dialect, spec.Path, err)
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *%s files", dialect, spec.Path, upSuffix)
		}
		out = append(out, spec)
	}
	return out, nil
}

// Versions lists the migration names of a tree in apply order, failing when
// an up file has no matching down file.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(fsys, name+downSuffix); err != nil {
			return nil, fmt.Errorf("migration %s has no down file: %w", name, err)
		}
		versions = append(versions, name)
	}
	sort.Strings(versions)
	return versions, nil
}

// Register hands each targeted dialect tree to registerFn, typically a
// persistence client's RegisterSQLMigrations.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	switch {
	case len(reg.ValidationTargets) == 0:
		return reg, fmt.Errorf("migrations: validation targets are required")
	case strings.TrimSpace(reg.SourceLabel) == "":
		return reg, fmt.Errorf("migrations: source label is required")
	case len(reg.Filesystems) == 0:
		return reg, fmt.Errorf("migrations: filesystems are required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// migrationsRoot accepts either the module tree or a directory that already
// holds the postgres files.
func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(root, migrationsDir); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, migrationsDir)
		if err != nil {
			return nil, "", err
		}
		return sub, migrationsDir, nil
	}
	if matches, _ := fs.Glob(root, "*.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func normalizeDialects(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(strings.ToLower(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
