package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// ledgerTable records which migration versions have been applied.
const ledgerTable = "askdb_schema_migrations"

// migration pairs the up and down scripts sharing a version prefix.
type migration struct {
	Version int64
	Label   string
	Up      string
	Down    string
}

// Runner applies the embedded SQL migrations to a SQLite database.
type Runner struct {
	source fs.FS
}

func NewRunner() *Runner {
	return &Runner{source: embeddedFS}
}

// Up applies pending migrations in version order. steps caps how many run;
// zero means all. Returns the number applied.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	all, err := loadMigrations(r.source)
	if err != nil {
		return 0, err
	}
	if err := ensureLedger(ctx, db); err != nil {
		return 0, err
	}
	done, err := appliedVersions(ctx, db, false)
	if err != nil {
		return 0, err
	}
	seen := make(map[int64]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}

	applied := 0
	for _, m := range all {
		if seen[m.Version] {
			continue
		}
		if steps > 0 && applied == steps {
			break
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Label, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO `+ledgerTable+` (version) VALUES (?)`, m.Version); err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Down rolls back the newest applied migrations. steps defaults to 1.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	all, err := loadMigrations(r.source)
	if err != nil {
		return 0, err
	}
	if err := ensureLedger(ctx, db); err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migration, len(all))
	for _, m := range all {
		byVersion[m.Version] = m
	}
	done, err := appliedVersions(ctx, db, true)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, version := range done {
		if reverted == steps {
			break
		}
		m, ok := byVersion[version]
		if !ok {
			return reverted, fmt.Errorf("applied migration %d is missing from source", version)
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Down); err != nil {
				return fmt.Errorf("roll back migration %d (%s): %w", m.Version, m.Label, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+ledgerTable+` WHERE version = ?`, m.Version); err != nil {
				return fmt.Errorf("unrecord migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return reverted, err
		}
		reverted++
	}
	return reverted, nil
}

func ensureLedger(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure migration ledger: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, newestFirst bool) ([]int64, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+ledgerTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan ledger version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration ledger: %w", err)
	}
	return versions, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadMigrations(source fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(source, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		version, label, direction, ok := parseName(name)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(source, "sql/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Label: label}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", m.Version)
		}
		if strings.TrimSpace(m.Down) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseName splits NNNNNN_label.up.sql style migration file names.
func parseName(name string) (int64, string, string, bool) {
	base, isSQL := strings.CutSuffix(name, ".sql")
	if !isSQL {
		return 0, "", "", false
	}
	var direction string
	if trimmed, found := strings.CutSuffix(base, ".up"); found {
		base, direction = trimmed, "up"
	} else if trimmed, found := strings.CutSuffix(base, ".down"); found {
		base, direction = trimmed, "down"
	} else {
		return 0, "", "", false
	}
	prefix, label, found := strings.Cut(base, "_")
	if !found || label == "" {
		return 0, "", "", false
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return version, label, direction, true
}
