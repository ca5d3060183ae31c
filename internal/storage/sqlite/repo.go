package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"webscraper/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// All scraped values are stored with TEXT affinity. SQLite would happily
// store mixed types per column; normalizing to strings up front keeps dumps
// comparable with the Postgres and MSSQL backends.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTable creates the target table if it does not exist. Idempotent.
func (r *Repo) EnsureTable(ctx context.Context, table string, fields []string) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(f))
		b.WriteString(" TEXT")
	}
	b.WriteString(")")

	if _, err := r.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertRecords appends rows in a single multi-values INSERT.
func (r *Repo) InsertRecords(ctx context.Context, table string, fields []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(f))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(fields))
	for i, row := range storage.NormalizeRows(rows) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(strings.TrimRight(strings.Repeat("?,", len(fields)), ","))
		b.WriteString(")")
		args = append(args, row...)
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.RowsAffected()
}

// sqlIdent quotes an identifier for SQLite.
func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
