package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"webscraper/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// SQL Server has no CREATE TABLE IF NOT EXISTS; EnsureTable guards with
// OBJECT_ID instead. Columns use NVARCHAR(MAX) since scraped values are
// unbounded text.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
	var cols strings.Builder
	for i, f := range fields {
		if i > 0 {
			cols.WriteString(", ")
		}
		cols.WriteString(msIdent(f))
		cols.WriteString(" NVARCHAR(MAX) NULL")
	}

	stmt := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(table, "'", "''"), msIdent(table), cols.String(),
	)
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// InsertRecords appends rows in a single multi-values INSERT using @pN
// placeholders.
func (r *Repo) InsertRecords(ctx context.Context, table string, fields []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(f))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(fields))
	p := 1
	for i, row := range storage.NormalizeRows(rows) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range fields {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.RowsAffected()
}

// msIdent quotes an identifier for SQL Server.
func msIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
