// Package datasetdb is the read-only connection pool to the analytical
// dataset database queried by the agent's SQL tools.
package datasetdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type Config struct {
	DSN              string
	MaxConns         int
	StatementTimeout time.Duration
	MaxRows          int
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 5
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = 15 * time.Second
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 200
	}
	return c
}

// Result is a capped query result. Truncated is set when the statement
// produced more than MaxRows rows.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	MaxRows   int      `json:"max_rows"`
}

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type Table struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// QualifiedName omits the public schema.
func (t Table) QualifiedName() string {
	if t.Schema == "" || t.Schema == "public" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

type DB struct {
	sql *sql.DB
	cfg Config
	log *logger.Logger
}

// Open connects through the pgx database/sql driver.
func Open(log *logger.Logger, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("dataset dsn is required")
	}
	cfg = cfg.withDefaults()
	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return New(sqlDB, log, cfg), nil
}

// New wraps an existing handle.
func New(sqlDB *sql.DB, log *logger.Logger, cfg Config) *DB {
	return &DB{sql: sqlDB, cfg: cfg.withDefaults(), log: log.With("service", "DatasetDB")}
}

func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) MaxRows() int { return d.cfg.MaxRows }

// Query runs one statement inside a read-only transaction with a
// statement timeout. The transaction is always rolled back.
func (d *DB) Query(ctx context.Context, query string) (*Result, error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", d.cfg.StatementTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: [][]any{}, MaxRows: d.cfg.MaxRows}
	for rows.Next() {
		if res.RowCount >= d.cfg.MaxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = jsonValue(v)
		}
		res.Rows = append(res.Rows, vals)
		res.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		if isPrintable(x) {
			return string(x)
		}
		return "\\x" + hex.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	}
	return v
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) {
			return false
		}
	}
	return true
}

const introspectSQL = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
  AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// Tables lists every user table and view with its columns.
func (d *DB) Tables(ctx context.Context) ([]Table, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.StatementTimeout)
	defer cancel()
	rows, err := d.sql.QueryContext(ctx, introspectSQL)
	if err != nil {
		return nil, fmt.Errorf("introspect dataset: %w", err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var schema, table, col, dataType, nullable string
		if err := rows.Scan(&schema, &table, &col, &dataType, &nullable); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Schema != schema || out[n-1].Name != table {
			out = append(out, Table{Schema: schema, Name: table})
		}
		last := &out[len(out)-1]
		last.Columns = append(last.Columns, Column{Name: col, DataType: dataType, Nullable: strings.EqualFold(nullable, "YES")})
	}
	return out, rows.Err()
}

// DescribeTable returns the table named name, optionally schema-qualified.
// It returns nil when no such table exists.
func (d *DB) DescribeTable(ctx context.Context, name string) (*Table, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return FindTable(tables, name), nil
}

func FindTable(tables []Table, name string) *Table {
	want := strings.ToLower(strings.Trim(strings.TrimSpace(name), `"`))
	for i := range tables {
		t := &tables[i]
		if strings.ToLower(t.QualifiedName()) == want || strings.ToLower(t.Schema+"."+t.Name) == want {
			return t
		}
	}
	for i := range tables {
		if strings.ToLower(tables[i].Name) == want {
			return &tables[i]
		}
	}
	return nil
}
