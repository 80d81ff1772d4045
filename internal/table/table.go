// Package table writes a dataset split to a managed SQL table.
package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// ErrInvalidName is returned for table or column names that are not plain identifiers.
	ErrInvalidName = errors.New("invalid SQL identifier")
	// ErrUnsupportedDriver is returned for drivers other than postgres and sqlite.
	ErrUnsupportedDriver = errors.New("unsupported table driver")

	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Writer replaces managed tables with the contents of a split.
type Writer struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to dsn with the named driver.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Writer, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWriter(db, driver, logger), nil
}

// NewWriter wraps an existing connection pool.
func NewWriter(db *sql.DB, driver string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{db: db, driver: driver, logger: logger}
}

// Close closes the underlying connection pool.
func (w *Writer) Close() error { return w.db.Close() }

// tableRef splits "schema.table" and validates both parts.
func tableRef(name string) (schema, table string, err error) {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		table = parts[0]
	case 2:
		schema, table = parts[0], parts[1]
		if !identPattern.MatchString(schema) {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !identPattern.MatchString(table) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return schema, table, nil
}

func quoteRef(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// Overwrite drops and recreates the table, then inserts every row of split,
// all inside one transaction. Int64 columns and class-label codes are BIGINT,
// everything else TEXT.
func (w *Writer) Overwrite(ctx context.Context, name string, split *dataset.Split) (int, error) {
	schema, tbl, err := tableRef(name)
	if err != nil {
		return 0, err
	}
	if schema != "" && w.driver == DriverSQLite {
		return 0, fmt.Errorf("%w: sqlite tables cannot be schema-qualified (%q)", ErrInvalidName, name)
	}

	columns := split.Columns()
	defs := make([]string, len(columns))
	values := make([][]any, len(columns))
	for i, col := range columns {
		if !identPattern.MatchString(col) {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidName, col)
		}
		kind, err := split.Kind(col)
		if err != nil {
			return 0, err
		}
		switch kind {
		case dataset.KindClassLabel:
			defs[i] = pq.QuoteIdentifier(col) + " BIGINT NOT NULL"
			codes, err := split.Codes(col)
			if err != nil {
				return 0, err
			}
			values[i] = make([]any, len(codes))
			for r, c := range codes {
				values[i][r] = int64(c)
			}
			continue
		case dataset.KindInt64:
			defs[i] = pq.QuoteIdentifier(col) + " BIGINT NOT NULL"
			ints, err := split.Int64s(col)
			if err != nil {
				return 0, err
			}
			values[i] = make([]any, len(ints))
			for r, v := range ints {
				values[i][r] = v
			}
			continue
		}
		defs[i] = pq.QuoteIdentifier(col) + " TEXT NOT NULL"
		strs, err := split.Strings(col)
		if err != nil {
			return 0, err
		}
		values[i] = make([]any, len(strs))
		for r, s := range strs {
			values[i][r] = s
		}
	}

	ref := quoteRef(schema, tbl)

	// Use a transaction for atomicity
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ref); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", ref, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", name, err)
	}

	var insert string
	switch {
	case w.driver == DriverPostgres && schema != "":
		insert = pq.CopyInSchema(schema, tbl, columns...)
	case w.driver == DriverPostgres:
		insert = pq.CopyIn(tbl, columns...)
	default:
		quoted := make([]string, len(columns))
		marks := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = pq.QuoteIdentifier(c)
			marks[i] = "?"
		}
		insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ref, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	}

	// Prepare the bulk insert statement
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	row := make([]any, len(columns))
	for r := 0; r < split.NumRows(); r++ {
		for c := range columns {
			row[c] = values[c][r]
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", r, err)
		}
	}

	if w.driver == DriverPostgres {
		// Execute the bulk insert
		if _, err := stmt.ExecContext(ctx); err != nil {
			return 0, fmt.Errorf("failed to execute bulk insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.logger.Info("wrote managed table",
		zap.String("table", name),
		zap.String("split", split.Name()),
		zap.Int("rows", split.NumRows()),
		zap.Strings("columns", columns))
	return split.NumRows(), nil
}

// Count returns the number of rows in name.
func (w *Writer) Count(ctx context.Context, name string) (int, error) {
	schema, tbl, err := tableRef(name)
	if err != nil {
		return 0, err
	}
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteRef(schema, tbl)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}
