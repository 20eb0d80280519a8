package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// sampleRows is the number of example rows rendered under each table schema
// so the model can see real values next to the column types.
const sampleRows = 3

// schemaName returns the default schema the user tables live in.
func schemaName(db *sqlx.DB) string {
	if Dialect(db) == DialectDuckDB {
		return "main"
	}

	return "public"
}

// ListTables returns the names of the base tables in the database.
func ListTables(ctx context.Context, db *sqlx.DB) ([]string, error) {
	const q = `
	SELECT
		table_name
	FROM
		information_schema.tables
	WHERE
		table_schema = ? AND
		table_type = 'BASE TABLE'
	ORDER BY
		table_name`

	var tables []string
	if err := db.SelectContext(ctx, &tables, db.Rebind(q), schemaName(db)); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	return tables, nil
}

// Column describes one column of a table.
type Column struct {
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
	Nullable string `db:"is_nullable"`
}

// ForeignKey describes a foreign key relationship from a table column.
type ForeignKey struct {
	Column        string `db:"column_name"`
	ForeignTable  string `db:"foreign_table"`
	ForeignColumn string `db:"foreign_column"`
}

// TableColumns returns the column definitions for the given table.
func TableColumns(ctx context.Context, db *sqlx.DB, table string) ([]Column, error) {
	const q = `
	SELECT
		column_name,
		data_type,
		is_nullable
	FROM
		information_schema.columns
	WHERE
		table_schema = ? AND
		table_name = ?
	ORDER BY
		ordinal_position`

	var columns []Column
	if err := db.SelectContext(ctx, &columns, db.Rebind(q), schemaName(db), table); err != nil {
		return nil, fmt.Errorf("table columns: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q does not exist", table)
	}

	return columns, nil
}

// TableForeignKeys returns the foreign keys of the given table. The query
// walks information_schema constraint views, which DuckDB does not populate,
// so the DuckDB dialect reports no foreign keys.
func TableForeignKeys(ctx context.Context, db *sqlx.DB, table string) ([]ForeignKey, error) {
	if Dialect(db) == DialectDuckDB {
		return nil, nil
	}

	const q = `
	SELECT
		kcu.column_name,
		ccu.table_name AS foreign_table,
		ccu.column_name AS foreign_column
	FROM
		information_schema.table_constraints AS tc
	JOIN
		information_schema.key_column_usage AS kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	JOIN
		information_schema.constraint_column_usage AS ccu
		ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
	WHERE
		tc.constraint_type = 'FOREIGN KEY' AND
		tc.table_schema = ? AND
		tc.table_name = ?
	ORDER BY
		kcu.column_name`

	var fks []ForeignKey
	if err := db.SelectContext(ctx, &fks, db.Rebind(q), schemaName(db), table); err != nil {
		return nil, fmt.Errorf("table foreign keys: %w", err)
	}

	return fks, nil
}

// TableSchema renders the schema of the given table as text the model is
// prompted against: a CREATE TABLE block, the foreign keys, and a few sample
// rows.
func TableSchema(ctx context.Context, db *sqlx.DB, table string) (string, error) {
	columns, err := TableColumns(ctx, db, table)
	if err != nil {
		return "", err
	}

	fks, err := TableForeignKeys(ctx, db, table)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	for i, col := range columns {
		fmt.Fprintf(&b, "\t%s %s", col.Name, col.DataType)
		if col.Nullable == "NO" {
			b.WriteString(" NOT NULL")
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")\n")

	if len(fks) > 0 {
		b.WriteString("\n/*\nForeign keys:\n")
		for _, fk := range fks {
			fmt.Fprintf(&b, "\t%s -> %s.%s\n", fk.Column, fk.ForeignTable, fk.ForeignColumn)
		}
		b.WriteString("*/\n")
	}

	sample, err := renderSampleRows(ctx, db, table)
	if err != nil {
		return "", err
	}
	b.WriteString(sample)

	return b.String(), nil
}

// renderSampleRows keeps column order, which MapScan would lose.
func renderSampleRows(ctx context.Context, db *sqlx.DB, table string) (string, error) {
	q := fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, sampleRows)

	rows, err := db.QueryxContext(ctx, q)
	if err != nil {
		return "", fmt.Errorf("sample rows: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("sample columns: %w", err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "\n/*\n%d rows from %s table:\n", sampleRows, table)
	b.WriteString(strings.Join(names, "\t"))
	b.WriteString("\n")

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return "", fmt.Errorf("sample scan: %w", err)
		}

		cells := make([]string, len(values))
		for i, v := range values {
			switch d := v.(type) {
			case []byte:
				cells[i] = string(d)
			case nil:
				cells[i] = "NULL"
			default:
				cells[i] = fmt.Sprintf("%v", d)
			}
		}

		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}

	if err := rows.Err(); err != nil {
		return "", err
	}

	b.WriteString("*/\n")

	return b.String(), nil
}
