package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Record is one row of a source table keyed by column name.
type Record map[string]string

// TableColumns lists the columns of table.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	if !isIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	query := `SELECT name FROM pragma_table_info(?)`
	if s.driver == DriverPostgres {
		query = `SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// Records reads the named columns of up to limit rows of table. Column
// names are matched case-insensitively; unknown columns are skipped with a
// warning. A limit of zero reads every row.
func (s *Store) Records(ctx context.Context, table string, columns []string, limit int) ([]Record, error) {
	existing, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	var valid []string
	for _, col := range columns {
		found := false
		for _, e := range existing {
			if strings.EqualFold(col, e) {
				valid = append(valid, e)
				found = true
				break
			}
		}
		if !found {
			log.Printf("Warning: column %q not found in table %q, skipping", col, table)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid columns in table %q", table)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(valid, ", "), table)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range names {
		ptrs[i] = &values[i]
	}

	var records []Record
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(Record, len(names))
		for i, col := range names {
			switch v := values[i].(type) {
			case nil:
				rec[col] = ""
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = fmt.Sprintf("%v", v)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
