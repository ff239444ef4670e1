package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// DefaultImportBatch is the number of rows inserted per transaction.
const DefaultImportBatch = 1000

// ImportRecords creates table with one TEXT column per record field and
// inserts records in batched transactions. Column and table names are
// sanitized. An existing table is replaced.
func (s *Store) ImportRecords(ctx context.Context, table string, records []Record, batchSize int) (int, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to import into %s", table)
	}
	if batchSize <= 0 {
		batchSize = DefaultImportBatch
	}
	table = SanitizeName(table, "tbl_")
	switch strings.ToLower(table) {
	case "artifacts", "server_polynomials", "client_blinded":
		return 0, fmt.Errorf("cannot import into checkpoint table %s", table)
	}

	fields := make([]string, 0, len(records[0]))
	for k := range records[0] {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	columns := make([]string, len(fields))
	defs := make([]string, len(fields))
	placeholders := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = SanitizeName(f, "col_")
		defs[i] = columns[i] + " TEXT"
		placeholders[i] = "?"
	}

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", table, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}
	insert := s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", ")))

	count := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := s.insertBatch(ctx, insert, fields, records[start:end]); err != nil {
			return count, err
		}
		count += end - start
	}
	return count, nil
}

func (s *Store) insertBatch(ctx context.Context, insert string, fields []string, batch []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	values := make([]any, len(fields))
	for _, rec := range batch {
		for i, f := range fields {
			values[i] = rec[f]
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}

// SanitizeName maps name to a SQL identifier: characters outside
// [A-Za-z0-9_] become underscores and a leading digit gets prefix.
func SanitizeName(name, prefix string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = prefix + name
	}
	return name
}
