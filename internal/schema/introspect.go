package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/nlquery/nlquery/internal/db"
)

// DatabaseIntrospector reads catalog metadata from an open pool. The
// catalog queries differ per dialect; the resulting snapshot shape does not.
type DatabaseIntrospector struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func NewDatabaseIntrospector(pool *sql.DB, dialect db.Dialect) *DatabaseIntrospector {
	return &DatabaseIntrospector{DB: pool, Dialect: dialect}
}

func (d *DatabaseIntrospector) Snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snapshot *Snapshot
		err      error
	)
	switch d.Dialect {
	case db.DialectPostgres:
		snapshot, err = d.informationSchemaSnapshot(ctx, postgresColumnsQuery, true)
	case db.DialectMySQL:
		snapshot, err = d.informationSchemaSnapshot(ctx, mysqlColumnsQuery, false)
		if err == nil {
			err = d.loadMySQLKeys(ctx, snapshot)
		}
	case db.DialectDuckDB:
		snapshot, err = d.informationSchemaSnapshot(ctx, duckdbColumnsQuery, false)
	case db.DialectSQLite:
		snapshot, err = d.sqliteSnapshot(ctx)
	default:
		err = fmt.Errorf("unsupported dialect %q", d.Dialect)
	}
	if err != nil {
		return nil, &IntrospectionError{Err: err}
	}
	sort.Slice(snapshot.Tables, func(i, j int) bool {
		return snapshot.Tables[i].Name < snapshot.Tables[j].Name
	})
	return snapshot, nil
}

const postgresColumnsQuery = `
SELECT table_name, column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

const mysqlColumnsQuery = `
SELECT table_name, column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

const duckdbColumnsQuery = `
SELECT table_name, column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = 'main'
ORDER BY table_name, ordinal_position`

const postgresPrimaryKeysQuery = `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY tc.table_name, kcu.ordinal_position`

const postgresForeignKeysQuery = `
SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
WHERE tc.table_schema = 'public' AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.table_name, kcu.ordinal_position`

const mysqlPrimaryKeysQuery = `
SELECT table_name, column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND constraint_name = 'PRIMARY'
ORDER BY table_name, ordinal_position`

const mysqlForeignKeysQuery = `
SELECT table_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
ORDER BY table_name, ordinal_position`

func (d *DatabaseIntrospector) informationSchemaSnapshot(ctx context.Context, columnsQuery string, withPostgresKeys bool) (*Snapshot, error) {
	rows, err := d.DB.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byTable := map[string]*TableInfo{}
	var order []string
	for rows.Next() {
		var tableName string
		var column ColumnInfo
		if err := rows.Scan(&tableName, &column.Name, &column.DataType, &column.Nullable); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		table, ok := byTable[tableName]
		if !ok {
			table = &TableInfo{Name: tableName}
			byTable[tableName] = table
			order = append(order, tableName)
		}
		table.Columns = append(table.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	snapshot := &Snapshot{Tables: make([]TableInfo, 0, len(order))}
	if withPostgresKeys {
		if err := d.loadKeyColumns(ctx, byTable, postgresPrimaryKeysQuery, postgresForeignKeysQuery); err != nil {
			return nil, err
		}
	}
	for _, name := range order {
		snapshot.Tables = append(snapshot.Tables, *byTable[name])
	}
	return snapshot, nil
}

func (d *DatabaseIntrospector) loadMySQLKeys(ctx context.Context, snapshot *Snapshot) error {
	byTable := map[string]*TableInfo{}
	for i := range snapshot.Tables {
		byTable[snapshot.Tables[i].Name] = &snapshot.Tables[i]
	}
	return d.loadKeyColumns(ctx, byTable, mysqlPrimaryKeysQuery, mysqlForeignKeysQuery)
}

func (d *DatabaseIntrospector) loadKeyColumns(ctx context.Context, byTable map[string]*TableInfo, pkQuery, fkQuery string) error {
	pkRows, err := d.DB.QueryContext(ctx, pkQuery)
	if err != nil {
		return fmt.Errorf("query primary keys: %w", err)
	}
	defer func() { _ = pkRows.Close() }()
	for pkRows.Next() {
		var tableName, columnName string
		if err := pkRows.Scan(&tableName, &columnName); err != nil {
			return fmt.Errorf("scan primary key row: %w", err)
		}
		if table, ok := byTable[tableName]; ok {
			table.PrimaryKey = append(table.PrimaryKey, columnName)
		}
	}
	if err := pkRows.Err(); err != nil {
		return fmt.Errorf("iterate primary key rows: %w", err)
	}

	fkRows, err := d.DB.QueryContext(ctx, fkQuery)
	if err != nil {
		return fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var tableName string
		var fk ForeignKey
		if err := fkRows.Scan(&tableName, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return fmt.Errorf("scan foreign key row: %w", err)
		}
		if table, ok := byTable[tableName]; ok {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}
	}
	if err := fkRows.Err(); err != nil {
		return fmt.Errorf("iterate foreign key rows: %w", err)
	}
	return nil
}

func (d *DatabaseIntrospector) sqliteSnapshot(ctx context.Context) (*Snapshot, error) {
	tableRows, err := d.DB.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() { _ = tableRows.Close() }()

	var names []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		names = append(names, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	snapshot := &Snapshot{Tables: make([]TableInfo, 0, len(names))}
	for _, name := range names {
		table := TableInfo{Name: name}
		colRows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
		if err != nil {
			return nil, fmt.Errorf("table_info for %q: %w", name, err)
		}
		for colRows.Next() {
			var (
				cid       int
				column    ColumnInfo
				notNull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := colRows.Scan(&cid, &column.Name, &column.DataType, &notNull, &dfltValue, &pk); err != nil {
				_ = colRows.Close()
				return nil, fmt.Errorf("scan table_info row: %w", err)
			}
			column.Nullable = notNull == 0
			table.Columns = append(table.Columns, column)
			if pk > 0 {
				table.PrimaryKey = append(table.PrimaryKey, column.Name)
			}
		}
		if err := colRows.Err(); err != nil {
			_ = colRows.Close()
			return nil, fmt.Errorf("iterate table_info rows: %w", err)
		}
		_ = colRows.Close()

		if err := d.loadSQLiteForeignKeys(ctx, &table); err != nil {
			return nil, err
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot, nil
}

func (d *DatabaseIntrospector) loadSQLiteForeignKeys(ctx context.Context, table *TableInfo) error {
	fkRows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, table.Name))
	if err != nil {
		return fmt.Errorf("foreign_key_list for %q: %w", table.Name, err)
	}
	defer func() { _ = fkRows.Close() }()
	for fkRows.Next() {
		var (
			id, seq                   int
			refTable, from, to        string
			onUpdate, onDelete, match string
		)
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return fmt.Errorf("scan foreign_key_list row: %w", err)
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{Column: from, RefTable: refTable, RefColumn: to})
	}
	return fkRows.Err()
}
