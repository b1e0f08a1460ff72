// Package sqlbuild turns validated operation arguments into parameterized
// T-SQL statements. Caller values are always bound as @pN placeholders;
// identifiers are checked and bracket-quoted before they are written into
// the statement text. Nothing in this package touches the database.
package sqlbuild

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/triage-ai/sqlgate/internal/apperr"
)

// Statement is SQL text plus its ordered bound values.
type Statement struct {
	SQL  string
	Args []any
}

// ColumnDef describes one column of a CREATE TABLE.
type ColumnDef struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

func placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

func placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// ListTables lists base tables, optionally restricted to the given schemas.
func ListTables(schemas []string) Statement {
	var b strings.Builder
	b.WriteString("SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE'")
	args := make([]any, 0, len(schemas))
	if len(schemas) > 0 {
		b.WriteString(" AND TABLE_SCHEMA IN (")
		b.WriteString(placeholders(1, len(schemas)))
		b.WriteString(")")
		for _, s := range schemas {
			args = append(args, s)
		}
	}
	b.WriteString(" ORDER BY TABLE_SCHEMA, TABLE_NAME")
	return Statement{SQL: b.String(), Args: args}
}

// DescribeTable returns column metadata in declared order. A "schema.table"
// name also filters on the schema. The table name is bound, not quoted.
func DescribeTable(table string) (Statement, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return Statement{}, apperr.New(apperr.ValidationError, "table name is required")
	}
	if !ValidIdentifier(table, 2) {
		return Statement{}, apperr.New(apperr.ValidationError, "invalid table name %q", table)
	}
	sql := "SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, IS_NULLABLE, COLUMN_DEFAULT" +
		" FROM INFORMATION_SCHEMA.COLUMNS WHERE "
	if schema, name, ok := strings.Cut(table, "."); ok {
		return Statement{
			SQL:  sql + "TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION",
			Args: []any{schema, name},
		}, nil
	}
	return Statement{
		SQL:  sql + "TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION",
		Args: []any{table},
	}, nil
}

// Read accepts caller SQL verbatim provided it is a SELECT.
func Read(query string) (Statement, error) {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return Statement{}, apperr.New(apperr.ValidationError, "query must start with SELECT")
	}
	return Statement{SQL: query}, nil
}

// Insert builds one INSERT per row. Every row must carry exactly the
// column set of the first row; a mismatch fails before anything runs.
func Insert(table string, rows []map[string]any) ([]Statement, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.ValidationError, "data must contain at least one row")
	}
	if len(rows[0]) == 0 {
		return nil, apperr.New(apperr.ValidationError, "row 0 has no columns")
	}

	columns := sortedKeys(rows[0])
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if quoted[i], err = QuoteColumn(c); err != nil {
			return nil, err
		}
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qt, strings.Join(quoted, ", "), placeholders(1, len(columns)))

	stmts := make([]Statement, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, apperr.New(apperr.ValidationError,
				"row %d has %d columns, expected %d (%s)", i, len(row), len(columns), strings.Join(columns, ", "))
		}
		args := make([]any, len(columns))
		for j, c := range columns {
			v, ok := row[c]
			if !ok {
				return nil, apperr.New(apperr.ValidationError, "row %d is missing column %q", i, c)
			}
			if args[j], err = BindValue(c, v); err != nil {
				return nil, err
			}
		}
		stmts = append(stmts, Statement{SQL: sql, Args: args})
	}
	return stmts, nil
}

// Update binds the SET values; where is caller SQL and is used verbatim.
func Update(table string, updates map[string]any, where string) (Statement, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return Statement{}, err
	}
	if len(updates) == 0 {
		return Statement{}, apperr.New(apperr.ValidationError, "updates must not be empty")
	}
	if strings.TrimSpace(where) == "" {
		return Statement{}, apperr.New(apperr.ValidationError, "whereClause must not be empty")
	}

	columns := sortedKeys(updates)
	sets := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		qc, err := QuoteColumn(c)
		if err != nil {
			return Statement{}, err
		}
		sets[i] = qc + " = " + placeholder(i+1)
		if args[i], err = BindValue(c, updates[c]); err != nil {
			return Statement{}, err
		}
	}

	return Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s WHERE %s", qt, strings.Join(sets, ", "), where),
		Args: args,
	}, nil
}

// CreateTable emits column definitions in order and gathers every primary
// key column into one trailing PRIMARY KEY clause.
func CreateTable(table string, columns []ColumnDef) (Statement, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, apperr.New(apperr.ValidationError, "columns must not be empty")
	}

	defs := make([]string, 0, len(columns)+1)
	var pk []string
	for _, col := range columns {
		qc, err := QuoteColumn(col.Name)
		if err != nil {
			return Statement{}, err
		}
		typ, err := checkDataType(col.Name, col.Type)
		if err != nil {
			return Statement{}, err
		}
		def := qc + " " + typ
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if col.PrimaryKey {
			pk = append(pk, qc)
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}

	return Statement{SQL: fmt.Sprintf("CREATE TABLE %s (%s)", qt, strings.Join(defs, ", "))}, nil
}

// CreateIndex builds CREATE [UNIQUE] INDEX.
func CreateIndex(table, index string, columns []string, unique bool) (Statement, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return Statement{}, err
	}
	qi, err := QuoteIndex(index)
	if err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, apperr.New(apperr.ValidationError, "columns must not be empty")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if quoted[i], err = QuoteColumn(c); err != nil {
			return Statement{}, err
		}
	}

	kw := "CREATE INDEX"
	if unique {
		kw = "CREATE UNIQUE INDEX"
	}
	return Statement{SQL: fmt.Sprintf("%s %s ON %s (%s)", kw, qi, qt, strings.Join(quoted, ", "))}, nil
}

// DropTable builds DROP TABLE.
func DropTable(table string) (Statement, error) {
	qt, err := QuoteTable(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DROP TABLE " + qt}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
