package sqlbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/triage-ai/sqlgate/internal/apperr"
)

func TestListTables(t *testing.T) {
	t.Run("no schemas", func(t *testing.T) {
		stmt := ListTables(nil)
		assert.Equal(t,
			"SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA, TABLE_NAME",
			stmt.SQL)
		assert.Empty(t, stmt.Args)
	})

	t.Run("schemas are bound", func(t *testing.T) {
		stmt := ListTables([]string{"dbo", "sales'; DROP TABLE x--"})
		assert.Equal(t,
			"SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA IN (@p1, @p2) ORDER BY TABLE_SCHEMA, TABLE_NAME",
			stmt.SQL)
		assert.Equal(t, []any{"dbo", "sales'; DROP TABLE x--"}, stmt.Args)
	})
}

func TestDescribeTable(t *testing.T) {
	stmt, err := DescribeTable("users")
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION")
	assert.Equal(t, []any{"users"}, stmt.Args)

	stmt, err = DescribeTable("sales.orders")
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2")
	assert.Equal(t, []any{"sales", "orders"}, stmt.Args)

	_, err = DescribeTable("  ")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	for _, bad := range []string{"a.b.c", "sales.", ".orders", "orders; --", "[orders]"} {
		_, err = DescribeTable(bad)
		assert.True(t, apperr.Is(err, apperr.ValidationError), bad)
	}
}

func TestRead(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT 1", true},
		{"select * from t", true},
		{"  \n\tSeLeCt 1", true},
		{"INSERT INTO t VALUES (1)", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			stmt, err := Read(tt.query)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.query, stmt.SQL)
				return
			}
			assert.True(t, apperr.Is(err, apperr.ValidationError), "got %v", err)
		})
	}
}

func TestInsert_TwoRows(t *testing.T) {
	stmts, err := Insert("t", []map[string]any{{"a": float64(1)}, {"a": float64(2)}})
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "INSERT INTO [t] ([a]) VALUES (@p1)", stmts[0].SQL)
	assert.Equal(t, []any{int64(1)}, stmts[0].Args)
	assert.Equal(t, []any{int64(2)}, stmts[1].Args)
}

func TestInsert_ColumnOrderIsStable(t *testing.T) {
	stmts, err := Insert("dbo.people", []map[string]any{{"name": "Ann", "age": float64(31), "active": true}})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO [dbo].[people] ([active], [age], [name]) VALUES (@p1, @p2, @p3)", stmts[0].SQL)
	assert.Equal(t, []any{true, int64(31), "Ann"}, stmts[0].Args)
}

func TestInsert_ShapeMismatch(t *testing.T) {
	tests := map[string][]map[string]any{
		"missing column": {{"a": "x", "b": "y"}, {"a": "x", "c": "z"}},
		"extra column":   {{"a": "x"}, {"a": "x", "b": "y"}},
		"fewer columns":  {{"a": "x", "b": "y"}, {"a": "x"}},
		"no rows":        {},
		"empty row":      {{}},
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Insert("t", rows)
			assert.True(t, apperr.Is(err, apperr.ValidationError), "got %v", err)
		})
	}
}

func TestInsert_NestedValueRejected(t *testing.T) {
	_, err := Insert("t", []map[string]any{{"a": map[string]any{"b": 1}}})
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestUpdate(t *testing.T) {
	stmt, err := Update("users", map[string]any{"name": "Bo", "age": float64(40.5)}, "id = 7")
	require.NoError(t, err)
	assert.Equal(t, "UPDATE [users] SET [age] = @p1, [name] = @p2 WHERE id = 7", stmt.SQL)
	assert.Equal(t, []any{40.5, "Bo"}, stmt.Args)
}

func TestUpdate_Preconditions(t *testing.T) {
	_, err := Update("users", map[string]any{}, "id = 1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = Update("users", map[string]any{"a": "b"}, "   ")
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = Update("users", map[string]any{"a = 1; --": "b"}, "id = 1")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestCreateTable_CompositePrimaryKey(t *testing.T) {
	stmt, err := CreateTable("order_lines", []ColumnDef{
		{Name: "order_id", Type: "int", Nullable: false, PrimaryKey: true},
		{Name: "line_no", Type: "INT", Nullable: false, PrimaryKey: true},
		{Name: "sku", Type: "nvarchar(50)", Nullable: true},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE [order_lines] ([order_id] INT NOT NULL, [line_no] INT NOT NULL, [sku] NVARCHAR(50), PRIMARY KEY ([order_id], [line_no]))",
		stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestCreateTable_Rejects(t *testing.T) {
	_, err := CreateTable("t", nil)
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = CreateTable("t", []ColumnDef{{Name: "a", Type: "INT); DROP TABLE users; --"}})
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = CreateTable("t", []ColumnDef{{Name: "a b", Type: "INT"}})
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestCreateTable_Types(t *testing.T) {
	for _, typ := range []string{"INT", "varchar(max)", "DECIMAL(10, 2)", "datetime2(7)", "double precision", "UNIQUEIDENTIFIER"} {
		_, err := CreateTable("t", []ColumnDef{{Name: "c", Type: typ, Nullable: true}})
		assert.NoError(t, err, typ)
	}
}

func TestCreateIndex(t *testing.T) {
	stmt, err := CreateIndex("dbo.users", "ix_users_email", []string{"email", "tenant_id"}, true)
	require.NoError(t, err)
	assert.Equal(t, "CREATE UNIQUE INDEX [ix_users_email] ON [dbo].[users] ([email], [tenant_id])", stmt.SQL)

	stmt, err = CreateIndex("users", "ix_name", []string{"name"}, false)
	require.NoError(t, err)
	assert.Equal(t, "CREATE INDEX [ix_name] ON [users] ([name])", stmt.SQL)

	_, err = CreateIndex("users", "ix", nil, false)
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, err = CreateIndex("users", "dbo.ix", []string{"a"}, false)
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}

func TestDropTable(t *testing.T) {
	stmt, err := DropTable("staging.tmp_load")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE [staging].[tmp_load]", stmt.SQL)

	_, err = DropTable("users; DROP TABLE audit")
	assert.True(t, apperr.Is(err, apperr.ValidationError))
}
