package executor

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

// Column is one named value in a result row.
type Column struct {
	Name  string
	Value any
}

// Row is a result row with its columns in select-list order.
type Row []Column

// Get returns the first column with the given name.
func (r Row) Get(name string) (any, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as an object whose keys keep column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(types))
		for i, ct := range types {
			row[i] = Column{Name: ct.Name(), Value: normalize(ct.DatabaseTypeName(), vals[i])}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize makes driver values printable: DECIMAL/MONEY arrive as []byte
// text and UNIQUEIDENTIFIER as SQL Server's mixed-endian 16 bytes.
func normalize(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if strings.EqualFold(dbType, "UNIQUEIDENTIFIER") && len(b) == 16 {
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err == nil {
			return u.String()
		}
	}
	return string(b)
}
