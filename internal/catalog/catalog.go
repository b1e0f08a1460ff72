// Package catalog holds the fixed set of operations the gateway serves and
// their argument schemas, and filters that set by the read-only policy.
package catalog

import (
	"github.com/triage-ai/sqlgate/internal/policy"
)

// Catalog is the ordered, immutable operation table.
type Catalog struct {
	ops    []*Operation
	byName map[string]*Operation
}

// New builds the catalog and compiles every input schema.
func New() (*Catalog, error) {
	ops := definitions()
	c := &Catalog{
		ops:    ops,
		byName: make(map[string]*Operation, len(ops)),
	}
	for _, op := range ops {
		op.Mutating = policy.IsMutating(op.Name)
		if err := op.compile(); err != nil {
			return nil, err
		}
		c.byName[op.Name] = op
	}
	return c, nil
}

// Lookup returns the named operation regardless of policy.
func (c *Catalog) Lookup(name string) (*Operation, bool) {
	op, ok := c.byName[name]
	return op, ok
}

// List returns the operations the guard permits, in catalog order.
func (c *Catalog) List(g policy.Guard) []*Operation {
	out := make([]*Operation, 0, len(c.ops))
	for _, op := range c.ops {
		if g.Permit(op.Name) {
			out = append(out, op)
		}
	}
	return out
}

// Descriptors is List rendered for advertisement.
func (c *Catalog) Descriptors(g policy.Guard) []Descriptor {
	ops := c.List(g)
	out := make([]Descriptor, len(ops))
	for i, op := range ops {
		out[i] = op.Descriptor()
	}
	return out
}

func tableNameField(desc string) Field {
	return Field{Name: "tableName", Type: TypeString, Required: true, Description: desc}
}

func definitions() []*Operation {
	return []*Operation{
		{
			Name:        policy.ListTable,
			Description: "Lists tables in the MSSQL Database, or list tables in specific schemas",
			Fields: []Field{{
				Name:        "parameters",
				Type:        TypeArray,
				Items:       &Field{Type: TypeString},
				Description: "Schemas to filter by (optional)",
			}},
		},
		{
			Name:        policy.DescribeTable,
			Description: "Describes the schema (columns and types) of a specified MSSQL Database table",
			Fields:      []Field{tableNameField("Name of the table to describe")},
		},
		{
			Name:        policy.ReadData,
			Description: "Executes a SELECT query on an MSSQL Database table",
			Fields: []Field{{
				Name:        "query",
				Type:        TypeString,
				Required:    true,
				Description: "SQL SELECT query to execute (must start with SELECT)",
			}},
		},
		{
			Name:        policy.InsertData,
			Description: "Inserts data into an MSSQL Database table",
			Fields: []Field{
				tableNameField("Name of the table to insert into"),
				{
					Name:     "data",
					Required: true,
					OneOf: []Field{
						{Type: TypeObject, Description: "Single record data object"},
						{Type: TypeArray, Items: &Field{Type: TypeObject}, Description: "Array of data objects for multiple records"},
					},
				},
			},
		},
		{
			Name:        policy.UpdateData,
			Description: "Updates data in an MSSQL Database table using a WHERE clause",
			Fields: []Field{
				tableNameField("Name of the table to update"),
				{Name: "updates", Type: TypeObject, Required: true, Description: "Key-value pairs of columns to update"},
				{Name: "whereClause", Type: TypeString, Required: true, Description: "WHERE clause to identify which records to update"},
			},
		},
		{
			Name:        policy.CreateTable,
			Description: "Creates a new table in the database",
			Fields: []Field{
				tableNameField("Name of the table to create"),
				{
					Name:        "columns",
					Type:        TypeArray,
					Required:    true,
					Description: "Column definitions",
					Items: &Field{
						Type: TypeObject,
						Properties: []Field{
							{Name: "name", Type: TypeString, Required: true},
							{Name: "type", Type: TypeString, Required: true},
							{Name: "nullable", Type: TypeBoolean},
							{Name: "primaryKey", Type: TypeBoolean},
						},
					},
				},
			},
		},
		{
			Name:        policy.CreateIndex,
			Description: "Creates an index on a table",
			Fields: []Field{
				tableNameField("Name of the table"),
				{Name: "indexName", Type: TypeString, Required: true, Description: "Name of the index"},
				{Name: "columns", Type: TypeArray, Required: true, Items: &Field{Type: TypeString}, Description: "Columns to index"},
				{Name: "unique", Type: TypeBoolean, Description: "Whether the index should be unique"},
			},
		},
		{
			Name:        policy.DropTable,
			Description: "Drops a table from the database",
			Fields:      []Field{tableNameField("Name of the table to drop")},
		},
	}
}
