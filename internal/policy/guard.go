package policy

import "github.com/triage-ai/sqlgate/internal/apperr"

// Operation names. Shared by the catalog, the dispatcher and the guard.
const (
	ListTable     = "list_table"
	DescribeTable = "describe_table"
	ReadData      = "read_data"
	InsertData    = "insert_data"
	UpdateData    = "update_data"
	CreateTable   = "create_table"
	CreateIndex   = "create_index"
	DropTable     = "drop_table"
)

var mutating = map[string]bool{
	InsertData:  true,
	UpdateData:  true,
	CreateTable: true,
	CreateIndex: true,
	DropTable:   true,
}

// IsMutating reports whether the named operation changes data or schema.
// Unknown names are not mutating; the dispatcher rejects them separately.
func IsMutating(name string) bool {
	return mutating[name]
}

// Guard is the process-wide read-only gate. It is built once from config
// and copied by value; there is no way to flip it at runtime.
type Guard struct {
	ReadOnly bool
}

// New returns a Guard with the given mode.
func New(readOnly bool) Guard {
	return Guard{ReadOnly: readOnly}
}

// Permit reports whether the operation may run under this guard.
func (g Guard) Permit(name string) bool {
	return !g.ReadOnly || !IsMutating(name)
}

// Check is Permit returning a PolicyViolation error on denial.
func (g Guard) Check(name string) error {
	if g.Permit(name) {
		return nil
	}
	return apperr.New(apperr.PolicyViolation, "operation %q is disabled in read-only mode", name)
}

// Mode returns "read_only" or "read_write" for logs and events.
func (g Guard) Mode() string {
	if g.ReadOnly {
		return "read_only"
	}
	return "read_write"
}
