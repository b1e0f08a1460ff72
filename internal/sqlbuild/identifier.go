package sqlbuild

import (
	"regexp"
	"strings"

	"github.com/triage-ai/sqlgate/internal/apperr"
)

// maxIdentifierLen is SQL Server's sysname length.
const maxIdentifierLen = 128

// identPart matches one part of a SQL Server regular identifier.
var identPart = regexp.MustCompile(`^[A-Za-z_@#][A-Za-z0-9_@#$]*$`)

// dataType matches a column type such as INT, NVARCHAR(50), VARCHAR(MAX),
// DECIMAL(10, 2) or DATETIME2(7). Multi-word types (DOUBLE PRECISION) are
// allowed; nothing that could end or comment out a statement is.
var dataType = regexp.MustCompile(`(?i)^[a-z][a-z0-9_]*( [a-z][a-z0-9_]*)?(\(\s*(\d+|max)\s*(,\s*\d+\s*)?\))?$`)

// QuoteTable validates a table name of the form "table" or "schema.table"
// and returns it bracket-quoted.
func QuoteTable(name string) (string, error) {
	return quote("table", name, 2)
}

// QuoteColumn validates a single-part column name and returns it quoted.
func QuoteColumn(name string) (string, error) {
	return quote("column", name, 1)
}

// QuoteIndex validates a single-part index name and returns it quoted.
func QuoteIndex(name string) (string, error) {
	return quote("index", name, 1)
}

// ValidIdentifier reports whether name is a safe identifier with at most
// maxParts dot-separated parts.
func ValidIdentifier(name string, maxParts int) bool {
	parts := strings.Split(name, ".")
	if len(parts) > maxParts {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > maxIdentifierLen || !identPart.MatchString(p) {
			return false
		}
	}
	return true
}

func quote(kind, name string, maxParts int) (string, error) {
	if !ValidIdentifier(name, maxParts) {
		return "", apperr.New(apperr.ValidationError, "invalid %s name %q", kind, name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "[" + p + "]"
	}
	return strings.Join(parts, "."), nil
}

func checkDataType(column, typ string) (string, error) {
	t := strings.TrimSpace(typ)
	if !dataType.MatchString(t) {
		return "", apperr.New(apperr.ValidationError, "invalid type %q for column %q", typ, column)
	}
	return strings.ToUpper(t), nil
}
