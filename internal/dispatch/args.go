package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/triage-ai/sqlgate/internal/apperr"
	"github.com/triage-ai/sqlgate/internal/sqlbuild"
)

// DecodeArguments parses a JSON argument object. Numbers stay json.Number
// so integers wider than 53 bits reach the database exactly. Empty input
// and null both mean no arguments.
func DecodeArguments(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("arguments must be a single JSON object")
	}
	return args, nil
}

// The helpers below run after schema validation, so type mismatches are
// not expected; they still fail with a ValidationError rather than panic.

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", apperr.New(apperr.ValidationError, "missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.ValidationError, "field %q must be a string", key)
	}
	return s, nil
}

func boolArg(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.New(apperr.ValidationError, "field %q must be a boolean", key)
	}
	return b, nil
}

func stringListArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "field %q must be an array of strings", key)
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.New(apperr.ValidationError, "field %q item %d must be a string", key, i)
		}
		out[i] = s
	}
	return out, nil
}

func objectArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "missing required field %q", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "field %q must be an object", key)
	}
	return m, nil
}

// rowsArg accepts a single object or a list of objects.
func rowsArg(args map[string]any, key string) ([]map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "missing required field %q", key)
	}
	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}, nil
	case []any:
		rows := make([]map[string]any, len(x))
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, apperr.New(apperr.ValidationError, "field %q item %d must be an object", key, i)
			}
			rows[i] = m
		}
		return rows, nil
	default:
		return nil, apperr.New(apperr.ValidationError, "field %q must be an object or an array of objects", key)
	}
}

func columnDefsArg(args map[string]any, key string) ([]sqlbuild.ColumnDef, error) {
	v, ok := args[key]
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "missing required field %q", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, apperr.New(apperr.ValidationError, "field %q must be an array", key)
	}
	defs := make([]sqlbuild.ColumnDef, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.New(apperr.ValidationError, "field %q item %d must be an object", key, i)
		}
		name, err := stringArg(m, "name")
		if err != nil {
			return nil, err
		}
		typ, err := stringArg(m, "type")
		if err != nil {
			return nil, err
		}
		nullable, err := boolArg(m, "nullable", true)
		if err != nil {
			return nil, err
		}
		pk, err := boolArg(m, "primaryKey", false)
		if err != nil {
			return nil, err
		}
		defs[i] = sqlbuild.ColumnDef{Name: name, Type: typ, Nullable: nullable, PrimaryKey: pk}
	}
	return defs, nil
}
