package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/sqlgate/internal/apperr"
)

// Shape primitives for operation arguments.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Field is one argument of an operation. Items describes array elements,
// Properties the members of an object, OneOf alternative shapes.
type Field struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Items       *Field
	Properties  []Field
	OneOf       []Field
}

// Operation describes one named action. Values are built at startup and
// never modified.
type Operation struct {
	Name        string
	Description string
	Fields      []Field
	Mutating    bool

	schema *jsonschema.Schema
}

// Descriptor is the caller-visible form of an Operation.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Descriptor renders the operation for advertisement.
func (o *Operation) Descriptor() Descriptor {
	return Descriptor{
		Name:        o.Name,
		Description: o.Description,
		InputSchema: o.InputSchema(),
	}
}

// InputSchema renders the operation's fields as a JSON Schema object.
func (o *Operation) InputSchema() map[string]any {
	return objectSchema(o.Fields)
}

// Validate checks args against the compiled input schema.
func (o *Operation) Validate(args map[string]any) error {
	if o.schema == nil {
		return fmt.Errorf("Validate: operation %q has no compiled schema", o.Name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := o.schema.Validate(args); err != nil {
		return apperr.New(apperr.ValidationError, "invalid arguments: %s", flattenValidation(err))
	}
	return nil
}

func (o *Operation) compile() error {
	raw, err := json.Marshal(o.InputSchema())
	if err != nil {
		return fmt.Errorf("compile %s: %w", o.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("compile %s: %w", o.Name, err)
	}

	url := o.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("compile %s: %w", o.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("compile %s: %w", o.Name, err)
	}
	o.schema = sch
	return nil
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = f.schema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       TypeObject,
		"properties": props,
		"required":   required,
	}
}

func (f Field) schema() map[string]any {
	var s map[string]any
	switch {
	case len(f.OneOf) > 0:
		alts := make([]any, len(f.OneOf))
		for i, alt := range f.OneOf {
			alts[i] = alt.schema()
		}
		s = map[string]any{"oneOf": alts}
	case f.Type == TypeObject && len(f.Properties) > 0:
		s = objectSchema(f.Properties)
	case f.Type == TypeArray && f.Items != nil:
		s = map[string]any{"type": TypeArray, "items": f.Items.schema()}
	default:
		s = map[string]any{"type": f.Type}
	}
	if f.Description != "" {
		s["description"] = f.Description
	}
	return s
}

// flattenValidation turns the multi-line jsonschema error into one line.
func flattenValidation(err error) string {
	lines := strings.Split(err.Error(), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l == "" || strings.HasPrefix(l, "jsonschema validation failed") {
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return err.Error()
	}
	return strings.Join(out, "; ")
}
