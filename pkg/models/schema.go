package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// FieldType selects how a field's raw text is requested from the remote
// system and how it is typed on the way back.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeNumber   FieldType = "number"
	TypeAmount   FieldType = "amount"
	TypeQuantity FieldType = "quantity"
	TypeRate     FieldType = "rate"
	TypeLogical  FieldType = "logical"
	TypeDate     FieldType = "date"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeAmount, TypeQuantity, TypeRate, TypeLogical, TypeDate:
		return true
	}
	return false
}

// Numeric reports whether values of this type decode to float64.
func (t FieldType) Numeric() bool {
	switch t {
	case TypeNumber, TypeAmount, TypeQuantity, TypeRate:
		return true
	}
	return false
}

// ImportMode is the write semantics used on key conflict.
type ImportMode string

const (
	// ModeReplace overwrites the whole stored record.
	ModeReplace ImportMode = "replace"
	// ModeMerge overwrites only the fields carried by the incoming record.
	ModeMerge ImportMode = "merge"
)

// FieldSpec describes one projected column of a dataset.
type FieldSpec struct {
	Name     string    `json:"name" yaml:"name"`
	Field    string    `json:"field" yaml:"field"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default  *string   `json:"default,omitempty" yaml:"default,omitempty"`
	// SignField names a logical field of the same row. When set, the decoded
	// magnitude is positive if the flag is true (debit, inward) and negative
	// otherwise.
	SignField string `json:"signField,omitempty" yaml:"signField,omitempty"`
}

// TableSchema is the declarative description of one dataset.
type TableSchema struct {
	Name       string      `json:"name" yaml:"name"`
	Collection string      `json:"collection" yaml:"collection"`
	Fields     []FieldSpec `json:"fields" yaml:"fields"`
	Fetch      []string    `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Filters    []string    `json:"filters,omitempty" yaml:"filters,omitempty"`
	Operation  ImportMode  `json:"operation,omitempty" yaml:"operation,omitempty"`
	// DeterministicGUID derives synthesized identifiers from the tenant, the
	// table and the row content instead of the clock.
	DeterministicGUID bool `json:"deterministicGuid,omitempty" yaml:"deterministicGuid,omitempty"`
}

// Mode returns the configured import mode, replace when unset.
func (s *TableSchema) Mode() ImportMode {
	if s.Operation == "" {
		return ModeReplace
	}
	return s.Operation
}

// Route splits the collection path into its hierarchy levels.
func (s *TableSchema) Route() []string {
	parts := strings.Split(s.Collection, ".")
	route := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			route = append(route, p)
		}
	}
	return route
}

// IndexOf returns the position of the field with the given target name, or -1.
func (s *TableSchema) IndexOf(name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

var targetNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the structural invariants of the schema.
func (s *TableSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("table schema without name")
	}
	if len(s.Route()) == 0 {
		return fmt.Errorf("table %s: collection path is empty", s.Name)
	}
	if s.Operation != "" && s.Operation != ModeReplace && s.Operation != ModeMerge {
		return fmt.Errorf("table %s: unknown operation %q", s.Name, s.Operation)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if !targetNamePattern.MatchString(f.Name) {
			return fmt.Errorf("table %s: field #%d has invalid name %q", s.Name, i+1, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("table %s: duplicate field name %q", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Field == "" {
			return fmt.Errorf("table %s: field %s has no source expression", s.Name, f.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("table %s: field %s has unknown type %q", s.Name, f.Name, f.Type)
		}
	}

	for _, f := range s.Fields {
		if f.SignField == "" {
			continue
		}
		if !f.Type.Numeric() {
			return fmt.Errorf("table %s: field %s is not numeric but declares signField", s.Name, f.Name)
		}
		idx := s.IndexOf(f.SignField)
		if idx < 0 || s.Fields[idx].Type != TypeLogical {
			return fmt.Errorf("table %s: signField %q of %s must name a logical field", s.Name, f.SignField, f.Name)
		}
	}
	return nil
}

// SchemaDocument is the root of a schema file. Master datasets are listed
// before transaction datasets and are synced in that order.
type SchemaDocument struct {
	Version     string        `json:"version" yaml:"version"`
	Master      []TableSchema `json:"master" yaml:"master"`
	Transaction []TableSchema `json:"transaction" yaml:"transaction"`
}

// Tables returns all datasets in document order.
func (d *SchemaDocument) Tables() []TableSchema {
	out := make([]TableSchema, 0, len(d.Master)+len(d.Transaction))
	out = append(out, d.Master...)
	return append(out, d.Transaction...)
}

// LoadSchemaDocument parses a schema document in YAML or JSON form.
func LoadSchemaDocument(data []byte, yamlFormat bool) (*SchemaDocument, error) {
	var d SchemaDocument
	if yamlFormat {
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
