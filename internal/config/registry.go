package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

// Registry holds the datasets of a schema document in document order.
type Registry struct {
	tables []models.TableSchema
	byName map[string]int
}

// NewRegistry validates every schema and rejects duplicate names.
func NewRegistry(tables []models.TableSchema) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(tables))}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate table %q", t.Name)
		}
		r.byName[t.Name] = len(r.tables)
		r.tables = append(r.tables, t)
	}
	return r, nil
}

// LoadRegistry reads a schema document. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	doc, err := models.LoadSchemaDocument(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return NewRegistry(doc.Tables())
}

func (r *Registry) Lookup(name string) (models.TableSchema, bool) {
	i, ok := r.byName[name]
	if !ok {
		return models.TableSchema{}, false
	}
	return r.tables[i], true
}

func (r *Registry) All() []models.TableSchema {
	return append([]models.TableSchema(nil), r.tables...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}

// Select returns the named datasets in the requested order, or all of them
// when names is empty. Unknown names are an error.
func (r *Registry) Select(names []string) ([]models.TableSchema, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]models.TableSchema, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		t, ok := r.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", n)
		}
		seen[n] = true
		out = append(out, t)
	}
	return out, nil
}
