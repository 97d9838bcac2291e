package models

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is the declared type of an entity field
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldTimestamp FieldType = "timestamp"
)

// FieldSpec describes one business field of an entity.
// Name is the key in the exporter's JSON; Column is the storage column.
// A field with an empty Column is archived but never persisted.
type FieldSpec struct {
	Name     string    `json:"name"`
	Column   string    `json:"column,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Persisted reports whether the field maps to a storage column
func (f FieldSpec) Persisted() bool {
	return f.Column != ""
}

// Entity is the configuration record for one ingestible table.
type Entity struct {
	// Slug is the route segment, e.g. "cgst"
	Slug string `json:"slug"`

	// Table is the storage table name
	Table string `json:"table"`

	// ExportTag is the value the exporter puts in the payload's "name" field
	ExportTag string `json:"export_tag"`

	// PrimaryKey is the internal_id column name
	PrimaryKey string `json:"primary_key"`

	StorageDir string      `json:"storage_dir"`
	FileSuffix string      `json:"file_suffix"`
	Singular   string      `json:"singular"`
	Plural     string      `json:"plural"`
	Fields     []FieldSpec `json:"fields"`
}

// Mapper converts a validated item into storage column values.
// It is the one per-entity hook of the pipeline.
type Mapper interface {
	MapFields(item *ValidatedItem) map[string]interface{}
}

// MapFields returns the persisted columns of item, keyed by column name.
// Absent optional fields map to nil so a full-replacement update clears them.
func (e *Entity) MapFields(item *ValidatedItem) map[string]interface{} {
	cols := make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		if !f.Persisted() {
			continue
		}
		cols[f.Column] = item.Values[f.Name]
	}
	return cols
}

// Columns returns the persisted column names in declaration order.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Persisted() {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Field looks up a field spec by JSON name.
func (e *Entity) Field(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Registry resolves entities by slug or export tag.
type Registry struct {
	bySlug map[string]*Entity
	order  []string
}

// NewRegistry indexes the given entities. Slugs and tables must be unique.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{bySlug: make(map[string]*Entity, len(entities))}
	tables := make(map[string]bool, len(entities))
	for _, e := range entities {
		if e.Slug == "" || e.Table == "" || e.PrimaryKey == "" {
			return nil, fmt.Errorf("entity %q: slug, table and primary key are required", e.Slug)
		}
		if _, dup := r.bySlug[e.Slug]; dup {
			return nil, fmt.Errorf("duplicate entity slug %q", e.Slug)
		}
		if tables[e.Table] {
			return nil, fmt.Errorf("duplicate entity table %q", e.Table)
		}
		tables[e.Table] = true
		r.bySlug[e.Slug] = e
		r.order = append(r.order, e.Slug)
	}
	sort.Strings(r.order)
	return r, nil
}

// Get returns the entity registered under slug.
func (r *Registry) Get(slug string) (*Entity, bool) {
	e, ok := r.bySlug[strings.ToLower(slug)]
	return e, ok
}

// All returns every entity sorted by slug.
func (r *Registry) All() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}
