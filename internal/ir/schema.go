package ir

import (
	"fmt"
	"slices"
)

// FieldType names the value type an entity field accepts.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldObject FieldType = "object"
	FieldArray  FieldType = "array"
	FieldAny    FieldType = "any"
)

// ValidFieldTypes lists the accepted field types.
var ValidFieldTypes = map[FieldType]bool{
	FieldString: true,
	FieldInt:    true,
	FieldFloat:  true,
	FieldBool:   true,
	FieldObject: true,
	FieldArray:  true,
	FieldAny:    true,
}

// FieldSchema describes one mapped attribute.
type FieldSchema struct {
	Name     string    `json:"name"`
	Key      string    `json:"key,omitempty"` // Record key, defaults to Name
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// RemoteKey returns the record key this field is read from.
func (f FieldSchema) RemoteKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// RelationSchema describes a relationship to another entity type.
type RelationSchema struct {
	Name   string `json:"name"`
	Key    string `json:"key,omitempty"` // Record key, defaults to Name
	Target string `json:"target"`
	ToMany bool   `json:"to_many,omitempty"`
}

// RemoteKey returns the record key this relation is read from.
func (r RelationSchema) RemoteKey() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Name
}

// EntitySchema is a caller-supplied entity definition.
//
// Parent names the entity this one specialises. A child inherits the
// parent's primary key, fields and relations and may add its own.
type EntitySchema struct {
	Name       string           `json:"name"`
	Parent     string           `json:"parent,omitempty"`
	PrimaryKey string           `json:"primary_key"`
	Fields     []FieldSchema    `json:"fields"`
	Relations  []RelationSchema `json:"relations,omitempty"`
}

// Field returns the field with the given local name.
func (s EntitySchema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Relation returns the relation with the given name.
func (s EntitySchema) Relation(name string) (RelationSchema, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return RelationSchema{}, false
}

// KeyField returns the primary-key field.
func (s EntitySchema) KeyField() FieldSchema {
	f, _ := s.Field(s.PrimaryKey)
	return f
}

// SchemaError reports an invalid entity definition.
type SchemaError struct {
	Entity  string
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema %s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("schema %s: %s", e.Entity, e.Message)
}

// Schema is a flat registry of entity definitions.
//
// Entities keep their declaration order; inheritance is expressed through
// Parent tags instead of a type hierarchy. A Schema is immutable after
// NewSchema returns and safe for concurrent use.
type Schema struct {
	entities []EntitySchema
	index    map[string]int
}

// NewSchema validates the definitions and resolves inheritance.
func NewSchema(entities ...EntitySchema) (*Schema, error) {
	declared := make(map[string]EntitySchema, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			return nil, &SchemaError{Message: "entity name is required"}
		}
		if _, dup := declared[e.Name]; dup {
			return nil, &SchemaError{Entity: e.Name, Message: "duplicate entity"}
		}
		declared[e.Name] = e
	}

	s := &Schema{
		entities: make([]EntitySchema, 0, len(entities)),
		index:    make(map[string]int, len(entities)),
	}
	resolved := make(map[string]EntitySchema, len(entities))
	for _, e := range entities {
		r, err := resolveEntity(e.Name, declared, resolved, nil)
		if err != nil {
			return nil, err
		}
		s.index[e.Name] = len(s.entities)
		s.entities = append(s.entities, r)
	}

	for _, e := range s.entities {
		if err := validateEntity(e, declared); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSchema is NewSchema for static definitions; it panics on error.
func MustSchema(entities ...EntitySchema) *Schema {
	s, err := NewSchema(entities...)
	if err != nil {
		panic(err)
	}
	return s
}

func resolveEntity(name string, declared, resolved map[string]EntitySchema, visiting []string) (EntitySchema, error) {
	if r, ok := resolved[name]; ok {
		return r, nil
	}
	if slices.Contains(visiting, name) {
		return EntitySchema{}, &SchemaError{Entity: name, Message: fmt.Sprintf("inheritance cycle %v", append(visiting, name))}
	}
	e := declared[name]
	if e.Parent == "" {
		r := copyEntity(e)
		resolved[name] = r
		return r, nil
	}

	if _, ok := declared[e.Parent]; !ok {
		return EntitySchema{}, &SchemaError{Entity: name, Message: fmt.Sprintf("unknown parent %q", e.Parent)}
	}
	parent, err := resolveEntity(e.Parent, declared, resolved, append(visiting, name))
	if err != nil {
		return EntitySchema{}, err
	}

	r := EntitySchema{
		Name:       e.Name,
		Parent:     e.Parent,
		PrimaryKey: e.PrimaryKey,
	}
	if r.PrimaryKey == "" {
		r.PrimaryKey = parent.PrimaryKey
	}
	r.Fields = mergeFields(parent.Fields, e.Fields)
	r.Relations = mergeRelations(parent.Relations, e.Relations)
	resolved[name] = r
	return r, nil
}

func copyEntity(e EntitySchema) EntitySchema {
	cp := e
	cp.Fields = slices.Clone(e.Fields)
	cp.Relations = slices.Clone(e.Relations)
	return cp
}

func mergeFields(inherited, own []FieldSchema) []FieldSchema {
	out := slices.Clone(inherited)
	for _, f := range own {
		if i := slices.IndexFunc(out, func(x FieldSchema) bool { return x.Name == f.Name }); i >= 0 {
			out[i] = f
			continue
		}
		out = append(out, f)
	}
	return out
}

func mergeRelations(inherited, own []RelationSchema) []RelationSchema {
	out := slices.Clone(inherited)
	for _, r := range own {
		if i := slices.IndexFunc(out, func(x RelationSchema) bool { return x.Name == r.Name }); i >= 0 {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

func validateEntity(e EntitySchema, declared map[string]EntitySchema) error {
	if e.PrimaryKey == "" {
		return &SchemaError{Entity: e.Name, Message: "primary_key is required"}
	}

	seen := make(map[string]bool, len(e.Fields)+len(e.Relations))
	for _, f := range e.Fields {
		if f.Name == "" {
			return &SchemaError{Entity: e.Name, Message: "field name is required"}
		}
		if seen[f.Name] {
			return &SchemaError{Entity: e.Name, Field: f.Name, Message: "duplicate field"}
		}
		seen[f.Name] = true
		if !ValidFieldTypes[f.Type] {
			return &SchemaError{Entity: e.Name, Field: f.Name, Message: fmt.Sprintf("invalid type %q", f.Type)}
		}
	}

	pk, ok := e.Field(e.PrimaryKey)
	if !ok {
		return &SchemaError{Entity: e.Name, Field: e.PrimaryKey, Message: "primary key is not a declared field"}
	}
	if pk.Type != FieldInt && pk.Type != FieldString {
		return &SchemaError{Entity: e.Name, Field: pk.Name, Message: "primary key must be int or string"}
	}

	for _, r := range e.Relations {
		if r.Name == "" {
			return &SchemaError{Entity: e.Name, Message: "relation name is required"}
		}
		if seen[r.Name] {
			return &SchemaError{Entity: e.Name, Field: r.Name, Message: "relation name collides with another member"}
		}
		seen[r.Name] = true
		if _, ok := declared[r.Target]; !ok {
			return &SchemaError{Entity: e.Name, Field: r.Name, Message: fmt.Sprintf("unknown target %q", r.Target)}
		}
	}
	return nil
}

// EntityTypes returns every entity definition in declaration order.
func (s *Schema) EntityTypes() []EntitySchema {
	return slices.Clone(s.entities)
}

// Names returns every entity name in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.entities))
	for i, e := range s.entities {
		names[i] = e.Name
	}
	return names
}

// Lookup returns the resolved definition of an entity.
func (s *Schema) Lookup(name string) (EntitySchema, bool) {
	i, ok := s.index[name]
	if !ok {
		return EntitySchema{}, false
	}
	return s.entities[i], true
}

// IsAncestor reports whether ancestor appears in the parent chain of name.
func (s *Schema) IsAncestor(ancestor, name string) bool {
	e, ok := s.Lookup(name)
	for ok && e.Parent != "" {
		if e.Parent == ancestor {
			return true
		}
		e, ok = s.Lookup(e.Parent)
	}
	return false
}

// Related reports whether a and b are the same entity, or one descends from
// the other.
func (s *Schema) Related(a, b string) bool {
	return a == b || s.IsAncestor(a, b) || s.IsAncestor(b, a)
}

// Family returns name followed by all of its descendants in declaration
// order. Fetches against an entity include its descendants.
func (s *Schema) Family(name string) []string {
	if _, ok := s.Lookup(name); !ok {
		return nil
	}
	family := []string{name}
	for _, e := range s.entities {
		if s.IsAncestor(name, e.Name) {
			family = append(family, e.Name)
		}
	}
	return family
}
