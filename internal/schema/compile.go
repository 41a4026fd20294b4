package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dbsync/internal/ir"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile extracts every entity under the top-level "entity" struct of v,
// in declaration order. A value without entities compiles to nil.
func Compile(v cue.Value) ([]ir.EntitySchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, nil
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []ir.EntitySchema
	for iter.Next() {
		es, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, *es)
	}
	return entities, nil
}

// CompileEntity parses one entity struct. The entity name is the last
// path selector, e.g. Pet for entity.Pet.
func CompileEntity(v cue.Value) (*ir.EntitySchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	es := &ir.EntitySchema{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		es.Name = labels[len(labels)-1].String()
	}

	var err error
	if es.Parent, err = optionalString(v, "parent"); err != nil {
		return nil, err
	}
	if es.PrimaryKey, err = optionalString(v, "primary_key"); err != nil {
		return nil, err
	}
	if es.PrimaryKey == "" && es.Parent == "" {
		return nil, &CompileError{
			Field:   "entity." + es.Name + ".primary_key",
			Message: "primary_key is required for entities without a parent",
			Pos:     v.Pos(),
		}
	}

	if es.Fields, err = parseFields(es.Name, v); err != nil {
		return nil, err
	}
	if es.Relations, err = parseRelations(es.Name, v); err != nil {
		return nil, err
	}
	return es, nil
}

func parseFields(entity string, v cue.Value) ([]ir.FieldSchema, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.FieldSchema
	for iter.Next() {
		f := ir.FieldSchema{Name: iter.Label()}
		fv := iter.Value()
		path := fmt.Sprintf("entity.%s.fields.%s", entity, f.Name)

		if isSpecStruct(fv, "type") {
			if f.Type, err = typeName(path, fv.LookupPath(cue.ParsePath("type"))); err != nil {
				return nil, err
			}
			if f.Key, err = optionalString(fv, "key"); err != nil {
				return nil, err
			}
			if f.Required, err = optionalBool(fv, "required"); err != nil {
				return nil, err
			}
		} else if f.Type, err = typeName(path, fv); err != nil {
			return nil, err
		}

		fields = append(fields, f)
	}
	return fields, nil
}

func parseRelations(entity string, v cue.Value) ([]ir.RelationSchema, error) {
	relVal := v.LookupPath(cue.ParsePath("relations"))
	if !relVal.Exists() {
		return nil, nil
	}

	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var relations []ir.RelationSchema
	for iter.Next() {
		r := ir.RelationSchema{Name: iter.Label()}
		rv := iter.Value()

		if target, err := rv.String(); err == nil {
			r.Target = target
			relations = append(relations, r)
			continue
		}

		if !isSpecStruct(rv, "target") {
			return nil, &CompileError{
				Field:   fmt.Sprintf("entity.%s.relations.%s", entity, r.Name),
				Message: "must be a target entity name or a struct with a target field",
				Pos:     rv.Pos(),
			}
		}
		if r.Target, err = optionalString(rv, "target"); err != nil {
			return nil, err
		}
		if r.Key, err = optionalString(rv, "key"); err != nil {
			return nil, err
		}
		if r.ToMany, err = optionalBool(rv, "many"); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, nil
}

// typeName converts a CUE type, or a concrete type-name string, into a
// field type.
func typeName(path string, v cue.Value) (ir.FieldType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		ft := ir.FieldType(name)
		if !ir.ValidFieldTypes[ft] {
			return "", &CompileError{
				Field:   path,
				Message: fmt.Sprintf("unknown field type %q", name),
				Pos:     v.Pos(),
			}
		}
		return ft, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.FieldString, nil
	case cue.IntKind:
		return ir.FieldInt, nil
	case cue.FloatKind, cue.NumberKind:
		return ir.FieldFloat, nil
	case cue.BoolKind:
		return ir.FieldBool, nil
	case cue.ListKind:
		return ir.FieldArray, nil
	case cue.StructKind:
		return ir.FieldObject, nil
	case cue.TopKind:
		return ir.FieldAny, nil
	default:
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// isSpecStruct reports whether v is a struct carrying the marker field,
// as opposed to a bare type such as {...}.
func isSpecStruct(v cue.Value, marker string) bool {
	return v.IncompleteKind() == cue.StructKind && v.LookupPath(cue.ParsePath(marker)).Exists()
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
