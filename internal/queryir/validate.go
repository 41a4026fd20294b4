package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dbsync/internal/ir"
)

// ValidationResult contains the problems found in a query.
type ValidationResult struct {
	// Valid is true when the query can be compiled against the schema.
	Valid bool

	// Problems lists every issue found, in traversal order.
	Problems []string
}

// Err returns nil for a valid result, otherwise an error joining every problem.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Problems, "; "))
}

// Validate checks a query against the entity schema.
//
// Rules:
//  1. From names a registered entity type
//  2. Every field referenced by a predicate or sort key is declared on the
//     entity the predicate applies to (inherited fields included)
//  3. Related names a declared relation; its Target is checked against the
//     relation's target entity
//  4. Compare uses a known operator and a scalar, non-null literal
//  5. Limit is not negative
//
// Validate is a pure function with no side effects.
func Validate(schema *ir.Schema, query Query) ValidationResult {
	v := &validator{
		schema:   schema,
		problems: []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	schema   *ir.Schema
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addProblem("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if v.schema == nil {
		v.addProblem("no schema")
		return
	}
	entity, ok := v.schema.Lookup(sel.From)
	if !ok {
		v.addProblem("unknown entity %q", sel.From)
		return
	}

	if sel.Filter != nil {
		v.validatePredicate(sel.Filter, entity)
	}
	for _, key := range sel.Sort {
		v.requireField(entity, key.Field)
	}
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
}

func (v *validator) requireField(entity ir.EntitySchema, field string) {
	if _, ok := entity.Field(field); !ok {
		v.addProblem("entity %s has no field %q", entity.Name, field)
	}
}

func (v *validator) validatePredicate(p Predicate, entity ir.EntitySchema) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred, entity)
	case *Equals:
		v.validateEquals(*pred, entity)
	case Compare:
		v.validateCompare(pred, entity)
	case *Compare:
		v.validateCompare(*pred, entity)
	case In:
		v.validateIn(pred, entity)
	case *In:
		v.validateIn(*pred, entity)
	case And:
		v.validateAll(pred.Predicates, entity)
	case *And:
		v.validateAll(pred.Predicates, entity)
	case Or:
		v.validateAll(pred.Predicates, entity)
	case *Or:
		v.validateAll(pred.Predicates, entity)
	case Not:
		v.validateNot(pred, entity)
	case *Not:
		v.validateNot(*pred, entity)
	case Related:
		v.validateRelated(pred, entity)
	case *Related:
		v.validateRelated(*pred, entity)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals, entity ir.EntitySchema) {
	v.requireField(entity, eq.Field)
	if eq.Value == nil {
		v.addProblem("field %q compared to nil value", eq.Field)
	}
}

func (v *validator) validateCompare(cmp Compare, entity ir.EntitySchema) {
	v.requireField(entity, cmp.Field)
	if !ValidOps[cmp.Op] {
		v.addProblem("field %q: unknown operator %q", cmp.Field, cmp.Op)
	}
	if !isScalar(cmp.Value) {
		v.addProblem("field %q: comparison needs a scalar literal, got %T", cmp.Field, cmp.Value)
	}
}

func (v *validator) validateIn(in In, entity ir.EntitySchema) {
	v.requireField(entity, in.Field)
	for i, val := range in.Values {
		if !isScalar(val) {
			v.addProblem("field %q: value %d must be a scalar literal, got %T", in.Field, i, val)
		}
	}
}

func (v *validator) validateAll(preds []Predicate, entity ir.EntitySchema) {
	for _, sub := range preds {
		v.validatePredicate(sub, entity)
	}
}

func (v *validator) validateNot(not Not, entity ir.EntitySchema) {
	if not.Predicate == nil {
		v.addProblem("Not without predicate")
		return
	}
	v.validatePredicate(not.Predicate, entity)
}

func (v *validator) validateRelated(rel Related, entity ir.EntitySchema) {
	r, ok := entity.Relation(rel.Relation)
	if !ok {
		v.addProblem("entity %s has no relation %q", entity.Name, rel.Relation)
		return
	}
	target, ok := v.schema.Lookup(r.Target)
	if !ok {
		v.addProblem("relation %s.%s targets unknown entity %q", entity.Name, r.Name, r.Target)
		return
	}
	v.validatePredicate(rel.Target, target)
}

func isScalar(v ir.IRValue) bool {
	switch v.(type) {
	case ir.IRString, ir.IRInt, ir.IRFloat, ir.IRBool:
		return true
	default:
		return false
	}
}
