package queryir

import "github.com/roach88/dbsync/internal/ir"

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal (IRNull matches absent or null fields)
//   - Compare: field <op> literal
//   - In: field is one of a literal set
//   - And, Or, Not: boolean composition
//   - Related: at least one entity reached through a relation matches
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select fetches entities of one type.
//
// Semantics:
//
//	SELECT <entities of From and its descendants>
//	WHERE <filter> ORDER BY <sort>, insertion order LIMIT <limit>
//
// Results always end in insertion order, so a Select without Sort returns
// entities in the order they were first saved.
type Select struct {
	From   string    // Entity type name
	Filter Predicate // nil = no filter
	Sort   []SortKey // Applied before the insertion-order tiebreaker
	Limit  int       // 0 = unlimited
}

func (Select) queryNode() {}

// SortKey orders results by one field.
type SortKey struct {
	Field      string
	Descending bool
}

// Asc returns an ascending sort key.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc returns a descending sort key.
func Desc(field string) SortKey { return SortKey{Field: field, Descending: true} }

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "name", Value: ir.IRString("Rex")}
//
// An IRNull value matches entities where the field is absent or null.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// ValidOps lists the supported comparison operators.
var ValidOps = map[Op]bool{
	OpNe: true,
	OpLt: true,
	OpLe: true,
	OpGt: true,
	OpGe: true,
}

// Compare represents an ordered comparison against a scalar literal.
// Entities where the field is absent never match.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// In matches entities whose field equals any of Values.
// An empty Values set matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// Empty Predicates slice means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates (at least one must be true).
// Empty Predicates slice means "never true".
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Related matches entities with at least one entity reachable through
// Relation for which Target holds. A nil Target matches any related entity.
//
// Example (owners having a pet whose id is 7):
//
//	Related{Relation: "pets", Target: In{Field: "id", Values: []ir.IRValue{ir.IRInt(7)}}}
type Related struct {
	Relation string
	Target   Predicate
}

func (Related) predicateNode() {}
