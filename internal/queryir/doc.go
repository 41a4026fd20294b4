// Package queryir defines the abstract filter language used by entity fetches.
//
// A Select names an entity type, an optional predicate tree, sort keys and a
// limit. Predicates reference entity fields by their local schema name and
// compare them against ir.IRValue literals; Related reaches across a relation
// and applies a predicate to the related entities.
//
// The package carries no SQL. Backends (see querysql) switch exhaustively on
// the sealed Predicate and Query interfaces. Validate checks a query against
// an ir.Schema before it is compiled.
package queryir
