package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
)

// SQLCompiler compiles QueryIR to parameterized SQL for the SQLite entity
// store.
//
// Entity fields live in a canonical JSON column and are read with
// json_extract. All values, entity names and JSON paths are parameterized,
// never interpolated. Every Select ends with ORDER BY e.seq, e.pk so results
// are deterministic and default to insertion order.
type SQLCompiler struct {
	// Schema expands an entity into its family (the entity plus descendant
	// types). A nil Schema restricts fetches to the named type.
	Schema *ir.Schema

	aliases int
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler(schema *ir.Schema) *SQLCompiler {
	return &SQLCompiler{Schema: schema}
}

// Compile converts a QueryIR query to parameterized SQL returning the
// columns entity, pk, fields, seq. Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	sel, err := selectOf(q)
	if err != nil {
		return "", nil, err
	}

	where, params, err := c.compileWhere(sel)
	if err != nil {
		return "", nil, err
	}

	orderBy, orderParams, err := c.compileOrderBy(sel.Sort)
	if err != nil {
		return "", nil, err
	}
	params = append(params, orderParams...)

	sql := "SELECT e.entity, e.pk, e.fields, e.seq FROM entities e WHERE " + where + " ORDER BY " + orderBy
	if sel.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, sel.Limit)
	}
	return sql, params, nil
}

// CompileCount converts a query into a SELECT COUNT(*) over the same rows.
// Sort and Limit are ignored.
func (c *SQLCompiler) CompileCount(q queryir.Query) (string, []any, error) {
	sel, err := selectOf(q)
	if err != nil {
		return "", nil, err
	}

	where, params, err := c.compileWhere(sel)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM entities e WHERE " + where, params, nil
}

func selectOf(q queryir.Query) (queryir.Select, error) {
	switch query := q.(type) {
	case nil:
		return queryir.Select{}, fmt.Errorf("cannot compile nil query")
	case queryir.Select:
		return query, nil
	case *queryir.Select:
		if query == nil {
			return queryir.Select{}, fmt.Errorf("cannot compile nil query")
		}
		return *query, nil
	default:
		return queryir.Select{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileWhere builds the entity-type restriction plus the filter.
func (c *SQLCompiler) compileWhere(sel queryir.Select) (string, []any, error) {
	if sel.From == "" {
		return "", nil, fmt.Errorf("select without entity")
	}
	c.aliases = 0

	family := []string{sel.From}
	if c.Schema != nil {
		if f := c.Schema.Family(sel.From); len(f) > 0 {
			family = f
		}
	}

	typeSQL, params := inList("e.entity", family)
	if sel.Filter == nil {
		return typeSQL, params, nil
	}

	filterSQL, filterParams, err := c.compilePredicate(sel.Filter, "e")
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return typeSQL + " AND " + filterSQL, append(params, filterParams...), nil
}

// compileOrderBy returns the ORDER BY clause. The insertion-order
// tiebreaker is always appended; COLLATE BINARY keeps text ordering
// deterministic across SQLite versions.
func (c *SQLCompiler) compileOrderBy(keys []queryir.SortKey) (string, []any, error) {
	var parts []string
	var params []any
	for _, key := range keys {
		field, fieldParams, err := fieldExpr("e", key.Field)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if key.Descending {
			dir = "DESC"
		}
		parts = append(parts, field+" "+dir)
		params = append(params, fieldParams...)
	}
	parts = append(parts, "e.seq ASC", "e.pk ASC COLLATE BINARY")
	return strings.Join(parts, ", "), params, nil
}

// compilePredicate compiles a predicate against the entity row aliased as
// alias. Returns (sql, params, error).
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, alias string) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred, alias)
	case *queryir.Equals:
		return c.compileEquals(*pred, alias)
	case queryir.Compare:
		return c.compileCompare(pred, alias)
	case *queryir.Compare:
		return c.compileCompare(*pred, alias)
	case queryir.In:
		return c.compileIn(pred, alias)
	case *queryir.In:
		return c.compileIn(*pred, alias)
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1", alias)
	case *queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1", alias)
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "0 = 1", alias)
	case *queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "0 = 1", alias)
	case queryir.Not:
		return c.compileNot(pred, alias)
	case *queryir.Not:
		return c.compileNot(*pred, alias)
	case queryir.Related:
		return c.compileRelated(pred, alias)
	case *queryir.Related:
		return c.compileRelated(*pred, alias)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles "field = ?". IRNull compiles to "field IS NULL",
// which also matches absent fields.
func (c *SQLCompiler) compileEquals(eq queryir.Equals, alias string) (string, []any, error) {
	field, params, err := fieldExpr(alias, eq.Field)
	if err != nil {
		return "", nil, err
	}
	if _, isNull := eq.Value.(ir.IRNull); isNull {
		return field + " IS NULL", params, nil
	}

	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", eq.Field, err)
	}
	return field + " = ?", append(params, param), nil
}

func (c *SQLCompiler) compileCompare(cmp queryir.Compare, alias string) (string, []any, error) {
	if !queryir.ValidOps[cmp.Op] {
		return "", nil, fmt.Errorf("field %q: unknown operator %q", cmp.Field, cmp.Op)
	}
	field, params, err := fieldExpr(alias, cmp.Field)
	if err != nil {
		return "", nil, err
	}
	param, err := irValueToParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", cmp.Field, err)
	}
	if param == nil {
		return "", nil, fmt.Errorf("field %q: cannot compare against null", cmp.Field)
	}
	return fmt.Sprintf("%s %s ?", field, cmp.Op), append(params, param), nil
}

func (c *SQLCompiler) compileIn(in queryir.In, alias string) (string, []any, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil
	}
	field, params, err := fieldExpr(alias, in.Field)
	if err != nil {
		return "", nil, err
	}

	placeholders := make([]string, len(in.Values))
	for i, v := range in.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %q value %d: %w", in.Field, i, err)
		}
		placeholders[i] = "?"
		params = append(params, param)
	}
	return field + " IN (" + strings.Join(placeholders, ", ") + ")", params, nil
}

func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty, alias string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := c.compilePredicate(pred, alias)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	if len(sqlParts) == 1 {
		return sqlParts[0], allParams, nil
	}
	return "(" + strings.Join(sqlParts, sep) + ")", allParams, nil
}

func (c *SQLCompiler) compileNot(not queryir.Not, alias string) (string, []any, error) {
	if not.Predicate == nil {
		return "", nil, fmt.Errorf("not: missing predicate")
	}
	sql, params, err := c.compilePredicate(not.Predicate, alias)
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", params, nil
}

// compileRelated compiles a relation traversal to an EXISTS sub-select over
// the relations table joined to the target entity rows.
func (c *SQLCompiler) compileRelated(rel queryir.Related, alias string) (string, []any, error) {
	if rel.Relation == "" {
		return "", nil, fmt.Errorf("related: missing relation name")
	}
	c.aliases++
	r := fmt.Sprintf("r%d", c.aliases)
	t := fmt.Sprintf("t%d", c.aliases)

	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM relations %[1]s JOIN entities %[2]s ON %[2]s.entity = %[1]s.target_entity AND %[2]s.pk = %[1]s.target_pk"+
			" WHERE %[1]s.entity = %[3]s.entity AND %[1]s.pk = %[3]s.pk AND %[1]s.relation = ?",
		r, t, alias)
	params := []any{rel.Relation}

	if rel.Target != nil {
		targetSQL, targetParams, err := c.compilePredicate(rel.Target, t)
		if err != nil {
			return "", nil, fmt.Errorf("relation %q: %w", rel.Relation, err)
		}
		sql += " AND " + targetSQL
		params = append(params, targetParams...)
	}
	return sql + ")", params, nil
}

// fieldExpr returns the json_extract expression reading field from the
// row aliased as alias.
func fieldExpr(alias, field string) (string, []any, error) {
	if field == "" {
		return "", nil, fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(field, "\"\\") {
		return "", nil, fmt.Errorf("invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(%s.fields, ?)", alias), []any{JSONPath(field)}, nil
}

// JSONPath returns the SQLite JSON path addressing a top-level field.
func JSONPath(field string) string {
	return `$."` + field + `"`
}

func inList(column string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	params := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		params[i] = v
	}
	return column + " IN (" + strings.Join(placeholders, ", ") + ")", params
}

// irValueToParam converts an ir.IRValue to a Go native type for a SQL
// parameter. Booleans bind as 1/0 because json_extract returns JSON
// true/false as integers. Arrays and objects bind as their canonical JSON,
// which is how json_extract returns stored sub-documents.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray, ir.IRObject:
		data, err := ir.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
