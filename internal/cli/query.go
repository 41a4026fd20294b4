package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dbsync/internal/ir"
	"github.com/roach88/dbsync/internal/queryir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Where []string // field=value
	Sort  []string // field or -field
	Limit int
	First bool
	Count bool
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Entity  string      `json:"entity"`
	Count   int64       `json:"count"`
	Records []ir.Record `json:"records,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Fetch committed entities",
		Long: `Fetch committed entities of one type, descendants included.

Filters are field=value equalities joined with AND. Values are parsed
against the field's declared type; "null" matches absent fields.
Records print one canonical JSON object per line.

Examples:
  dbsync query Pet --where name=Rex
  dbsync query Pet --sort -id --limit 10
  dbsync query Owner --count`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter as field=value (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "sort keys; prefix with - for descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.First, "first", false, "return only the first match")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matches instead of records")

	return cmd
}

func runQuery(opts *QueryOptions, entity string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openSession(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	q := queryir.Select{
		From:  entity,
		Sort:  parseSortKeys(opts.Sort),
		Limit: opts.Limit,
	}
	if opts.First {
		q.Limit = 1
	}
	q.Filter, err = buildWhere(s.provider.Schema(), entity, opts.Where)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid --where", err)
	}

	reader := s.store.ReadContext()
	ctx := cmd.Context()

	if opts.Count {
		n, err := reader.Count(ctx, q)
		if err != nil {
			return formatter.Fail(ExitFailure, OperationErrorCode(err), "count failed", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(QueryResult{Entity: entity, Count: n})
		}
		fmt.Fprintln(formatter.Writer, n)
		return nil
	}

	entities, err := reader.Fetch(ctx, q)
	if err != nil {
		return formatter.Fail(ExitFailure, OperationErrorCode(err), "query failed", err)
	}
	records := s.provider.EntityMapper().ExportAll(entities)
	formatter.VerboseLog("Fetched %d %s record(s)", len(records), entity)

	if formatter.Format == "json" {
		return formatter.Success(QueryResult{Entity: entity, Count: int64(len(records)), Records: records})
	}
	for _, rec := range records {
		line, err := ir.MarshalCanonical(rec)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "cannot encode record", err)
		}
		fmt.Fprintln(formatter.Writer, string(line))
	}
	return nil
}

func parseSortKeys(specs []string) []queryir.SortKey {
	keys := make([]queryir.SortKey, 0, len(specs))
	for _, spec := range specs {
		if field, ok := strings.CutPrefix(spec, "-"); ok {
			keys = append(keys, queryir.Desc(field))
			continue
		}
		keys = append(keys, queryir.Asc(strings.TrimPrefix(spec, "+")))
	}
	return keys
}

// buildWhere turns field=value clauses into an Equals predicate, or an And
// of them. Unknown fields are passed through for the store to reject.
func buildWhere(schema *ir.Schema, entity string, clauses []string) (queryir.Predicate, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	es, _ := schema.Lookup(entity)

	preds := make([]queryir.Predicate, 0, len(clauses))
	for _, clause := range clauses {
		field, raw, ok := strings.Cut(clause, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%q is not field=value", clause)
		}
		v, err := whereValue(es, field, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		preds = append(preds, queryir.Equals{Field: field, Value: v})
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return queryir.And{Predicates: preds}, nil
}

func whereValue(es ir.EntitySchema, field, raw string) (ir.IRValue, error) {
	if raw == "null" {
		return ir.IRNull{}, nil
	}
	f, ok := es.Field(field)
	if !ok {
		return ir.FromGo(parseLiteral(raw))
	}
	if f.Name == es.PrimaryKey {
		v, _, err := ir.CanonicalKey(f.Type, raw)
		return v, err
	}
	if f.Type == ir.FieldString {
		return ir.IRString(raw), nil
	}
	return ir.Coerce(f.Type, parseLiteral(raw))
}
