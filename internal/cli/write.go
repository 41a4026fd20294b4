package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dbsync/internal/inbox"
	"github.com/roach88/dbsync/internal/result"
)

// WriteResult is the JSON payload of a successful write command.
type WriteResult struct {
	Operation string `json:"operation"`
	Entity    string `json:"entity,omitempty"`
	Count     int    `json:"count"`
}

// NewMapCommand creates the map command.
func NewMapCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <entity> [file|-]",
		Short: "Map JSON records onto entities",
		Long: `Map a JSON object or array of objects onto entities of one type.

Records are read from the given file, or from stdin when the file is
omitted or "-". The whole batch is applied in one write context: either
every record is saved or none is.

Examples:
  dbsync map Pet pets.json --schema ./schema
  echo '{"id": 1, "name": "Rex"}' | dbsync map Pet`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 2 {
				source = args[1]
			}
			return runMap(rootOpts, args[0], source, cmd)
		},
	}
	return cmd
}

func runMap(opts *RootOptions, entity, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := readSource(source, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot read %s", source), err)
	}
	records, err := inbox.DecodeRecords(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid input records", err)
	}

	s, err := openSession(opts, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	formatter.VerboseLog("Mapping %d record(s) onto %s", len(records), entity)
	if err := awaitWrite(cmd, s.provider.MapBatch(entity, records)); err != nil {
		return formatter.Fail(ExitFailure, OperationErrorCode(err), "map failed", err)
	}
	return outputWrite(formatter, WriteResult{Operation: "map", Entity: entity, Count: len(records)})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <entity> <id>...",
		Short: "Delete entities by primary key",
		Long: `Delete entities of one type by primary key.

Keys that match no entity are ignored. Ids are parsed as JSON numbers
when possible and used as strings otherwise.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], args[1:], cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, entity string, rawIDs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	ids := make([]any, len(rawIDs))
	for i, raw := range rawIDs {
		ids[i] = parseLiteral(raw)
	}

	s, err := openSession(opts, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := awaitWrite(cmd, s.provider.DeleteByIDs(entity, ids)); err != nil {
		return formatter.Fail(ExitFailure, OperationErrorCode(err), "delete failed", err)
	}
	return outputWrite(formatter, WriteResult{Operation: "delete", Entity: entity, Count: len(ids)})
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every entity of every type",
		Long: `Delete every entity of every registered type in one write context.

Types named by --exclude are kept, together with their ancestors and
descendants.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(rootOpts, exclude, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "entity types to keep")
	return cmd
}

func runPurge(opts *RootOptions, exclude []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, formatter)
	if err != nil {
		return err
	}
	defer s.Close()

	sch := s.provider.Schema()
	purged := 0
	for _, name := range sch.Names() {
		if !slices.ContainsFunc(exclude, func(ex string) bool { return sch.Related(name, ex) }) {
			purged++
		}
	}

	if err := awaitWrite(cmd, s.provider.Purge(exclude...)); err != nil {
		return formatter.Fail(ExitFailure, OperationErrorCode(err), "purge failed", err)
	}
	return outputWrite(formatter, WriteResult{Operation: "purge", Count: purged})
}

// awaitWrite blocks until the write settles or the command is cancelled.
func awaitWrite(cmd *cobra.Command, ch *result.Channel) error {
	return ch.Wait(cmd.Context())
}

func outputWrite(formatter *OutputFormatter, res WriteResult) error {
	if formatter.Format == "json" {
		return formatter.Success(res)
	}
	if res.Entity != "" {
		fmt.Fprintf(formatter.Writer, "✓ %s %s: %d\n", res.Operation, res.Entity, res.Count)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ %s: %d type(s)\n", res.Operation, res.Count)
	}
	return nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func readSource(source string, stdin io.Reader) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(source)
}

// parseLiteral reads a command-line value as a JSON scalar, falling back to
// the raw string.
func parseLiteral(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any, nil:
		return raw
	}
	return v
}
