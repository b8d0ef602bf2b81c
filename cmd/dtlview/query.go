package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/dtlview"
)

var (
	flagOffset int
	flagLimit  int
)

var snapshotAtCmd = &cobra.Command{
	Use:   "snapshot-at <line> <col>",
	Short: "Find the most specific snapshot covering a source position",
	Args:  cobra.ExactArgs(2),
	RunE:  runSnapshotAt,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <id>",
	Short: "Show a snapshot by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshot,
}

var arraysCmd = &cobra.Command{
	Use:   "arrays",
	Short: "List every array the manifest references",
	Args:  cobra.NoArgs,
	RunE:  runArrays,
}

var schemaCmd = &cobra.Command{
	Use:   "schema <id>",
	Short: "Show the column names and types of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchema,
}

var lengthCmd = &cobra.Command{
	Use:   "length <id>",
	Short: "Count the rows of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runLength,
}

var dataCmd = &cobra.Command{
	Use:   "data <id>",
	Short: "Read a page of snapshot rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runData,
}

func init() {
	dataCmd.Flags().IntVar(&flagOffset, "offset", 0, "first row to read")
	dataCmd.Flags().IntVar(&flagLimit, "limit", 50, "rows to read (negative reads to the end)")
}

// --- Helpers ---

// loadManifest loads the manifest named by --manifest.
func loadManifest(ctx context.Context) (*dtlview.Manifest, error) {
	if flagManifest == "" {
		return nil, errors.New("no manifest: set --manifest or DTLVIEW_MANIFEST")
	}
	return dtlview.LoadManifest(ctx, flagManifest, dtlview.WithLogger(logger))
}

// openSession opens a session over --manifest and --store on a fresh
// engine. The caller closes it.
func openSession(ctx context.Context) (*dtlview.Session, error) {
	if flagManifest == "" {
		return nil, errors.New("no manifest: set --manifest or DTLVIEW_MANIFEST")
	}
	if flagStore == "" {
		return nil, errors.New("no array store: set --store or DTLVIEW_STORE")
	}
	eng, err := dtlview.OpenSQLite(flagDB, dtlview.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return dtlview.OpenSession(ctx, flagManifest, flagStore, eng, dtlview.WithLogger(logger))
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// outputResult writes a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(stdout, result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// --- Commands ---

func runSnapshotAt(cmd *cobra.Command, args []string) error {
	line, err := parseIntArg(args[0], "line")
	if err != nil {
		return outputError("snapshot-at", err)
	}
	col, err := parseIntArg(args[1], "col")
	if err != nil {
		return outputError("snapshot-at", err)
	}

	m, err := loadManifest(cmd.Context())
	if err != nil {
		return outputError("snapshot-at", err)
	}
	snap, err := m.SnapshotByRowColumn(line, col)
	if err != nil {
		return outputError("snapshot-at", fmt.Errorf("looking up %d:%d: %w", line, col, err))
	}
	if snap == nil {
		return outputResult(CLIResult{Command: "snapshot-at", Results: nil})
	}
	return outputResult(CLIResult{Command: "snapshot-at", Results: snapshotToCLI(snap)})
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	id, err := parseIntArg(args[0], "id")
	if err != nil {
		return outputError("snapshot", err)
	}
	m, err := loadManifest(cmd.Context())
	if err != nil {
		return outputError("snapshot", err)
	}
	snap, err := m.SnapshotByID(id)
	if err != nil {
		return outputError("snapshot", fmt.Errorf("snapshot %d: %w", id, err))
	}
	return outputResult(CLIResult{Command: "snapshot", Results: snapshotToCLI(snap)})
}

func runArrays(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd.Context())
	if err != nil {
		return outputError("arrays", err)
	}
	ids := m.ReferencedArrays().Sorted()
	total := len(ids)
	return outputResult(CLIResult{Command: "arrays", Results: CLIArrays(ids), TotalCount: &total})
}

func runSchema(cmd *cobra.Command, args []string) error {
	id, err := parseIntArg(args[0], "id")
	if err != nil {
		return outputError("schema", err)
	}
	s, err := openSession(cmd.Context())
	if err != nil {
		return outputError("schema", err)
	}
	defer s.Close()

	fields, err := s.Query().Schema(cmd.Context(), id)
	if err != nil {
		return outputError("schema", err)
	}
	return outputResult(CLIResult{Command: "schema", Results: fieldsToCLI(fields)})
}

func runLength(cmd *cobra.Command, args []string) error {
	id, err := parseIntArg(args[0], "id")
	if err != nil {
		return outputError("length", err)
	}
	s, err := openSession(cmd.Context())
	if err != nil {
		return outputError("length", err)
	}
	defer s.Close()

	n, err := s.Query().Length(cmd.Context(), id)
	if err != nil {
		return outputError("length", err)
	}
	return outputResult(CLIResult{Command: "length", Results: CLILength{Snapshot: id, Length: n}})
}

func runData(cmd *cobra.Command, args []string) error {
	id, err := parseIntArg(args[0], "id")
	if err != nil {
		return outputError("data", err)
	}
	if flagOffset < 0 {
		return outputError("data", fmt.Errorf("invalid offset %d: must be non-negative", flagOffset))
	}
	page := dtlview.Page{Offset: &flagOffset}
	if flagLimit >= 0 {
		page.Limit = &flagLimit
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return outputError("data", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	tbl, err := s.Query().Data(ctx, id, page)
	if err != nil {
		return outputError("data", err)
	}
	total, err := s.Query().Length(ctx, id)
	if err != nil {
		return outputError("data", err)
	}
	count := int(total)
	return outputResult(CLIResult{Command: "data", Results: tableToCLI(tbl), TotalCount: &count})
}
