package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatSnapshotText formats a snapshot as a header line plus its columns.
func formatSnapshotText(w io.Writer, s CLISnapshot) {
	fmt.Fprintf(w, "Snapshot %d [%d:%d, %d:%d)\n",
		s.ID, s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
	if len(s.Columns) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  COLUMN\tARRAY")
	for _, c := range s.Columns {
		fmt.Fprintf(tw, "  %s\t%s\n", c.Name, c.Array)
	}
	tw.Flush()
}

// formatFieldsText formats a schema as aligned columns.
func formatFieldsText(w io.Writer, fields []CLIField) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE")
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", f.Name, f.Type)
	}
	tw.Flush()
}

// formatTableText formats rows under a header of column names.
func formatTableText(w io.Writer, t CLITable) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = strings.ToUpper(f.Name)
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func formatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("%x", c)
	default:
		return fmt.Sprint(c)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLISnapshot:
		formatSnapshotText(w, v)
	case []CLIField:
		formatFieldsText(w, v)
	case CLILength:
		fmt.Fprintln(w, v.Length)
	case CLITable:
		formatTableText(w, v)
	case CLIArrays:
		for _, id := range v {
			fmt.Fprintln(w, id)
		}
	case nil:
		// No output for nil results (e.g., snapshot-at with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d rows\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the number of rows or items in a result.
func resultLen(v any) int {
	switch r := v.(type) {
	case CLITable:
		return len(r.Rows)
	case CLIArrays:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
