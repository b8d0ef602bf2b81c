package main

import "github.com/jward/dtlview"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLILocation is a 0-based source position.
type CLILocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CLIColumn is one snapshot column and the array backing it.
type CLIColumn struct {
	Name  string `json:"name"`
	Array string `json:"array"`
}

// CLISnapshot is a JSON-friendly snapshot.
type CLISnapshot struct {
	ID      int         `json:"id"`
	Start   CLILocation `json:"start"`
	End     CLILocation `json:"end"`
	Columns []CLIColumn `json:"columns"`
}

// CLIField is one column of a snapshot schema.
type CLIField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CLILength is a snapshot row count.
type CLILength struct {
	Snapshot int   `json:"snapshot"`
	Length   int64 `json:"length"`
}

// CLITable is a page of snapshot rows.
type CLITable struct {
	Fields []CLIField `json:"fields"`
	Rows   [][]any    `json:"rows"`
}

// CLIArrays lists array ids.
type CLIArrays []string

func snapshotToCLI(s *dtlview.Snapshot) CLISnapshot {
	out := CLISnapshot{
		ID:      s.ID,
		Start:   CLILocation{Line: s.Start.Line, Column: s.Start.Column},
		End:     CLILocation{Line: s.End.Line, Column: s.End.Column},
		Columns: make([]CLIColumn, len(s.Columns)),
	}
	for i, c := range s.Columns {
		out.Columns[i] = CLIColumn{Name: c.Name, Array: c.Array}
	}
	return out
}

func fieldsToCLI(fields []dtlview.Field) []CLIField {
	out := make([]CLIField, len(fields))
	for i, f := range fields {
		out[i] = CLIField{Name: f.Name, Type: f.Type}
	}
	return out
}

func tableToCLI(t *dtlview.Table) CLITable {
	rows := t.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return CLITable{Fields: fieldsToCLI(t.Fields), Rows: rows}
}
