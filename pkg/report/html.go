package report

import (
	"fmt"
	"html/template"
	"io"
)

var (
	headerTemplate = template.Must(template.New("header").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Vocabulary tree matches</title>
<style>
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 4px; font-family: monospace; }
</style>
</head>
<body>
<table>
<tr><th>Query</th>{{range .}}<th>#{{.}}</th>{{end}}</tr>
`))

	rowTemplate = template.Must(template.New("row").Parse(
		`<tr><td>{{.Query}}</td>{{range .Candidates}}<td>{{.File}}<br>{{printf "%.6f" .Distance}}</td>{{end}}</tr>
`))

	footerTemplate = template.Must(template.New("footer").Parse(`</table>
</body>
</html>
`))
)

// HTMLWriter writes matching results as one HTML table row per query.
// The header is written by NewHTMLWriter and the footer by Close.
type HTMLWriter struct {
	w      io.Writer
	top    int
	closed bool
}

// NewHTMLWriter writes the page header with top candidate columns
func NewHTMLWriter(w io.Writer, top int) (*HTMLWriter, error) {
	columns := make([]int, top)
	for i := range columns {
		columns[i] = i + 1
	}
	if err := headerTemplate.Execute(w, columns); err != nil {
		return nil, fmt.Errorf("write html header: %w", err)
	}
	return &HTMLWriter{w: w, top: top}, nil
}

// WriteRow writes the first top candidates of a query
func (h *HTMLWriter) WriteRow(query string, ranked []Candidate) error {
	if h.closed {
		return fmt.Errorf("html writer closed")
	}
	if len(ranked) > h.top {
		ranked = ranked[:h.top]
	}
	data := struct {
		Query      string
		Candidates []Candidate
	}{query, ranked}
	if err := rowTemplate.Execute(h.w, data); err != nil {
		return fmt.Errorf("write html row: %w", err)
	}
	return nil
}

// Close writes the page footer. It does not close the underlying writer.
func (h *HTMLWriter) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := footerTemplate.Execute(h.w, nil); err != nil {
		return fmt.Errorf("write html footer: %w", err)
	}
	return nil
}
