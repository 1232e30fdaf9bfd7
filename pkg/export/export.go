// Package export renders tabular report data as CSV or PDF.
package export

import "fmt"

// Column maps a row key to its printed title.
type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Dataset defines tabular export content.
type Dataset struct {
	Title   string              `json:"title"`
	Columns []Column            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// Titles returns the column titles in order.
func (d Dataset) Titles() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Title
	}
	return out
}

// Record returns one row's values in column order.
func (d Dataset) Record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = row[c.Key]
	}
	return out
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset %q has no columns", d.Title)
	}
	return nil
}

// Renderer turns a dataset into a downloadable file.
type Renderer interface {
	Render(Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}
