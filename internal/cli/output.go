package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/collection"
	"github.com/Sternrassler/crm-client/pkg/crm"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

type pageOutput[T any] struct {
	Data       []T               `json:"data" yaml:"data"`
	Pagination client.Pagination `json:"pagination" yaml:"pagination"`
}

func validateFormat(format string, allowed ...string) error {
	if slices.Contains(allowed, format) {
		return nil
	}
	return fmt.Errorf("unsupported output format %q (want %s)", format, strings.Join(allowed, ", "))
}

// writePage prints one page with its pagination block or summary line.
func writePage[T crm.Record](w io.Writer, format string, d crm.Descriptor, page collection.Page[T], lang language.Tag) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, pageOutput[T]{Data: nonNil(page.Items), Pagination: client.PaginationOf(page)})
	case FormatYAML:
		return writeYAML(w, pageOutput[T]{Data: nonNil(page.Items), Pagination: client.PaginationOf(page)})
	case FormatTable:
		if _, err := fmt.Fprintln(w, renderTable(d.Columns, page.Items)); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, collection.Summary(collection.Printer(lang), page))
		return err
	default:
		return validateFormat(format, FormatTable, FormatJSON, FormatYAML)
	}
}

// writeItems prints a flat item list.
func writeItems[T crm.Record](w io.Writer, format string, d crm.Descriptor, items []T) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, nonNil(items))
	case FormatYAML:
		return writeYAML(w, nonNil(items))
	case FormatTable:
		_, err := fmt.Fprintln(w, renderTable(d.Columns, items))
		return err
	default:
		return validateFormat(format, FormatJSON, FormatYAML, FormatTable)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func renderTable[T crm.Record](columns []string, items []T) string {
	rows := make([][]string, len(items))
	for i, item := range items {
		rows[i] = item.Cells()
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
