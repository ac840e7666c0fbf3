package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableColumn describes one rendered column. Cells wider than MaxWidth are
// soft-wrapped; zero means unbounded.
type tableColumn struct {
	Header   string
	Align    columnAlignment
	MaxWidth int
}

func col(header string) tableColumn { return tableColumn{Header: header} }

func numCol(header string) tableColumn { return tableColumn{Header: header, Align: alignRight} }

func wrapCol(header string, width int) tableColumn {
	return tableColumn{Header: header, MaxWidth: width}
}

func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.Header
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.Align == alignRight {
			cfg.Align = text.AlignRight
		}
		if c.MaxWidth > 0 {
			cfg.WidthMax = c.MaxWidth
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
