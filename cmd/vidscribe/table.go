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

// wideColumnMax caps free-text columns such as search excerpts.
const wideColumnMax = 72

type tableSpec struct {
	headers []string
	aligns  []columnAlignment
	// wrap lists 1-based columns whose text wraps at wideColumnMax.
	wrap []int
}

func renderTable(layout tableSpec, rows [][]string) string {
	columns := len(layout.headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range layout.headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		cc := table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
		}
		if i < len(layout.aligns) && layout.aligns[i] == alignRight {
			cc.Align = text.AlignRight
		}
		for _, n := range layout.wrap {
			if n == i+1 {
				cc.WidthMax = wideColumnMax
				cc.WidthMaxEnforcer = text.WrapSoft
			}
		}
		columnConfigs = append(columnConfigs, cc)
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
