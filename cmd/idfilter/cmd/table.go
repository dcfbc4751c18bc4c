package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable renders rows under headers. aligns[i] sets column i; missing
// entries are left-aligned and short rows are padded.
func renderTable(headers []string, rows [][]string, aligns ...text.Align) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) {
			configs[i].Align = aligns[i]
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderKeyValues renders label/value pairs with the values right-aligned,
// the layout of every report that describes a single run or database.
func renderKeyValues(labelHeader, valueHeader string, pairs [][2]string) string {
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return renderTable([]string{labelHeader, valueHeader}, rows, text.AlignLeft, text.AlignRight)
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
