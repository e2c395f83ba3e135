package experiment

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
)

// RenderTable formats results as a console table. The row of the best
// model is highlighted.
func RenderTable(results []Result) string {
	best := BestResult(results)
	highlight := color.New(color.FgGreen, color.Bold).SprintFunc()

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Model", "Sub", "CV accuracy", "Accuracy", "MSE", "Time (s)", "Best params"})
	for i, res := range results {
		fields := res.SummaryFields()
		row := table.Row{
			fields[0],
			fields[1],
			decimal.NewFromFloat(res.BestCVScore).StringFixed(3),
			fields[2],
			fields[3],
			fields[4],
			formatParams(res.BestParams),
		}
		if i == best {
			for j := range row {
				row[j] = highlight(row[j])
			}
		}
		t.AppendRow(row)
	}
	return t.Render()
}
