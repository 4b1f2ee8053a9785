package display

import (
	"io"

	"github.com/rodaine/table"

	"github.com/daedaluz/pv/internal/format"
	"github.com/daedaluz/pv/internal/ratecalc"
)

// WriteStats renders the --show-stats final summary, one row of rate
// min/avg/max/mdev, using rodaine/table for column alignment instead of
// hand-rolled fmt.Sprintf padding.
func WriteStats(w io.Writer, stats ratecalc.Stats, bits, si bool) {
	tbl := table.New("min", "avg", "max", "mdev")
	tbl.WithWriter(w)
	tbl.AddRow(
		format.FormatRate(stats.Min, bits, si),
		format.FormatRate(stats.Avg, bits, si),
		format.FormatRate(stats.Max, bits, si),
		format.FormatRate(stats.Mdev, bits, si),
	)
	tbl.Print()
}
