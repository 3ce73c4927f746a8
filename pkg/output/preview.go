package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/mattn/go-runewidth"
)

// Column width caps for the preview table.
const (
	maxTitleWidth = 48
	maxTimeWidth  = 20
	maxLinkWidth  = 60
)

// RenderPreview writes up to limit records as an aligned table. Widths are
// measured in terminal cells so CJK titles line up. limit <= 0 renders all.
func RenderPreview(w io.Writer, records []record.Record, limit int) error {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	shown := records[:limit]

	caps := []int{maxTitleWidth, maxTimeWidth, maxLinkWidth}
	header := record.Header()

	rows := make([][]string, 0, len(shown))
	for _, r := range shown {
		values := r.Values()
		for i := range values {
			values[i] = runewidth.Truncate(values[i], caps[i], "…")
		}
		rows = append(rows, values)
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	var sb strings.Builder
	writeRow(&sb, header, widths)
	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	writeRow(&sb, sep, widths)
	for _, row := range rows {
		writeRow(&sb, row, widths)
	}
	if limit < len(records) {
		fmt.Fprintf(&sb, "... %d more\n", len(records)-limit)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(cell)
		if i < len(cells)-1 {
			sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)))
		}
	}
	sb.WriteByte('\n')
}
