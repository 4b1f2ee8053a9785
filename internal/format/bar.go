package format

import "strings"

// barStyle describes the glyphs a styled progress bar uses. Plain is the
// classic `=`/`>` bar; the other three substitute Unicode block/shade
// runes. Sub-cell rounding behaviour in a shrinking terminal is
// implementation-defined; this renderer rounds the filled-cell count
// with ordinary integer truncation.
type barStyle struct {
	fill string
	tip  string
	bg   string
}

var (
	stylePlain    = barStyle{fill: "=", tip: ">", bg: " "}
	styleBlock    = barStyle{fill: "█", tip: "█", bg: " "}
	styleGranular = barStyle{fill: "█", tip: "▏", bg: " "}
	styleShaded   = barStyle{fill: "▓", tip: "▒", bg: "░"}
)

func styleFor(tag Tag) barStyle {
	switch tag {
	case TagBarBlock:
		return styleBlock
	case TagBarGranular:
		return styleGranular
	case TagBarShaded:
		return styleShaded
	default:
		return stylePlain
	}
}

// renderBar draws the progress bar body (no sides, no trailing number)
// for a bar of the given width.
//
//   - known size / gauge on: `filled-1` fill runes, one tip rune (omitted
//     at 100%), then background.
//   - unknown size, gauge off: a 3-column `<=>` oscillator swept across
//     the bar using the percentage counter's 0->200 fold.
func renderBar(style barStyle, width int, percentage int, sizeKnown, gauge bool) string {
	if width <= 0 {
		return ""
	}
	if !sizeKnown && !gauge {
		return oscillate(width, percentage)
	}
	pct := percentage
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := width * pct / 100
	if pct >= 100 {
		return strings.Repeat(style.fill, width)
	}
	var b strings.Builder
	written := 0
	if filled > 0 {
		for i := 0; i < filled-1; i++ {
			b.WriteString(style.fill)
		}
		b.WriteString(style.tip)
		written = filled
	}
	for ; written < width; written++ {
		b.WriteString(style.bg)
	}
	return b.String()
}

// oscillate folds a 0..200 counter into a back-and-forth sweep of a
// 3-column `<=>` marker across a bar of the given width.
func oscillate(width int, counter int) string {
	if width < 3 {
		return strings.Repeat(" ", width)
	}
	span := width - 3
	pos := counter % 200
	if pos > 100 {
		pos = 200 - pos
	}
	offset := pos * span / 100
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", offset))
	b.WriteString("<=>")
	b.WriteString(strings.Repeat(" ", width-3-offset))
	return b.String()
}
