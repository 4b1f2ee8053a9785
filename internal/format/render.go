package format

import (
	"strings"
	"time"
)

// Snapshot is the renderer's view of engine state for one display tick.
// It exists so this package never imports the engine/transfer packages
// (avoiding an import cycle) while still having everything a compiled
// format plan needs to render.
type Snapshot struct {
	Elapsed time.Duration

	Rate    float64 // instantaneous, bytes (or lines) per second
	AvgRate float64 // windowed average

	Count uint64 // cumulative bytes or lines written (the %b value)

	SizeKnown   bool
	Size        uint64
	Transferred uint64

	Percentage int // 0..100000 (known size) or 0..200 (oscillator)

	ETASeconds float64
	ETAValid   bool

	FinETA      time.Time
	FinETAValid bool

	BufferPercent string // pre-formatted "{NNN%}" or "{----}"

	LastWritten  []byte
	PreviousLine []byte

	Name string

	Bits      bool
	SI        bool
	RateGauge bool
	MaxRate   float64

	SGRSupported bool

	Final bool // blanks %e/%I per the component table
}

// Render paints plan against snap sized to termWidth columns, following
// a two-pass width discipline: static segments render first to
// establish their width, then dynamic segments divide the remaining
// columns evenly. prevWidth is the visible width of the previous line
// (for the stale-character overwrite rule); the visible width of the
// rendered content, not counting that padding, is also returned so the
// caller can feed it back in as prevWidth next time.
func Render(plan *Plan, snap Snapshot, termWidth, prevWidth int) (string, int) {
	fixed := make([]string, len(plan.Segments))
	staticWidth := 0
	dynamicCount := 0
	for i, seg := range plan.Segments {
		if seg.Dynamic {
			dynamicCount++
			continue
		}
		s := renderFixed(seg, snap)
		fixed[i] = s
		staticWidth += visibleWidth(s)
	}

	remaining := termWidth - staticWidth
	if remaining < 0 {
		remaining = 0
	}
	perDynamic := 0
	if dynamicCount > 0 {
		perDynamic = remaining / dynamicCount
	}

	var out strings.Builder
	for i, seg := range plan.Segments {
		if !seg.Dynamic {
			out.WriteString(fixed[i])
			continue
		}
		out.WriteString(renderDynamic(seg, snap, perDynamic))
	}

	rendered := out.String()
	width := visibleWidth(rendered)
	if width < prevWidth {
		pad := prevWidth - width
		if pad > 15 {
			pad = 15
		}
		rendered += strings.Repeat(" ", pad)
	}
	return rendered, width
}

func renderFixed(seg Segment, snap Snapshot) string {
	switch seg.Tag {
	case TagLiteral:
		return seg.Text
	case TagProgressAmountOnly:
		if snap.RateGauge || !snap.SizeKnown {
			return FormatRate(snap.Rate, snap.Bits, snap.SI)
		}
		return percentString(snap.Percentage)
	case TagTimer:
		return FormatTimer(snap.Elapsed.Seconds())
	case TagETA:
		if snap.Final || !snap.SizeKnown || !snap.ETAValid {
			return ""
		}
		return "ETA " + FormatTimer(snap.ETASeconds)
	case TagFinETA:
		if snap.Final || !snap.FinETAValid {
			return ""
		}
		return formatFinETA(snap)
	case TagRate:
		return "[" + FormatRate(snap.Rate, snap.Bits, snap.SI) + "]"
	case TagAverageRate:
		return "(" + FormatRate(snap.AvgRate, snap.Bits, snap.SI) + ")"
	case TagBytes:
		return FormatBytes(snap.Count, snap.Bits, snap.SI)
	case TagBufferPercent:
		return snap.BufferPercent
	case TagLastWritten:
		n := seg.Size
		if n <= 0 || n > 256 {
			n = 256
		}
		return sanitize(snap.LastWritten, n, '.')
	case TagPreviousLine:
		// Only reached here when seg.Size > 0 (non-dynamic case).
		return padRight(truncate(sanitize(snap.PreviousLine, seg.Size, ' '), seg.Size), seg.Size)
	case TagName:
		n := seg.Size
		if n <= 0 {
			n = 9
		}
		return padLeft(snap.Name, n) + ":"
	case TagSGR:
		return RenderSGR(seg.Body, snap.SGRSupported)
	case TagUnknown:
		return seg.Text
	default:
		return ""
	}
}

func renderDynamic(seg Segment, snap Snapshot, width int) string {
	pct := barPercentage(snap)
	switch seg.Tag {
	case TagProgress:
		return renderProgress(stylePlain, width, snap, true)
	case TagProgressBarOnly:
		return renderProgress(stylePlain, width, snap, false)
	case TagBarPlain:
		return renderBar(stylePlain, width, pct, snap.SizeKnown, snap.RateGauge)
	case TagBarBlock:
		return renderBar(styleBlock, width, pct, snap.SizeKnown, snap.RateGauge)
	case TagBarGranular:
		return renderBar(styleGranular, width, pct, snap.SizeKnown, snap.RateGauge)
	case TagBarShaded:
		return renderBar(styleShaded, width, pct, snap.SizeKnown, snap.RateGauge)
	case TagPreviousLine:
		return padRight(truncate(sanitize(snap.PreviousLine, width, ' '), width), width)
	default:
		return strings.Repeat(" ", width)
	}
}

// barPercentage is the fill percentage a bar draws. Under --rate-gauge
// it is the current rate as a percentage of the highest rate seen so
// far, rather than size-based completion; otherwise it is the
// completion percentage (or, size unknown and gauge off, the
// oscillator counter renderBar itself folds into a sweep).
func barPercentage(snap Snapshot) int {
	if !snap.RateGauge {
		return snap.Percentage
	}
	if snap.MaxRate <= 0 {
		return 0
	}
	pct := int(snap.Rate / snap.MaxRate * 100)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// renderProgress renders %p: a bar plus trailing amount, with `[`/`]`
// sides. withAmount controls whether the trailing percentage/rate
// number is appended.
func renderProgress(style barStyle, width int, snap Snapshot, withAmount bool) string {
	sides := 2
	amount := ""
	if withAmount {
		if snap.RateGauge || !snap.SizeKnown {
			amount = " " + FormatRate(snap.Rate, snap.Bits, snap.SI)
		} else {
			amount = " " + percentString(snap.Percentage)
		}
	}
	barWidth := width - sides - visibleWidth(amount)
	if barWidth < 0 {
		barWidth = 0
	}
	bar := renderBar(style, barWidth, barPercentage(snap), snap.SizeKnown, snap.RateGauge)
	return "[" + bar + "]" + amount
}

func percentString(pct int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return itoa(pct) + "%"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func formatFinETA(snap Snapshot) string {
	eta := snap.FinETA
	includeDate := snap.ETASeconds > 6*3600
	layout := "15:04:05"
	if includeDate {
		layout = "2006-01-02 15:04:05"
	}
	return "FIN " + eta.Format(layout)
}

func sanitize(b []byte, n int, replacement byte) string {
	if n > len(b) {
		n = len(b)
	}
	tail := b[len(b)-n:]
	out := make([]byte, len(tail))
	for i, c := range tail {
		if c < 0x20 || c >= 0x7f {
			out[i] = replacement
		} else {
			out[i] = c
		}
	}
	return string(out)
}

func padLeft(s string, n int) string {
	w := visibleWidth(s)
	if w >= n {
		return truncate(s, n)
	}
	return strings.Repeat(" ", n-w) + s
}
