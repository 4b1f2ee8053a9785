package format

import "fmt"

// scale holds a unit prefix table: divisor and suffix letter, from
// smallest to largest.
type scaleStep struct {
	div    float64
	suffix string
}

var iecSteps = []scaleStep{
	{1 << 50, "Pi"}, {1 << 40, "Ti"}, {1 << 30, "Gi"}, {1 << 20, "Mi"}, {1 << 10, "Ki"},
}

var siSteps = []scaleStep{
	{1e15, "P"}, {1e12, "T"}, {1e9, "G"}, {1e6, "M"}, {1e3, "k"},
}

// formatAmount renders a byte/bit count with an IEC or SI unit prefix,
// e.g. "10.0KiB", "10.0kB", or (bits) "80.0Kib".
func formatAmount(value float64, bits, si bool, perSecond bool) string {
	steps := iecSteps
	if si {
		steps = siSteps
	}
	unit := "B"
	if bits {
		unit = "b"
	}
	for _, st := range steps {
		if value >= st.div {
			s := fmt.Sprintf("%.1f%s%s", value/st.div, st.suffix, unit)
			if perSecond {
				s += "/s"
			}
			return s
		}
	}
	s := fmt.Sprintf("%.0f%s", value, unit)
	if perSecond {
		s += "/s"
	}
	return s
}

// FormatBytes renders the %b cumulative counter.
func FormatBytes(count uint64, bits, si bool) string {
	v := float64(count)
	if bits {
		v *= 8
	}
	return formatAmount(v, bits, si, false)
}

// FormatRate renders the %r / %a value (without the surrounding bracket
// or paren, which the caller adds).
func FormatRate(bytesPerSec float64, bits, si bool) string {
	v := bytesPerSec
	if bits {
		v *= 8
	}
	return formatAmount(v, bits, si, true)
}

// FormatTimer renders "[D:]H:MM:SS": the day field only appears once
// elapsed exceeds 86400 seconds.
func FormatTimer(totalSeconds float64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	total := int64(totalSeconds)
	if total > 86400 {
		days := total / 86400
		rem := total % 86400
		return fmt.Sprintf("%d:%02d:%02d:%02d", days, rem/3600, (rem%3600)/60, rem%60)
	}
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
