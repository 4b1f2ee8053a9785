package format

import "unicode/utf8"

// visibleWidth computes the display-column width of s. Full
// double-width CJK/East-Asian rune detection is left for later; this
// implementation counts runes (1 column each) rather than bytes, which
// is correct for the ASCII and Latin-range format strings the bar/SGR
// styles in this package emit, and degrades to a reasonable
// approximation elsewhere. See DESIGN.md.
func visibleWidth(s string) int {
	return utf8.RuneCountInString(s)
}

// padRight pads s with spaces until it is at least n columns wide.
func padRight(s string, n int) string {
	w := visibleWidth(s)
	if w >= n {
		return s
	}
	b := make([]byte, 0, len(s)+(n-w))
	b = append(b, s...)
	for i := w; i < n; i++ {
		b = append(b, ' ')
	}
	return string(b)
}

// truncate cuts s to at most n display columns (rune-based).
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
