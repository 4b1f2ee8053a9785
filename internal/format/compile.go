package format

import (
	"strconv"
	"strings"
)

// Compile parses a format string into a Plan. It never returns an error: an unparsable or unknown
// sequence becomes a TagUnknown segment passed through verbatim.
func Compile(f string) *Plan {
	if f == "" {
		f = DefaultFormat
	}
	p := &Plan{SourceFormat: f}

	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			s := lit.String()
			p.Segments = append(p.Segments, Segment{Tag: TagLiteral, Text: s, StaticWidth: visibleWidth(s)})
			lit.Reset()
		}
	}

	runes := []rune(f)
	i := 0
	for i < len(runes) {
		c := runes[i]
		if c != '%' {
			lit.WriteRune(c)
			i++
			continue
		}
		// c == '%'
		if i+1 >= len(runes) {
			// Trailing '%' is literal.
			lit.WriteRune('%')
			i++
			continue
		}
		if runes[i+1] == '%' {
			// "%%" is a single literal '%', merged into the running literal.
			lit.WriteRune('%')
			i += 2
			continue
		}
		flushLit()
		seg, consumed := parseComponent(runes[i+1:])
		p.Segments = append(p.Segments, seg)
		i += 1 + consumed
	}
	flushLit()

	for i := range p.Segments {
		seg := &p.Segments[i]
		seg.Dynamic = seg.Tag.dynamicFor(seg.Size > 0)
		switch seg.Tag {
		case TagTimer:
			p.ShowTimer = true
		case TagBytes:
			p.ShowBytes = true
		case TagRate, TagAverageRate:
			p.ShowRate = true
		case TagLastWritten:
			p.ShowLastWritten = true
		case TagPreviousLine:
			p.ShowPreviousLine = true
		}
	}
	return p
}

// parseComponent parses the text following a '%' and returns the segment
// plus the number of runes consumed from rest.
func parseComponent(rest []rune) (Segment, int) {
	n := 0
	size := 0
	hasSize := false
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		hasSize = true
		n++
	}
	if hasSize {
		size, _ = strconv.Atoi(string(rest[:n]))
	}
	if n >= len(rest) {
		return Segment{Tag: TagUnknown, Text: "%" + string(rest[:n])}, n
	}

	if rest[n] == '{' {
		end := indexRune(rest[n:], '}')
		if end < 0 {
			return Segment{Tag: TagUnknown, Text: "%" + string(rest[:n]) + "{"}, n + 1
		}
		body := string(rest[n+1 : n+end])
		consumed := n + end + 1
		return braceComponent(body, size), consumed
	}

	tag := rest[n]
	consumed := n + 1
	switch tag {
	case '%':
		return Segment{Tag: TagLiteral, Text: "%", StaticWidth: 1}, consumed
	case 'p':
		return Segment{Tag: TagProgress, Size: size}, consumed
	case 't':
		return Segment{Tag: TagTimer, Size: size}, consumed
	case 'e':
		return Segment{Tag: TagETA, Size: size}, consumed
	case 'I':
		return Segment{Tag: TagFinETA, Size: size}, consumed
	case 'r':
		return Segment{Tag: TagRate, Size: size}, consumed
	case 'a':
		return Segment{Tag: TagAverageRate, Size: size}, consumed
	case 'b':
		return Segment{Tag: TagBytes, Size: size}, consumed
	case 'T':
		return Segment{Tag: TagBufferPercent, Size: size}, consumed
	case 'A':
		return Segment{Tag: TagLastWritten, Size: size}, consumed
	case 'L':
		return Segment{Tag: TagPreviousLine, Size: size}, consumed
	case 'N':
		return Segment{Tag: TagName, Size: size}, consumed
	default:
		return Segment{Tag: TagUnknown, Text: "%" + string(rest[:n]) + string(tag)}, consumed
	}
}

func braceComponent(body string, size int) Segment {
	switch body {
	case "progress":
		return Segment{Tag: TagProgress, Size: size}
	case "progress-bar-only", "bar":
		return Segment{Tag: TagProgressBarOnly, Size: size}
	case "progress-amount-only":
		return Segment{Tag: TagProgressAmountOnly, Size: size}
	case "bar-plain":
		return Segment{Tag: TagBarPlain, Size: size}
	case "bar-block":
		return Segment{Tag: TagBarBlock, Size: size}
	case "bar-granular":
		return Segment{Tag: TagBarGranular, Size: size}
	case "bar-shaded":
		return Segment{Tag: TagBarShaded, Size: size}
	case "timer":
		return Segment{Tag: TagTimer, Size: size}
	case "eta":
		return Segment{Tag: TagETA, Size: size}
	case "fineta":
		return Segment{Tag: TagFinETA, Size: size}
	case "rate":
		return Segment{Tag: TagRate, Size: size}
	case "average-rate":
		return Segment{Tag: TagAverageRate, Size: size}
	case "bytes":
		return Segment{Tag: TagBytes, Size: size}
	case "buffer-percent":
		return Segment{Tag: TagBufferPercent, Size: size}
	case "name":
		return Segment{Tag: TagName, Size: size}
	default:
		if strings.HasPrefix(body, "sgr:") || strings.HasPrefix(body, "sgr") {
			return Segment{Tag: TagSGR, Body: strings.TrimPrefix(strings.TrimPrefix(body, "sgr"), ":")}
		}
		return Segment{Tag: TagUnknown, Text: "%{" + body + "}"}
	}
}

func indexRune(rs []rune, target rune) int {
	for i, r := range rs {
		if r == target {
			return i
		}
	}
	return -1
}
