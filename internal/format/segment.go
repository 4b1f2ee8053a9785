// Package format implements the format parser & renderer: it
// compiles a format string into an ordered segment list, then paints that
// list into a display string sized to the current terminal width.
//
// The renderer dispatches per segment through a small closed set of
// component kinds, implemented as a tagged variant plus a dispatch
// table keyed by the tag. The surrounding plumbing (the literal/component
// split, offset-into-buffer bookkeeping) favors small value-typed
// structs over an AST of pointers.
package format

// Tag identifies a format component.
type Tag int

const (
	TagLiteral Tag = iota
	TagProgress
	TagProgressBarOnly
	TagProgressAmountOnly
	TagBarPlain
	TagBarBlock
	TagBarGranular
	TagBarShaded
	TagTimer
	TagETA
	TagFinETA
	TagRate
	TagAverageRate
	TagBytes
	TagBufferPercent
	TagLastWritten
	TagPreviousLine
	TagName
	TagSGR
	TagUnknown
)

// dynamicFor reports whether a component's rendered width scales with
// the space left over after fixed-width segments are sized.
// Previous-line is dynamic only when no explicit size was given.
func (t Tag) dynamicFor(hasSize bool) bool {
	switch t {
	case TagProgress, TagProgressBarOnly, TagBarPlain, TagBarBlock, TagBarGranular, TagBarShaded:
		return true
	case TagPreviousLine:
		return !hasSize
	default:
		return false
	}
}

// Segment is one compiled unit of the format string.
type Segment struct {
	Tag Tag

	// Literal segments point into the original format string.
	Text string

	// Component segments carry an optional size prefix (0 = unspecified)
	// and, for TagSGR/TagUnknown, the raw brace/escape body.
	Size int
	Body string

	Dynamic bool

	// StaticWidth is populated at compile time for literal segments only;
	// every component segment's width is measured at render time.
	StaticWidth int
}

// Plan is a compiled format: an ordered segment list plus the
// showing_* side effects the compiler derived from which components were
// present.
type Plan struct {
	Segments []Segment

	ShowTimer        bool
	ShowBytes        bool
	ShowRate         bool
	ShowLastWritten  bool
	ShowPreviousLine bool

	SourceFormat string
}

// DefaultFormat is used when the caller supplies an empty format
// string: timer, bytes, rate, progress, ETA.
const DefaultFormat = "%t %b %r %p %e"
