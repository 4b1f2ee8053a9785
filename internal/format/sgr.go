package format

import (
	"strings"

	"github.com/fatih/color"
)

// sgrKeywords maps the comma-separated keywords allowed inside
// `%{sgr:...}` to fatih/color attributes, used here instead of
// hand-rolled ANSI concatenation.
var sgrKeywords = map[string]color.Attribute{
	"bold":      color.Bold,
	"faint":     color.Faint,
	"italic":    color.Italic,
	"underline": color.Underline,
	"blink":     color.BlinkSlow,
	"reverse":   color.ReverseVideo,
	"reset":     color.Reset,

	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,

	"bg-black":   color.BgBlack,
	"bg-red":     color.BgRed,
	"bg-green":   color.BgGreen,
	"bg-yellow":  color.BgYellow,
	"bg-blue":    color.BgBlue,
	"bg-magenta": color.BgMagenta,
	"bg-cyan":    color.BgCyan,
	"bg-white":   color.BgWhite,
}

// RenderSGR renders the SGR escape for a `%{sgr:...}` body. When the
// terminal does not support SGR (sgrSupported is false), the component
// renders as empty, per the component table ("SGR colour codes if the
// terminal supports them, else empty").
func RenderSGR(body string, sgrSupported bool) string {
	if !sgrSupported || body == "" {
		return ""
	}
	parts := strings.Split(body, ",")
	attrs := make([]color.Attribute, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if a, ok := sgrKeywords[p]; ok {
			attrs = append(attrs, a)
		}
	}
	if len(attrs) == 0 {
		return ""
	}
	// SetWriter emits only the opening sequence (Sprint would append a
	// reset); EnableColor keeps fatih/color's own stdout check from
	// overriding sgrSupported.
	var b strings.Builder
	c := color.New(attrs...)
	c.EnableColor()
	c.SetWriter(&b)
	return b.String()
}
