package views

import (
	"strings"
	"unicode"
)

// wideGlitches lists codepoints tcell renders with the wrong cell width:
// skin tone modifiers, the zero width joiner and both variation selector
// blocks. Dropping them collapses composite emoji to their base glyph.
var wideGlitches = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F3FB, Hi: 0x1F3FF, Stride: 1},
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1},
	},
}

func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(wideGlitches, r) {
			return -1
		}
		return r
	}, s)
}
