package luaeval

import (
	"strconv"
	"strings"
)

// Quote returns the text as a double-quoted Lua string literal. Control
// characters are written as escapes so the literal survives any line
// ending translation; all other bytes are copied unchanged.
func Quote(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)

	b.WriteByte('"')
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				b.WriteByte('\\')
				d := strconv.Itoa(int(c))
				b.WriteString(strings.Repeat("0", 3-len(d)) + d)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')

	return b.String()
}
