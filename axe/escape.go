package axe

import (
	"fmt"
	"strings"
)

// Escape serializes a string for safe embedding in a CSS selector, following
// the CSSOM serialize-an-identifier algorithm (what CSS.escape does in the
// browser). Use it when building selectors from user-supplied strings, e.g.
// attribute values or raw frame names.
func Escape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('�')
		case r >= 0x01 && r <= 0x1F, r == 0x7F:
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 1 && r >= '0' && r <= '9' && s[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(s) == 1:
			b.WriteString("\\-")
		case r >= 0x80, r == '-', r == '_',
			r >= '0' && r <= '9',
			r >= 'A' && r <= 'Z',
			r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// selectorSafe reports whether s can be embedded in a :not() clause as-is.
// Disabled-frame selectors are usually already valid CSS selectors; only
// strings carrying characters outside the selector grammar need escaping.
func selectorSafe(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_#.:[]()*>+~^$|\"'= ,", r):
		default:
			return false
		}
	}
	return s != ""
}

// frameSelector builds "tag:not(d1):not(d2)..." for frame enumeration,
// escaping any disabled selector that is not directly embeddable.
func frameSelector(tag string, disabled []string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, d := range disabled {
		if !selectorSafe(d) {
			d = Escape(d)
		}
		b.WriteString(":not(")
		b.WriteString(d)
		b.WriteString(")")
	}
	return b.String()
}
