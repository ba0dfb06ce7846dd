package typeextract

import "strings"

// splitTopLevel splits s on any of seps, ignoring separators nested inside
// (), [], {}, <>, or string/template literals. Empty trailing fragments
// (trailing commas) are dropped.
func splitTopLevel(s string, seps string) []string {
	var parts []string
	depth := 0
	start := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '"', '\'', '`':
			i++
			for i < len(s) && s[i] != c {
				if s[i] == '\\' {
					i++
				}
				i++
			}
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && strings.IndexByte(seps, c) >= 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
		i++
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
