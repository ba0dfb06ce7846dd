package typeextract

import "strings"

// parsedParam is one entry of a function's parameter list.
type parsedParam struct {
	Name string
	Type string
}

// parseParams parses the text between a function's outer parens into its
// individual parameters.
func parseParams(paramList string) []parsedParam {
	var out []parsedParam
	for _, raw := range splitTopLevel(paramList, ",") {
		name, typ := splitNameType(raw)
		out = append(out, parsedParam{Name: name, Type: typ})
	}
	return out
}

// splitNameType splits a "name: Type" or bare "name" declaration, also
// stripping an optional trailing "?" (TypeScript-style optional marker) or
// default-value expression ("name = default").
func splitNameType(raw string) (name, typ string) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "="); idx >= 0 && !strings.Contains(raw[:idx], ":") {
		raw = strings.TrimSpace(raw[:idx])
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return strings.TrimSuffix(raw, "?"), ""
	}
	name = strings.TrimSpace(raw[:colon])
	name = strings.TrimSuffix(name, "?")
	typ = strings.TrimSpace(raw[colon+1:])
	if idx := strings.Index(typ, "="); idx >= 0 {
		typ = strings.TrimSpace(typ[:idx])
	}
	return name, typ
}

// parseProperties parses a record type's body (the text between its outer
// braces, braces excluded) into its fields. Members are separated by `,`,
// `;`, or a bare newline. A line's trailing `// comment` or an immediately
// preceding `/** ... */` block becomes the property's Doc.
func parseProperties(body string) []Property {
	var out []Property
	var pendingDoc string

	for _, raw := range splitPropertyLines(body) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/**") {
			pendingDoc = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "/**"), "*/"))
			continue
		}
		if strings.HasPrefix(line, "//") {
			continue
		}

		doc := pendingDoc
		pendingDoc = ""
		if idx := strings.Index(line, "//"); idx >= 0 {
			doc = strings.TrimSpace(line[idx+2:])
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		name, typ := splitNameType(line)
		if name == "" {
			continue
		}
		optional := strings.HasSuffix(strings.TrimSpace(strings.SplitN(line, ":", 2)[0]), "?")
		out = append(out, Property{Name: name, Type: typ, Optional: optional, Doc: doc})
	}
	return out
}

// splitPropertyLines breaks a record body into candidate member lines,
// first on `,`/`;` at nesting depth 0, then further on bare newlines so
// that members separated only by whitespace (no trailing comma) are still
// found — a common style in the last field of a record literal.
func splitPropertyLines(body string) []string {
	var out []string
	for _, chunk := range splitTopLevel(body, ",;") {
		out = append(out, strings.Split(chunk, "\n")...)
	}
	return out
}
