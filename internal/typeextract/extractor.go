package typeextract

import (
	"fmt"
	"os"
	"strings"
)

// ExtractFile reads path and extracts its signatures, types, and metadata.
func ExtractFile(path string) (*ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool file %s: %w", path, err)
	}
	return ExtractSource(path, string(data))
}

// ExtractSource extracts from in-memory source text. name is used only for
// diagnostics.
func ExtractSource(name string, src string) (*ExtractionResult, error) {
	result := &ExtractionResult{Source: name}
	s := newScanner(src)

	var pendingDoc string
	var pendingDocLine int
	_ = pendingDocLine

	for {
		comment, commentLine, hasComment := s.skipSpace()
		if hasComment {
			pendingDoc = comment
			pendingDocLine = commentLine
		}
		if s.eof() {
			break
		}

		startPos := s.pos
		exported := s.matchKeyword("export")
		if exported {
			s.skipSpace()
		}

		switch {
		case s.matchKeyword("default"):
			s.skipSpace()
			consumeDefaultExport(s)
			pendingDoc, pendingDocLine = "", 0

		case s.matchKeyword("async"):
			s.skipSpace()
			if !s.matchKeyword("function") {
				// Not a function after all; bail to avoid an infinite loop.
				advancePastDeclaration(s, startPos)
				pendingDoc, pendingDocLine = "", 0
				continue
			}
			sig, diag := extractFunction(s, name, true, exported, pendingDoc)
			if sig != nil {
				result.Signatures = append(result.Signatures, *sig)
			}
			if diag != nil {
				result.Warnings = append(result.Warnings, *diag)
			}
			pendingDoc, pendingDocLine = "", 0

		case s.matchKeyword("function"):
			sig, diag := extractFunction(s, name, false, exported, pendingDoc)
			if sig != nil {
				result.Signatures = append(result.Signatures, *sig)
			}
			if diag != nil {
				result.Warnings = append(result.Warnings, *diag)
			}
			pendingDoc, pendingDocLine = "", 0

		case s.matchKeyword("interface"):
			td, ok := extractRecordType(s, "interface")
			if ok {
				result.Types = append(result.Types, td)
			}
			pendingDoc, pendingDocLine = "", 0

		case s.matchKeyword("type"):
			if exported && peekIsMetaDecl(s) {
				meta, ok := extractMeta(s)
				if ok {
					result.Meta = meta
				}
			} else {
				td, ok := extractRecordType(s, "type")
				if ok {
					result.Types = append(result.Types, td)
				}
			}
			pendingDoc, pendingDocLine = "", 0

		case exported && s.matchKeyword("const"):
			s.skipSpace()
			if s.matchKeyword("meta") {
				meta, ok := extractMeta(s)
				if ok {
					result.Meta = meta
				}
			} else {
				advancePastDeclaration(s, s.pos)
			}
			pendingDoc, pendingDocLine = "", 0

		default:
			if s.pos == startPos {
				// No recognised keyword matched; skip one token/char so the
				// scanner always makes forward progress.
				if id := s.readIdent(); id == "" && !s.eof() {
					s.advance()
				}
			}
			pendingDoc, pendingDocLine = "", 0
		}

		if s.pos == startPos {
			// Safety valve: never spin without consuming input.
			if !s.eof() {
				s.advance()
			} else {
				break
			}
		}
	}

	return result, nil
}

// peekIsMetaDecl reports whether the scanner, positioned right after the
// "type" keyword, is actually at `type meta = ...` — used only to decide
// whether an exported `type` alias literally named meta should be treated
// as metadata (the common case is `export const meta = {...}`; a type
// alias named meta is extremely unlikely but handled for symmetry).
func peekIsMetaDecl(s *scanner) bool {
	save := *s
	s.skipSpace()
	name := s.readIdent()
	*s = save
	return name == "meta"
}

// consumeDefaultExport skips an `export default ...` declaration's body so
// scanning can continue; default exports are anonymous and therefore never
// become Signatures, per spec.
func consumeDefaultExport(s *scanner) {
	s.matchKeyword("async")
	s.skipSpace()
	if s.matchKeyword("function") {
		s.skipSpace()
		s.readIdent() // optional name, ignored
		s.skipSpace()
		s.readBalanced('(', ')')
		for !s.eof() && s.peek() != '{' && s.peek() != ';' {
			s.advance()
		}
		if s.peek() == '{' {
			s.readBalanced('{', '}')
		}
		return
	}
	for !s.eof() && s.peek() != ';' && s.peek() != '\n' {
		s.advance()
	}
}

// advancePastDeclaration skips to the next statement terminator or newline
// when a declaration could not be classified, so the scanner still makes
// progress through the file.
func advancePastDeclaration(s *scanner, from int) {
	for !s.eof() && s.peek() != ';' && s.peek() != '\n' {
		s.advance()
	}
}

// extractFunction parses a function declaration's parameter list, return
// type, and body (discarded), validates the single-`args`-parameter rule,
// and returns either a Signature or a rejection Diagnostic.
func extractFunction(s *scanner, file string, async, exported bool, pendingDoc string) (*Signature, *Diagnostic) {
	line := s.line
	s.skipSpace()
	fname := s.readIdent()
	s.skipSpace()

	paramsText, ok := s.readBalanced('(', ')')
	if !ok {
		return nil, &Diagnostic{File: file, Line: line, Message: fmt.Sprintf("function %q: unterminated parameter list", fname)}
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(paramsText, "("), ")")
	params := parseParams(inner)

	s.skipSpace()
	returnType := ""
	if s.peek() == ':' {
		s.advance()
		start := s.pos
		for !s.eof() && s.peek() != '{' && s.peek() != ';' {
			s.advance()
		}
		returnType = strings.TrimSpace(s.src[start:s.pos])
	}

	s.skipSpace()
	if s.peek() == '{' {
		s.readBalanced('{', '}')
	} else if s.peek() == ';' {
		s.advance()
	}

	if !exported {
		// Not reachable through the module's exports; not a candidate.
		return nil, nil
	}
	if fname == "" {
		return nil, &Diagnostic{File: file, Line: line, Message: "anonymous exported function is not callable and was skipped"}
	}

	if len(params) != 1 || params[0].Name != "args" {
		return nil, &Diagnostic{
			File: file, Line: line,
			Message: fmt.Sprintf("function %q rejected: must declare exactly one parameter named `args` (found %d)", fname, len(params)),
		}
	}

	paramType := params[0].Type
	if paramType == "" {
		paramType = "unknown"
	}
	if returnType == "" {
		returnType = "void"
	}

	doc := Doc{Params: map[string]string{}, Tags: map[string]string{}}
	if pendingDoc != "" {
		doc = parseDoc(pendingDoc)
	}

	return &Signature{
		Name:   fname,
		Param:  Parameter{Name: "args", Type: paramType},
		Return: returnType,
		Async:  async,
		Doc:    doc,
		Line:   line,
	}, nil
}

// extractRecordType parses a `type Name = { ... }` or `interface Name {
// ... }` declaration into a TypeDefinition. Captured regardless of export,
// because internal types may be transitively reachable from exported
// signatures.
func extractRecordType(s *scanner, kind string) (TypeDefinition, bool) {
	line := s.line
	s.skipSpace()
	name := s.readIdent()
	if name == "" {
		return TypeDefinition{}, false
	}
	s.skipSpace()

	if kind == "type" {
		if s.peek() != '=' {
			advancePastDeclaration(s, s.pos)
			return TypeDefinition{}, false
		}
		s.advance()
		s.skipSpace()
	}

	if s.peek() != '{' {
		// Not a record type (e.g. a union or primitive alias); skip it.
		advancePastDeclaration(s, s.pos)
		return TypeDefinition{}, false
	}
	body, ok := s.readBalanced('{', '}')
	if !ok {
		return TypeDefinition{}, false
	}
	if s.peek() == ';' {
		s.advance()
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")
	return TypeDefinition{Name: name, Properties: parseProperties(inner), Line: line}, true
}

// extractMeta parses the `= { ... }` right-hand side following `const meta`
// (or `type meta`) into a NamespaceMetadata.
func extractMeta(s *scanner) (*NamespaceMetadata, bool) {
	s.skipSpace()
	if s.peek() == '=' {
		s.advance()
		s.skipSpace()
	}
	body, ok := s.readBalanced('{', '}')
	if s.peek() == ';' {
		s.advance()
	}
	if !ok {
		return nil, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(body, "{"), "}")
	meta := parseMeta(inner)
	return &meta, true
}
