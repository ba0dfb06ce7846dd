package typeextract

// scanner is a single-pass reader over a tool file's source, tracking line
// numbers so diagnostics can point at a location. It does not build an AST;
// callers pull balanced braces/parens and identifiers directly off it.
type scanner struct {
	src  string
	pos  int
	line int
}

func newScanner(src string) *scanner {
	return &scanner{src: src, pos: 0, line: 1}
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p < 0 || p >= len(s.src) {
		return 0
	}
	return s.src[p]
}

func (s *scanner) advance() byte {
	c := s.src[s.pos]
	s.pos++
	if c == '\n' {
		s.line++
	}
	return c
}

// skipSpace skips whitespace, line comments, and block comments. It returns
// the text and starting line of the last block comment encountered
// immediately before the returned position, for use as a doc comment —
// any intervening blank line or non-comment token invalidates it.
func (s *scanner) skipSpace() (lastBlockComment string, lastBlockLine int, ok bool) {
	newlines := 0
	for !s.eof() {
		c := s.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			s.advance()
		case c == '\n':
			s.advance()
			newlines++
			if newlines > 1 {
				ok = false
			}
		case c == '/' && s.peekAt(1) == '/':
			for !s.eof() && s.peek() != '\n' {
				s.advance()
			}
			ok = false
		case c == '/' && s.peekAt(1) == '*':
			newlines = 0
			startLine := s.line
			start := s.pos
			s.advance()
			s.advance()
			for !s.eof() && !(s.peek() == '*' && s.peekAt(1) == '/') {
				s.advance()
			}
			if !s.eof() {
				s.advance()
				s.advance()
			}
			text := s.src[start:s.pos]
			if len(text) >= 2 && text[2] == '*' {
				lastBlockComment = text
				lastBlockLine = startLine
				ok = true
			} else {
				ok = false
			}
			continue
		default:
			return lastBlockComment, lastBlockLine, ok
		}
	}
	return lastBlockComment, lastBlockLine, ok
}

var identStart = func(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
var identCont = func(c byte) bool {
	return identStart(c) || (c >= '0' && c <= '9')
}

// readIdent reads a bare identifier at the current position, or returns ""
// if the current position is not an identifier start.
func (s *scanner) readIdent() string {
	if s.eof() || !identStart(s.peek()) {
		return ""
	}
	start := s.pos
	s.advance()
	for !s.eof() && identCont(s.peek()) {
		s.advance()
	}
	return s.src[start:s.pos]
}

// matchKeyword consumes word if it appears verbatim at the current
// position and is followed by a non-identifier character (so "exporter"
// does not match "export").
func (s *scanner) matchKeyword(word string) bool {
	if s.pos+len(word) > len(s.src) {
		return false
	}
	if s.src[s.pos:s.pos+len(word)] != word {
		return false
	}
	if s.pos+len(word) < len(s.src) && identCont(s.src[s.pos+len(word)]) {
		return false
	}
	for range word {
		s.advance()
	}
	return true
}

// readBalanced reads from the current position (which must be `open`)
// through its matching `close`, honoring nested occurrences and skipping
// over string/template literals and comments so braces inside them are not
// miscounted. Returns the full span including delimiters.
func (s *scanner) readBalanced(open, close byte) (string, bool) {
	if s.eof() || s.peek() != open {
		return "", false
	}
	start := s.pos
	depth := 0
	for !s.eof() {
		c := s.peek()
		switch {
		case c == '"' || c == '\'' || c == '`':
			s.skipStringLiteral(c)
			continue
		case c == '/' && s.peekAt(1) == '/':
			for !s.eof() && s.peek() != '\n' {
				s.advance()
			}
			continue
		case c == '/' && s.peekAt(1) == '*':
			s.advance()
			s.advance()
			for !s.eof() && !(s.peek() == '*' && s.peekAt(1) == '/') {
				s.advance()
			}
			if !s.eof() {
				s.advance()
				s.advance()
			}
			continue
		case c == open:
			depth++
			s.advance()
		case c == close:
			depth--
			s.advance()
			if depth == 0 {
				return s.src[start:s.pos], true
			}
		default:
			s.advance()
		}
	}
	return s.src[start:s.pos], false
}

func (s *scanner) skipStringLiteral(quote byte) {
	s.advance()
	for !s.eof() {
		c := s.peek()
		if c == '\\' {
			s.advance()
			if !s.eof() {
				s.advance()
			}
			continue
		}
		if c == quote {
			s.advance()
			return
		}
		s.advance()
	}
}

func (s *scanner) skipSpaceInline() {
	for !s.eof() && (s.peek() == ' ' || s.peek() == '\t') {
		s.advance()
	}
}
