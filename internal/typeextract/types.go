// Package typeextract statically parses a tool source file and yields the
// function signatures it exports, the record types those signatures
// transitively reference, and any namespace metadata the file declares.
//
// The scripting language tool files are written in is deliberately left
// unnamed by the parent specification; this package treats it as a small
// C-family, brace-delimited language (function declarations, single-line
// and block comments, `{ ... }` record types) and does not attempt to be a
// full parser for any particular language's grammar.
package typeextract

import "strconv"

// Parameter is the single, mandatory `args` parameter of an extracted
// function.
type Parameter struct {
	Name string
	Type string
}

// Signature is the extracted static description of one exported function.
type Signature struct {
	Name   string
	Param  Parameter
	Return string
	Async  bool
	Doc    Doc
	Line   int
}

// Property is one field of a TypeDefinition.
type Property struct {
	Name     string
	Type     string
	Optional bool
	Doc      string
}

// TypeDefinition is a referenced record type, exported or not.
type TypeDefinition struct {
	Name       string
	Properties []Property
	Line       int
}

// NamespaceMetadata is the optional per-file descriptor read from a `meta`
// export.
type NamespaceMetadata struct {
	Description string
	UseWhen     string
	Tags        []string
}

// Doc is the parsed form of a function's leading structured comment.
type Doc struct {
	Description string
	Params      map[string]string
	Returns     string
	Examples    []string
	Deprecated  string
	Tags        map[string]string
}

// Diagnostic is a non-fatal warning surfaced alongside an ExtractionResult.
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

func (d Diagnostic) Error() string {
	return d.File + ":" + strconv.Itoa(d.Line) + ": " + d.Message
}

// ExtractionResult is the output of extracting one source file.
type ExtractionResult struct {
	Source     string
	Signatures []Signature
	Types      []TypeDefinition
	Meta       *NamespaceMetadata
	Warnings   []Diagnostic
}
