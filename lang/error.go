package lang

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/berkus/linker-script/lang/parser"
)

// Predefined errors (sentinel values).
var (
	ErrMissingChild = NewError("missing child node")
	ErrUnknownRule  = NewError("unexpected rule")
	ErrNumberRange  = NewError("number out of range for u64")
	ErrReadInput    = NewError("failed to read input")
	ErrItemNotFound = NewError("item not found")
)

// Error is an error with optional structured logging attributes. It
// implements both error and slog.LogValuer.
type Error struct {
	msg   string
	err   error
	attrs []slog.Attr
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		return ""
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// LogValue implements slog.LogValuer for structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	return &Error{msg: e.msg, err: err, attrs: e.attrs}
}

// With adds attributes for structured logging. The receiver is not
// modified; a new Error is returned.
func (e *Error) With(attrs ...slog.Attr) *Error {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)

	return &Error{msg: e.msg, err: e.err, attrs: merged}
}

// SyntaxError reports that source text did not match the grammar. It
// wraps the parser's farthest failure and carries the source so the
// message can show the offending line with a caret and, when the
// failure looks like a misspelled keyword, a suggestion.
type SyntaxError struct {
	Source string
	Cause  *parser.Error
}

// NewSyntaxError wraps a parse failure with its source text.
func NewSyntaxError(cause *parser.Error, source string) *SyntaxError {
	return &SyntaxError{Source: source, Cause: cause}
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	var buf strings.Builder

	buf.WriteString("syntax error at line ")
	buf.WriteString(strconv.Itoa(e.Cause.Pos.Line))
	buf.WriteString(", column ")
	buf.WriteString(strconv.Itoa(e.Cause.Pos.Column))
	buf.WriteString(":\n")
	buf.WriteString(e.Snippet())
	buf.WriteString("\texpected: ")
	buf.WriteString(strings.Join(e.Expected(), ", "))

	if hint := e.Suggestion(); hint != "" {
		buf.WriteString("\n\tdid you mean ")
		buf.WriteString(strconv.Quote(hint))
		buf.WriteString("?")
	}

	return buf.String()
}

// Unwrap exposes the underlying parser error for errors.As.
func (e *SyntaxError) Unwrap() error { return e.Cause }

// LogValue implements slog.LogValuer for structured logging.
func (e *SyntaxError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("line", e.Cause.Pos.Line),
		slog.Int("column", e.Cause.Pos.Column),
		slog.String("rule", e.Cause.Rule.String()),
		slog.Any("expected", e.Expected()),
	}

	if hint := e.Suggestion(); hint != "" {
		attrs = append(attrs, slog.String("suggestion", hint))
	}

	return slog.GroupValue(attrs...)
}

// Expected returns the sorted, deduplicated set of terminals that
// would have been accepted at the failure position.
func (e *SyntaxError) Expected() []string {
	exp := slices.Clone(e.Cause.Expected)
	slices.Sort(exp)

	return slices.Compact(exp)
}

// Snippet renders the offending source line with a caret under the
// failure column.
func (e *SyntaxError) Snippet() string {
	lines := strings.Split(e.Source, "\n")
	if e.Cause.Pos.Line < 1 || e.Cause.Pos.Line > len(lines) {
		return ""
	}

	var buf strings.Builder

	num := strconv.Itoa(e.Cause.Pos.Line)

	buf.WriteString("  ")
	buf.WriteString(num)
	buf.WriteString(" | ")
	buf.WriteString(lines[e.Cause.Pos.Line-1])
	buf.WriteString("\n")

	// 2 leading spaces, the line number, and " | ".
	padding := strings.Repeat(" ", len(num)+5)
	if e.Cause.Pos.Column > 0 {
		padding += strings.Repeat(" ", e.Cause.Pos.Column-1)
	}

	buf.WriteString(padding)
	buf.WriteString("^\n")

	return buf.String()
}

// keywords is the vocabulary used for misspelling suggestions.
var keywords = []string{
	"const", "pub", "memory_map", "elf_segments", "section", "discard",
	"provide_symbols", "region", "segment", "permissions", "start",
	"size", "alignment", "follows", "virtual_base", "load_from_region",
	"place_in", "load_from", "output_to", "occupies_file_space",
	"address", "file_position", "contents", "assert",
	"assert_no_cross_references_to", "symbol", "input", "keep",
	"align_to", "advance_by", "fill_padding_with", "sort_by", "from",
	"feature", "not", "all", "any", "here", "origin", "true", "false",
	"Read", "Write", "Execute",
	"Load", "Dynamic", "Interp", "Note", "Phdr", "Tls", "Null",
	"Name", "Address", "Alignment",
}

// Suggestion fuzzy-matches the word at the failure position against
// the language vocabulary. Returns "" when the word is too short,
// already a keyword, or nothing matches.
func (e *SyntaxError) Suggestion() string {
	word := e.wordAtFailure()
	if len(word) < 3 || slices.Contains(keywords, word) {
		return ""
	}

	matches := fuzzy.Find(word, keywords)
	if len(matches) == 0 {
		return ""
	}

	return matches[0].Str
}

// wordAtFailure extracts the identifier starting at the failure offset.
func (e *SyntaxError) wordAtFailure() string {
	start := e.Cause.Pos.Offset
	if start < 0 || start >= len(e.Source) {
		return ""
	}

	end := start
	for end < len(e.Source) && isWordByte(e.Source[end]) {
		end++
	}

	return e.Source[start:end]
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// StructuralError reports a malformed parse tree: a rule node missing
// an expected child, or a literal the builder cannot represent. It
// indicates a fault in the grammar or builder, not in the user's
// source, so the message is prefixed accordingly.
type StructuralError struct {
	Rule parser.Rule
	Pos  parser.Position
	err  error
}

// NewStructuralError records a builder fault at the given node.
func NewStructuralError(rule parser.Rule, pos parser.Position, err error) *StructuralError {
	return &StructuralError{Rule: rule, Pos: pos, err: err}
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	var buf strings.Builder

	buf.WriteString("internal: malformed parse tree in ")
	buf.WriteString(e.Rule.String())
	buf.WriteString(" at ")
	buf.WriteString(strconv.Itoa(e.Pos.Line))
	buf.WriteString(":")
	buf.WriteString(strconv.Itoa(e.Pos.Column))

	if e.err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.err.Error())
	}

	return buf.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StructuralError) Unwrap() error { return e.err }

// LogValue implements slog.LogValuer for structured logging.
func (e *StructuralError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("rule", e.Rule.String()),
		slog.Int("line", e.Pos.Line),
		slog.Int("column", e.Pos.Column),
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(attrs...)
}
