package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Format writes the document in canonical source syntax to the writer.
// indent is the number of spaces per nesting level; values below one
// use the default of four. Doc comments are preserved; expression
// spacing, field order within items, and trailing commas are
// normalized.
func (d *Document) Format(_ context.Context, w io.Writer, indent int) error {
	if indent < 1 {
		indent = 4
	}

	f := &formatter{w: w, pad: strings.Repeat(" ", indent)}

	for i, item := range d.Items {
		if i > 0 {
			f.line("")
		}

		f.item(item)
	}

	return f.err
}

// FormatJSON writes the document's data projection as JSON.
func (d *Document) FormatJSON(_ context.Context, w io.Writer, indent int) error {
	var (
		data []byte
		err  error
	)

	if indent > 0 {
		data, err = json.MarshalIndent(d, "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(d)
	}

	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

// FormatYAML writes the document's data projection as YAML.
func (d *Document) FormatYAML(ctx context.Context, w io.Writer, indent int) error {
	var opts []yaml.EncodeOption
	if indent > 0 {
		opts = append(opts, yaml.Indent(indent))
	} else {
		opts = append(opts, yaml.Flow(true))
	}

	data, err := yaml.MarshalContext(ctx, d.ToMap(), opts...)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w, string(data))

	return err
}

// formatter accumulates the first write error so item formatting can
// stay free of error plumbing.
type formatter struct {
	w     io.Writer
	pad   string
	depth int
	err   error
}

func (f *formatter) line(s string) {
	if f.err != nil {
		return
	}

	if s == "" {
		_, f.err = io.WriteString(f.w, "\n")

		return
	}

	_, f.err = io.WriteString(f.w, strings.Repeat(f.pad, f.depth)+s+"\n")
}

func (f *formatter) doc(doc []string) {
	for _, d := range doc {
		if d == "" {
			f.line("///")

			continue
		}

		f.line("/// " + d)
	}
}

func (f *formatter) item(item Item) {
	switch item := item.(type) {
	case *ConstDecl:
		f.constDecl(item)
	case *MemoryMap:
		f.memoryMap(item)
	case *ElfSegments:
		f.elfSegments(item)
	case *Section:
		f.section(item)
	case *Discard:
		f.discard(item)
	case *ProvideSymbols:
		f.provideSymbols(item)
	}
}

func (f *formatter) constDecl(c *ConstDecl) {
	f.doc(c.Doc)

	var buf strings.Builder

	if c.Public {
		buf.WriteString("pub ")
	}

	buf.WriteString("const ")
	buf.WriteString(c.Name)

	if c.Type != "" {
		buf.WriteString(": ")
		buf.WriteString(c.Type)
	}

	buf.WriteString(" = ")
	buf.WriteString(ExprString(c.Value))
	buf.WriteString(";")

	f.line(buf.String())
}

func (f *formatter) memoryMap(m *MemoryMap) {
	f.doc(m.Doc)
	f.line("memory_map {")
	f.depth++

	for i, r := range m.Regions {
		if i > 0 {
			f.line("")
		}

		f.line("region " + r.Name + " {")
		f.depth++
		f.line("permissions: " + r.Permissions.String() + ",")

		if r.Start != nil {
			f.line("start: " + ExprString(r.Start) + ",")
		}

		if r.Size != nil {
			f.line("size: " + ExprString(r.Size) + ",")
		}

		f.depth--
		f.line("}")
	}

	f.depth--
	f.line("}")
}

func (f *formatter) elfSegments(e *ElfSegments) {
	f.doc(e.Doc)
	f.line("elf_segments {")
	f.depth++

	for i, s := range e.Segments {
		if i > 0 {
			f.line("")
		}

		f.line("segment " + s.Name + " {")
		f.depth++
		f.line("type: " + s.Type.String() + ",")
		f.line("permissions: " + s.Permissions.String() + ",")
		f.depth--
		f.line("}")
	}

	f.depth--
	f.line("}")
}

func (f *formatter) section(s *Section) {
	f.doc(s.Doc)
	f.line("section " + s.Name + " {")
	f.depth++

	if s.PlaceIn != "" {
		f.line("place_in: " + s.PlaceIn + ",")
	}

	if s.LoadFrom != "" {
		f.line("load_from: " + s.LoadFrom + ",")
	}

	if s.OutputTo != "" {
		f.line("output_to: segment(" + s.OutputTo + "),")
	}

	if s.Permissions != nil {
		f.line("permissions: " + s.Permissions.String() + ",")
	}

	if s.OccupiesFileSpace != nil {
		f.line("occupies_file_space: " + strconv.FormatBool(*s.OccupiesFileSpace) + ",")
	}

	if s.Address != nil {
		f.address(s.Address)
	}

	if s.FilePosition != nil {
		f.line("file_position {")
		f.depth++

		if s.FilePosition.Origin {
			f.line("start: origin,")
		} else {
			f.line("start: " + ExprString(s.FilePosition.Start) + ",")
		}

		f.depth--
		f.line("}")
	}

	if len(s.Contents) > 0 {
		f.line("contents {")
		f.depth++

		for _, item := range s.Contents {
			f.contentsItem(item)
		}

		f.depth--
		f.line("}")
	}

	for _, a := range s.Assertions {
		f.line("assert(" + ExprString(a.Condition) + ", " + strconv.Quote(a.Message) + ");")
	}

	if len(s.NoCrossRefs) > 0 {
		f.line("assert_no_cross_references_to(" + strings.Join(s.NoCrossRefs, ", ") + ");")
	}

	f.depth--
	f.line("}")
}

func (f *formatter) address(a *AddressBlock) {
	f.line("address {")
	f.depth++

	if a.Start != nil {
		f.line("start: " + ExprString(a.Start) + ",")
	}

	if a.Size != nil {
		f.line("size: " + ExprString(a.Size) + ",")
	}

	if a.Alignment != nil {
		f.line("alignment: " + ExprString(a.Alignment) + ",")
	}

	if a.Follows != "" {
		f.line("follows: " + a.Follows + ",")
	}

	if a.VirtualBase != nil {
		f.line("virtual_base: " + ExprString(a.VirtualBase) + ",")
	}

	if a.Region != "" {
		f.line("region: " + a.Region + ",")
	}

	if a.LoadFrom != "" {
		f.line("load_from_region: " + a.LoadFrom + ",")
	}

	f.depth--
	f.line("}")
}

func (f *formatter) contentsItem(item ContentsItem) {
	switch item := item.(type) {
	case *Cfg:
		f.line("#[cfg(" + PredicateString(item.Predicate) + ")]")
		f.contentsItem(item.Item)

	case *SymbolDef:
		f.doc(item.Doc)

		var buf strings.Builder

		if item.Public {
			buf.WriteString("pub ")
		}

		buf.WriteString("symbol ")
		buf.WriteString(item.Name)
		buf.WriteString(" = here()")

		if item.Accessor != AccessorDefault {
			buf.WriteString("." + item.Accessor.String() + "()")
		}

		buf.WriteString(";")
		f.line(buf.String())

	case *InputStmt:
		f.doc(item.Doc)
		f.line(inputString(item))

	case *Keep:
		f.doc(item.Doc)
		f.line("keep(" + inputString(item.Input) + ")")

	case *AlignTo:
		f.doc(item.Doc)
		f.line("align_to(" + ExprString(item.Boundary) + ");")

	case *AdvanceBy:
		f.doc(item.Doc)
		f.line("advance_by(" + ExprString(item.Amount) + ");")

	case *FillPaddingWith:
		f.doc(item.Doc)
		f.line("fill_padding_with(" + ExprString(item.Value) + ");")
	}
}

func (f *formatter) discard(d *Discard) {
	f.doc(d.Doc)
	f.line("discard {")
	f.depth++

	for _, input := range d.Inputs {
		f.line(inputString(input))
	}

	f.depth--
	f.line("}")
}

func (f *formatter) provideSymbols(p *ProvideSymbols) {
	f.doc(p.Doc)
	f.line("provide_symbols {")
	f.depth++

	for _, a := range p.Aliases {
		f.line(a.Name + " = " + a.Target + ",")
	}

	f.depth--
	f.line("}")
}

func inputString(input *InputStmt) string {
	var parts []string

	if input.From != "" {
		parts = append(parts, "from("+strconv.Quote(input.From)+")")
	}

	parts = append(parts, input.Patterns...)

	if input.SortBy != SortNone {
		parts = append(parts, "sort_by("+input.SortBy.String()+")")
	}

	return "input(" + strings.Join(parts, ", ") + ")"
}

// PredicateString renders a cfg predicate in source syntax.
func PredicateString(p CfgPredicate) string {
	switch p := p.(type) {
	case *Feature:
		return "feature = " + strconv.Quote(p.Name)

	case *Not:
		return "not(" + PredicateString(p.Operand) + ")"

	case *All:
		return "all(" + predicateList(p.Operands) + ")"

	case *Any:
		return "any(" + predicateList(p.Operands) + ")"

	default:
		return ""
	}
}

func predicateList(operands []CfgPredicate) string {
	parts := make([]string, len(operands))
	for i, op := range operands {
		parts[i] = PredicateString(op)
	}

	return strings.Join(parts, ", ")
}

// ExprString renders an expression in source syntax, parenthesizing
// only where precedence requires it.
func ExprString(e Expr) string {
	return exprPrec(e, 0)
}

// Precedence 4 is used for unary and postfix operands, which bind
// tighter than any binary operator.
func exprPrec(e Expr, min int) string {
	switch e := e.(type) {
	case *Number:
		return numberString(e.Value)

	case *Ident:
		return e.Name

	case *Here:
		return "here()"

	case *SizeFn:
		return "size()"

	case *UnaryMinus:
		return "-" + exprPrec(e.Operand, 4)

	case *Member:
		return exprPrec(e.Target, 4) + "." + e.Field

	case *Call:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = exprPrec(a, 0)
		}

		return exprPrec(e.Target, 4) + "(" + strings.Join(args, ", ") + ")"

	case *BinOp:
		p := e.Op.precedence()

		s := exprPrec(e.Left, p) + " " + e.Op.String() + " " + exprPrec(e.Right, p+1)
		if p < min {
			return "(" + s + ")"
		}

		return s

	default:
		return ""
	}
}

// numberString renders a value in its most readable literal form:
// an exact M or K byte-size suffix, hex for address-sized values,
// decimal otherwise.
func numberString(v uint64) string {
	switch {
	case v != 0 && v%(1<<20) == 0:
		return strconv.FormatUint(v>>20, 10) + "M"
	case v != 0 && v%(1<<10) == 0:
		return strconv.FormatUint(v>>10, 10) + "K"
	case v >= 0x1_0000:
		return "0x" + strconv.FormatUint(v, 16)
	default:
		return strconv.FormatUint(v, 10)
	}
}
