package lang

import (
	"iter"
	"strings"
)

// Document is the typed syntax tree for one layout source file.
type Document struct {
	Items []Item
}

// All returns an iterator over the document's items in source order.
func (d *Document) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, item := range d.Items {
			if !yield(item) {
				return
			}
		}
	}
}

// Constants returns an iterator over the document's constant
// declarations in source order.
func (d *Document) Constants() iter.Seq[*ConstDecl] {
	return func(yield func(*ConstDecl) bool) {
		for _, item := range d.Items {
			if c, ok := item.(*ConstDecl); ok {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// Sections returns an iterator over the document's sections in source
// order.
func (d *Document) Sections() iter.Seq[*Section] {
	return func(yield func(*Section) bool) {
		for _, item := range d.Items {
			if s, ok := item.(*Section); ok {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Section retrieves a section by name.
// Returns (nil, false) if the section is not found.
func (d *Document) Section(name string) (*Section, bool) {
	for s := range d.Sections() {
		if s.Name == name {
			return s, true
		}
	}

	return nil, false
}

// Constant retrieves a constant declaration by name.
// Returns (nil, false) if the constant is not found.
func (d *Document) Constant(name string) (*ConstDecl, bool) {
	for c := range d.Constants() {
		if c.Name == name {
			return c, true
		}
	}

	return nil, false
}

// Item is a top-level declaration. The concrete types are ConstDecl,
// MemoryMap, ElfSegments, Section, Discard, and ProvideSymbols.
type Item interface {
	item()
}

func (*ConstDecl) item()      {}
func (*MemoryMap) item()      {}
func (*ElfSegments) item()    {}
func (*Section) item()        {}
func (*Discard) item()        {}
func (*ProvideSymbols) item() {}

// ConstDecl is a named constant: "pub"? "const" name (":" type)? "=" expr ";".
type ConstDecl struct {
	Doc    []string
	Public bool
	Name   string
	Type   string // optional annotation, empty when omitted
	Value  Expr
}

// MemoryMap declares the physical memory regions available for layout.
type MemoryMap struct {
	Doc     []string
	Regions []*Region
}

// Region is one physical memory region.
type Region struct {
	Name        string
	Permissions Permissions
	Start       Expr
	Size        Expr
}

// Permissions is a set of access flags. Flag order and duplicates in
// the source are insignificant.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// String renders the flags in canonical Read | Write | Execute order.
func (p Permissions) String() string {
	flags := make([]string, 0, 3)

	if p.Read {
		flags = append(flags, "Read")
	}

	if p.Write {
		flags = append(flags, "Write")
	}

	if p.Execute {
		flags = append(flags, "Execute")
	}

	return strings.Join(flags, " | ")
}

// ElfSegments declares the program headers of the output image.
type ElfSegments struct {
	Doc      []string
	Segments []*Segment
}

// Segment is one ELF program header declaration.
type Segment struct {
	Name        string
	Type        SegmentType
	Permissions Permissions
}

// SegmentType is the kind of an ELF program header.
type SegmentType int

const (
	SegmentLoad SegmentType = iota
	SegmentDynamic
	SegmentInterp
	SegmentNote
	SegmentPhdr
	SegmentTls
	SegmentNull
)

var segmentTypeNames = [...]string{
	SegmentLoad:    "Load",
	SegmentDynamic: "Dynamic",
	SegmentInterp:  "Interp",
	SegmentNote:    "Note",
	SegmentPhdr:    "Phdr",
	SegmentTls:     "Tls",
	SegmentNull:    "Null",
}

// String returns the source spelling of the segment type.
func (t SegmentType) String() string {
	if t < 0 || int(t) >= len(segmentTypeNames) {
		return "Unknown"
	}

	return segmentTypeNames[t]
}

// Section is an output section: where it lives, where it loads from,
// and what goes into it.
type Section struct {
	Doc  []string
	Name string

	PlaceIn           string       // region holding the section at runtime
	LoadFrom          string       // region holding the load image, if split
	OutputTo          string       // target ELF segment name
	Permissions       *Permissions // nil when unspecified
	OccupiesFileSpace *bool        // nil when unspecified

	Address      *AddressBlock
	FilePosition *FilePosition
	Contents     []ContentsItem
	Assertions   []*Assertion
	NoCrossRefs  []string // section names this section must not reference
}

// AddressBlock constrains where a section is placed. Every field is
// optional; consistency between them is checked by the layout phase,
// not here.
type AddressBlock struct {
	Start       Expr
	Size        Expr
	Alignment   Expr
	VirtualBase Expr
	Follows     string // name of the section this one is placed after
	Region      string
	LoadFrom    string
}

// FilePosition pins the section's position in the output file. Origin
// placement and an explicit start expression are mutually exclusive.
type FilePosition struct {
	Origin bool
	Start  Expr // nil when Origin is set
}

// Assertion is a layout-time check with a diagnostic message.
type Assertion struct {
	Condition Expr
	Message   string
}

// Discard names input sections to drop from the output.
type Discard struct {
	Doc    []string
	Inputs []*InputStmt
}

// ProvideSymbols declares fallback symbol aliases: each name resolves
// to its target unless the name is otherwise defined.
type ProvideSymbols struct {
	Doc     []string
	Aliases []Alias
}

// Alias is one provide_symbols entry.
type Alias struct {
	Name   string
	Target string
}

// ContentsItem is one statement inside a contents block. The concrete
// types are SymbolDef, InputStmt, Keep, AlignTo, AdvanceBy,
// FillPaddingWith, and Cfg.
type ContentsItem interface {
	contentsItem()
}

func (*SymbolDef) contentsItem()       {}
func (*InputStmt) contentsItem()       {}
func (*Keep) contentsItem()            {}
func (*AlignTo) contentsItem()         {}
func (*AdvanceBy) contentsItem()       {}
func (*FillPaddingWith) contentsItem() {}
func (*Cfg) contentsItem()             {}

// SymbolDef defines a symbol at the current location cursor.
type SymbolDef struct {
	Doc      []string
	Public   bool
	Name     string
	Accessor LocationAccessor
}

// LocationAccessor selects which address of the cursor a symbol takes
// when a section's load and runtime addresses differ.
type LocationAccessor int

const (
	// AccessorDefault takes the section's natural address.
	AccessorDefault LocationAccessor = iota

	// AccessorPhysical takes the load (physical) address.
	AccessorPhysical

	// AccessorVirtual takes the runtime (virtual) address.
	AccessorVirtual
)

// String returns the source spelling of the accessor.
func (a LocationAccessor) String() string {
	switch a {
	case AccessorPhysical:
		return "physical"
	case AccessorVirtual:
		return "virtual"
	default:
		return "default"
	}
}

// InputStmt pulls input sections matching the given glob patterns,
// optionally restricted to objects from a named archive and sorted.
type InputStmt struct {
	Doc      []string
	From     string // archive or object filename glob, empty for any
	Patterns []string
	SortBy   SortKey
}

// SortKey orders the input sections matched by one input statement.
type SortKey int

const (
	SortNone SortKey = iota
	SortByName
	SortByAddress
	SortByAlignment
)

// String returns the source spelling of the sort key.
func (k SortKey) String() string {
	switch k {
	case SortByName:
		return "Name"
	case SortByAddress:
		return "Address"
	case SortByAlignment:
		return "Alignment"
	default:
		return "None"
	}
}

// Keep marks matched input sections as roots for garbage collection.
type Keep struct {
	Doc   []string
	Input *InputStmt
}

// AlignTo advances the location cursor to the given boundary.
type AlignTo struct {
	Doc      []string
	Boundary Expr
}

// AdvanceBy moves the location cursor forward by a fixed amount.
type AdvanceBy struct {
	Doc    []string
	Amount Expr
}

// FillPaddingWith sets the byte pattern written into padding gaps.
type FillPaddingWith struct {
	Doc   []string
	Value Expr
}

// Cfg guards a content item behind a feature predicate. Stacked
// attributes nest: the outermost attribute is the outermost Cfg.
type Cfg struct {
	Predicate CfgPredicate
	Item      ContentsItem
}

// CfgPredicate is a feature condition. The concrete types are Feature,
// Not, All, and Any.
type CfgPredicate interface {
	cfgPredicate()
}

func (*Feature) cfgPredicate() {}
func (*Not) cfgPredicate()     {}
func (*All) cfgPredicate()     {}
func (*Any) cfgPredicate()     {}

// Feature tests whether a named feature is enabled.
type Feature struct {
	Name string
}

// Not inverts its operand.
type Not struct {
	Operand CfgPredicate
}

// All is true when every operand is true.
type All struct {
	Operands []CfgPredicate
}

// Any is true when at least one operand is true.
type Any struct {
	Operands []CfgPredicate
}

// Eval evaluates a predicate against a set of enabled feature names.
func Eval(p CfgPredicate, features map[string]bool) bool {
	switch p := p.(type) {
	case *Feature:
		return features[p.Name]

	case *Not:
		return !Eval(p.Operand, features)

	case *All:
		for _, op := range p.Operands {
			if !Eval(op, features) {
				return false
			}
		}

		return true

	case *Any:
		for _, op := range p.Operands {
			if Eval(op, features) {
				return true
			}
		}

		return false

	default:
		return false
	}
}

// Expr is an arithmetic expression. The concrete types are Number,
// Ident, Here, SizeFn, BinOp, UnaryMinus, Member, and Call.
type Expr interface {
	expr()
}

func (*Number) expr()     {}
func (*Ident) expr()      {}
func (*Here) expr()       {}
func (*SizeFn) expr()     {}
func (*BinOp) expr()      {}
func (*UnaryMinus) expr() {}
func (*Member) expr()     {}
func (*Call) expr()       {}

// Number is a normalized numeric literal: separators stripped, hex
// decoded, and K/M byte-size suffixes applied.
type Number struct {
	Value uint64
}

// Ident references a constant, region, or symbol by name.
type Ident struct {
	Name string
}

// Here is the location cursor: the address of the point in the section
// where the expression appears.
type Here struct{}

// SizeFn is the size() builtin: the size of the enclosing section.
type SizeFn struct{}

// BinOp is a binary operation.
type BinOp struct {
	Op    Op
	Left  Expr
	Right Expr
}

// UnaryMinus negates its operand in two's complement.
type UnaryMinus struct {
	Operand Expr
}

// Member accesses a field of a value, e.g. FLASH.start.
type Member struct {
	Target Expr
	Field  string
}

// Call invokes a callable value with arguments.
type Call struct {
	Target Expr
	Args   []Expr
}

// Op is a binary operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEq
	OpNotEq
)

var opNames = [...]string{
	OpAdd:       "+",
	OpSub:       "-",
	OpMul:       "*",
	OpDiv:       "/",
	OpRem:       "%",
	OpLess:      "<",
	OpLessEq:    "<=",
	OpGreater:   ">",
	OpGreaterEq: ">=",
	OpEq:        "==",
	OpNotEq:     "!=",
}

// String returns the source spelling of the operator.
func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "?"
	}

	return opNames[op]
}

// precedence returns the binding strength of the operator: relational
// binds loosest, multiplicative tightest. All levels associate left.
func (op Op) precedence() int {
	switch op {
	case OpMul, OpDiv, OpRem:
		return 3
	case OpAdd, OpSub:
		return 2
	default:
		return 1
	}
}
