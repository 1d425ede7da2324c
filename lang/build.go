package lang

import (
	"context"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"

	"github.com/berkus/linker-script/lang/parser"
	"github.com/berkus/linker-script/log"
)

// builder walks a parse tree and constructs the typed AST. Any shape
// the grammar cannot produce is reported as a StructuralError: it
// means the parser and builder disagree, not that the source is wrong.
type builder struct {
	logger log.Logger
}

func (b *builder) structural(n *parser.Node, err error) error {
	return NewStructuralError(n.Rule, n.Pos, err)
}

// buildDocument assembles a Document from a file parse tree.
func (b *builder) buildDocument(ctx context.Context, root *parser.Node) (*Document, error) {
	doc := &Document{}

	for _, c := range root.Children {
		item, err := b.buildItem(ctx, c)
		if err != nil {
			return nil, err
		}

		doc.Items = append(doc.Items, item)
	}

	b.logger.TraceContext(
		ctx,
		"document built",
		slog.Int("item_count", len(doc.Items)),
	)

	return doc, nil
}

func (b *builder) buildItem(ctx context.Context, n *parser.Node) (Item, error) {
	b.logger.TraceContext(
		ctx,
		"build item",
		slog.String("rule", n.Rule.String()),
		slog.Int("line", n.Pos.Line),
	)

	switch n.Rule {
	case parser.RuleConstDecl:
		return b.buildConstDecl(n)
	case parser.RuleMemoryMap:
		return b.buildMemoryMap(n)
	case parser.RuleElfSegments:
		return b.buildElfSegments(n)
	case parser.RuleSection:
		return b.buildSection(ctx, n)
	case parser.RuleDiscard:
		return b.buildDiscard(n)
	case parser.RuleProvideSymbols:
		return b.buildProvideSymbols(n)
	default:
		return nil, b.structural(n, ErrUnknownRule)
	}
}

// ConstDecl children: doc*, pub?, name, type?, expr.
func (b *builder) buildConstDecl(n *parser.Node) (*ConstDecl, error) {
	decl := &ConstDecl{
		Doc:    docStrings(n),
		Public: n.First(parser.RulePub) != nil,
	}

	idents := n.All(parser.RuleIdent)
	if len(idents) == 0 {
		return nil, b.structural(n, ErrMissingChild)
	}

	decl.Name = idents[0].Text
	if len(idents) > 1 {
		decl.Type = idents[1].Text
	}

	value := n.First(parser.RuleExpr)
	if value == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	expr, err := b.buildExpr(value)
	if err != nil {
		return nil, err
	}

	decl.Value = expr

	return decl, nil
}

// fieldParts splits a field node into its key text and value node.
func (b *builder) fieldParts(f *parser.Node) (string, *parser.Node, error) {
	key := f.Child(0)
	value := f.Child(1)

	if key == nil || value == nil {
		return "", nil, b.structural(f, ErrMissingChild)
	}

	return key.Text, value, nil
}

func (b *builder) buildMemoryMap(n *parser.Node) (*MemoryMap, error) {
	m := &MemoryMap{Doc: docStrings(n)}

	for _, c := range n.All(parser.RuleRegion) {
		region, err := b.buildRegion(c)
		if err != nil {
			return nil, err
		}

		m.Regions = append(m.Regions, region)
	}

	return m, nil
}

func (b *builder) buildRegion(n *parser.Node) (*Region, error) {
	name := n.First(parser.RuleIdent)
	if name == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	region := &Region{Name: name.Text}

	for _, f := range n.All(parser.RuleField) {
		key, value, err := b.fieldParts(f)
		if err != nil {
			return nil, err
		}

		switch key {
		case "permissions":
			perms, err := b.buildPermissions(value)
			if err != nil {
				return nil, err
			}

			region.Permissions = perms

		case "start":
			region.Start, err = b.buildExpr(value)

		case "size":
			region.Size, err = b.buildExpr(value)

		default:
			return nil, b.structural(f, ErrUnknownRule)
		}

		if err != nil {
			return nil, err
		}
	}

	return region, nil
}

func (b *builder) buildElfSegments(n *parser.Node) (*ElfSegments, error) {
	e := &ElfSegments{Doc: docStrings(n)}

	for _, c := range n.All(parser.RuleSegment) {
		segment, err := b.buildSegment(c)
		if err != nil {
			return nil, err
		}

		e.Segments = append(e.Segments, segment)
	}

	return e, nil
}

var segmentTypes = map[string]SegmentType{
	"Load":    SegmentLoad,
	"Dynamic": SegmentDynamic,
	"Interp":  SegmentInterp,
	"Note":    SegmentNote,
	"Phdr":    SegmentPhdr,
	"Tls":     SegmentTls,
	"Null":    SegmentNull,
}

func (b *builder) buildSegment(n *parser.Node) (*Segment, error) {
	name := n.First(parser.RuleIdent)
	if name == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	segment := &Segment{Name: name.Text}

	for _, f := range n.All(parser.RuleField) {
		key, value, err := b.fieldParts(f)
		if err != nil {
			return nil, err
		}

		switch key {
		case "type":
			t, ok := segmentTypes[value.Text]
			if !ok {
				return nil, b.structural(f, ErrUnknownRule)
			}

			segment.Type = t

		case "permissions":
			perms, err := b.buildPermissions(value)
			if err != nil {
				return nil, err
			}

			segment.Permissions = perms

		default:
			return nil, b.structural(f, ErrUnknownRule)
		}
	}

	return segment, nil
}

// buildSection folds section entries in source order. A repeated
// key-value field or address block takes its last value; contents,
// assertions, and cross-reference checks accumulate.
func (b *builder) buildSection(ctx context.Context, n *parser.Node) (*Section, error) {
	name := n.First(parser.RuleName)
	if name == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	section := &Section{Doc: docStrings(n), Name: name.Text}

	b.logger.TraceContext(
		ctx,
		"build section",
		slog.String("name", section.Name),
	)

	for _, c := range n.Children {
		switch c.Rule {
		case parser.RuleDocComment, parser.RuleName:
			// Already consumed.

		case parser.RuleField:
			if err := b.sectionField(section, c); err != nil {
				return nil, err
			}

		case parser.RuleAddress:
			addr, err := b.buildAddress(c)
			if err != nil {
				return nil, err
			}

			section.Address = addr

		case parser.RuleFilePosition:
			fp, err := b.buildFilePosition(c)
			if err != nil {
				return nil, err
			}

			section.FilePosition = fp

		case parser.RuleContents:
			items, err := b.buildContents(ctx, c)
			if err != nil {
				return nil, err
			}

			section.Contents = append(section.Contents, items...)

		case parser.RuleAssert:
			assertion, err := b.buildAssertion(c)
			if err != nil {
				return nil, err
			}

			section.Assertions = append(section.Assertions, assertion)

		case parser.RuleNoCrossRefs:
			for _, target := range c.All(parser.RuleName) {
				section.NoCrossRefs = append(section.NoCrossRefs, target.Text)
			}

		default:
			return nil, b.structural(c, ErrUnknownRule)
		}
	}

	return section, nil
}

func (b *builder) sectionField(section *Section, f *parser.Node) error {
	key, value, err := b.fieldParts(f)
	if err != nil {
		return err
	}

	switch key {
	case "place_in":
		section.PlaceIn = value.Text

	case "load_from":
		section.LoadFrom = value.Text

	case "output_to":
		section.OutputTo = value.Text

	case "permissions":
		perms, err := b.buildPermissions(value)
		if err != nil {
			return err
		}

		section.Permissions = &perms

	case "occupies_file_space":
		occupies := value.Text == "true"
		section.OccupiesFileSpace = &occupies

	default:
		return b.structural(f, ErrUnknownRule)
	}

	return nil
}

func (b *builder) buildAddress(n *parser.Node) (*AddressBlock, error) {
	addr := &AddressBlock{}

	for _, f := range n.All(parser.RuleField) {
		key, value, err := b.fieldParts(f)
		if err != nil {
			return nil, err
		}

		switch key {
		case "start":
			addr.Start, err = b.buildExpr(value)
		case "size":
			addr.Size, err = b.buildExpr(value)
		case "alignment":
			addr.Alignment, err = b.buildExpr(value)
		case "virtual_base":
			addr.VirtualBase, err = b.buildExpr(value)
		case "follows":
			addr.Follows = value.Text
		case "region":
			addr.Region = value.Text
		case "load_from_region":
			addr.LoadFrom = value.Text
		default:
			return nil, b.structural(f, ErrUnknownRule)
		}

		if err != nil {
			return nil, err
		}
	}

	return addr, nil
}

func (b *builder) buildFilePosition(n *parser.Node) (*FilePosition, error) {
	field := n.First(parser.RuleField)
	if field == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	_, value, err := b.fieldParts(field)
	if err != nil {
		return nil, err
	}

	if value.Rule == parser.RuleOrigin {
		return &FilePosition{Origin: true}, nil
	}

	start, err := b.buildExpr(value)
	if err != nil {
		return nil, err
	}

	return &FilePosition{Start: start}, nil
}

func (b *builder) buildAssertion(n *parser.Node) (*Assertion, error) {
	cond := n.First(parser.RuleExpr)
	msg := n.First(parser.RuleString)

	if cond == nil || msg == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	expr, err := b.buildExpr(cond)
	if err != nil {
		return nil, err
	}

	return &Assertion{Condition: expr, Message: unquote(msg)}, nil
}

func (b *builder) buildDiscard(n *parser.Node) (*Discard, error) {
	d := &Discard{Doc: docStrings(n)}

	for _, c := range n.All(parser.RuleInput) {
		input, err := b.buildInput(c)
		if err != nil {
			return nil, err
		}

		d.Inputs = append(d.Inputs, input)
	}

	return d, nil
}

func (b *builder) buildProvideSymbols(n *parser.Node) (*ProvideSymbols, error) {
	p := &ProvideSymbols{Doc: docStrings(n)}

	for _, c := range n.All(parser.RuleProvidePair) {
		idents := c.All(parser.RuleIdent)
		if len(idents) != 2 {
			return nil, b.structural(c, ErrMissingChild)
		}

		p.Aliases = append(p.Aliases, Alias{
			Name:   idents[0].Text,
			Target: idents[1].Text,
		})
	}

	return p, nil
}

// buildContents assembles the item list of a contents block.
func (b *builder) buildContents(ctx context.Context, n *parser.Node) ([]ContentsItem, error) {
	var items []ContentsItem

	for _, c := range n.All(parser.RuleContentsItem) {
		item, err := b.buildContentsItem(ctx, c)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

// buildContentsItem builds the payload, attaches doc comments, then
// wraps stacked cfg attributes around it: the first attribute in the
// source becomes the outermost Cfg.
func (b *builder) buildContentsItem(ctx context.Context, n *parser.Node) (ContentsItem, error) {
	var item ContentsItem

	payload := n.Child(len(n.Children) - 1)
	if payload == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	var err error

	switch payload.Rule {
	case parser.RuleSymbolDef:
		item, err = b.buildSymbolDef(payload)
	case parser.RuleInput:
		item, err = b.buildInput(payload)
	case parser.RuleKeep:
		item, err = b.buildKeep(payload)
	case parser.RuleAlignTo:
		item, err = b.exprStmt(payload, func(e Expr) ContentsItem {
			return &AlignTo{Boundary: e}
		})
	case parser.RuleAdvanceBy:
		item, err = b.exprStmt(payload, func(e Expr) ContentsItem {
			return &AdvanceBy{Amount: e}
		})
	case parser.RuleFillPaddingWith:
		item, err = b.exprStmt(payload, func(e Expr) ContentsItem {
			return &FillPaddingWith{Value: e}
		})
	default:
		return nil, b.structural(payload, ErrUnknownRule)
	}

	if err != nil {
		return nil, err
	}

	attachDoc(item, docStrings(n))

	attrs := n.All(parser.RuleCfgAttr)
	for i := len(attrs) - 1; i >= 0; i-- {
		pred, err := b.buildCfgAttr(attrs[i])
		if err != nil {
			return nil, err
		}

		b.logger.TraceContext(
			ctx,
			"cfg attribute",
			slog.String("payload", payload.Rule.String()),
		)

		item = &Cfg{Predicate: pred, Item: item}
	}

	return item, nil
}

func attachDoc(item ContentsItem, doc []string) {
	if len(doc) == 0 {
		return
	}

	switch item := item.(type) {
	case *SymbolDef:
		item.Doc = doc
	case *InputStmt:
		item.Doc = doc
	case *Keep:
		item.Doc = doc
	case *AlignTo:
		item.Doc = doc
	case *AdvanceBy:
		item.Doc = doc
	case *FillPaddingWith:
		item.Doc = doc
	}
}

func (b *builder) buildSymbolDef(n *parser.Node) (*SymbolDef, error) {
	name := n.First(parser.RuleIdent)
	if name == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	def := &SymbolDef{
		Public: n.First(parser.RulePub) != nil,
		Name:   name.Text,
	}

	loc := n.First(parser.RuleLocationExpr)
	if loc == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	if accessor := loc.First(parser.RuleIdent); accessor != nil {
		switch accessor.Text {
		case "physical":
			def.Accessor = AccessorPhysical
		case "virtual":
			def.Accessor = AccessorVirtual
		default:
			return nil, b.structural(loc, ErrUnknownRule)
		}
	}

	return def, nil
}

var sortKeys = map[string]SortKey{
	"Name":      SortByName,
	"Address":   SortByAddress,
	"Alignment": SortByAlignment,
}

func (b *builder) buildInput(n *parser.Node) (*InputStmt, error) {
	input := &InputStmt{}

	if from := n.First(parser.RuleFrom); from != nil {
		pattern := from.First(parser.RuleString)
		if pattern == nil {
			return nil, b.structural(from, ErrMissingChild)
		}

		input.From = unquote(pattern)
	}

	for _, g := range n.All(parser.RuleGlob) {
		input.Patterns = append(input.Patterns, g.Text)
	}

	if len(input.Patterns) == 0 {
		return nil, b.structural(n, ErrMissingChild)
	}

	if sort := n.First(parser.RuleSortBy); sort != nil {
		key := sort.First(parser.RuleIdent)
		if key == nil {
			return nil, b.structural(sort, ErrMissingChild)
		}

		k, ok := sortKeys[key.Text]
		if !ok {
			return nil, b.structural(sort, ErrUnknownRule)
		}

		input.SortBy = k
	}

	return input, nil
}

func (b *builder) buildKeep(n *parser.Node) (*Keep, error) {
	inner := n.First(parser.RuleInput)
	if inner == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	input, err := b.buildInput(inner)
	if err != nil {
		return nil, err
	}

	return &Keep{Input: input}, nil
}

func (b *builder) exprStmt(n *parser.Node, wrap func(Expr) ContentsItem) (ContentsItem, error) {
	arg := n.First(parser.RuleExpr)
	if arg == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	expr, err := b.buildExpr(arg)
	if err != nil {
		return nil, err
	}

	return wrap(expr), nil
}

func (b *builder) buildCfgAttr(n *parser.Node) (CfgPredicate, error) {
	pred := n.Child(0)
	if pred == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	return b.buildCfgPredicate(pred)
}

func (b *builder) buildCfgPredicate(n *parser.Node) (CfgPredicate, error) {
	switch n.Rule {
	case parser.RuleCfgFeature:
		name := n.First(parser.RuleString)
		if name == nil {
			return nil, b.structural(n, ErrMissingChild)
		}

		return &Feature{Name: unquote(name)}, nil

	case parser.RuleCfgNot:
		operand := n.Child(0)
		if operand == nil {
			return nil, b.structural(n, ErrMissingChild)
		}

		inner, err := b.buildCfgPredicate(operand)
		if err != nil {
			return nil, err
		}

		return &Not{Operand: inner}, nil

	case parser.RuleCfgAll, parser.RuleCfgAny:
		operands := make([]CfgPredicate, 0, len(n.Children))

		for _, c := range n.Children {
			inner, err := b.buildCfgPredicate(c)
			if err != nil {
				return nil, err
			}

			operands = append(operands, inner)
		}

		if n.Rule == parser.RuleCfgAll {
			return &All{Operands: operands}, nil
		}

		return &Any{Operands: operands}, nil

	default:
		return nil, b.structural(n, ErrUnknownRule)
	}
}

func (b *builder) buildPermissions(n *parser.Node) (Permissions, error) {
	var perms Permissions

	for _, flag := range n.All(parser.RuleIdent) {
		switch flag.Text {
		case "Read":
			perms.Read = true
		case "Write":
			perms.Write = true
		case "Execute":
			perms.Execute = true
		default:
			return perms, b.structural(n, ErrUnknownRule)
		}
	}

	return perms, nil
}

// Expressions. The parse tree keeps expressions flat, alternating
// operand and operator children; precedence climbing shapes them here.

func (b *builder) buildExpr(n *parser.Node) (Expr, error) {
	if len(n.Children) == 0 {
		return nil, b.structural(n, ErrMissingChild)
	}

	lhs, err := b.buildOperand(n.Child(0))
	if err != nil {
		return nil, err
	}

	expr, next, err := b.climb(n, lhs, 1, 0)
	if err != nil {
		return nil, err
	}

	if next != len(n.Children) {
		return nil, b.structural(n, ErrUnknownRule)
	}

	return expr, nil
}

// climb folds operators of at least minPrec into lhs, starting at
// child index i of the flat expression node. It returns the folded
// expression and the index of the first unconsumed child.
func (b *builder) climb(n *parser.Node, lhs Expr, i, minPrec int) (Expr, int, error) {
	for i < len(n.Children) {
		op, err := b.operator(n.Child(i))
		if err != nil {
			return nil, 0, err
		}

		if op.precedence() < minPrec {
			break
		}

		rhsNode := n.Child(i + 1)
		if rhsNode == nil {
			return nil, 0, b.structural(n, ErrMissingChild)
		}

		rhs, err := b.buildOperand(rhsNode)
		if err != nil {
			return nil, 0, err
		}

		i += 2

		// Fold tighter operators into the right operand first.
		for i < len(n.Children) {
			next, err := b.operator(n.Child(i))
			if err != nil {
				return nil, 0, err
			}

			if next.precedence() <= op.precedence() {
				break
			}

			rhs, i, err = b.climb(n, rhs, i, op.precedence()+1)
			if err != nil {
				return nil, 0, err
			}
		}

		lhs = &BinOp{Op: op, Left: lhs, Right: rhs}
	}

	return lhs, i, nil
}

var operators = map[string]Op{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"%":  OpRem,
	"<":  OpLess,
	"<=": OpLessEq,
	">":  OpGreater,
	">=": OpGreaterEq,
	"==": OpEq,
	"!=": OpNotEq,
}

func (b *builder) operator(n *parser.Node) (Op, error) {
	if n == nil || n.Rule != parser.RuleBinOp {
		return 0, b.structural(n, ErrUnknownRule)
	}

	op, ok := operators[n.Text]
	if !ok {
		return 0, b.structural(n, ErrUnknownRule)
	}

	return op, nil
}

// buildOperand builds a term, or recurses for a parenthesized group.
func (b *builder) buildOperand(n *parser.Node) (Expr, error) {
	if n.Rule == parser.RuleExpr {
		return b.buildExpr(n)
	}

	if n.Rule != parser.RuleTerm {
		return nil, b.structural(n, ErrUnknownRule)
	}

	if n.First(parser.RuleUnaryMinus) != nil {
		inner := n.First(parser.RuleTerm)
		if inner == nil {
			return nil, b.structural(n, ErrMissingChild)
		}

		operand, err := b.buildOperand(inner)
		if err != nil {
			return nil, err
		}

		return &UnaryMinus{Operand: operand}, nil
	}

	primary := n.Child(0)
	if primary == nil {
		return nil, b.structural(n, ErrMissingChild)
	}

	expr, err := b.buildPrimary(primary)
	if err != nil {
		return nil, err
	}

	for _, c := range n.Children[1:] {
		switch c.Rule {
		case parser.RuleMember:
			field := c.First(parser.RuleIdent)
			if field == nil {
				return nil, b.structural(c, ErrMissingChild)
			}

			expr = &Member{Target: expr, Field: field.Text}

		case parser.RuleCallArgs:
			args := make([]Expr, 0, len(c.Children))

			for _, a := range c.Children {
				arg, err := b.buildExpr(a)
				if err != nil {
					return nil, err
				}

				args = append(args, arg)
			}

			expr = &Call{Target: expr, Args: args}

		default:
			return nil, b.structural(c, ErrUnknownRule)
		}
	}

	return expr, nil
}

func (b *builder) buildPrimary(n *parser.Node) (Expr, error) {
	switch n.Rule {
	case parser.RuleNumber:
		value, err := parseNumber(n.Text)
		if err != nil {
			return nil, b.structural(n, err)
		}

		return &Number{Value: value}, nil

	case parser.RuleIdent:
		return &Ident{Name: n.Text}, nil

	case parser.RuleHere:
		return &Here{}, nil

	case parser.RuleSize:
		return &SizeFn{}, nil

	case parser.RuleExpr:
		return b.buildExpr(n)

	default:
		return nil, b.structural(n, ErrUnknownRule)
	}
}

// parseNumber normalizes a numeric literal: strips "_" separators,
// decodes an optional 0x prefix, and applies a K (KiB) or M (MiB)
// suffix. Values that overflow uint64 are rejected.
func parseNumber(text string) (uint64, error) {
	var scale uint64 = 1

	switch {
	case strings.HasSuffix(text, "K"):
		scale = 1 << 10
		text = strings.TrimSuffix(text, "K")
	case strings.HasSuffix(text, "M"):
		scale = 1 << 20
		text = strings.TrimSuffix(text, "M")
	}

	text = strings.ReplaceAll(text, "_", "")

	base := 10
	if rest, ok := strings.CutPrefix(text, "0x"); ok {
		base, text = 16, rest
	} else if rest, ok := strings.CutPrefix(text, "0X"); ok {
		base, text = 16, rest
	}

	value, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		return 0, ErrNumberRange.Wrap(err)
	}

	hi, lo := bits.Mul64(value, scale)
	if hi != 0 {
		return 0, ErrNumberRange
	}

	return lo, nil
}

// docStrings collects a node's doc comments with the "///" marker and
// one leading space stripped.
func docStrings(n *parser.Node) []string {
	var docs []string

	for _, d := range n.All(parser.RuleDocComment) {
		text := strings.TrimPrefix(d.Text, "///")
		docs = append(docs, strings.TrimPrefix(text, " "))
	}

	return docs
}

// unquote decodes a string literal, falling back to bare quote
// trimming if the escape sequences do not round-trip.
func unquote(n *parser.Node) string {
	if s, err := strconv.Unquote(n.Text); err == nil {
		return s
	}

	return strings.Trim(n.Text, `"`)
}
