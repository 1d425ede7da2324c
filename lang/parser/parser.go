// Package parser recognizes the linker-layout DSL and produces a
// generic parse tree: a hierarchy of matched rules, each carrying its
// rule identity, the matched text span, and its nested child matches.
// The typed AST is assembled from this tree by the lang package.
//
// The descent is deterministic: every alternative is selected by the
// next keyword or punctuation character, so the first failure is the
// farthest failure and carries the full set of acceptable terminals.
package parser

import (
	"strconv"
	"strings"
)

// Parse parses input starting at the given rule and returns the root
// node of the parse tree. Parsing is all-or-nothing: the entire input
// must be consumed by the start rule, and no tree is returned on error.
//
// Supported start rules are RuleFile, RuleConstDecl, RuleMemoryMap,
// RuleElfSegments, RuleSection, RuleDiscard, RuleProvideSymbols,
// RuleContents, RuleInput, and RuleExpr.
func Parse(input string, start Rule) (*Node, *Error) {
	p := &parser{input: input, line: 1, col: 1}

	n, err := p.parseStart(start)
	if err != nil {
		return nil, err
	}

	p.skipTrivia()

	if !p.eof() {
		return nil, p.fail("end of input")
	}

	return n, nil
}

type parser struct {
	input string
	pos   int
	line  int
	col   int
	rules []Rule // active rule stack, innermost last
	worst *Error // farthest failure seen
}

func (p *parser) parseStart(start Rule) (*Node, *Error) {
	if start != RuleFile {
		p.skipTrivia()
	}

	switch start {
	case RuleFile:
		return p.parseFile()
	case RuleConstDecl:
		return p.parseConstDecl(nil)
	case RuleMemoryMap:
		return p.parseMemoryMap(nil)
	case RuleElfSegments:
		return p.parseElfSegments(nil)
	case RuleSection:
		return p.parseSection(nil)
	case RuleDiscard:
		return p.parseDiscard(nil)
	case RuleProvideSymbols:
		return p.parseProvideSymbols(nil)
	case RuleContents:
		return p.parseContents()
	case RuleInput:
		return p.parseInput()
	case RuleExpr:
		return p.parseExpr()
	default:
		return nil, &Error{
			Pos:      p.position(),
			Rule:     start,
			Expected: []string{"a start rule"},
		}
	}
}

// File : Item*.
func (p *parser) parseFile() (*Node, *Error) {
	n := p.begin(RuleFile)

	for {
		docs, err := p.parseDocComments()
		if err != nil {
			return nil, err
		}

		p.skipTrivia()

		if p.eof() {
			if len(docs) > 0 {
				return nil, p.fail("an item after doc comment")
			}

			break
		}

		item, err := p.parseItem(docs)
		if err != nil {
			return nil, err
		}

		n.add(item)
	}

	return p.end(n), nil
}

func (p *parser) parseItem(docs []*Node) (*Node, *Error) {
	switch p.peekIdent() {
	case "pub", "const":
		return p.parseConstDecl(docs)
	case "memory_map":
		return p.parseMemoryMap(docs)
	case "elf_segments":
		return p.parseElfSegments(docs)
	case "section":
		return p.parseSection(docs)
	case "discard":
		return p.parseDiscard(docs)
	case "provide_symbols":
		return p.parseProvideSymbols(docs)
	default:
		return nil, p.fail(
			`"const"`, `"pub"`, `"memory_map"`, `"elf_segments"`,
			`"section"`, `"discard"`, `"provide_symbols"`,
		)
	}
}

// ConstDecl : "pub"? "const" identifier (":" identifier)? "=" Expr ";".
func (p *parser) parseConstDecl(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleConstDecl)
	n.add(docs...)

	if pos := p.position(); p.keyword("pub") {
		n.add(leafAt(RulePub, pos, "pub"))
		p.skipTrivia()
	}

	if err := p.expectKeyword("const"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.identLeaf()
	if err != nil {
		return nil, err
	}

	n.add(name)
	p.skipTrivia()

	if p.eat(':') {
		p.skipTrivia()

		// Optional type annotation, e.g. "usize" or "Address".
		ann, err := p.identLeaf()
		if err != nil {
			return nil, err
		}

		n.add(ann)
		p.skipTrivia()
	}

	if err := p.expect('='); err != nil {
		return nil, err
	}

	p.skipTrivia()

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	n.add(value)
	p.skipTrivia()

	if err := p.expect(';'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// MemoryMap : "memory_map" "{" Region* "}".
func (p *parser) parseMemoryMap(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleMemoryMap)
	n.add(docs...)

	if err := p.expectKeyword("memory_map"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			break
		}

		if p.eof() {
			return nil, p.fail(`"region"`, "'}'")
		}

		region, err := p.parseRegion()
		if err != nil {
			return nil, err
		}

		n.add(region)
	}

	return p.end(n), nil
}

var regionFields = fieldSpec{
	keys: []string{"permissions", "start", "size"},
	kind: map[string]valueKind{
		"permissions": vPermissions,
		"start":       vExpr,
		"size":        vExpr,
	},
}

// Region : "region" identifier "{" Field* "}".
func (p *parser) parseRegion() (*Node, *Error) {
	n := p.begin(RuleRegion)

	if err := p.expectKeyword("region"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.identLeaf()
	if err != nil {
		return nil, err
	}

	n.add(name)

	if err := p.parseFieldBlock(n, regionFields); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// ElfSegments : "elf_segments" "{" Segment* "}".
func (p *parser) parseElfSegments(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleElfSegments)
	n.add(docs...)

	if err := p.expectKeyword("elf_segments"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			break
		}

		if p.eof() {
			return nil, p.fail(`"segment"`, "'}'")
		}

		segment, err := p.parseSegment()
		if err != nil {
			return nil, err
		}

		n.add(segment)
	}

	return p.end(n), nil
}

var segmentFields = fieldSpec{
	keys: []string{"type", "permissions"},
	kind: map[string]valueKind{
		"type":        vSegmentType,
		"permissions": vPermissions,
	},
}

// Segment : "segment" identifier "{" Field* "}".
func (p *parser) parseSegment() (*Node, *Error) {
	n := p.begin(RuleSegment)

	if err := p.expectKeyword("segment"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.identLeaf()
	if err != nil {
		return nil, err
	}

	n.add(name)

	if err := p.parseFieldBlock(n, segmentFields); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

var sectionFields = fieldSpec{
	keys: []string{
		"place_in", "load_from", "output_to",
		"permissions", "occupies_file_space",
	},
	kind: map[string]valueKind{
		"place_in":            vIdent,
		"load_from":           vIdent,
		"output_to":           vSegmentRef,
		"permissions":         vPermissions,
		"occupies_file_space": vBool,
	},
}

// Section : "section" Name "{" SectionEntry* "}".
func (p *parser) parseSection(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleSection)
	n.add(docs...)

	if err := p.expectKeyword("section"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.nameLeaf()
	if err != nil {
		return nil, err
	}

	n.add(name)
	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			break
		}

		var (
			entry *Node
			err   *Error
		)

		switch w := p.peekIdent(); w {
		case "address":
			entry, err = p.parseAddress()
		case "file_position":
			entry, err = p.parseFilePosition()
		case "contents":
			entry, err = p.parseContents()
		case "assert":
			entry, err = p.parseAssert()
		case "assert_no_cross_references_to":
			entry, err = p.parseNoCrossRefs()
		default:
			if _, ok := sectionFields.kind[w]; ok {
				entry, err = p.parseField(sectionFields)

				break
			}

			return nil, p.fail(
				`"place_in"`, `"load_from"`, `"output_to"`, `"permissions"`,
				`"occupies_file_space"`, `"address"`, `"file_position"`,
				`"contents"`, `"assert"`, `"assert_no_cross_references_to"`,
				"'}'",
			)
		}

		if err != nil {
			return nil, err
		}

		n.add(entry)
	}

	return p.end(n), nil
}

var addressFields = fieldSpec{
	keys: []string{
		"start", "size", "alignment", "follows",
		"virtual_base", "region", "load_from_region",
	},
	kind: map[string]valueKind{
		"start":            vExpr,
		"size":             vExpr,
		"alignment":        vExpr,
		"follows":          vIdent,
		"virtual_base":     vExpr,
		"region":           vIdent,
		"load_from_region": vIdent,
	},
}

// Address : "address" "{" Field* "}".
func (p *parser) parseAddress() (*Node, *Error) {
	n := p.begin(RuleAddress)

	if err := p.expectKeyword("address"); err != nil {
		return nil, err
	}

	if err := p.parseFieldBlock(n, addressFields); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

var filePositionFields = fieldSpec{
	keys: []string{"start"},
	kind: map[string]valueKind{"start": vOriginOrExpr},
}

// FilePosition : "file_position" "{" "start" ":" ("origin" | Expr) ","? "}".
func (p *parser) parseFilePosition() (*Node, *Error) {
	n := p.begin(RuleFilePosition)

	if err := p.expectKeyword("file_position"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	field, err := p.parseField(filePositionFields)
	if err != nil {
		return nil, err
	}

	n.add(field)
	p.skipTrivia()

	if err := p.expect('}'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// Contents : "contents" "{" ContentsItem* "}".
func (p *parser) parseContents() (*Node, *Error) {
	n := p.begin(RuleContents)

	if err := p.expectKeyword("contents"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		docs, err := p.parseDocComments()
		if err != nil {
			return nil, err
		}

		p.skipTrivia()

		if p.eat('}') {
			if len(docs) > 0 {
				return nil, p.fail("a content item after doc comment")
			}

			break
		}

		if p.eof() {
			return nil, p.fail("a content item", "'}'")
		}

		item, err := p.parseContentsItem(docs)
		if err != nil {
			return nil, err
		}

		n.add(item)
	}

	return p.end(n), nil
}

// ContentsItem : DocComment* CfgAttr* (SymbolDef | Input | Keep |
// AlignTo | AdvanceBy | FillPaddingWith).
func (p *parser) parseContentsItem(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleContentsItem)
	n.add(docs...)

	for {
		p.skipTrivia()

		if !p.has("#") {
			break
		}

		attr, err := p.parseCfgAttr()
		if err != nil {
			return nil, err
		}

		n.add(attr)
	}

	var (
		payload *Node
		err     *Error
	)

	switch p.peekIdent() {
	case "pub", "symbol":
		payload, err = p.parseSymbolDef()
	case "input":
		payload, err = p.parseInput()
	case "keep":
		payload, err = p.parseKeep()
	case "align_to":
		payload, err = p.parseExprStmt(RuleAlignTo, "align_to")
	case "advance_by":
		payload, err = p.parseExprStmt(RuleAdvanceBy, "advance_by")
	case "fill_padding_with":
		payload, err = p.parseExprStmt(RuleFillPaddingWith, "fill_padding_with")
	default:
		return nil, p.fail(
			`"symbol"`, `"pub"`, `"input"`, `"keep"`,
			`"align_to"`, `"advance_by"`, `"fill_padding_with"`,
		)
	}

	if err != nil {
		return nil, err
	}

	n.add(payload)

	return p.end(n), nil
}

// CfgAttr : "#[cfg(" CfgPredicate ")]".
func (p *parser) parseCfgAttr() (*Node, *Error) {
	n := p.begin(RuleCfgAttr)

	if err := p.expect('#'); err != nil {
		return nil, err
	}

	if err := p.expect('['); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expectKeyword("cfg"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	pred, err := p.parseCfgPredicate()
	if err != nil {
		return nil, err
	}

	n.add(pred)
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(']'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// CfgPredicate : "feature" "=" String | "not" "(" CfgPredicate ")"
// | "all" "(" CfgPredicate ("," CfgPredicate)* ")" | "any" "(" ... ")".
func (p *parser) parseCfgPredicate() (*Node, *Error) {
	switch p.peekIdent() {
	case "feature":
		n := p.begin(RuleCfgFeature)
		p.keyword("feature")
		p.skipTrivia()

		if err := p.expect('='); err != nil {
			return nil, err
		}

		p.skipTrivia()

		name, err := p.stringLeaf()
		if err != nil {
			return nil, err
		}

		n.add(name)

		return p.end(n), nil

	case "not":
		n := p.begin(RuleCfgNot)
		p.keyword("not")
		p.skipTrivia()

		if err := p.expect('('); err != nil {
			return nil, err
		}

		p.skipTrivia()

		inner, err := p.parseCfgPredicate()
		if err != nil {
			return nil, err
		}

		n.add(inner)
		p.skipTrivia()

		if err := p.expect(')'); err != nil {
			return nil, err
		}

		return p.end(n), nil

	case "all", "any":
		rule := RuleCfgAll
		if p.peekIdent() == "any" {
			rule = RuleCfgAny
		}

		n := p.begin(rule)
		p.keyword(p.peekIdent())
		p.skipTrivia()

		if err := p.expect('('); err != nil {
			return nil, err
		}

		for {
			p.skipTrivia()

			inner, err := p.parseCfgPredicate()
			if err != nil {
				return nil, err
			}

			n.add(inner)
			p.skipTrivia()

			if !p.eat(',') {
				break
			}
		}

		if err := p.expect(')'); err != nil {
			return nil, err
		}

		return p.end(n), nil

	default:
		return nil, p.fail(`"feature"`, `"not"`, `"all"`, `"any"`)
	}
}

// SymbolDef : "pub"? "symbol" identifier "=" LocationExpr ";".
func (p *parser) parseSymbolDef() (*Node, *Error) {
	n := p.begin(RuleSymbolDef)

	if pos := p.position(); p.keyword("pub") {
		n.add(leafAt(RulePub, pos, "pub"))
		p.skipTrivia()
	}

	if err := p.expectKeyword("symbol"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.identLeaf()
	if err != nil {
		return nil, err
	}

	n.add(name)
	p.skipTrivia()

	if err := p.expect('='); err != nil {
		return nil, err
	}

	p.skipTrivia()

	loc, err := p.parseLocationExpr()
	if err != nil {
		return nil, err
	}

	n.add(loc)
	p.skipTrivia()

	if err := p.expect(';'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// LocationExpr : "here()" ("." ("physical" | "virtual") "()")?.
func (p *parser) parseLocationExpr() (*Node, *Error) {
	n := p.begin(RuleLocationExpr)

	if err := p.expectKeyword("here"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if p.eat('.') {
		p.skipTrivia()

		pos := p.position()

		accessor := p.peekIdent()
		if accessor != "physical" && accessor != "virtual" {
			return nil, p.fail(`"physical"`, `"virtual"`)
		}

		p.keyword(accessor)
		n.add(leafAt(RuleIdent, pos, accessor))
		p.skipTrivia()

		if err := p.expect('('); err != nil {
			return nil, err
		}

		p.skipTrivia()

		if err := p.expect(')'); err != nil {
			return nil, err
		}
	}

	return p.end(n), nil
}

// Input : "input" "(" (From ",")? Glob ("," Glob)* ("," SortBy)? ")".
func (p *parser) parseInput() (*Node, *Error) {
	n := p.begin(RuleInput)

	if err := p.expectKeyword("input"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if p.peekIdent() == "from" {
		from, err := p.parseFrom()
		if err != nil {
			return nil, err
		}

		n.add(from)
		p.skipTrivia()

		if err := p.expect(','); err != nil {
			return nil, err
		}

		p.skipTrivia()
	}

	patterns := 0

	for {
		p.skipTrivia()

		if p.peekIdent() == "sort_by" {
			sort, err := p.parseSortBy()
			if err != nil {
				return nil, err
			}

			n.add(sort)
			p.skipTrivia()

			break
		}

		glob, err := p.globLeaf()
		if err != nil {
			return nil, err
		}

		n.add(glob)
		patterns++
		p.skipTrivia()

		if !p.eat(',') {
			break
		}
	}

	if patterns == 0 {
		return nil, p.fail("a section pattern")
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// From : "from" "(" String ")".
func (p *parser) parseFrom() (*Node, *Error) {
	n := p.begin(RuleFrom)
	p.keyword("from")
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	glob, err := p.stringLeaf()
	if err != nil {
		return nil, err
	}

	n.add(glob)
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// SortBy : "sort_by" "(" ("Name" | "Address" | "Alignment") ")".
func (p *parser) parseSortBy() (*Node, *Error) {
	n := p.begin(RuleSortBy)
	p.keyword("sort_by")
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	pos := p.position()

	key := p.peekIdent()
	if key != "Name" && key != "Address" && key != "Alignment" {
		return nil, p.fail(`"Name"`, `"Address"`, `"Alignment"`)
	}

	p.keyword(key)
	n.add(leafAt(RuleIdent, pos, key))
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// Keep : "keep" "(" Input ")".
func (p *parser) parseKeep() (*Node, *Error) {
	n := p.begin(RuleKeep)
	p.keyword("keep")
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	input, err := p.parseInput()
	if err != nil {
		return nil, err
	}

	n.add(input)
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// parseExprStmt parses keyword "(" Expr ")" ";" statements: align_to,
// advance_by, and fill_padding_with.
func (p *parser) parseExprStmt(rule Rule, kw string) (*Node, *Error) {
	n := p.begin(rule)
	p.keyword(kw)
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	n.add(arg)
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(';'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// Assert : "assert" "(" Expr "," String ")" ";".
func (p *parser) parseAssert() (*Node, *Error) {
	n := p.begin(RuleAssert)
	p.keyword("assert")
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	n.add(cond)
	p.skipTrivia()

	if err := p.expect(','); err != nil {
		return nil, err
	}

	p.skipTrivia()

	msg, err := p.stringLeaf()
	if err != nil {
		return nil, err
	}

	n.add(msg)
	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(';'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// NoCrossRefs : "assert_no_cross_references_to" "(" Name ("," Name)* ")" ";".
func (p *parser) parseNoCrossRefs() (*Node, *Error) {
	n := p.begin(RuleNoCrossRefs)
	p.keyword("assert_no_cross_references_to")
	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		name, err := p.nameLeaf()
		if err != nil {
			return nil, err
		}

		n.add(name)
		p.skipTrivia()

		if !p.eat(',') {
			break
		}
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(';'); err != nil {
		return nil, err
	}

	return p.end(n), nil
}

// Discard : "discard" "{" Input* "}".
func (p *parser) parseDiscard(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleDiscard)
	n.add(docs...)

	if err := p.expectKeyword("discard"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			break
		}

		if p.eof() {
			return nil, p.fail(`"input"`, "'}'")
		}

		input, err := p.parseInput()
		if err != nil {
			return nil, err
		}

		n.add(input)
	}

	return p.end(n), nil
}

// ProvideSymbols : "provide_symbols" "{" (identifier "=" identifier ",")* "}".
func (p *parser) parseProvideSymbols(docs []*Node) (*Node, *Error) {
	n := p.begin(RuleProvideSymbols)
	n.add(docs...)

	if err := p.expectKeyword("provide_symbols"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return nil, err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			break
		}

		if p.eof() {
			return nil, p.fail("a symbol alias", "'}'")
		}

		pair := p.begin(RuleProvidePair)

		name, err := p.identLeaf()
		if err != nil {
			return nil, err
		}

		pair.add(name)
		p.skipTrivia()

		if err := p.expect('='); err != nil {
			return nil, err
		}

		p.skipTrivia()

		target, err := p.identLeaf()
		if err != nil {
			return nil, err
		}

		pair.add(target)
		n.add(p.end(pair))
		p.skipTrivia()
		p.eat(',')
	}

	return p.end(n), nil
}

// Fields.

type valueKind int

const (
	vExpr valueKind = iota
	vIdent
	vPermissions
	vBool
	vSegmentType
	vSegmentRef
	vOriginOrExpr
)

type fieldSpec struct {
	keys []string
	kind map[string]valueKind
}

// parseFieldBlock parses "{" Field* "}" into n.
func (p *parser) parseFieldBlock(n *Node, spec fieldSpec) *Error {
	p.skipTrivia()

	if err := p.expect('{'); err != nil {
		return err
	}

	for {
		p.skipTrivia()

		if p.eat('}') {
			return nil
		}

		if p.eof() {
			return p.fail(append(quoted(spec.keys), "'}'")...)
		}

		field, err := p.parseField(spec)
		if err != nil {
			return err
		}

		n.add(field)
	}
}

// Field : key ":" value ","?. The value form depends on the key.
func (p *parser) parseField(spec fieldSpec) (*Node, *Error) {
	n := p.begin(RuleField)

	pos := p.position()

	key := p.peekIdent()

	kind, ok := spec.kind[key]
	if key == "" || !ok {
		return nil, p.fail(quoted(spec.keys)...)
	}

	p.keyword(key)
	n.add(leafAt(RuleIdent, pos, key))
	p.skipTrivia()

	if err := p.expect(':'); err != nil {
		return nil, err
	}

	p.skipTrivia()

	var (
		value *Node
		err   *Error
	)

	switch kind {
	case vExpr:
		value, err = p.parseExpr()
	case vIdent:
		value, err = p.identLeaf()
	case vPermissions:
		value, err = p.parsePermissions()
	case vBool:
		value, err = p.boolLeaf()
	case vSegmentType:
		value, err = p.segmentTypeLeaf()
	case vSegmentRef:
		value, err = p.parseSegmentRef()
	case vOriginOrExpr:
		if pos := p.position(); p.keyword("origin") {
			value = leafAt(RuleOrigin, pos, "origin")
		} else {
			value, err = p.parseExpr()
		}
	}

	if err != nil {
		return nil, err
	}

	n.add(value)
	p.skipTrivia()
	p.eat(',')

	return p.end(n), nil
}

// Permissions : identifier ("|" identifier)*, flags restricted to
// Read, Write, and Execute. Order and duplicates are insignificant.
func (p *parser) parsePermissions() (*Node, *Error) {
	n := p.begin(RulePermissions)

	for {
		p.skipTrivia()

		pos := p.position()

		flag := p.peekIdent()
		if flag != "Read" && flag != "Write" && flag != "Execute" {
			return nil, p.fail(`"Read"`, `"Write"`, `"Execute"`)
		}

		p.keyword(flag)
		n.add(leafAt(RuleIdent, pos, flag))
		p.skipTrivia()

		if !p.eat('|') {
			break
		}
	}

	return p.end(n), nil
}

var segmentTypes = []string{
	"Load", "Dynamic", "Interp", "Note", "Phdr", "Tls", "Null",
}

func (p *parser) segmentTypeLeaf() (*Node, *Error) {
	pos := p.position()
	word := p.peekIdent()

	for _, t := range segmentTypes {
		if word == t {
			p.keyword(word)

			return leafAt(RuleSegmentType, pos, word), nil
		}
	}

	return nil, p.fail(quoted(segmentTypes)...)
}

// SegmentRef : "segment" "(" identifier ")"; yields the segment name.
func (p *parser) parseSegmentRef() (*Node, *Error) {
	if err := p.expectKeyword("segment"); err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect('('); err != nil {
		return nil, err
	}

	p.skipTrivia()

	name, err := p.identLeaf()
	if err != nil {
		return nil, err
	}

	p.skipTrivia()

	if err := p.expect(')'); err != nil {
		return nil, err
	}

	return name, nil
}

// Expressions.

// Expr : Term (BinOp Term)*. The child list is deliberately flat;
// operator precedence is resolved by the AST builder.
func (p *parser) parseExpr() (*Node, *Error) {
	n := p.begin(RuleExpr)

	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	n.add(term)

	for {
		p.skipTrivia()

		pos := p.position()

		op := p.scanBinOp()
		if op == "" {
			break
		}

		n.add(leafAt(RuleBinOp, pos, op))
		p.skipTrivia()

		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		n.add(term)
	}

	return p.end(n), nil
}

var binOps = []string{
	"<=", ">=", "==", "!=", "<", ">", "+", "-", "*", "/", "%",
}

func (p *parser) scanBinOp() string {
	for _, op := range binOps {
		if p.has(op) {
			p.advanceN(len(op))

			return op
		}
	}

	return ""
}

// Term : "-" Term | Primary ("." identifier | "(" Expr ("," Expr)* ")")*.
// Postfix operators must be adjacent to their operand.
func (p *parser) parseTerm() (*Node, *Error) {
	n := p.begin(RuleTerm)

	if pos := p.position(); p.eat('-') {
		n.add(leafAt(RuleUnaryMinus, pos, "-"))
		p.skipTrivia()

		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		n.add(inner)

		return p.end(n), nil
	}

	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	n.add(primary)

	for {
		switch {
		case p.has(".") && p.pos+1 < len(p.input) && isIdentStart(p.input[p.pos+1]):
			member := p.begin(RuleMember)
			p.eat('.')

			field, err := p.identLeaf()
			if err != nil {
				return nil, err
			}

			member.add(field)
			n.add(p.end(member))

		case p.has("("):
			args := p.begin(RuleCallArgs)
			p.eat('(')
			p.skipTrivia()

			if !p.has(")") {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}

					args.add(arg)
					p.skipTrivia()

					if !p.eat(',') {
						break
					}

					p.skipTrivia()
				}
			}

			if err := p.expect(')'); err != nil {
				return nil, err
			}

			n.add(p.end(args))

		default:
			return p.end(n), nil
		}
	}
}

// Primary : Number | "here()" | "size()" | identifier | "(" Expr ")".
func (p *parser) parsePrimary() (*Node, *Error) {
	switch {
	case p.eof():
		return nil, p.fail("an expression")

	case isDigit(p.input[p.pos]):
		return p.numberLeaf()

	case p.input[p.pos] == '(':
		p.eat('(')
		p.skipTrivia()

		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		p.skipTrivia()

		if err := p.expect(')'); err != nil {
			return nil, err
		}

		return inner, nil

	case isIdentStart(p.input[p.pos]):
		pos := p.position()
		word := p.peekIdent()

		if word == "here" || word == "size" {
			// here() and size() are dedicated nullary forms; without
			// the call parentheses the word is a plain identifier.
			mark := p.pos
			p.keyword(word)
			p.skipTrivia()

			if p.eat('(') {
				p.skipTrivia()

				if err := p.expect(')'); err != nil {
					return nil, err
				}

				rule := RuleHere
				if word == "size" {
					rule = RuleSize
				}

				return leafAt(rule, pos, word+"()"), nil
			}

			p.rewind(mark, pos)
		}

		return p.identLeaf()

	default:
		return nil, p.fail(
			"a number", "an identifier", `"here()"`, `"size()"`, "'('",
		)
	}
}

// Terminals.

func (p *parser) identLeaf() (*Node, *Error) {
	pos := p.position()

	word := p.peekIdent()
	if word == "" {
		return nil, p.fail("an identifier")
	}

	p.advanceN(len(word))

	return leafAt(RuleIdent, pos, word), nil
}

// nameLeaf scans a section name: an identifier that may carry a
// leading dot and internal dots, e.g. ".text" or ".debug_info".
func (p *parser) nameLeaf() (*Node, *Error) {
	pos := p.position()
	start := p.pos

	if !p.eof() && p.input[p.pos] == '.' {
		p.advanceN(1)
	}

	if p.eof() || !isIdentChar(p.input[p.pos]) {
		return nil, p.fail("a section name")
	}

	for !p.eof() {
		c := p.input[p.pos]
		if isIdentChar(c) {
			p.advanceN(1)

			continue
		}

		if c == '.' && p.pos+1 < len(p.input) && isIdentChar(p.input[p.pos+1]) {
			p.advanceN(1)

			continue
		}

		break
	}

	return leafAt(RuleName, pos, p.input[start:p.pos]), nil
}

// globLeaf scans a section glob pattern: name characters plus the
// wildcards '*' and '?'.
func (p *parser) globLeaf() (*Node, *Error) {
	pos := p.position()
	start := p.pos

	for !p.eof() && isGlobChar(p.input[p.pos]) {
		p.advanceN(1)
	}

	if p.pos == start {
		return nil, p.fail("a section pattern")
	}

	return leafAt(RuleGlob, pos, p.input[start:p.pos]), nil
}

func (p *parser) stringLeaf() (*Node, *Error) {
	pos := p.position()
	start := p.pos

	if p.eof() || p.input[p.pos] != '"' {
		return nil, p.fail("a string")
	}

	p.advanceN(1)

	for {
		if p.eof() {
			return nil, p.fail("a closing '\"'")
		}

		switch p.input[p.pos] {
		case '\\':
			p.advanceN(1)

			if !p.eof() {
				p.advanceN(1)
			}
		case '"':
			p.advanceN(1)

			return leafAt(RuleString, pos, p.input[start:p.pos]), nil
		default:
			p.advanceN(1)
		}
	}
}

func (p *parser) boolLeaf() (*Node, *Error) {
	pos := p.position()

	word := p.peekIdent()
	if word != "true" && word != "false" {
		return nil, p.fail(`"true"`, `"false"`)
	}

	p.keyword(word)

	return leafAt(RuleBool, pos, word), nil
}

// numberLeaf scans a numeric literal: optional 0x prefix, digits with
// embedded '_' separators, optional K or M byte-size suffix. The text
// is kept raw; normalization happens in the AST builder.
func (p *parser) numberLeaf() (*Node, *Error) {
	pos := p.position()
	start := p.pos

	digits := 0

	if p.has("0x") || p.has("0X") {
		p.advanceN(2)

		for !p.eof() && (isHexDigit(p.input[p.pos]) || p.input[p.pos] == '_') {
			if p.input[p.pos] != '_' {
				digits++
			}

			p.advanceN(1)
		}
	} else {
		for !p.eof() && (isDigit(p.input[p.pos]) || p.input[p.pos] == '_') {
			if p.input[p.pos] != '_' {
				digits++
			}

			p.advanceN(1)
		}
	}

	if digits == 0 {
		return nil, p.fail("a number")
	}

	if !p.eof() && (p.input[p.pos] == 'K' || p.input[p.pos] == 'M') {
		p.advanceN(1)
	}

	if !p.eof() && isIdentChar(p.input[p.pos]) {
		return nil, p.fail("a number")
	}

	return leafAt(RuleNumber, pos, p.input[start:p.pos]), nil
}

// Doc comments.

// parseDocComments collects consecutive "///" comments, each a leaf
// spanning the comment text without its line terminator.
func (p *parser) parseDocComments() ([]*Node, *Error) {
	var docs []*Node

	for {
		p.skipTrivia()

		if !p.atDoc() {
			return docs, nil
		}

		pos := p.position()
		start := p.pos

		for !p.eof() && p.input[p.pos] != '\n' {
			p.advanceN(1)
		}

		docs = append(docs, leafAt(RuleDocComment, pos, p.input[start:p.pos]))
	}
}

// Machinery.

func (p *parser) begin(r Rule) *Node {
	p.rules = append(p.rules, r)

	return &Node{Rule: r, Pos: p.position()}
}

func (p *parser) end(n *Node) *Node {
	n.Text = strings.TrimSpace(p.input[n.Pos.Offset:p.pos])
	p.rules = p.rules[:len(p.rules)-1]

	return n
}

func leafAt(r Rule, pos Position, text string) *Node {
	return &Node{Rule: r, Text: text, Pos: pos}
}

// fail records a failure at the current position, attributed to the
// innermost active rule, and merges it into the farthest failure.
func (p *parser) fail(expected ...string) *Error {
	rule := RuleFile
	if len(p.rules) > 0 {
		rule = p.rules[len(p.rules)-1]
	}

	p.worst = p.worst.merge(&Error{
		Pos:      p.position(),
		Rule:     rule,
		Expected: expected,
	})

	return p.worst
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) has(s string) bool {
	return strings.HasPrefix(p.input[p.pos:], s)
}

func (p *parser) position() Position {
	return Position{Offset: p.pos, Line: p.line, Column: p.col}
}

func (p *parser) advanceN(n int) {
	for range n {
		if p.eof() {
			return
		}

		if p.input[p.pos] == '\n' {
			p.line++
			p.col = 1
		} else {
			p.col++
		}

		p.pos++
	}
}

// rewind restores a saved position. Used only for the single-token
// lookahead distinguishing "here()" from an identifier named here.
func (p *parser) rewind(pos int, at Position) {
	p.pos = pos
	p.line = at.Line
	p.col = at.Column
}

func (p *parser) eat(c byte) bool {
	if !p.eof() && p.input[p.pos] == c {
		p.advanceN(1)

		return true
	}

	return false
}

func (p *parser) expect(c byte) *Error {
	if !p.eat(c) {
		return p.fail("'" + string(c) + "'")
	}

	return nil
}

// peekIdent returns the identifier at the current position without
// consuming it, or "" if the position does not start an identifier.
func (p *parser) peekIdent() string {
	if p.eof() || !isIdentStart(p.input[p.pos]) {
		return ""
	}

	end := p.pos + 1
	for end < len(p.input) && isIdentChar(p.input[end]) {
		end++
	}

	return p.input[p.pos:end]
}

// keyword consumes w if the next identifier is exactly w.
func (p *parser) keyword(w string) bool {
	if p.peekIdent() != w {
		return false
	}

	p.advanceN(len(w))

	return true
}

func (p *parser) expectKeyword(w string) *Error {
	if !p.keyword(w) {
		return p.fail(strconv.Quote(w))
	}

	return nil
}

// skipTrivia skips whitespace and "//" line comments. Doc comments
// ("///", but not "////") are not trivia: they are consumed explicitly
// where the grammar allows them.
func (p *parser) skipTrivia() {
	for {
		for !p.eof() && isSpace(p.input[p.pos]) {
			p.advanceN(1)
		}

		if p.has("//") && !p.atDoc() {
			for !p.eof() && p.input[p.pos] != '\n' {
				p.advanceN(1)
			}

			continue
		}

		return
	}
}

func (p *parser) atDoc() bool {
	return p.has("///") && !p.has("////")
}

func quoted(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strconv.Quote(w)
	}

	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isGlobChar(c byte) bool {
	return isIdentChar(c) || c == '.' || c == '*' || c == '?' || c == '-'
}
