package parser

// Rule identifies a grammar production or terminal matched by the parser.
// Every node in a parse tree carries the rule that produced it.
type Rule int

const (
	// RuleFile is the whole-file start rule: a sequence of items.
	RuleFile Rule = iota

	// Item productions.
	RuleConstDecl
	RuleMemoryMap
	RuleRegion
	RuleElfSegments
	RuleSegment
	RuleSection
	RuleDiscard
	RuleProvideSymbols

	// Block internals.
	RuleField
	RuleAddress
	RuleFilePosition
	RuleContents
	RuleContentsItem
	RuleProvidePair
	RulePermissions

	// Contents item productions.
	RuleSymbolDef
	RuleLocationExpr
	RuleInput
	RuleKeep
	RuleAlignTo
	RuleAdvanceBy
	RuleFillPaddingWith
	RuleAssert
	RuleNoCrossRefs

	// Conditional-compilation attributes.
	RuleCfgAttr
	RuleCfgFeature
	RuleCfgNot
	RuleCfgAll
	RuleCfgAny

	// Input statement internals.
	RuleFrom
	RuleGlob
	RuleSortBy

	// Expressions. RuleExpr is flat: its children alternate between
	// term nodes and RuleBinOp leaves; precedence is resolved by the
	// AST builder, not the grammar.
	RuleExpr
	RuleTerm
	RuleUnaryMinus
	RuleMember
	RuleCallArgs
	RuleBinOp

	// Terminals.
	RuleNumber
	RuleIdent
	RuleName
	RuleString
	RuleBool
	RuleHere
	RuleSize
	RuleOrigin
	RulePub
	RuleSegmentType
	RuleDocComment
)

var ruleNames = map[Rule]string{
	RuleFile:            "file",
	RuleConstDecl:       "const_decl",
	RuleMemoryMap:       "memory_map",
	RuleRegion:          "region",
	RuleElfSegments:     "elf_segments",
	RuleSegment:         "segment",
	RuleSection:         "section",
	RuleDiscard:         "discard",
	RuleProvideSymbols:  "provide_symbols",
	RuleField:           "field",
	RuleAddress:         "address",
	RuleFilePosition:    "file_position",
	RuleContents:        "contents",
	RuleContentsItem:    "contents_item",
	RuleProvidePair:     "provide_pair",
	RulePermissions:     "permissions",
	RuleSymbolDef:       "symbol_def",
	RuleLocationExpr:    "location_expr",
	RuleInput:           "input",
	RuleKeep:            "keep",
	RuleAlignTo:         "align_to",
	RuleAdvanceBy:       "advance_by",
	RuleFillPaddingWith: "fill_padding_with",
	RuleAssert:          "assert",
	RuleNoCrossRefs:     "assert_no_cross_references_to",
	RuleCfgAttr:         "cfg_attr",
	RuleCfgFeature:      "cfg_feature",
	RuleCfgNot:          "cfg_not",
	RuleCfgAll:          "cfg_all",
	RuleCfgAny:          "cfg_any",
	RuleFrom:            "from",
	RuleGlob:            "glob",
	RuleSortBy:          "sort_by",
	RuleExpr:            "expr",
	RuleTerm:            "term",
	RuleUnaryMinus:      "unary_minus",
	RuleMember:          "member",
	RuleCallArgs:        "call_args",
	RuleBinOp:           "bin_op",
	RuleNumber:          "number",
	RuleIdent:           "identifier",
	RuleName:            "name",
	RuleString:          "string",
	RuleBool:            "boolean",
	RuleHere:            "here",
	RuleSize:            "size",
	RuleOrigin:          "origin",
	RulePub:             "pub",
	RuleSegmentType:     "segment_type",
	RuleDocComment:      "doc_comment",
}

// String returns the grammar name of the rule.
func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}

	return "unknown"
}
