// Package lang implements the front end for a declarative linker-layout
// language: memory regions, ELF program headers, output sections and
// their contents, described in a small DSL and parsed into a typed
// syntax tree for downstream layout tooling.
//
// # Pipeline
//
// Source text is recognized by a hand-written recursive descent parser
// (package lang/parser) that produces a generic parse tree of matched
// grammar rules. This package walks that tree and builds the typed AST:
// items, section contents, conditional-compilation predicates, and
// arithmetic expressions with conventional operator precedence.
//
// Parsing is pure: no file I/O, no symbol resolution, no layout. The
// result is data for a later evaluation phase.
//
// # Grammar
//
// Informal EBNF of the item layer:
//
//	File          → Item* EOF
//	Item          → ConstDecl | MemoryMap | ElfSegments | Section
//	              | Discard | ProvideSymbols
//	ConstDecl     → "pub"? "const" ident (":" ident)? "=" Expr ";"
//	MemoryMap     → "memory_map" "{" Region* "}"
//	Region        → "region" ident "{" Field* "}"
//	ElfSegments   → "elf_segments" "{" Segment* "}"
//	Segment       → "segment" ident "{" Field* "}"
//	Section       → "section" name "{" SectionEntry* "}"
//	Discard       → "discard" "{" Input* "}"
//	ProvideSymbols→ "provide_symbols" "{" (ident "=" ident ","?)* "}"
//
// and of section contents:
//
//	Contents      → "contents" "{" ContentsItem* "}"
//	ContentsItem  → DocComment* CfgAttr* (SymbolDef | Input | Keep
//	              | AlignTo | AdvanceBy | FillPaddingWith)
//	Input         → "input" "(" (From ",")? Glob ("," Glob)* ("," SortBy)? ")"
//	CfgAttr       → "#[cfg(" CfgPredicate ")]"
//
// Expressions are parsed flat (term, operator, term, ...) and shaped by
// this package: multiplicative binds tighter than additive, which binds
// tighter than relational, all left-associative. Numeric literals allow
// "_" separators, a "0x" prefix, and K (KiB) or M (MiB) suffixes, and
// are normalized to uint64 during the build.
//
// # Example
//
//	memory_map {
//	    region FLASH {
//	        permissions: Read | Execute,
//	        start: 0x0800_0000,
//	        size: 256K,
//	    }
//	}
//
//	section .text {
//	    place_in: FLASH,
//	    contents {
//	        keep(input(.vectors))
//	        input(.text*)
//	        #[cfg(feature = "debug")]
//	        input(.debug_text*)
//	    }
//	    assert(size() < 192K, "text overflow");
//	}
package lang
