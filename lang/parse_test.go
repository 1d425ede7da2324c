package lang

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseExpr_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Expr
	}{
		{
			name:  "multiplication binds tighter",
			input: "1 + 2 * 3",
			want: &BinOp{
				Op:   OpAdd,
				Left: &Number{Value: 1},
				Right: &BinOp{
					Op:    OpMul,
					Left:  &Number{Value: 2},
					Right: &Number{Value: 3},
				},
			},
		},
		{
			name:  "multiplication on the left",
			input: "2 * 3 + 1",
			want: &BinOp{
				Op: OpAdd,
				Left: &BinOp{
					Op:    OpMul,
					Left:  &Number{Value: 2},
					Right: &Number{Value: 3},
				},
				Right: &Number{Value: 1},
			},
		},
		{
			name:  "addition associates left",
			input: "1 + 2 + 3",
			want: &BinOp{
				Op: OpAdd,
				Left: &BinOp{
					Op:    OpAdd,
					Left:  &Number{Value: 1},
					Right: &Number{Value: 2},
				},
				Right: &Number{Value: 3},
			},
		},
		{
			name:  "parentheses override precedence",
			input: "(1 + 2) * 3",
			want: &BinOp{
				Op: OpMul,
				Left: &BinOp{
					Op:    OpAdd,
					Left:  &Number{Value: 1},
					Right: &Number{Value: 2},
				},
				Right: &Number{Value: 3},
			},
		},
		{
			name:  "relational binds loosest",
			input: "size() + 16 < 64K",
			want: &BinOp{
				Op: OpLess,
				Left: &BinOp{
					Op:    OpAdd,
					Left:  &SizeFn{},
					Right: &Number{Value: 16},
				},
				Right: &Number{Value: 65536},
			},
		},
		{
			name:  "unary minus on a term",
			input: "-4 * 8",
			want: &BinOp{
				Op:    OpMul,
				Left:  &UnaryMinus{Operand: &Number{Value: 4}},
				Right: &Number{Value: 8},
			},
		},
		{
			name:  "member access",
			input: "FLASH.start + FLASH.size",
			want: &BinOp{
				Op:    OpAdd,
				Left:  &Member{Target: &Ident{Name: "FLASH"}, Field: "start"},
				Right: &Member{Target: &Ident{Name: "FLASH"}, Field: "size"},
			},
		},
		{
			name:  "call with arguments",
			input: "max(here(), BASE)",
			want: &Call{
				Target: &Ident{Name: "max"},
				Args:   []Expr{&Here{}, &Ident{Name: "BASE"}},
			},
		},
		{
			name:  "alignment check",
			input: "here() % 4096 == 0",
			want: &BinOp{
				Op: OpEq,
				Left: &BinOp{
					Op:    OpRem,
					Left:  &Here{},
					Right: &Number{Value: 4096},
				},
				Right: &Number{Value: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpr(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("ParseExpr(%q): %v", tt.input, err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("expression mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseExpr_Numbers(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{input: "0", want: 0},
		{input: "42", want: 42},
		{input: "1_000_000", want: 1000000},
		{input: "64K", want: 65536},
		{input: "2M", want: 2097152},
		{input: "0x1000", want: 4096},
		{input: "0xffff_ffff_0000_0000", want: 0xffff_ffff_0000_0000},
		{input: "4_0K", want: 40960},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExpr(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("ParseExpr(%q): %v", tt.input, err)
			}

			num, ok := got.(*Number)
			if !ok {
				t.Fatalf("ParseExpr(%q) = %T, want *Number", tt.input, got)
			}

			if num.Value != tt.want {
				t.Errorf("value = %d, want %d", num.Value, tt.want)
			}
		})
	}
}

func TestParseExpr_NumberOverflow(t *testing.T) {
	tests := []string{
		"18446744073709551615K",
		"0x1_0000_0000_0000_0000",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseExpr(context.Background(), input)
			if err == nil {
				t.Fatal("expected range error")
			}

			structural := &StructuralError{}
			if !errors.As(err, &structural) {
				t.Fatalf("error = %T, want *StructuralError", err)
			}

			if !strings.Contains(err.Error(), "number out of range") {
				t.Errorf("error %q does not mention number out of range", err.Error())
			}
		})
	}
}

func TestParseDocument_EndToEnd(t *testing.T) {
	input := `
		/// Page granularity of the target MMU.
		pub const PAGE_SIZE: u64 = 4K;

		memory_map {
			region FLASH {
				permissions: Read | Execute,
				start: 0x0800_0000,
				size: 256K,
			}
			region RAM {
				permissions: Read | Write,
				start: 0x2000_0000,
				size: 64K,
			}
		}

		elf_segments {
			segment text {
				type: Load,
				permissions: Read | Execute,
			}
		}

		section .text {
			place_in: FLASH,
			output_to: segment(text),
			contents {
				pub symbol __text_start = here();
				keep(input(.vectors))
				input(.text*, sort_by(Name))
				align_to(PAGE_SIZE);
			}
			assert(size() <= 256K, "text overflow");
		}
	`

	doc, err := ParseDocument(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	if len(doc.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(doc.Items))
	}

	page, ok := doc.Constant("PAGE_SIZE")
	if !ok {
		t.Fatal("PAGE_SIZE not found")
	}

	if !page.Public || page.Type != "u64" {
		t.Errorf("PAGE_SIZE public=%v type=%q, want public u64", page.Public, page.Type)
	}

	if len(page.Doc) != 1 || page.Doc[0] != "Page granularity of the target MMU." {
		t.Errorf("PAGE_SIZE doc = %q", page.Doc)
	}

	if diff := cmp.Diff(&Number{Value: 4096}, page.Value); diff != "" {
		t.Errorf("PAGE_SIZE value mismatch (-want +got):\n%s", diff)
	}

	mm, ok := doc.Items[1].(*MemoryMap)
	if !ok {
		t.Fatalf("item 1 = %T, want *MemoryMap", doc.Items[1])
	}

	wantRegions := []*Region{
		{
			Name:        "FLASH",
			Permissions: Permissions{Read: true, Execute: true},
			Start:       &Number{Value: 0x0800_0000},
			Size:        &Number{Value: 256 * 1024},
		},
		{
			Name:        "RAM",
			Permissions: Permissions{Read: true, Write: true},
			Start:       &Number{Value: 0x2000_0000},
			Size:        &Number{Value: 64 * 1024},
		},
	}
	if diff := cmp.Diff(wantRegions, mm.Regions); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}

	es, ok := doc.Items[2].(*ElfSegments)
	if !ok || len(es.Segments) != 1 {
		t.Fatalf("item 2 = %T with %d segments, want *ElfSegments with 1",
			doc.Items[2], len(es.Segments))
	}

	if es.Segments[0].Type != SegmentLoad {
		t.Errorf("segment type = %v, want Load", es.Segments[0].Type)
	}

	text, ok := doc.Section(".text")
	if !ok {
		t.Fatal(".text not found")
	}

	if text.PlaceIn != "FLASH" || text.OutputTo != "text" {
		t.Errorf("place_in=%q output_to=%q, want FLASH/text", text.PlaceIn, text.OutputTo)
	}

	if len(text.Contents) != 4 {
		t.Fatalf("expected 4 content items, got %d", len(text.Contents))
	}

	sym, ok := text.Contents[0].(*SymbolDef)
	if !ok || !sym.Public || sym.Name != "__text_start" {
		t.Errorf("first item = %#v, want pub symbol __text_start", text.Contents[0])
	}

	keep, ok := text.Contents[1].(*Keep)
	if !ok || len(keep.Input.Patterns) != 1 || keep.Input.Patterns[0] != ".vectors" {
		t.Errorf("second item = %#v, want keep(.vectors)", text.Contents[1])
	}

	in, ok := text.Contents[2].(*InputStmt)
	if !ok || in.SortBy != SortByName {
		t.Errorf("third item = %#v, want input sorted by name", text.Contents[2])
	}

	if len(text.Assertions) != 1 || text.Assertions[0].Message != "text overflow" {
		t.Errorf("assertions = %#v", text.Assertions)
	}
}

func TestParseSection_Accessors(t *testing.T) {
	input := `
		section .data {
			contents {
				symbol __data_lma = here().physical();
				symbol __data_vma = here().virtual();
				symbol __data_end = here();
			}
		}
	`

	section, err := ParseSection(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}

	want := []LocationAccessor{AccessorPhysical, AccessorVirtual, AccessorDefault}

	for i, accessor := range want {
		sym, ok := section.Contents[i].(*SymbolDef)
		if !ok {
			t.Fatalf("item %d = %T, want *SymbolDef", i, section.Contents[i])
		}

		if sym.Accessor != accessor {
			t.Errorf("item %d accessor = %v, want %v", i, sym.Accessor, accessor)
		}
	}
}

func TestParseContents_CfgNesting(t *testing.T) {
	input := `
		contents {
			#[cfg(feature = "smp")]
			#[cfg(not(feature = "tiny"))]
			input(.percpu*)
		}
	`

	items, err := ParseContents(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseContents: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	// The first attribute in the source is the outermost wrapper.
	want := &Cfg{
		Predicate: &Feature{Name: "smp"},
		Item: &Cfg{
			Predicate: &Not{Operand: &Feature{Name: "tiny"}},
			Item:      &InputStmt{Patterns: []string{".percpu*"}},
		},
	}

	if diff := cmp.Diff(ContentsItem(want), items[0]); diff != "" {
		t.Errorf("cfg nesting mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInput_Forms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *InputStmt
	}{
		{
			name:  "single pattern",
			input: "input(.text*)",
			want:  &InputStmt{Patterns: []string{".text*"}},
		},
		{
			name:  "from clause",
			input: `input(from("libgcc.a"), .rodata*)`,
			want:  &InputStmt{From: "libgcc.a", Patterns: []string{".rodata*"}},
		},
		{
			name:  "sorted patterns",
			input: "input(.ctors, .ctors.*, sort_by(Address))",
			want: &InputStmt{
				Patterns: []string{".ctors", ".ctors.*"},
				SortBy:   SortByAddress,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("ParseInput(%q): %v", tt.input, err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("input mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDocument_SyntaxError(t *testing.T) {
	input := "const A = 1;\nconst B = ;\n"

	_, err := ParseDocument(context.Background(), input)
	if err == nil {
		t.Fatal("expected syntax error")
	}

	syntax := &SyntaxError{}
	if !errors.As(err, &syntax) {
		t.Fatalf("error = %T, want *SyntaxError", err)
	}

	if syntax.Cause.Pos.Line != 2 || syntax.Cause.Pos.Column != 11 {
		t.Errorf("position = %d:%d, want 2:11",
			syntax.Cause.Pos.Line, syntax.Cause.Pos.Column)
	}

	msg := syntax.Error()
	if !strings.Contains(msg, "const B = ;") {
		t.Errorf("message %q does not show the offending line", msg)
	}

	if !strings.Contains(msg, "^") {
		t.Errorf("message %q has no caret", msg)
	}
}

func TestSyntaxError_Suggestion(t *testing.T) {
	_, err := ParseDocument(context.Background(), "memry_map {}")
	if err == nil {
		t.Fatal("expected syntax error")
	}

	syntax := &SyntaxError{}
	if !errors.As(err, &syntax) {
		t.Fatalf("error = %T, want *SyntaxError", err)
	}

	if got := syntax.Suggestion(); got != "memory_map" {
		t.Errorf("suggestion = %q, want %q", got, "memory_map")
	}

	if !strings.Contains(syntax.Error(), `did you mean "memory_map"?`) {
		t.Errorf("message %q has no suggestion", syntax.Error())
	}
}

func TestParseDocument_DuplicateFieldsLastWins(t *testing.T) {
	input := `
		section .bss {
			place_in: FLASH,
			place_in: RAM,
			occupies_file_space: false,
		}
	`

	section, err := ParseSection(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}

	if section.PlaceIn != "RAM" {
		t.Errorf("place_in = %q, want RAM", section.PlaceIn)
	}

	if section.OccupiesFileSpace == nil || *section.OccupiesFileSpace {
		t.Error("occupies_file_space should be false")
	}
}

func TestParseDocument_ProvideSymbolsAndDiscard(t *testing.T) {
	input := `
		discard {
			input(.comment)
			input(.note*)
		}

		provide_symbols {
			__heap_start = __bss_end,
			__stack_top = __ram_end,
		}
	`

	doc, err := ParseDocument(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	discard, ok := doc.Items[0].(*Discard)
	if !ok || len(discard.Inputs) != 2 {
		t.Fatalf("item 0 = %#v, want discard with 2 inputs", doc.Items[0])
	}

	provide, ok := doc.Items[1].(*ProvideSymbols)
	if !ok {
		t.Fatalf("item 1 = %T, want *ProvideSymbols", doc.Items[1])
	}

	want := []Alias{
		{Name: "__heap_start", Target: "__bss_end"},
		{Name: "__stack_top", Target: "__ram_end"},
	}
	if diff := cmp.Diff(want, provide.Aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDocument_PermissionFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags string
		want  Permissions
	}{
		{name: "single", flags: "Read", want: Permissions{Read: true}},
		{
			name:  "canonical order",
			flags: "Read | Write | Execute",
			want:  Permissions{Read: true, Write: true, Execute: true},
		},
		{
			name:  "reversed order",
			flags: "Execute | Read",
			want:  Permissions{Read: true, Execute: true},
		},
		{
			name:  "duplicates collapse",
			flags: "Write | Write | Read",
			want:  Permissions{Read: true, Write: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "memory_map { region X { permissions: " + tt.flags +
				", start: 0, size: 4K, } }"

			doc, err := ParseDocument(context.Background(), input)
			if err != nil {
				t.Fatalf("ParseDocument: %v", err)
			}

			mm := doc.Items[0].(*MemoryMap)
			if got := mm.Regions[0].Permissions; got != tt.want {
				t.Errorf("permissions = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPermissions_String(t *testing.T) {
	p := Permissions{Read: true, Execute: true}
	if got := p.String(); got != "Read | Execute" {
		t.Errorf("String = %q, want %q", got, "Read | Execute")
	}

	if got := (Permissions{}).String(); got != "" {
		t.Errorf("empty String = %q, want empty", got)
	}
}

func TestEval_Predicates(t *testing.T) {
	features := map[string]bool{"smp": true, "mmu": true}

	tests := []struct {
		name string
		pred CfgPredicate
		want bool
	}{
		{
			name: "enabled feature",
			pred: &Feature{Name: "smp"},
			want: true,
		},
		{
			name: "disabled feature",
			pred: &Feature{Name: "tiny"},
			want: false,
		},
		{
			name: "not",
			pred: &Not{Operand: &Feature{Name: "tiny"}},
			want: true,
		},
		{
			name: "all",
			pred: &All{Operands: []CfgPredicate{
				&Feature{Name: "smp"},
				&Feature{Name: "mmu"},
			}},
			want: true,
		},
		{
			name: "all with one missing",
			pred: &All{Operands: []CfgPredicate{
				&Feature{Name: "smp"},
				&Feature{Name: "tiny"},
			}},
			want: false,
		},
		{
			name: "any",
			pred: &Any{Operands: []CfgPredicate{
				&Feature{Name: "tiny"},
				&Feature{Name: "mmu"},
			}},
			want: true,
		},
		{
			name: "empty any",
			pred: &Any{},
			want: false,
		},
		{
			name: "empty all",
			pred: &All{},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eval(tt.pred, features); got != tt.want {
				t.Errorf("Eval = %v, want %v", got, tt.want)
			}
		})
	}
}
