package lang

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormat_RoundTrip(t *testing.T) {
	input := `
		/// MMU page granularity.
		pub const PAGE_SIZE: u64 = 4K;

		memory_map {
			region FLASH {
				permissions: Read | Execute,
				start: 0x0800_0000,
				size: 256K,
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
			address {
				alignment: PAGE_SIZE,
			}
			contents {
				pub symbol __text_start = here();
				keep(input(.vectors))
				#[cfg(feature = "mmu")]
				symbol __text_virt = here().virtual();
				input(.text*, sort_by(Name))
				align_to(PAGE_SIZE);
				fill_padding_with(0xdead_beef);
			}
			assert(size() <= 256K, "text overflow");
			assert_no_cross_references_to(.data);
		}

		discard {
			input(.comment)
		}

		provide_symbols {
			__heap_start = __bss_end,
		}
	`

	doc, err := ParseDocument(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	var buf strings.Builder
	if err := doc.Format(context.Background(), &buf, 4); err != nil {
		t.Fatalf("Format: %v", err)
	}

	again, err := ParseDocument(context.Background(), buf.String())
	if err != nil {
		t.Fatalf("reparsing formatted output:\n%s\n%v", buf.String(), err)
	}

	if diff := cmp.Diff(doc, again); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestFormat_Indent(t *testing.T) {
	doc, err := ParseDocument(context.Background(),
		"memory_map { region RAM { permissions: Read, start: 0, size: 4K, } }")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	var buf strings.Builder
	if err := doc.Format(context.Background(), &buf, 2); err != nil {
		t.Fatalf("Format: %v", err)
	}

	if !strings.Contains(buf.String(), "\n  region RAM {") {
		t.Errorf("output not indented by 2:\n%s", buf.String())
	}

	if !strings.Contains(buf.String(), "\n    permissions: Read,") {
		t.Errorf("nested fields not indented by 4:\n%s", buf.String())
	}
}

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{
			name: "natural precedence needs no parens",
			expr: &BinOp{
				Op:   OpAdd,
				Left: &Number{Value: 1},
				Right: &BinOp{
					Op:    OpMul,
					Left:  &Number{Value: 2},
					Right: &Number{Value: 3},
				},
			},
			want: "1 + 2 * 3",
		},
		{
			name: "grouped addition under multiplication",
			expr: &BinOp{
				Op: OpMul,
				Left: &BinOp{
					Op:    OpAdd,
					Left:  &Number{Value: 1},
					Right: &Number{Value: 2},
				},
				Right: &Number{Value: 3},
			},
			want: "(1 + 2) * 3",
		},
		{
			name: "left association elides parens",
			expr: &BinOp{
				Op: OpSub,
				Left: &BinOp{
					Op:    OpSub,
					Left:  &Ident{Name: "a"},
					Right: &Ident{Name: "b"},
				},
				Right: &Ident{Name: "c"},
			},
			want: "a - b - c",
		},
		{
			name: "right-nested subtraction keeps parens",
			expr: &BinOp{
				Op:   OpSub,
				Left: &Ident{Name: "a"},
				Right: &BinOp{
					Op:    OpSub,
					Left:  &Ident{Name: "b"},
					Right: &Ident{Name: "c"},
				},
			},
			want: "a - (b - c)",
		},
		{
			name: "unary minus over a sum",
			expr: &UnaryMinus{
				Operand: &BinOp{
					Op:    OpAdd,
					Left:  &Ident{Name: "a"},
					Right: &Ident{Name: "b"},
				},
			},
			want: "-(a + b)",
		},
		{
			name: "member and call chain",
			expr: &BinOp{
				Op:    OpLess,
				Left:  &Member{Target: &Ident{Name: "FLASH"}, Field: "size"},
				Right: &Call{Target: &Ident{Name: "max"}, Args: []Expr{&Here{}, &SizeFn{}}},
			},
			want: "FLASH.size < max(here(), size())",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExprString(tt.expr); got != tt.want {
				t.Errorf("ExprString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNumberString(t *testing.T) {
	tests := []struct {
		value uint64
		want  string
	}{
		{value: 0, want: "0"},
		{value: 42, want: "42"},
		{value: 4096, want: "4K"},
		{value: 65536, want: "64K"},
		{value: 12288, want: "12K"},
		{value: 1 << 20, want: "1M"},
		{value: 2 << 20, want: "2M"},
		{value: 74565, want: "0x12345"},
		{value: 0xffff_ffff_0000_0000, want: "0xffffffff00000000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := numberString(tt.value); got != tt.want {
				t.Errorf("numberString(%d) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestPredicateString(t *testing.T) {
	pred := &All{Operands: []CfgPredicate{
		&Feature{Name: "smp"},
		&Not{Operand: &Feature{Name: "tiny"}},
		&Any{Operands: []CfgPredicate{
			&Feature{Name: "a"},
			&Feature{Name: "b"},
		}},
	}}

	want := `all(feature = "smp", not(feature = "tiny"), any(feature = "a", feature = "b"))`
	if got := PredicateString(pred); got != want {
		t.Errorf("PredicateString = %q, want %q", got, want)
	}
}
