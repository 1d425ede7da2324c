package lang

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToMap(t *testing.T) {
	input := `
		const HEAP_SIZE = 1M;
		pub const PAGE_SIZE: u64 = 4K;

		memory_map {
			region RAM {
				permissions: Read | Write,
				start: 0x2000_0000,
				size: 64K,
			}
		}

		section .bss {
			place_in: RAM,
			occupies_file_space: false,
			contents {
				symbol __bss_start = here();
				input(.bss*)
			}
		}
	`

	doc, err := ParseDocument(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	want := map[string]any{
		"constants": map[string]any{
			"HEAP_SIZE": uint64(1 << 20),
			"PAGE_SIZE": map[string]any{
				"value":  uint64(4096),
				"public": true,
				"type":   "u64",
			},
		},
		"memory_map": map[string]any{
			"RAM": map[string]any{
				"permissions": []any{"Read", "Write"},
				"start":       uint64(0x2000_0000),
				"size":        uint64(64 * 1024),
			},
		},
		"sections": map[string]any{
			".bss": map[string]any{
				"place_in":            "RAM",
				"occupies_file_space": false,
				"contents": []any{
					map[string]any{"symbol": "__bss_start"},
					map[string]any{"input": map[string]any{
						"patterns": []any{".bss*"},
					}},
				},
			},
		},
	}

	if diff := cmp.Diff(want, doc.ToMap()); diff != "" {
		t.Errorf("ToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestToMap_CfgAndDiscard(t *testing.T) {
	input := `
		section .percpu {
			contents {
				#[cfg(feature = "smp")]
				input(.percpu*)
			}
		}

		discard {
			input(.comment)
		}
	`

	doc, err := ParseDocument(context.Background(), input)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	m := doc.ToMap()

	sections := m["sections"].(map[string]any)
	percpu := sections[".percpu"].(map[string]any)
	contents := percpu["contents"].([]any)

	wantItem := map[string]any{
		"cfg": `feature = "smp"`,
		"item": map[string]any{
			"input": map[string]any{"patterns": []any{".percpu*"}},
		},
	}
	if diff := cmp.Diff(wantItem, contents[0]); diff != "" {
		t.Errorf("cfg item mismatch (-want +got):\n%s", diff)
	}

	wantDiscard := []any{
		map[string]any{"patterns": []any{".comment"}},
	}
	if diff := cmp.Diff(wantDiscard, m["discard"]); diff != "" {
		t.Errorf("discard mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalJSON(t *testing.T) {
	doc, err := ParseDocument(context.Background(), "const A = 64K;")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"constants":{"A":65536}}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestFormatYAML(t *testing.T) {
	doc, err := ParseDocument(context.Background(), `
		memory_map {
			region RAM { permissions: Read | Write, start: 0, size: 4K, }
		}
	`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	var buf strings.Builder
	if err := doc.FormatYAML(context.Background(), &buf, 2); err != nil {
		t.Fatalf("FormatYAML: %v", err)
	}

	out := buf.String()

	for _, fragment := range []string{"memory_map:", "RAM:", "- Read", "- Write", "size: 4096"} {
		if !strings.Contains(out, fragment) {
			t.Errorf("YAML output missing %q:\n%s", fragment, out)
		}
	}
}
