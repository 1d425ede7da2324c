package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/berkus/linker-script/lang"
	"github.com/berkus/linker-script/lang/parser"
)

// TestOpenSourceFile tests opening a regular file.
func TestOpenSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.ld")
	if err := os.WriteFile(path, []byte("const A: u64 = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := openSource(path)
	if err != nil {
		t.Fatalf("openSource(%q): %v", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}

	if string(data) != "const A: u64 = 1;" {
		t.Errorf("got %q, want %q", string(data), "const A: u64 = 1;")
	}
}

// TestOpenSourceStdin tests that "-" reads from stdin.
func TestOpenSourceStdin(t *testing.T) {
	oldStdin := os.Stdin
	defer func() { os.Stdin = oldStdin }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdin = r

	content := "memory_map {}"
	go func() {
		defer w.Close()
		io.WriteString(w, content)
	}()

	src, err := openSource("-")
	if err != nil {
		t.Fatalf("openSource(-): %v", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("reading stdin: %v", err)
	}

	if string(data) != content {
		t.Errorf("got %q, want %q", string(data), content)
	}
}

// TestOpenSourceNonexistent tests that a missing file yields ErrOpenSource.
func TestOpenSourceNonexistent(t *testing.T) {
	_, err := openSource("/nonexistent/path/layout.ld")
	if err == nil {
		t.Fatal("openSource should fail for nonexistent file")
	}

	cmdErr := &Error{}
	if !errors.As(err, &cmdErr) {
		t.Errorf("error should be *Error, got %T", err)
	}
}

// TestReadSource tests reading a whole file into a string.
func TestReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.ld")
	content := "const PAGE: u64 = 4096;\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readSource(path)
	if err != nil {
		t.Fatalf("readSource(%q): %v", path, err)
	}

	if got != content {
		t.Errorf("got %q, want %q", got, content)
	}
}

// TestDisplayName tests diagnostic rendering of source paths.
func TestDisplayName(t *testing.T) {
	if got := displayName("-"); got != "<stdin>" {
		t.Errorf("displayName(-) = %q, want %q", got, "<stdin>")
	}

	if got := displayName("layout.ld"); got != "layout.ld" {
		t.Errorf("displayName(layout.ld) = %q, want %q", got, "layout.ld")
	}
}

// TestPrintTree tests the parse tree dump: one rule per line, nested
// rules indented, leaf text quoted.
func TestPrintTree(t *testing.T) {
	root, perr := parser.Parse("const A = 64K;", parser.RuleFile)
	if perr != nil {
		t.Fatalf("Parse: %v", perr)
	}

	var buf strings.Builder
	if err := printTree(&buf, root, 0); err != nil {
		t.Fatalf("printTree: %v", err)
	}

	out := buf.String()

	if !strings.HasPrefix(out, "file 1:1\n") {
		t.Errorf("output does not start at the file rule:\n%s", out)
	}

	for _, fragment := range []string{"  const_decl 1:1\n", `"A"`, `"64K"`} {
		if !strings.Contains(out, fragment) {
			t.Errorf("output missing %q:\n%s", fragment, out)
		}
	}
}

// TestSummarize tests the item summary over a mixed document.
func TestSummarize(t *testing.T) {
	doc := &lang.Document{
		Items: []lang.Item{
			&lang.ConstDecl{Name: "A"},
			&lang.ConstDecl{Name: "B"},
			&lang.MemoryMap{Regions: []*lang.Region{{Name: "rom"}, {Name: "ram"}}},
			&lang.Section{Name: ".text"},
			&lang.Discard{Inputs: []*lang.InputStmt{{}}},
		},
	}

	want := "2 constants, 2 regions, 0 segments, 1 sections, 1 discards, 0 aliases"
	if got := summarize(doc); got != want {
		t.Errorf("summarize() = %q, want %q", got, want)
	}
}
