package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/berkus/linker-script/lang"
	"github.com/berkus/linker-script/lang/parser"
)

// Fmt reads a layout source, parses it, and writes it back in the
// chosen representation.
type Fmt struct {
	Native Native `cmd:"" default:"withargs" help:"Format as canonical layout syntax (default)."`
	JSON   JSON   `cmd:""                    help:"Format the data projection as JSON."`
	YAML   YAML   `cmd:""                    help:"Format the data projection as YAML."`
	Tree   Tree   `cmd:""                    help:"Dump the raw parse tree, for grammar debugging."`
}

// Native formats a source in canonical layout syntax.
type Native struct {
	Indent int `default:"4" help:"Indent width for formatted output" short:"i"`

	Source string `arg:"" default:"-" help:"Source input file or '-' for stdin." name:"source"`
}

// Run executes the fmt native command.
func (f *Native) Run(ctx context.Context) error {
	doc, err := parseSource(f.Source)
	if err != nil {
		return err
	}

	if err := doc.Format(ctx, os.Stdout, f.Indent); err != nil {
		return ErrWriteOutput.Wrap(err).
			With(slog.String("format", "native"))
	}

	return nil
}

// JSON formats a source's data projection as JSON.
type JSON struct {
	Indent int `default:"2" help:"Indent width for JSON output" short:"i"`

	Source string `arg:"" default:"-" help:"Source input file or '-' for stdin." name:"source"`
}

// Run executes the fmt json command.
func (j *JSON) Run(ctx context.Context) error {
	doc, err := parseSource(j.Source)
	if err != nil {
		return err
	}

	if err := doc.FormatJSON(ctx, os.Stdout, j.Indent); err != nil {
		return ErrWriteOutput.Wrap(err).
			With(slog.String("format", "json"))
	}

	return nil
}

// YAML formats a source's data projection as YAML.
type YAML struct {
	Indent int `default:"2" help:"Indent width for YAML output" short:"i"`

	Source string `arg:"" default:"-" help:"Source input file or '-' for stdin." name:"source"`
}

// Run executes the fmt yaml command.
func (y *YAML) Run(ctx context.Context) error {
	doc, err := parseSource(y.Source)
	if err != nil {
		return err
	}

	if err := doc.FormatYAML(ctx, os.Stdout, y.Indent); err != nil {
		return ErrWriteOutput.Wrap(err).
			With(slog.String("format", "yaml"))
	}

	return nil
}

// Tree dumps the parse tree of a source before any AST construction,
// one rule per line with its position and, for leaves, the matched text.
type Tree struct {
	Source string `arg:"" default:"-" help:"Source input file or '-' for stdin." name:"source"`
}

// Run executes the fmt tree command.
func (t *Tree) Run(_ context.Context) error {
	text, err := readSource(t.Source)
	if err != nil {
		return err
	}

	root, perr := parser.Parse(text, parser.RuleFile)
	if perr != nil {
		return ErrParseSource.Wrap(lang.NewSyntaxError(perr, text)).
			With(slog.String("source", displayName(t.Source)))
	}

	if err := printTree(os.Stdout, root, 0); err != nil {
		return ErrWriteOutput.Wrap(err).
			With(slog.String("format", "tree"))
	}

	return nil
}

func printTree(w io.Writer, n *parser.Node, depth int) error {
	indent := strings.Repeat("  ", depth)

	if len(n.Children) == 0 {
		text := n.Text
		if len(text) > 40 {
			text = text[:40] + "..."
		}

		if _, err := fmt.Fprintf(w, "%s%s %d:%d %q\n",
			indent, n.Rule, n.Pos.Line, n.Pos.Column, text); err != nil {
			return err
		}

		return nil
	}

	if _, err := fmt.Fprintf(w, "%s%s %d:%d\n",
		indent, n.Rule, n.Pos.Line, n.Pos.Column); err != nil {
		return err
	}

	for _, c := range n.Children {
		if err := printTree(w, c, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// parseSource opens and parses one source through the section cache.
func parseSource(path string) (*lang.Document, error) {
	file, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	doc, err := lang.NewStream(bufio.NewReader(file)).Document()
	if err != nil {
		return nil, ErrParseSource.Wrap(err).
			With(slog.String("source", displayName(path)))
	}

	return doc, nil
}
