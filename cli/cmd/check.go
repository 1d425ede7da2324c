package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/berkus/linker-script/lang"
	"github.com/berkus/linker-script/log"
)

// Check parses layout sources and reports diagnostics. A source that
// parses cleanly prints a one-line item summary; a syntax error prints
// the offending line with context and fails the command.
type Check struct {
	Summary bool `default:"true" help:"Print a per-source item summary." negatable:""`

	Sources []string `arg:"" default:"-" help:"Source input file(s) or '-' for stdin." name:"source"`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context) error {
	for _, src := range c.Sources {
		text, err := readSource(src)
		if err != nil {
			return err
		}

		doc, err := lang.ParseDocument(ctx, text, lang.WithLogger(log.Default()))
		if err != nil {
			syntax := &lang.SyntaxError{}
			if errors.As(err, &syntax) {
				fmt.Fprintf(os.Stderr, "%s: %s\n", displayName(src), syntax.Error())
			}

			return ErrParseSource.Wrap(err).
				With(slog.String("source", displayName(src)))
		}

		log.InfoContext(ctx, "source ok",
			slog.String("source", displayName(src)),
			slog.Int("items", len(doc.Items)),
		)

		if c.Summary {
			fmt.Printf("%s: %s\n", displayName(src), summarize(doc))
		}
	}

	return nil
}

func summarize(doc *lang.Document) string {
	var consts, regions, segments, sections, inputs, aliases int

	for _, item := range doc.Items {
		switch item := item.(type) {
		case *lang.ConstDecl:
			consts++
		case *lang.MemoryMap:
			regions += len(item.Regions)
		case *lang.ElfSegments:
			segments += len(item.Segments)
		case *lang.Section:
			sections++
		case *lang.Discard:
			inputs += len(item.Inputs)
		case *lang.ProvideSymbols:
			aliases += len(item.Aliases)
		}
	}

	return fmt.Sprintf(
		"%d constants, %d regions, %d segments, %d sections, %d discards, %d aliases",
		consts, regions, segments, sections, inputs, aliases,
	)
}
