package lang

import (
	"context"
	"log/slog"

	"github.com/berkus/linker-script/lang/parser"
	"github.com/berkus/linker-script/log"
)

// Option configures parsing behavior.
type Option func(*config)

type config struct {
	logger log.Logger
}

// WithLogger sets the structured logger for trace-level debugging.
// If not provided, the logger is zero-valued and all logging is a no-op.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) *config {
	c := &config{}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ParseDocument parses a complete layout source file.
//
// A source that does not match the grammar yields a *SyntaxError. A
// *StructuralError indicates a fault in the front end itself and
// should be reported, not handled.
func ParseDocument(ctx context.Context, input string, opts ...Option) (*Document, error) {
	cfg := newConfig(opts)

	cfg.logger.TraceContext(
		ctx,
		"parse start",
		slog.Int("source_length", len(input)),
	)

	root, perr := parser.Parse(input, parser.RuleFile)
	if perr != nil {
		return nil, NewSyntaxError(perr, input)
	}

	cfg.logger.TraceContext(
		ctx,
		"parse tree complete",
		slog.Int("item_count", len(root.Children)),
	)

	b := &builder{logger: cfg.logger}

	return b.buildDocument(ctx, root)
}

// ParseExpr parses a standalone arithmetic expression.
func ParseExpr(ctx context.Context, input string, opts ...Option) (Expr, error) {
	root, err := parseStart(ctx, input, parser.RuleExpr, opts)
	if err != nil {
		return nil, err
	}

	b := &builder{logger: newConfig(opts).logger}

	return b.buildExpr(root)
}

// ParseSection parses a standalone section declaration.
func ParseSection(ctx context.Context, input string, opts ...Option) (*Section, error) {
	root, err := parseStart(ctx, input, parser.RuleSection, opts)
	if err != nil {
		return nil, err
	}

	b := &builder{logger: newConfig(opts).logger}

	return b.buildSection(ctx, root)
}

// ParseContents parses a standalone contents block.
func ParseContents(ctx context.Context, input string, opts ...Option) ([]ContentsItem, error) {
	root, err := parseStart(ctx, input, parser.RuleContents, opts)
	if err != nil {
		return nil, err
	}

	b := &builder{logger: newConfig(opts).logger}

	return b.buildContents(ctx, root)
}

// ParseInput parses a standalone input statement.
func ParseInput(ctx context.Context, input string, opts ...Option) (*InputStmt, error) {
	root, err := parseStart(ctx, input, parser.RuleInput, opts)
	if err != nil {
		return nil, err
	}

	b := &builder{logger: newConfig(opts).logger}

	return b.buildInput(root)
}

func parseStart(ctx context.Context, input string, start parser.Rule, opts []Option) (*parser.Node, error) {
	cfg := newConfig(opts)

	cfg.logger.TraceContext(
		ctx,
		"parse start",
		slog.String("rule", start.String()),
		slog.Int("source_length", len(input)),
	)

	root, perr := parser.Parse(input, start)
	if perr != nil {
		return nil, NewSyntaxError(perr, input)
	}

	return root, nil
}
