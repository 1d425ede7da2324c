package cli

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/berkus/linker-script/log"
)

// logFormat configures the logger format as a side effect of flag
// parsing via encoding.TextUnmarshaler, early enough to affect
// diagnostics emitted during parsing itself.
type logFormat string

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *logFormat) UnmarshalText(text []byte) error {
	*f = logFormat(text)
	log.Config(log.WithFormat(log.ParseFormat(string(*f))))

	return nil
}

// logLevel configures the logger level as a side effect of flag
// parsing via encoding.TextUnmarshaler.
type logLevel string

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *logLevel) UnmarshalText(text []byte) error {
	*l = logLevel(text)
	log.Config(log.WithLevel(log.ParseLevel(string(*l))))

	return nil
}

type logConfig struct {
	Level      logLevel  `default:"info"       enum:"trace,debug,info,warn,error" help:"Set log level."`
	Format     logFormat `default:"text"       enum:"text,json"                   help:"Set log format."`
	TimeLayout string    `default:"StampMilli"                                    help:"Set timestamp layout (named or Go layout, 'none' to disable)."`
	Caller     bool      `default:"false"                                         help:"Include caller information."       negatable:""`
	Pretty     bool      `default:"true"                                          help:"Enable colorized pretty printing." negatable:""`
}

func (*logConfig) group() kong.Group {
	return kong.Group{Key: "log", Title: "Logging options"}
}

// start applies the fully parsed logger configuration.
func (f *logConfig) start(ctx context.Context) {
	log.Config(
		log.WithLevel(log.ParseLevel(string(f.Level))),
		log.WithFormat(log.ParseFormat(string(f.Format))),
		log.WithTimeLayout(f.TimeLayout),
		log.WithCaller(f.Caller),
		log.WithPretty(f.Pretty),
	)

	log.DebugContext(ctx, "logger initialized",
		slog.String("level", string(f.Level)),
		slog.String("format", string(f.Format)),
		slog.String("time", f.TimeLayout),
		slog.Bool("caller", f.Caller),
		slog.Bool("pretty", f.Pretty),
	)
}

// scan applies logger flags before kong parses anything, so parse
// diagnostics already use the requested configuration. The
// TextUnmarshaler types cover --log-level and --log-format during
// normal parsing; this pass also catches the boolean flags.
func (f *logConfig) scan(args []string) {
	for i := 0; i < len(args); i++ {
		name, value, assigned := strings.Cut(args[i], "=")

		next := func() string {
			if assigned {
				return value
			}

			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++

				return args[i]
			}

			return ""
		}

		switch name {
		case "--log-level":
			_ = f.Level.UnmarshalText([]byte(next()))
		case "--log-format":
			_ = f.Format.UnmarshalText([]byte(next()))
		case "--log-pretty":
			f.Pretty = true

			log.Config(log.WithPretty(true))
		case "--no-log-pretty":
			f.Pretty = false

			log.Config(log.WithPretty(false))
		case "--log-caller":
			f.Caller = true

			log.Config(log.WithCaller(true))
		case "--no-log-caller":
			f.Caller = false

			log.Config(log.WithCaller(false))
		}
	}
}
