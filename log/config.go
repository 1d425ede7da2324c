package log

import (
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level slog.Level

const (
	LevelTrace Level = Level(slog.LevelDebug - 4)
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
)

// DefaultLevel is the default log level.
const DefaultLevel = LevelInfo

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return slog.Level(l).String()
	}
}

// Levels returns an iterator over all defined log levels.
func Levels() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, level := range []Level{
			LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError,
		} {
			if !yield(level.String()) {
				return
			}
		}
	}
}

// ParseLevel parses a string representation of a log level. Valid
// levels are "trace", "debug", "info", "warn", and "error", optionally
// followed by a "+" or "-" and an integer offset (see
// [slog.Level.UnmarshalText]). Unrecognized input yields DefaultLevel.
func ParseLevel(s string) Level {
	// slog.Level.UnmarshalText does not know "trace".
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return LevelTrace
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return DefaultLevel
	}

	return Level(l)
}

// Format represents the output format for log messages.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// DefaultFormat is the default log message format.
const DefaultFormat = FormatText

// String returns the lowercase name of the format.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}

	return "text"
}

// Formats returns an iterator over all defined log formats.
func Formats() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, format := range []Format{FormatText, FormatJSON} {
			if !yield(format.String()) {
				return
			}
		}
	}
}

// ParseFormat parses a string representation of a log format.
// Valid format strings are "text" and "json".
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}

	return FormatText
}

// DefaultTimeLayout is used when no time layout is configured.
const DefaultTimeLayout = time.StampMilli

// config holds the configuration of a Logger. A config is immutable
// once the Logger is constructed; derived loggers copy it.
type config struct {
	output     io.Writer
	level      Level
	format     Format
	timeLayout string
	caller     bool
	pretty     bool
}

// Option configures a Logger at construction.
type Option func(*config)

func makeConfig(w io.Writer, opts ...Option) config {
	if w == nil {
		w = io.Discard
	}

	c := config{
		output:     w,
		level:      DefaultLevel,
		format:     DefaultFormat,
		timeLayout: DefaultTimeLayout,
		pretty:     true,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

func (c config) clone(opts ...Option) config {
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// WithOutput sets the output writer for log messages. A nil writer
// discards all output.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w == nil {
			w = io.Discard
		}

		c.output = w
	}
}

// WithLevel sets the minimum log level. Messages below this level are
// discarded.
func WithLevel(level Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithFormat sets the output format for log messages.
func WithFormat(format Format) Option {
	return func(c *config) {
		c.format = format
	}
}

// namedLayouts maps spellings accepted on the command line to their
// time package constants.
var namedLayouts = map[string]string{
	"rfc3339":     time.RFC3339,
	"rfc3339nano": time.RFC3339Nano,
	"kitchen":     time.Kitchen,
	"stamp":       time.Stamp,
	"stampmilli":  time.StampMilli,
	"stampmicro":  time.StampMicro,
	"stampnano":   time.StampNano,
	"none":        "",
}

// WithTimeLayout sets the layout used to format log timestamps. The
// layout is either a named layout from the time package ("RFC3339",
// "StampMilli", ...), "none" to disable timestamps, or a custom layout
// passed verbatim to [time.Time.Format].
func WithTimeLayout(layout string) Option {
	return func(c *config) {
		if std, ok := namedLayouts[strings.ToLower(strings.TrimSpace(layout))]; ok {
			layout = std
		}

		c.timeLayout = layout
	}
}

// WithCaller controls whether caller information is included.
func WithCaller(enable bool) Option {
	return func(c *config) {
		c.caller = enable
	}
}

// WithPretty controls whether text output is styled for terminals.
// JSON output is never styled.
func WithPretty(enable bool) Option {
	return func(c *config) {
		c.pretty = enable
	}
}

// handler creates the slog.Handler described by the configuration.
func (c config) handler() slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource: c.caller,
		Level:     slog.Level(c.level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					if c.timeLayout == "" {
						return slog.Attr{}
					}

					a.Value = slog.StringValue(t.Format(c.timeLayout))
				}

			case slog.LevelKey:
				// Show "TRACE" instead of slog's "DEBUG-4".
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(Level(level).String()))
				}
			}

			return a
		},
	}

	if c.format == FormatJSON {
		return slog.NewJSONHandler(c.output, opts)
	}

	if c.pretty {
		return newPrettyHandler(c.output, c.timeLayout, opts)
	}

	return slog.NewTextHandler(c.output, opts)
}
