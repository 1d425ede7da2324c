package log

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleTime   = lipgloss.NewStyle().Faint(true)
	styleSource = lipgloss.NewStyle().Faint(true)
	styleKey    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleMsg    = lipgloss.NewStyle().Bold(true)

	styleLevel = map[Level]lipgloss.Style{
		LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// prettyHandler renders records as styled single-line text: dim
// timestamp, colored level, bold message, then key=value attributes
// with dim keys.
type prettyHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	layout string
	opts   *slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

func newPrettyHandler(out io.Writer, layout string, opts *slog.HandlerOptions) *prettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	return &prettyHandler{
		mu:     &sync.Mutex{},
		out:    out,
		layout: layout,
		opts:   opts,
	}
}

// Enabled implements slog.Handler.
func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}

	return level >= min
}

// WithAttrs implements slog.Handler.
func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)

	return &clone
}

// WithGroup implements slog.Handler.
func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)

	return &clone
}

// Handle implements slog.Handler.
func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	if h.layout != "" && !r.Time.IsZero() {
		buf.WriteString(styleTime.Render(r.Time.Format(h.layout)))
		buf.WriteString(" ")
	}

	level := Level(r.Level)

	label := strings.ToUpper(level.String())
	if style, ok := styleLevel[level]; ok {
		label = style.Render(label)
	}

	buf.WriteString(label)
	buf.WriteString(" ")

	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			src := shortPath(frame.File) + ":" + strconv.Itoa(frame.Line)
			buf.WriteString(styleSource.Render(src))
			buf.WriteString(" ")
		}
	}

	buf.WriteString(styleMsg.Render(r.Message))

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	for _, a := range h.attrs {
		h.appendAttr(&buf, prefix, a)
	}

	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, prefix, a)

		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := io.WriteString(h.out, buf.String())

	return err
}

func (h *prettyHandler) appendAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()

	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}

		for _, g := range a.Value.Group() {
			h.appendAttr(buf, inner, g)
		}

		return
	}

	buf.WriteString(" ")
	buf.WriteString(styleKey.Render(prefix + a.Key + "="))
	buf.WriteString(renderValue(a.Value))
}

func renderValue(v slog.Value) string {
	s := v.String()
	if strings.ContainsAny(s, " \t\"") {
		return strconv.Quote(s)
	}

	return s
}

func shortPath(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			return file[j+1:]
		}

		return file[i+1:]
	}

	return file
}
