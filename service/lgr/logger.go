package lgr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. All packages log through it.
var Logger *slog.Logger

func init() {
	Logger = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
}

// New builds a logger: a colored console handler and, when file is
// non-empty, a rotated JSON file handler that expands error attributes
// into stack traces.
func New(level string, file string) *slog.Logger {
	lvl := parseLevel(level)

	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 7,
			MaxAge:     28, // days
			Compress:   true,
		}
		return slog.New(slog.NewJSONHandler(rotated, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: replaceAttr,
		}))
	}

	return slog.New(newConsoleHandler(os.Stdout, lvl))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}

	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}

	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		a.Value = slog.StringValue(err.Error())
		return a
	}

	frames := trace.Frames()
	stack := make([]stackFrame, len(frames))
	for i, f := range frames {
		stack[i] = stackFrame{
			Func:   filepath.Base(f.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(f.File)), filepath.Base(f.File)),
			Line:   f.Line,
		}
	}

	a.Value = slog.GroupValue(
		slog.String("msg", err.Error()),
		slog.Any("trace", stack),
	)
	return a
}

// consoleHandler renders level-colored single-line records for humans.
type consoleHandler struct {
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{out: out, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})

	b.WriteByte('\n')
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &consoleHandler{out: h.out, level: h.level, attrs: merged}
}

func (h *consoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	b.WriteByte(' ')
	b.WriteString(color.CyanString(a.Key))
	b.WriteByte('=')
	b.WriteString(fmt.Sprintf("%v", a.Value.Any()))
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.RedString("ERR")
	case l >= slog.LevelWarn:
		return color.YellowString("WRN")
	case l >= slog.LevelInfo:
		return color.GreenString("INF")
	default:
		return color.WhiteString("DBG")
	}
}
