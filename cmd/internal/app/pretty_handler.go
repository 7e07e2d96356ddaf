package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// prettyHandler renders one record per line for local development runs.
// Production runs the JSON handler; nothing downstream parses this output,
// so the format can favor the human reading a terminal.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(h.paint(ansiDim, ts.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(h.paint(ansiBold, r.Message))

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			b.WriteByte(' ')
			b.WriteString(h.paint(ansiDim, filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line)))
		}
	}

	for _, a := range h.attrs {
		h.writeAttr(&b, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a, "")
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) writeAttr(b *strings.Builder, a slog.Attr, prefix string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return
	}
	if prefix != "" {
		key = prefix + "." + key
	} else if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, ga, key)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(h.renderValue(key, a.Value))
}

// renderValue colorizes the handful of keys the server actually logs with:
// failures in red, request shape in the request-line palette, identifiers dim.
func (h *prettyHandler) renderValue(key string, v slog.Value) string {
	leaf := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		leaf = key[i+1:]
	}

	switch leaf {
	case "err":
		return h.paint(ansiRed, quoteIfNeeded(valueText(v)))
	case "method":
		return h.paint(ansiBold, strings.ToUpper(strings.TrimSpace(valueText(v))))
	case "path", "addr":
		return h.paint(ansiCyan, valueText(v))
	case "status":
		if n, ok := valueInt(v); ok {
			return h.paintStatus(int(n))
		}
	case "duration_ms":
		if _, ok := valueInt(v); ok {
			return h.paint(ansiDim, valueText(v)+"ms")
		}
	case "room_id", "conn_id", "user_id", "tenant_id":
		return h.paint(ansiDim, quoteIfNeeded(valueText(v)))
	}

	return quoteIfNeeded(valueText(v))
}

func (h *prettyHandler) paintStatus(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 500:
		return h.paint(ansiRed, s)
	case code >= 400:
		return h.paint(ansiYellow, s)
	case code >= 300:
		return h.paint(ansiCyan, s)
	default:
		return h.paint(ansiGreen, s)
	}
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "[ERROR]")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "[WARN]")
	case level >= slog.LevelInfo:
		return h.paint(ansiBlue, "[INFO]")
	default:
		return h.paint(ansiMagenta, "[DEBUG]")
	}
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func valueInt(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	default:
		return 0, false
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
