package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const LevelTrace slog.Level = -8

func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				switch attr.Value.Any().(slog.Level) {
				case LevelTrace:
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Join(filepath.Base(filepath.Dir(source.File)), filepath.Base(source.File))
			}
			return attr
		},
	}))
}

// Level maps a HEADLINER_DEBUG style value to a log level. Empty or false
// values are INFO, true or 1 is DEBUG and 2 or higher is TRACE.
func Level(s string) slog.Level {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo
	}

	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n <= 0:
			return slog.LevelInfo
		case n == 1:
			return slog.LevelDebug
		default:
			return LevelTrace
		}
	}

	if b, err := strconv.ParseBool(s); err == nil && !b {
		return slog.LevelInfo
	}

	return slog.LevelDebug
}

type key string

func Trace(msg string, args ...any) {
	TraceContext(context.WithValue(context.TODO(), key("skip"), 1), msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	if logger := slog.Default(); logger.Enabled(ctx, LevelTrace) {
		skip, _ := ctx.Value(key("skip")).(int)
		pc, _, _, _ := runtime.Caller(1 + skip)
		record := slog.NewRecord(time.Now(), LevelTrace, msg, pc)
		record.Add(args...)
		logger.Handler().Handle(ctx, record)
	}
}
