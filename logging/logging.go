// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type ctxKey string

const turnIDKey ctxKey = "logging_turn_id"

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
}

var (
	mu         sync.RWMutex
	baseLogger zerolog.Logger
	baseWriter io.Writer = os.Stderr

	defaultTimeFmt = time.RFC3339
	isTerminalFn   = term.IsTerminal
)

func init() {
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
}

// Init configures zerolog globals and returns the base logger.
func Init(cfg Config) zerolog.Logger {
	return initWithWriter(cfg, selectWriter(cfg.Format))
}

func initWithWriter(cfg Config, writer io.Writer) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	builder := zerolog.New(writer).With().Timestamp()
	if component := strings.TrimSpace(cfg.Component); component != "" {
		builder = builder.Str("component", component)
	}

	baseLogger = builder.Logger()
	baseWriter = writer
	log.Logger = baseLogger
	return baseLogger
}

// WithTurnID stores (or generates) a turn ID on the context.
func WithTurnID(ctx context.Context, turnID string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	turnID = strings.TrimSpace(turnID)
	if turnID == "" {
		turnID = uuid.NewString()
	}
	return context.WithValue(ctx, turnIDKey, turnID), turnID
}

// TurnID returns the turn ID stored on ctx, if any.
func TurnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(turnIDKey).(string)
	return id
}

// Ctx returns the global logger annotated with the context's turn ID.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if id := TurnID(ctx); id != "" {
		l = l.With().Str("turn_id", id).Logger()
	}
	return &l
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid level %q; using %q\n", level, "info")
		return zerolog.InfoLevel
	}
}

func selectWriter(format string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return newConsoleWriter(os.Stderr)
	case "json":
		return os.Stderr
	case "auto", "":
		if isTerminalFn(int(os.Stderr.Fd())) {
			return newConsoleWriter(os.Stderr)
		}
		return os.Stderr
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid format %q; using %q\n", format, "json")
		return os.Stderr
	}
}

func newConsoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: defaultTimeFmt}
}
