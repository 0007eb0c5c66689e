package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLoggingState() {
	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func readJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	require.NotEmpty(t, line)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &event))
	return event
}

func TestInitSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)
	var buf bytes.Buffer

	initWithWriter(Config{Level: "debug", Component: "assistantd"}, &buf)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Str("slug", "42").Msg("hello")
	event := readJSONLine(t, &buf)
	assert.Equal(t, "assistantd", event["component"])
	assert.Equal(t, "42", event["slug"])
	assert.Equal(t, "hello", event["message"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestSelectWriter(t *testing.T) {
	orig := isTerminalFn
	t.Cleanup(func() { isTerminalFn = orig })

	isTerminalFn = func(int) bool { return false }
	assert.Equal(t, os.Stderr, selectWriter("auto"))
	assert.Equal(t, os.Stderr, selectWriter("json"))

	isTerminalFn = func(int) bool { return true }
	_, ok := selectWriter("").(zerolog.ConsoleWriter)
	assert.True(t, ok)
}

func TestTurnIDRoundTrip(t *testing.T) {
	ctx, id := WithTurnID(context.Background(), "")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, TurnID(ctx))

	_, kept := WithTurnID(context.Background(), " fixed ")
	assert.Equal(t, "fixed", kept)
	assert.Empty(t, TurnID(context.Background()))
}

func TestCtxAddsTurnID(t *testing.T) {
	t.Cleanup(resetLoggingState)
	var buf bytes.Buffer
	initWithWriter(Config{Level: "info"}, &buf)

	ctx, id := WithTurnID(context.Background(), "")
	Ctx(ctx).Info().Msg("turn")
	assert.Equal(t, id, readJSONLine(t, &buf)["turn_id"])
}
