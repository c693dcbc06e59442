package logctx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext_Fallbacks(t *testing.T) {
	for name, ctx := range map[string]context.Context{"nil": nil, "empty": context.Background()} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := FromContext(ctx).Output(&buf)
			logger.Info().Msg("test")
			if buf.Len() == 0 {
				t.Error("expected logger to produce output")
			}
		})
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf).With().Str("custom", "field").Logger())
	logger := FromContext(ctx)
	logger.Info().Msg("test")
	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestChainedFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStr(ctx, "path", "col.tblk")
	ctx = WithInt(ctx, "block", 5)
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	for _, want := range []string{`"path":"col.tblk"`, `"block":5`} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %s in %s", want, output)
		}
	}
}

func TestSetDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := DefaultLogger()
	SetDefaultLogger(zerolog.New(&buf).With().Str("default", "yes").Logger())
	defer SetDefaultLogger(prev)

	logger := FromContext(context.Background())
	logger.Info().Msg("test")
	if !strings.Contains(buf.String(), `"default":"yes"`) {
		t.Errorf("default logger not used: %s", buf.String())
	}
}
