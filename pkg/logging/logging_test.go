package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	for _, mode := range []struct{ debug, human bool }{
		{false, false}, {true, false}, {false, true}, {true, true},
	} {
		Init(mode.debug, mode.human)
		L().Info().Msg("init check")
		if IsPrettyMode() != mode.human {
			t.Errorf("IsPrettyMode() = %v after Init(%v, %v)", IsPrettyMode(), mode.debug, mode.human)
		}
	}
	Init(false, false)
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(false, false)

	log := WithPhase("import")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"import"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}
