package pion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoggerFactoryWritesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	l := loggerFactory{}.NewLogger("ice")
	l.Warnf("candidate %d failed", 3)
	l.Debug("noise")

	out := buf.String()
	if !strings.Contains(out, `"scope":"ice"`) || !strings.Contains(out, "candidate 3 failed") {
		t.Fatalf("unexpected log output %s", out)
	}
	if !strings.Contains(out, `"level":"trace"`) {
		t.Fatalf("debug should be demoted to trace: %s", out)
	}
}
