package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConsoleWriterLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleWriter(buf, "wamp-test", zerolog.InfoLevel)

	logger.Debug("hidden")
	logger.Info("visible")
	logger.Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "broken")
	assert.Contains(t, out, "wamp-test")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}
