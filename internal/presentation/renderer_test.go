package presentation

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiRendererFansOut(t *testing.T) {
	a, b := &recordingRenderer{}, &recordingRenderer{}
	multi := MultiRenderer{a, b}

	multi.Render("zbx", StateNormal, StateError)
	multi.Release("zbx")

	for _, r := range []*recordingRenderer{a, b} {
		assert.Equal(t, []string{"zbx:normal->error"}, r.changes)
		assert.Equal(t, []string{"zbx"}, r.released)
	}
}

func TestLogRendererLevels(t *testing.T) {
	var buf bytes.Buffer
	r := LogRenderer{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	r.Render("am", StateNormal, StateWorking)
	assert.Empty(t, buf.String())

	r.Render("am", StateWorking, StateInternalError)
	assert.Contains(t, buf.String(), "to=internal-error")
	assert.Contains(t, buf.String(), "entity=am")
}
