package notify_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/stretchr/testify/assert"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	id := n.Show(notify.Toast{Title: "Server unreachable", Message: "retrying", Level: notify.LevelWarning})
	n.Dismiss(id)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="Server unreachable"`)
	assert.Contains(t, out, "message=retrying")
}

func TestRecorder(t *testing.T) {
	var r notify.Recorder

	a := r.Show(notify.Toast{Title: "a"})
	b := r.Show(notify.Toast{Title: "b"})
	r.Show(notify.Toast{Title: "a"})
	r.Dismiss(a)

	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{"a", "b", "a"}, r.Titles())
	assert.Equal(t, 2, r.Count("a"))
	assert.Equal(t, []notify.ToastID{a}, r.Dismissed())

	r.Reset()
	assert.Empty(t, r.Shown())
}
