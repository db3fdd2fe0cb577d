package delivery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewDirSink(dir)

	require.NoError(t, sink.Deliver(context.Background(), []byte("hello"), "board-2026-10-19.png", "image/png"))

	data, err := os.ReadFile(sink.Path("board-2026-10-19.png"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestDirSinkRejectsPaths(t *testing.T) {
	sink := NewDirSink(t.TempDir())
	for _, name := range []string{"", "..", "../escape.png", `a\b.png`} {
		err := sink.Deliver(context.Background(), []byte("x"), name, "image/png")
		assert.ErrorIs(t, err, ErrInvalidFilename, name)
	}
}

func TestMemorySink(t *testing.T) {
	var sink MemorySink
	buf := []byte("abc")
	require.NoError(t, sink.Deliver(context.Background(), buf, "a.json", "application/json"))
	buf[0] = 'z'

	files := sink.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "abc", string(files[0].Data))
	assert.Equal(t, "application/json", files[0].MIMEType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Deliver(ctx, buf, "b.json", "application/json"))
}
