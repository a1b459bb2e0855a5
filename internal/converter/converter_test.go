package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRun captures the command line and fabricates ffmpeg's output
// file.
type fakeRun struct {
	name string
	args []string
	err  error
}

func (f *fakeRun) run(ctx context.Context, name string, args ...string) error {
	f.name = name
	f.args = args
	if f.err != nil {
		return f.err
	}
	// ffmpeg writes the last argument.
	return os.WriteFile(args[len(args)-1], []byte("converted"), 0o644)
}

func newTestFFmpeg(cfg Config) (*FFmpeg, *fakeRun) {
	fake := &fakeRun{}
	c := NewFFmpeg(cfg, nil)
	c.run = fake.run
	return c, fake
}

func TestConvert_Aax(t *testing.T) {
	c, fake := newTestFFmpeg(Config{ActivationBytes: "1a2b3c4d"})
	outDir := t.TempDir()

	out, err := c.Convert(context.Background(), "/downloads/book.aax", outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "book.m4b"), out)
	assert.FileExists(t, out)

	assert.Equal(t, "ffmpeg", fake.name)
	assert.Contains(t, fake.args, "-activation_bytes")
	assert.Contains(t, fake.args, "1a2b3c4d")
	assert.Contains(t, fake.args, "/downloads/book.aax")
	// Output goes to a temp name, renamed on success.
	assert.Equal(t, filepath.Join(outDir, "book.m4b")+".converting", fake.args[len(fake.args)-1])
}

func TestConvert_NonAaxSkipsActivation(t *testing.T) {
	c, fake := newTestFFmpeg(Config{})
	outDir := t.TempDir()

	out, err := c.Convert(context.Background(), "/downloads/book.mp3", outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "book.m4b"), out)
	assert.NotContains(t, fake.args, "-activation_bytes")
}

func TestConvert_AaxWithoutActivationBytes(t *testing.T) {
	c, _ := newTestFFmpeg(Config{})

	_, err := c.Convert(context.Background(), "/downloads/book.aax", t.TempDir())
	assert.ErrorIs(t, err, ErrActivationRequired)
}

func TestConvert_FfmpegFailureCleansUp(t *testing.T) {
	c, fake := newTestFFmpeg(Config{ActivationBytes: "1a2b3c4d"})
	fake.err = errors.New("invalid data found when processing input")
	outDir := t.TempDir()

	_, err := c.Convert(context.Background(), "/downloads/book.aax", outDir)
	require.Error(t, err)

	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "no partial output should remain")
}

func TestNewFFmpeg_DefaultBinary(t *testing.T) {
	c := NewFFmpeg(Config{}, nil)
	assert.Equal(t, "ffmpeg", c.binary)

	c = NewFFmpeg(Config{Binary: "/opt/ffmpeg/bin/ffmpeg"}, nil)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", c.binary)
}
