package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomearr/tomearr/internal/pipeline"
)

func newTestImporter(t *testing.T) (*Importer, string) {
	t.Helper()
	root := t.TempDir()
	imp := New(Config{LibraryRoot: root}, nil)
	return imp, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testImportItem(downloadPath string) *pipeline.Item {
	return &pipeline.Item{
		Identity:     "B01ABC",
		Title:        "Project Hail Mary",
		Author:       "Andy Weir",
		DownloadPath: downloadPath,
	}
}

func TestImport_SingleFile(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "audiobook content")

	result, err := imp.Import(context.Background(), testImportItem(src))
	require.NoError(t, err)

	want := filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b")
	assert.Equal(t, want, result.DestPath)
	assert.NotEmpty(t, result.Checksum)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "audiobook content", string(data))
}

func TestImport_DirectoryPicksLargestAudio(t *testing.T) {
	imp, root := newTestImporter(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.m4b"), "the real audiobook, much longer content")
	writeFile(t, filepath.Join(dir, "sample.m4b"), "x")
	writeFile(t, filepath.Join(dir, "cover.jpg"), "not audio at all, even if bigger than the rest")
	writeFile(t, filepath.Join(dir, "extra", "teaser.mp3"), "tiny")

	result, err := imp.Import(context.Background(), testImportItem(dir))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b"), result.DestPath)
}

func TestImport_PrefersConvertedPath(t *testing.T) {
	imp, root := newTestImporter(t)
	download := filepath.Join(t.TempDir(), "book.aax")
	converted := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, download, "drm wrapped")
	writeFile(t, converted, "converted audio")

	item := testImportItem(download)
	item.ConvertedPath = converted

	result, err := imp.Import(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b"), result.DestPath)

	// The original download is untouched; the converted file moved.
	assert.FileExists(t, download)
	assert.NoFileExists(t, converted)
}

func TestImport_SourceMissing(t *testing.T) {
	imp, _ := newTestImporter(t)

	_, err := imp.Import(context.Background(), testImportItem("/nonexistent/book.m4b"))
	assert.ErrorIs(t, err, ErrSourceMissing)

	_, err = imp.Import(context.Background(), testImportItem(""))
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestImport_NoAudioFile(t *testing.T) {
	imp, _ := newTestImporter(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.txt"), "nothing to hear")

	_, err := imp.Import(context.Background(), testImportItem(dir))
	assert.ErrorIs(t, err, ErrNoAudioFile)
}

func TestImport_DestinationExists(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "new copy")
	writeFile(t, filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b"), "already imported")

	_, err := imp.Import(context.Background(), testImportItem(src))
	assert.ErrorIs(t, err, ErrDestinationExists)

	// Source survives for the operator to inspect.
	assert.FileExists(t, src)
}

func TestImport_InsufficientSpace(t *testing.T) {
	imp, _ := newTestImporter(t)
	imp.freeSpace = func(string) (uint64, error) { return 10, nil }

	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "far more than ten bytes of audio")

	_, err := imp.Import(context.Background(), testImportItem(src))
	assert.ErrorIs(t, err, ErrInsufficientSpace)
	assert.FileExists(t, src)
}

func TestImport_ChecksumMismatchRestoresSource(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "audiobook content")

	// Source and destination hash differently, as if the move corrupted
	// the file.
	imp.checksum = func(path string) (string, error) {
		if path == src {
			return "source-sum", nil
		}
		return "dest-sum", nil
	}

	_, err := imp.Import(context.Background(), testImportItem(src))
	require.ErrorIs(t, err, ErrChecksumMismatch)

	data, err := os.ReadFile(src)
	require.NoError(t, err, "source must survive a failed import")
	assert.Equal(t, "audiobook content", string(data))

	_, err = os.Stat(filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b"))
	assert.True(t, os.IsNotExist(err), "destination must not be left behind")
}

func TestImport_SanitizesNames(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "content")

	item := testImportItem(src)
	item.Title = `Dune: Messiah?`
	item.Author = "Frank/Herbert"

	result, err := imp.Import(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Frank Herbert", "Dune Messiah.m4b"), result.DestPath)
}

func TestImport_NoAuthorFallback(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.mp3")
	writeFile(t, src, "content")

	item := testImportItem(src)
	item.Author = ""

	result, err := imp.Import(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Unknown Author", "Project Hail Mary.mp3"), result.DestPath)
}

func TestImport_TorrentSourceKeepsFileForSeeding(t *testing.T) {
	imp, root := newTestImporter(t)
	src := filepath.Join(t.TempDir(), "book.m4b")
	writeFile(t, src, "seeded content")

	item := testImportItem(src)
	item.Selected = &pipeline.Selected{SourceType: pipeline.SourceTorrent, Reference: "magnet:?xt=urn:btih:abc"}

	result, err := imp.Import(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Andy Weir", "Project Hail Mary.m4b"), result.DestPath)

	// Both copies exist: the client keeps seeding the original.
	assert.FileExists(t, src)
	assert.FileExists(t, result.DestPath)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Project Hail Mary", "Project Hail Mary"},
		{`Dune: Messiah?`, "Dune Messiah"},
		{"a/b\\c", "a b c"},
		{"name...", "name"},
		{"  spaced   out  ", "spaced out"},
		{"null\x00byte", "nullbyte"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("/library/Author/Book.m4b", "/library"))
	assert.NoError(t, ValidatePath("/library", "/library"))
	assert.ErrorIs(t, ValidatePath("/library/../etc/passwd", "/library"), ErrPathTraversal)
	assert.ErrorIs(t, ValidatePath("/elsewhere/Book.m4b", "/library"), ErrPathTraversal)
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, "hello")

	sum, err := ChecksumFile(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = ChecksumFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNameProber(t *testing.T) {
	tests := []struct {
		path    string
		format  string
		bitrate int
	}{
		{"/downloads/Project Hail Mary [M4B 64k].m4b", "m4b", 64},
		{"/downloads/Dune Unabridged MP3 128kbps.mp3", "mp3", 128},
		{"/downloads/book.flac", "flac", 0},
		{"/downloads/mystery.bin", "bin", 0},
	}
	for _, tt := range tests {
		q, err := NameProber{}.DetectQuality(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.format, q.Format, tt.path)
		assert.Equal(t, tt.bitrate, q.BitrateKbps, tt.path)
	}
}
