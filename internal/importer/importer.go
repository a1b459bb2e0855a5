// Package importer moves finished audiobooks into the library. The
// move is checksum-verified and never leaves the library in a partial
// state: on any failure the source file survives untouched.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tomearr/tomearr/internal/pipeline"
)

// Resolver builds the library path for an item. The default layout is
// Author/Title.ext under the library root.
type Resolver interface {
	DestPath(item *pipeline.Item, ext string) string
}

// LibraryResolver is the default Author/Title layout.
type LibraryResolver struct {
	Root string
}

func (r LibraryResolver) DestPath(item *pipeline.Item, ext string) string {
	author := SanitizeFilename(item.Author)
	if author == "" {
		author = "Unknown Author"
	}
	title := SanitizeFilename(item.Title)
	return filepath.Join(r.Root, author, title+ext)
}

// Config for the importer.
type Config struct {
	LibraryRoot string
}

// Importer executes verified imports.
type Importer struct {
	root      string
	resolver  Resolver
	prober    Prober
	freeSpace func(path string) (uint64, error)
	checksum  func(path string) (string, error)
	log       *slog.Logger
}

// New creates an importer with the default resolver and prober.
func New(cfg Config, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{
		root:      cfg.LibraryRoot,
		resolver:  LibraryResolver{Root: cfg.LibraryRoot},
		prober:    NameProber{},
		freeSpace: freeSpace,
		checksum:  ChecksumFile,
		log:       log.With("component", "importer"),
	}
}

// Result describes a completed import.
type Result struct {
	SourcePath string
	DestPath   string
	SizeBytes  int64
	Checksum   string
	Quality    Quality
}

// importJob carries state between the prepare and execute phases.
type importJob struct {
	sourcePath string
	destPath   string
	size       int64
	// keepSource copies instead of moving. Torrent downloads keep
	// seeding from the original file until the seed goal is met.
	keepSource bool
}

// Import moves an item's finished file into the library. The source is
// the converted file when conversion ran, otherwise the download.
func (i *Importer) Import(ctx context.Context, item *pipeline.Item) (*Result, error) {
	i.log.Info("import started", "identity", item.Identity, "title", item.Title)

	job, err := i.prepare(item)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := i.execute(job)
	if err != nil {
		return nil, err
	}

	if q, err := i.prober.DetectQuality(result.DestPath); err == nil {
		result.Quality = q
	} else {
		i.log.Warn("quality probe failed", "path", result.DestPath, "error", err)
	}

	i.log.Info("import complete",
		"identity", item.Identity,
		"dest", result.DestPath,
		"size_bytes", result.SizeBytes,
		"format", result.Quality.Format)
	return result, nil
}

// prepare locates the audio file and builds the destination path.
func (i *Importer) prepare(item *pipeline.Item) (*importJob, error) {
	source := item.ConvertedPath
	if source == "" {
		source = item.DownloadPath
	}
	if source == "" {
		return nil, fmt.Errorf("%w: item has no download path", ErrSourceMissing)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}

	var size int64
	if info.IsDir() {
		source, size, err = FindLargestAudio(source)
		if err != nil {
			return nil, err
		}
	} else {
		if !IsAudioFile(source) {
			return nil, fmt.Errorf("%w: %s", ErrNoAudioFile, source)
		}
		size = info.Size()
	}

	dest := i.resolver.DestPath(item, filepath.Ext(source))
	if err := ValidatePath(dest, i.root); err != nil {
		return nil, err
	}

	keepSource := item.Selected != nil &&
		item.Selected.SourceType == pipeline.SourceTorrent &&
		item.ConvertedPath == ""

	return &importJob{sourcePath: source, destPath: dest, size: size, keepSource: keepSource}, nil
}

// execute checks space and dedup, then moves the file with checksum
// verification.
func (i *Importer) execute(job *importJob) (*Result, error) {
	if _, err := os.Stat(job.destPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, job.destPath)
	}

	if err := os.MkdirAll(i.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create library root: %v", ErrCopyFailed, err)
	}
	free, err := i.freeSpace(i.root)
	if err != nil {
		return nil, err
	}
	required := uint64(float64(job.size) * spaceHeadroom)
	if free < required {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientSpace, required, free)
	}

	sourceSum, err := i.checksum(job.sourcePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(job.destPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", ErrCopyFailed, err)
	}

	if job.keepSource {
		if err := i.copyVerify(job, sourceSum); err != nil {
			return nil, err
		}
	} else if err := os.Rename(job.sourcePath, job.destPath); err != nil {
		// Rename is atomic on the same filesystem. Cross-device moves
		// fall back to copy, verify, delete.
		if err := i.copyVerify(job, sourceSum); err != nil {
			return nil, err
		}
		if err := os.Remove(job.sourcePath); err != nil {
			i.log.Warn("source cleanup failed", "path", job.sourcePath, "error", err)
		}
	} else {
		destSum, err := i.checksum(job.destPath)
		if err != nil {
			i.undoRename(job)
			return nil, err
		}
		if destSum != sourceSum {
			i.undoRename(job)
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, job.destPath)
		}
	}

	return &Result{
		SourcePath: job.sourcePath,
		DestPath:   job.destPath,
		SizeBytes:  job.size,
		Checksum:   sourceSum,
	}, nil
}

// undoRename moves a renamed file back so a failed verification leaves
// the source intact and no destination behind.
func (i *Importer) undoRename(job *importJob) {
	if err := os.Rename(job.destPath, job.sourcePath); err != nil {
		i.log.Error("could not restore source after failed verification",
			"source", job.sourcePath, "dest", job.destPath, "error", err)
	}
}

// copyVerify copies and confirms the destination checksum. A bad copy
// is removed and the source kept for retry.
func (i *Importer) copyVerify(job *importJob, sourceSum string) error {
	if err := copyFile(job.sourcePath, job.destPath); err != nil {
		return err
	}

	destSum, err := i.checksum(job.destPath)
	if err != nil {
		_ = os.Remove(job.destPath)
		return err
	}
	if destSum != sourceSum {
		_ = os.Remove(job.destPath)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, job.destPath)
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open source: %v", ErrCopyFailed, err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create destination: %v", ErrCopyFailed, err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: copy content: %v", ErrCopyFailed, err)
	}
	if err := dstFile.Sync(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: sync: %v", ErrCopyFailed, err)
	}
	return nil
}
