package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/importer"
	"github.com/tomearr/tomearr/internal/pipeline"
)

// conversionTimeout bounds one ffmpeg run. Transcodes of long books take
// a while even with stream copy, so this is deliberately generous.
const conversionTimeout = 30 * time.Minute

// dispatchStages routes finished downloads into conversion or import
// and converted files into import, each on a bounded worker.
func (s *Scheduler) dispatchStages(ctx context.Context) {
	for _, item := range s.listStatus(pipeline.StatusDownloadComplete) {
		if s.needsConversion(item) {
			if s.transition(item, pipeline.EventNeedsConversion) {
				s.spawnStage(ctx, item, s.runConvert)
			}
		} else {
			if s.transition(item, pipeline.EventNoConversionNeeded) {
				s.spawnStage(ctx, item, s.runImport)
			}
		}
	}

	for _, item := range s.listStatus(pipeline.StatusConverted) {
		if s.transition(item, pipeline.EventNoConversionNeeded) {
			s.spawnStage(ctx, item, s.runImport)
		}
	}
}

// needsConversion reports whether the payload must go through ffmpeg
// before import. Catalog containers always do; other sources only when
// the release itself is DRM-wrapped audio.
func (s *Scheduler) needsConversion(item *pipeline.Item) bool {
	if item.Selected == nil {
		return false
	}
	if item.Selected.SourceType.NeedsConversion() {
		return true
	}
	return strings.EqualFold(item.Selected.Format, "aax")
}

func (s *Scheduler) spawnStage(ctx context.Context, item *pipeline.Item, run func(context.Context, *pipeline.Item)) {
	if !s.markInFlight(item.ID) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearInFlight(item.ID)
		if err := s.stageSem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.stageSem.Release(1)
		run(ctx, item)
	}()
}

func (s *Scheduler) runConvert(ctx context.Context, item *pipeline.Item) {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	source, err := s.conversionSource(item)
	if err != nil {
		s.failStage(ctx, item, pipeline.EventConversionError, pipeline.StageConversion, err)
		return
	}

	outDir := s.cfg.WorkDir
	if outDir == "" {
		outDir = filepath.Dir(source)
	} else if err := os.MkdirAll(outDir, 0o755); err != nil {
		s.failStage(ctx, item, pipeline.EventConversionError, pipeline.StageConversion,
			fmt.Errorf("create work dir: %w", err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, conversionTimeout)
	defer cancel()

	out, err := s.converter.Convert(cctx, source, outDir)
	if err != nil {
		log.Warn("conversion failed", "source", source, "error", err)
		s.failStage(ctx, item, pipeline.EventConversionError, pipeline.StageConversion, err)
		return
	}

	item.ConvertedPath = out
	if !s.transition(item, pipeline.EventConversionDone) {
		return
	}
	log.Info("conversion complete", "source", source, "output", out)
	s.publish(ctx, &events.ConversionCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventConversionCompleted, events.EntityItem, item.ID),
		Identity:   item.Identity,
		SourcePath: source,
		OutputPath: out,
	})
}

// conversionSource picks the file to feed ffmpeg. Directory downloads
// convert their largest audio file.
func (s *Scheduler) conversionSource(item *pipeline.Item) (string, error) {
	if item.DownloadPath == "" {
		return "", errors.New("no download path recorded")
	}
	info, err := os.Stat(item.DownloadPath)
	if err != nil {
		return "", fmt.Errorf("stat download: %w", err)
	}
	if !info.IsDir() {
		return item.DownloadPath, nil
	}
	path, _, err := importer.FindLargestAudio(item.DownloadPath)
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *Scheduler) runImport(ctx context.Context, item *pipeline.Item) {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	res, err := s.importer.Import(ctx, item)
	if err != nil {
		log.Warn("import failed", "error", err)
		s.failStage(ctx, item, pipeline.EventImportError, pipeline.StageImport, err)
		return
	}

	item.FinalPath = res.DestPath
	if !s.transition(item, pipeline.EventImportDone) {
		return
	}
	log.Info("import complete", "path", res.DestPath, "size", res.SizeBytes)
	s.publish(ctx, &events.ImportCompleted{
		BaseEvent: events.NewBaseEvent(events.EventImportCompleted, events.EntityItem, item.ID),
		Identity:  item.Identity,
		FinalPath: res.DestPath,
		SizeBytes: res.SizeBytes,
	})

	// Torrent payloads stay in the client until the seed goal is met.
	// With seeding disabled the item is terminal here.
	if s.cfg.SeedingEnabled && item.Selected != nil && item.Selected.SourceType == pipeline.SourceTorrent {
		s.transition(item, pipeline.EventStartSeeding)
	}
}
