package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDelay coalesces bursts of file events into one reload.
const DefaultWatchDelay = 250 * time.Millisecond

// Watch reloads the dataset whenever one of its documents changes in the
// data directory. It blocks until ctx is done.
func (s *DatasetService) Watch(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = DefaultWatchDelay
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.cfg.DataDir); err != nil {
		return fmt.Errorf("watching %s: %w", s.cfg.DataDir, err)
	}
	s.log.Info().Str("dir", s.cfg.DataDir).Msg("watching dataset for changes")

	watched := map[string]bool{
		s.cfg.DetailsFile:  true,
		s.cfg.MetadataFile: true,
		s.cfg.GeoJSONFile:  true,
	}

	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Base(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("dataset file changed")
			timer.Reset(delay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			_ = s.Load()
		}
	}
}
