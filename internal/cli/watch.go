package cli

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/medremind/internal/worker"
)

// watchMedications reloads the medication file whenever it is written and
// queues a schedules-changed event so the worker repairs and rebalances.
// The parent directory is watched because editors often replace the file.
func watchMedications(ctx context.Context, rt *runtime, w *worker.Worker) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target := filepath.Clean(rt.cfg.Medications)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, err
	}

	log := rt.log.WithField("path", target)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := rt.meds.Reload(); err != nil {
					log.WithError(err).Error("medication file reload failed; keeping previous medications")
					continue
				}
				log.Info("medication file changed")
				w.Enqueue(worker.Event{Type: worker.EventSchedulesChanged})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
