package prompt

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/tradewarden/internal/logger"
)

// Watch reloads the rule file into the detector whenever it changes on disk.
// A file that fails to parse leaves the previous ruleset in place. Blocks
// until ctx is done.
func (d *Detector) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files, which drops the watch on
	// the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			rules, err := LoadRules(path)
			if err != nil {
				logger.Warn("prompt: rules reload failed, keeping old set", "path", path, "err", err)
				continue
			}
			d.Swap(rules)
			logger.Info("prompt: rules reloaded", "path", path, "rules", len(rules.Rules))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("prompt: watcher error", "err", err)
		}
	}
}
