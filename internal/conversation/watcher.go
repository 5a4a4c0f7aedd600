package conversation

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchProfile reloads the profile at path whenever it is written and applies
// it to b. Invalid edits are logged and the previous profile stays active.
// The directory is watched rather than the file so editors that replace the
// file on save are handled. WatchProfile blocks until ctx is done.
func WatchProfile(ctx context.Context, path string, b *Builder, logger *log.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("profile watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("profile watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("profile watcher: watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			p, err := LoadProfile(abs)
			if err != nil {
				if logger != nil {
					logger.Printf("profile reload rejected path=%s err=%v", abs, err)
				}
				continue
			}
			b.SetProfile(p)
			if logger != nil {
				logger.Printf("profile reloaded path=%s keywords=%v max_chars=%d", abs, p.Summary.Keywords, p.Summary.MaxChars)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("profile watcher error: %v", err)
			}
		}
	}
}
