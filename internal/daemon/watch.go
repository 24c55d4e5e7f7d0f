package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches one config file and debounces external edits
// into a single onChange callback. It reloads nothing itself; what an
// edit leads to is up to the callback.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func()
	log      *slog.Logger
	debounce time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// WatchConfig starts watching configPath. onChange is invoked (debounced
// by 250ms) whenever the file is written, renamed, or recreated - the
// pattern most editors use for an atomic save.
func WatchConfig(configPath string, onChange func(), log *slog.Logger) (*ConfigWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw := &ConfigWatcher{
		watcher:  watcher,
		path:     filepath.Clean(configPath),
		onChange: onChange,
		log:      log,
		debounce: 250 * time.Millisecond,
		cancel:   cancel,
	}
	cw.wg.Add(1)
	go cw.run(ctx)
	return cw, nil
}

func (cw *ConfigWatcher) run(ctx context.Context) {
	defer cw.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(cw.debounce, cw.onChange)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (cw *ConfigWatcher) Close() error {
	cw.cancel()
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
