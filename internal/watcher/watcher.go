// Package watcher notices writes to the board database made by other processes.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// sqlite writes land in the main file, the WAL or the rollback journal.
// The -shm file also changes on reads and is left out.
var dbSuffixes = []string{"", "-wal", "-journal"}

// Watcher calls onChange once a burst of writes to a sqlite database has
// been quiet for the debounce interval
type Watcher struct {
	dir      string
	names    map[string]bool
	debounce time.Duration
	onChange func()
	log      zerolog.Logger

	mu   sync.Mutex
	fw   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

// WatchDatabase creates a watcher for dbPath. onChange runs on the
// watcher goroutine and must not block.
func WatchDatabase(dbPath string, debounce time.Duration, onChange func(), log zerolog.Logger) *Watcher {
	base := filepath.Base(dbPath)
	names := make(map[string]bool, len(dbSuffixes))
	for _, suffix := range dbSuffixes {
		names[base+suffix] = true
	}

	return &Watcher{
		dir:      filepath.Dir(dbPath),
		names:    names,
		debounce: debounce,
		onChange: onChange,
		log:      log.With().Str("component", "watcher").Str("db", dbPath).Logger(),
	}
}

// Start begins watching. The directory is watched so a WAL created later
// is still seen. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fw != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}

	w.fw = fw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(fw, w.done)

	w.log.Debug().Dur("debounce", w.debounce).Msg("watching database")
	return nil
}

// Stop ends watching and waits for the loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw := w.fw
	if fw == nil {
		w.mu.Unlock()
		return nil
	}
	w.fw = nil
	close(w.done)
	w.mu.Unlock()

	err := fw.Close()
	w.wg.Wait()
	return err
}

// IsRunning reports whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fw != nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher, done <-chan struct{}) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-done:
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("database watcher error")
		}
	}
}

// matches reports whether path is the database or one of its write files
func (w *Watcher) matches(path string) bool {
	return w.names[filepath.Base(path)]
}
