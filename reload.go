package markup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ----------------------------- Template reloading ---------------------------

// ReloadCallback is called after the engine reloads because file changed.
// err is the reload failure, if any; the previous templates stay active then.
type ReloadCallback func(file string, err error)

// Watcher reloads an engine when template files under its directory change.
// Bursts of events are coalesced into one reload after a quiet period.
type Watcher struct {
	engine   *Engine
	fw       *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Watch starts reloading e on changes. It requires an engine created with
// NewEngineDir.
func (e *Engine) Watch(debounce time.Duration) (*Watcher, error) {
	if e.dir == "" {
		return nil, errors.New("engine has no directory to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(e.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %q: %w", e.dir, err)
	}
	w := &Watcher{engine: e, fw: fw, debounce: debounce, done: make(chan struct{})}
	e.mu.Lock()
	prev := e.watcher
	e.watcher = w
	e.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			// Files may land in a new directory before it is watched, so a
			// new directory also triggers a reload.
			newDir := ev.Has(fsnotify.Create) && w.addDir(ev.Name)
			if !newDir && (!w.engine.matches(ev.Name) || ev.Op == fsnotify.Chmod) {
				continue
			}
			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			err := w.engine.Load()
			if err != nil {
				log().Debug().Err(err).Str("file", pending).Msg("template reload failed")
			} else {
				log().Debug().Str("file", pending).Msg("templates reloaded")
			}
			w.engine.notify(pending, err)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log().Debug().Err(err).Msg("watcher error")
		}
	}
}

// addDir follows directories created after the watch started.
func (w *Watcher) addDir(p string) bool {
	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		return false
	}
	if err := w.fw.Add(p); err != nil {
		log().Debug().Err(err).Str("dir", p).Msg("watch add failed")
	}
	return true
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}
