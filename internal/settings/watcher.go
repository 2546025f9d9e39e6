package settings

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gluk-w/claworc/webssh/internal/config"
)

const debounceInterval = 500 * time.Millisecond

// ProfileWatcher reloads a profile file when it changes on disk.
type ProfileWatcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onChange func(*config.Profile)
	delay    time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatchProfile starts watching path. The directory is watched rather than the
// file so that editors replacing the file by rename are noticed.
func WatchProfile(path string, onChange func(*config.Profile)) (*ProfileWatcher, error) {
	return watchProfile(path, debounceInterval, onChange)
}

func watchProfile(path string, delay time.Duration, onChange func(*config.Profile)) (*ProfileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &ProfileWatcher{
		path:     abs,
		fsw:      fsw,
		onChange: onChange,
		delay:    delay,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *ProfileWatcher) loop() {
	defer w.wg.Done()
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.delay, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[settings] profile watcher error: %v", err)
		}
	}
}

func (w *ProfileWatcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	p, err := config.LoadProfile(w.path)
	if err != nil {
		log.Printf("[settings] reload profile: %v", err)
		return
	}
	log.Printf("[settings] profile reloaded: %s", w.path)
	w.onChange(p)
}

// Close stops watching.
func (w *ProfileWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
