package main

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// songWatcher reports changes to a single song file. The parent directory
// is watched rather than the file itself: editors that save by writing a
// temp file and renaming it over the original would otherwise drop the
// watch on the first save.
type songWatcher struct {
	watcher *fsnotify.Watcher
	target  string
	Events  chan string
	Errors  chan error
	closeCh chan struct{}
	once    sync.Once
}

func newSongWatcher(path string) (*songWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	sw := &songWatcher{
		watcher: w,
		target:  abs,
		Events:  make(chan string, 4),
		Errors:  make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

func (sw *songWatcher) Close() error {
	var err error
	sw.once.Do(func() {
		close(sw.closeCh)
		err = sw.watcher.Close()
	})
	return err
}

func (sw *songWatcher) run() {
	var last time.Time
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != sw.target {
				continue
			}
			now := time.Now()
			if now.Sub(last) < 250*time.Millisecond {
				continue
			}
			last = now
			select {
			case sw.Events <- name:
			default:
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.Errors <- err:
			default:
			}
		case <-sw.closeCh:
			return
		}
	}
}
