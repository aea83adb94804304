package routes

import (
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher serves the current Table for a YAML file on disk and reloads it
// when the file changes. A reload that fails to parse keeps the previous
// table in place.
type Watcher struct {
	path    string
	current atomic.Pointer[Table]
	fw      *fsnotify.Watcher
	done    chan struct{}
}

// Watch loads path and starts watching its directory for changes (watching
// the directory survives editors that replace the file on save).
func Watch(path string) (*Watcher, error) {
	table, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fw: fw, done: make(chan struct{})}
	w.current.Store(table)
	go w.loop()
	return w, nil
}

// Table returns the table currently in effect.
func (w *Watcher) Table() *Table {
	return w.current.Load()
}

// Classify delegates to the table currently in effect, so a Watcher can be
// used wherever a static Table is accepted.
func (w *Watcher) Classify(method, path string) Rule {
	return w.current.Load().Classify(method, path)
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			table, err := Load(w.path)
			if err != nil {
				log.Printf("authgate: route table reload failed, keeping previous: %v", err)
				continue
			}
			w.current.Store(table)
			log.Printf("authgate: route table reloaded (%d rules)", len(table.rules))
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}
