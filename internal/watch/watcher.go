package watch

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the models directory and invokes the reload callback once
// events settle. Model files land via copy or rename, which produces bursts
// of write events; the debounce collapses a burst into one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
}

func New(dir string, onChange func()) *Watcher {
	return &Watcher{dir: dir, debounce: 2 * time.Second, onChange: onChange}
}

// Run blocks until ctx is cancelled, firing onChange after each settled burst
// of model file events. Watch setup failure is returned; runtime watch errors
// are logged and the loop continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	log.Printf("watch: observing %s", w.dir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		case <-timer.C:
			pending = false
			log.Printf("watch: model files changed, reloading")
			w.onChange()
		}
	}
}

// relevant filters events down to model artifact files.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	switch filepath.Ext(ev.Name) {
	case ".onnx", ".json", ".txt", ".so":
		return true
	}
	return false
}
