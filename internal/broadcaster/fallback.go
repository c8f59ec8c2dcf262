package broadcaster

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// fallbackDirName is the subdirectory of the data directory used for the
// filesystem event-file durability net described in §4.7's DOMAIN STACK
// section: a client writes an event file here only after exhausting its
// HTTP forward-to-owner backoff for the current tick, so the common case
// never touches this path.
const fallbackDirName = "events"

// fallbackWriter drops an Event to a file under dir/events/ when a client
// cannot reach the owner over HTTP even after backoff. Grounded on
// internal/notify's EventWriter.
type fallbackWriter struct {
	dir string
}

func newFallbackWriter(dataDir string) *fallbackWriter {
	return &fallbackWriter{dir: filepath.Join(dataDir, fallbackDirName)}
}

// Write persists evt as a single file, safe to call concurrently from
// multiple client processes.
func (w *fallbackWriter) Write(evt Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("broadcaster: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("broadcaster: marshal fallback event: %w", err)
	}
	name := fmt.Sprintf("%d-%s.event", evt.At.UnixNano(), sanitizeForFilename(evt.MemoryID))
	return os.WriteFile(filepath.Join(w.dir, name), data, 0o600)
}

// fallbackWatcher drains fallback event files on start (recovering events
// written during a prior ownership handoff window) and watches for new
// ones written by clients that can't reach this process directly. Grounded
// on internal/notify's EventWatcher.
type fallbackWatcher struct {
	dir     string
	publish func(Event)
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newFallbackWatcher(dataDir string, publish func(Event)) *fallbackWatcher {
	return &fallbackWatcher{dir: filepath.Join(dataDir, fallbackDirName), publish: publish, done: make(chan struct{})}
}

func (w *fallbackWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}
	w.drainExisting()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("broadcaster: watching %s for fallback events", w.dir)
	return nil
}

func (w *fallbackWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *fallbackWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, ".event") {
				w.processFile(evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("broadcaster: fallback watcher error: %v", err)
		}
	}
}

func (w *fallbackWatcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".event") {
			w.processFile(filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *fallbackWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // already consumed by another process
	}
	_ = os.Remove(path)

	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Printf("broadcaster: invalid fallback event file %s: %v", filepath.Base(path), err)
		return
	}
	if w.publish != nil {
		w.publish(evt)
	}
}

func sanitizeForFilename(id string) string {
	if id == "" {
		return strconv.Itoa(os.Getpid())
	}
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}
