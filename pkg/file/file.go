// Package file provides a mutter.Source that loads a whole document from a
// file and reloads it whenever the file is written, using fsnotify.
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/mutter"
)

// Source watches a file and emits its contents as a single change.
type Source struct {
	path  string
	mount []string
}

// Option configures a Source.
type Option func(*Source)

// At mounts the document at path instead of replacing the store root.
func At(path ...string) Option {
	return func(s *Source) {
		s.mount = path
	}
}

// New creates a Source for the file at path.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching the file and returns a channel that emits the file
// contents whenever the file is written. The current contents are emitted
// immediately. Empty reads, as seen between truncate and write, are skipped.
func (s *Source) Watch(ctx context.Context) (<-chan []mutter.Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch file %s: %w", s.path, err)
	}

	out := make(chan []mutter.Change)

	go func() {
		defer close(out)
		defer watcher.Close()

		emit := func() bool {
			data, err := os.ReadFile(s.path)
			if err != nil || len(data) == 0 {
				return true
			}
			select {
			case out <- []mutter.Change{{Path: s.mount, Raw: data}}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !emit() {
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

var _ mutter.Source = (*Source)(nil)
