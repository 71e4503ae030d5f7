package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const fileStoreLogPrefix = "model:file_store"

const defaultDebounce = 250 * time.Millisecond

// FileStore reads and writes the domain model as a YAML (or JSON) document.
type FileStore struct {
	path     string
	debounce time.Duration
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, debounce: defaultDebounce}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load parses the model file. A missing file yields an empty model.
func (s *FileStore) Load(_ context.Context) (Node, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Node{}, nil
		}
		return nil, fmt.Errorf("%s - failed to read %s: %w", fileStoreLogPrefix, s.path, err)
	}
	return Decode(data)
}

// Decode parses a YAML (or JSON) model document.
func Decode(data []byte) (Node, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s - failed to parse model: %w", fileStoreLogPrefix, err)
	}
	if raw == nil {
		return Node{}, nil
	}
	return normalize(raw).(map[string]interface{}), nil
}

// Save writes the model atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, root Node) error {
	data, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("%s - failed to encode model: %w", fileStoreLogPrefix, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%s - failed to write %s: %w", fileStoreLogPrefix, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%s - failed to replace %s: %w", fileStoreLogPrefix, s.path, err)
	}
	return nil
}

// Watch reloads the model whenever the file changes and passes it to onChange.
// It blocks until ctx is cancelled. Parse failures are logged and the previous model stays in effect.
func (s *FileStore) Watch(ctx context.Context, onChange func(Node)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%s - creating fsnotify watcher: %w", fileStoreLogPrefix, err)
	}
	defer fsw.Close()

	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("%s - watching directory %s: %w", fileStoreLogPrefix, dir, err)
	}
	base := filepath.Base(s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			root, err := s.Load(ctx)
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - ignoring unreadable model change: %v", fileStoreLogPrefix, err))
				continue
			}
			slog.Info(fmt.Sprintf("%s - Reloaded domain model from %s", fileStoreLogPrefix, s.path))
			onChange(root)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn(fmt.Sprintf("%s - watcher error: %v", fileStoreLogPrefix, err))
		}
	}
}
