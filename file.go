package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileStore is a directory-backed Store and Notifier: each key maps to a
// file named after it, and fsnotify on the directory drives change
// notifications. Because the filesystem cannot attribute writes, changes
// carry no origin and a context observes its own writes.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is
// created on first write if it does not exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get reads the entry file for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read entry %s: %w", key, err)
	}
	return data, true, nil
}

// Set writes the entry file for key. The write goes through a temporary
// file and rename so watchers never observe a partial entry.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to stage entry %s: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to stage entry %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write entry %s: %w", key, err)
	}
	return nil
}

// Watch begins watching the store directory and returns a channel that
// emits a Change whenever an entry file is written or removed.
func (s *FileStore) Watch(ctx context.Context) (<-chan Change, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch dir %s: %w", s.dir, err)
	}

	out := make(chan Change)

	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				key := filepath.Base(event.Name)
				// Staged temp files are not entries.
				if strings.HasPrefix(key, ".") {
					continue
				}

				var change Change
				switch {
				case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
					data, err := os.ReadFile(event.Name)
					if err != nil {
						continue
					}
					change = Change{Key: key, Raw: data}
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					change = Change{Key: key}
				default:
					continue
				}

				select {
				case out <- change:
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()

	return out, nil
}

// path maps a key to its entry file, rejecting keys that would escape
// the store directory.
func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Ensure FileStore implements Store and Notifier.
var (
	_ Store    = (*FileStore)(nil)
	_ Notifier = (*FileStore)(nil)
)
