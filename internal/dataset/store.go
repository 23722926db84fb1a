package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var (
	// ErrNoDatasetDir reports that the configured dataset directory does not
	// exist. Listing does not create it; uploads do.
	ErrNoDatasetDir = errors.New("dataset directory not found")

	// ErrNotFound reports a dataset file that is not present.
	ErrNotFound = errors.New("dataset file not found")

	// ErrNotCSV reports an upload that is not a CSV file.
	ErrNotCSV = errors.New("only CSV files are allowed")
)

// Store lists, loads and receives CSV datasets under one directory. Listing
// results are cached and invalidated by a filesystem watcher once the
// directory exists; until then every call scans fresh.
type Store struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	watching bool
	dirty    bool
	names    []string
	watcher  *fsnotify.Watcher
	wg       conc.WaitGroup
}

// NewStore builds a store over dir. The directory is not created; a missing
// directory is a reportable condition of its own.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the configured dataset directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the dataset path as the generated scripts and tool messages
// reference it.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// List returns the CSV filenames in the dataset directory, sorted by name.
// A missing directory yields ErrNoDatasetDir; a present but empty directory
// yields an empty slice.
func (s *Store) List() ([]string, error) {
	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoDatasetDir
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.watching {
		s.startWatcherLocked()
	}
	if s.watching && !s.dirty && s.names != nil {
		return append([]string(nil), s.names...), nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".csv") {
			names = append(names, entry.Name())
		}
	}

	if s.watching {
		s.names = names
		s.dirty = false
	}
	return append([]string(nil), names...), nil
}

// Load parses the named dataset. The file must resolve inside the dataset
// directory; a missing file yields ErrNotFound without touching any state.
func (s *Store) Load(filename string) (*Frame, error) {
	resolved, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path(filename))
		}
		return nil, err
	}
	defer file.Close()

	return ParseCSV(filename, file)
}

// SaveUpload writes an uploaded CSV into the dataset directory, creating the
// directory if needed. The stored name is the base name of the upload, which
// keeps traversal segments out of the directory.
func (s *Store) SaveUpload(filename string, r io.Reader) (string, error) {
	safe := filepath.Base(filename)
	if safe == "." || safe == string(os.PathSeparator) || !strings.HasSuffix(safe, ".csv") {
		return "", ErrNotCSV
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create dataset directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(s.dir, safe))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()

	s.logger.Info("dataset uploaded", zap.String("filename", safe))
	return safe, nil
}

// Close stops the directory watcher.
func (s *Store) Close() {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.watching = false
	s.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	s.wg.Wait()
}

func (s *Store) resolve(filename string) (string, error) {
	if filename == "" {
		return "", errors.New("filename is required")
	}
	clean := filepath.Clean(filename)
	if filepath.IsAbs(clean) {
		return "", errors.New("absolute paths are not allowed")
	}

	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	abs := filepath.Clean(filepath.Join(absDir, clean))
	if abs != absDir && !strings.HasPrefix(abs, absDir+string(os.PathSeparator)) {
		return "", errors.New("path escapes dataset directory")
	}
	return abs, nil
}

func (s *Store) startWatcherLocked() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Debug("dataset watcher unavailable", zap.Error(err))
		return
	}
	if err := watcher.Add(s.dir); err != nil {
		s.logger.Debug("dataset watcher add failed", zap.Error(err))
		_ = watcher.Close()
		return
	}

	s.watcher = watcher
	s.watching = true
	s.dirty = true
	s.wg.Go(func() { s.watchLoop(watcher) })
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.logger.Debug("dataset directory changed", zap.String("op", ev.Op.String()), zap.String("name", ev.Name))
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("dataset watcher error", zap.Error(err))
		}
	}
}
