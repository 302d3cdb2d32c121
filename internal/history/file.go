package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/metrics"
	"github.com/ytget/mediaqueue/internal/platform"
)

// DefaultMaxEntries caps the file history
const DefaultMaxEntries = 1000

// FileStore keeps history as a JSON array in a single file
type FileStore struct {
	mu         sync.Mutex
	file       string
	maxEntries int
	records    []Record
	logger     *zap.Logger
}

// NewFileStore opens the history file, loading existing records if it exists
func NewFileStore(filePath string, maxEntries int, logger *zap.Logger) (*FileStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{
		file:       filepath.Clean(filePath),
		maxEntries: maxEntries,
		logger:     logger.Named("history"),
	}

	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(s.file)); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := s.restore(); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s, nil
}

func (s *FileStore) restore() error {
	data, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("failed to unmarshal history file: %w", err)
	}
	s.logger.Debug("history loaded", zap.Int("records", len(s.records)), zap.String("file", s.file))
	return nil
}

// Add appends rec and rewrites the file. Failures are logged.
func (s *FileStore) Add(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if over := len(s.records) - s.maxEntries; over > 0 {
		s.records = append([]Record(nil), s.records[over:]...)
	}

	if err := s.persist(); err != nil {
		metrics.HistoryWriteErrors.WithLabelValues("file").Inc()
		s.logger.Warn("failed to persist history", zap.String("task_id", rec.ID), zap.Error(err))
	}
}

// List returns a copy of the stored records, oldest first
func (s *FileStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), nil
}

// persist writes through a temporary file and renames it over the target. Callers hold mu.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tempFile := s.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
