package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/marathon-events/internal/event"
)

// LatestFile is the name of the copy of the most recent export
const LatestFile = "latest.json"

// Export is the on-disk form of one crawl result
type Export struct {
	FetchedAt  string          `json:"fetched_at"`
	ExportedAt string          `json:"exported_at"`
	Total      int             `json:"total"`
	Marathons  []*event.Record `json:"marathons"`
}

// Storage writes record exports to a data directory
type Storage struct {
	dataDir string
	now     func() time.Time
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		now:     time.Now,
	}, nil
}

// Dir returns the resolved data directory
func (s *Storage) Dir() string {
	return s.dataDir
}

// exportPath returns the timestamped export path for t
func (s *Storage) exportPath(t time.Time) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("marathons_%s.json", t.Format("20060102-150405")))
}

// SaveExport writes records to a timestamped JSON file and refreshes latest.json.
// It returns the path of the timestamped file.
func (s *Storage) SaveExport(records []*event.Record, fetchedAt time.Time) (string, error) {
	if records == nil {
		records = []*event.Record{}
	}

	now := s.now().UTC()
	export := Export{
		ExportedAt: now.Format(time.RFC3339),
		Total:      len(records),
		Marathons:  records,
	}
	if !fetchedAt.IsZero() {
		export.FetchedAt = fetchedAt.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}

	path := s.exportPath(now)
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := writeFile(filepath.Join(s.dataDir, LatestFile), data); err != nil {
		return "", fmt.Errorf("writing latest export: %w", err)
	}

	return path, nil
}

// writeFile writes data through a temporary file and rename so readers never see a partial file
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
