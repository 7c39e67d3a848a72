package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ManifestFile = "manifest.yaml"
	RecordsFile  = "index.gob"
)

type Manifest struct {
	Name           string    `yaml:"name"`
	EmbeddingModel string    `yaml:"embedding_model"`
	Dimension      int       `yaml:"dimension"`
	Count          int       `yaml:"count"`
	CreatedAt      time.Time `yaml:"created_at"`
}

var ErrCorrupted = errors.New("index: corrupted")

// Save writes the manifest and records to dir, creating it if needed.
func Save(dir string, m Manifest, records []Record) (err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: failed to create %s: %w", dir, err)
	}
	m.Count = len(records)
	if len(records) > 0 {
		m.Dimension = len(records[0].Embedding)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	f, err := os.Create(filepath.Join(dir, RecordsFile))
	if err != nil {
		return fmt.Errorf("index: failed to create records file: %w", err)
	}
	if err = gob.NewEncoder(f).Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("index: failed to encode records: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("index: failed to write records: %w", err)
	}

	manifest, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("index: failed to marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), manifest, 0o644)
}

// ReadDir reads and validates an index saved by Save.
func ReadDir(dir string) (m Manifest, records []Record, err error) {
	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, nil, fmt.Errorf("index: failed to read manifest: %w", err)
	}
	if err = yaml.Unmarshal(manifest, &m); err != nil {
		return m, nil, fmt.Errorf("%w: invalid manifest: %v", ErrCorrupted, err)
	}

	f, err := os.Open(filepath.Join(dir, RecordsFile))
	if err != nil {
		return m, nil, fmt.Errorf("index: failed to open records: %w", err)
	}
	defer f.Close()
	if err = gob.NewDecoder(f).Decode(&records); err != nil {
		return m, nil, fmt.Errorf("%w: invalid records: %v", ErrCorrupted, err)
	}

	if len(records) != m.Count {
		return m, nil, fmt.Errorf("%w: manifest lists %d records, found %d", ErrCorrupted, m.Count, len(records))
	}
	for i, r := range records {
		if len(r.Embedding) != m.Dimension {
			return m, nil, fmt.Errorf("%w: record %d has dimension %d, manifest has %d", ErrCorrupted, i, len(r.Embedding), m.Dimension)
		}
	}
	return m, records, nil
}
