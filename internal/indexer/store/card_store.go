package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/avvvet/card-indexer/internal/indexer/models"
	log "github.com/sirupsen/logrus"
)

// CardStore keeps the whole card database in a single JSON file.
type CardStore struct {
	path string
}

func NewCardStore(path string) *CardStore {
	return &CardStore{path: path}
}

func (s *CardStore) Path() string {
	return s.path
}

// Load reads the database from disk. A missing file is an empty database;
// an unreadable or malformed one is logged and also treated as empty.
func (s *CardStore) Load() models.Database {
	db, err := s.read()
	if err != nil {
		log.Errorf("could not read or parse %s, starting with an empty database: %v", s.path, err)
		return models.Database{}
	}
	return db
}

func (s *CardStore) read() (models.Database, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Database{}, nil
		}
		return nil, err
	}

	db := models.Database{}
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, err
	}
	if db == nil { // file holds "null"
		db = models.Database{}
	}
	return db, nil
}

// Save replaces the file with db. The write goes to a temp file first and
// is renamed into place, so readers never see a half-written database.
func (s *CardStore) Save(db models.Database) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(db, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal database: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp makes the file 0600; keep the database world-readable
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
