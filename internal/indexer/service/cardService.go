package service

import (
	"slices"
	"sync"

	"github.com/avvvet/card-indexer/internal/indexer/models"
	log "github.com/sirupsen/logrus"
)

// DatabaseSaver persists a full copy of the database.
type DatabaseSaver interface {
	Save(db models.Database) error
}

// CardService owns the listener's in-memory copy of the card database.
type CardService struct {
	mu    sync.Mutex
	db    models.Database
	gen   uint64 // bumped on every mutation, guarded by mu
	saver DatabaseSaver

	saveMu   sync.Mutex
	savedGen uint64 // generation last written, guarded by saveMu
}

func NewCardService(initial models.Database, saver DatabaseSaver) *CardService {
	if initial == nil {
		initial = models.Database{}
	}
	return &CardService{db: initial, saver: saver}
}

// AddOwner records ownerID against every card and returns the cards that
// gained ownerID on this call. When any did, the whole database is saved.
// The save runs outside the lock on a snapshot taken under it; saves are
// serialised and a snapshot older than the one on disk is never written.
func (s *CardService) AddOwner(cards []string, ownerID string) []string {
	var updated []string
	var snapshot models.Database
	var gen uint64

	s.mu.Lock()
	for _, card := range cards {
		if card == "" {
			continue
		}
		owners, ok := s.db[card]
		if !ok {
			owners = []string{}
		}
		if !slices.Contains(owners, ownerID) {
			owners = append(owners, ownerID)
			updated = append(updated, card)
		}
		s.db[card] = owners
	}
	if len(updated) > 0 {
		s.gen++
		gen = s.gen
		snapshot = s.db.Clone()
	}
	s.mu.Unlock()

	if snapshot != nil {
		s.save(snapshot, gen)
	}
	return updated
}

// save writes snapshot unless a newer generation already reached disk.
func (s *CardService) save(snapshot models.Database, gen uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if gen <= s.savedGen {
		return
	}
	if err := s.saver.Save(snapshot); err != nil {
		log.WithError(err).Error("could not save card database, keeping changes in memory")
		return
	}
	s.savedGen = gen
}

// Snapshot returns a copy of the in-memory database.
func (s *CardService) Snapshot() models.Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Clone()
}

func (s *CardService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.db)
}
