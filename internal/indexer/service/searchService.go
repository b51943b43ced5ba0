package service

import (
	"sort"
	"strings"

	"github.com/avvvet/card-indexer/internal/indexer/models"
)

// DatabaseLoader reads the persisted database.
type DatabaseLoader interface {
	Load() models.Database
}

// SearchService answers owner lookups from the file on disk, not from the
// listener's memory, so external edits to the file are picked up.
type SearchService struct {
	loader DatabaseLoader
}

func NewSearchService(loader DatabaseLoader) *SearchService {
	return &SearchService{loader: loader}
}

// Search returns the sorted ids of everyone owning a card whose name
// contains query, ignoring case. An empty query does not touch storage.
func (s *SearchService) Search(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []string{}
	}

	found := map[string]struct{}{}
	for card, owners := range s.loader.Load() {
		if !strings.Contains(strings.ToLower(card), query) {
			continue
		}
		for _, o := range owners {
			found[o] = struct{}{}
		}
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
