package models

// Database maps a card name to the ids of the owners listing it.
type Database map[string][]string

// Clone returns a deep copy safe to hand to another goroutine.
func (db Database) Clone() Database {
	out := make(Database, len(db))
	for card, owners := range db {
		out[card] = append([]string(nil), owners...)
	}
	return out
}

// Listing is what one collection or wishlist embed contributes.
type Listing struct {
	OwnerID   string   `json:"owner_id"`
	OwnerName string   `json:"owner_name"`
	Cards     []string `json:"cards"`
}
