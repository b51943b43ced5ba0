package extract

import (
	"regexp"
	"strings"

	"github.com/avvvet/card-indexer/internal/indexer/models"
)

// Embed is the slice of a rich-content block the extractor needs.
type Embed interface {
	AuthorName() string
	Description() string
	IconURL() string
}

// SimpleEmbed is a plain Embed, used by the listener and in tests.
type SimpleEmbed struct {
	Author string
	Desc   string
	Icon   string
}

func (e SimpleEmbed) AuthorName() string  { return e.Author }
func (e SimpleEmbed) Description() string { return e.Desc }
func (e SimpleEmbed) IconURL() string     { return e.Icon }

var (
	// "12 - AB " ; the tag must be followed by whitespace or end the line
	// so a card name starting with a capital letter is not eaten
	cardPrefix = regexp.MustCompile(`^\d+\s*-\s*(?:[A-Z-]+(?:\s+|$))?`)
	avatarID   = regexp.MustCompile(`/avatars/(\d+)/`)
)

// CleanCardName strips the "<n> - <TAG> " prefix from a listing line.
// Lines without the prefix are returned trimmed.
func CleanCardName(line string) string {
	loc := cardPrefix.FindStringIndex(line)
	if loc == nil {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line[loc[1]:])
}

// OwnerID pulls the numeric account id out of an avatar url.
func OwnerID(iconURL string) (string, bool) {
	m := avatarID.FindStringSubmatch(iconURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OwnerLabel returns the part of "Alice's Collection" before "'s".
func OwnerLabel(authorName string) string {
	before, _, _ := strings.Cut(authorName, "'s")
	return before
}

// IsListing reports whether the embed looks like a collection or wishlist page.
func IsListing(e Embed) bool {
	if e.AuthorName() == "" || e.Description() == "" || e.IconURL() == "" {
		return false
	}
	name := strings.ToLower(e.AuthorName())
	return strings.Contains(name, "collection") || strings.Contains(name, "wishlist")
}

// CardNames splits an embed body into clean card names, dropping blanks.
func CardNames(description string) []string {
	var cards []string
	for _, line := range strings.Split(description, "\n") {
		if name := CleanCardName(line); name != "" {
			cards = append(cards, name)
		}
	}
	return cards
}

// Extract turns a listing embed into its owner and cards. ok is false when
// the embed is not a listing or carries no recoverable owner id.
func Extract(e Embed) (listing models.Listing, ok bool) {
	if !IsListing(e) {
		return models.Listing{}, false
	}
	id, ok := OwnerID(e.IconURL())
	if !ok {
		return models.Listing{}, false
	}
	return models.Listing{
		OwnerID:   id,
		OwnerName: OwnerLabel(e.AuthorName()),
		Cards:     CardNames(e.Description()),
	}, true
}
