package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/card-indexer/internal/indexer/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	db    models.Database
	saves int
	loads int
	err   error
}

func (f *fakeStore) Save(db models.Database) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	f.db = db
	return nil
}

func (f *fakeStore) Load() models.Database {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.db.Clone()
}

func TestAddOwnerIsIdempotent(t *testing.T) {
	fs := &fakeStore{}
	s := NewCardService(nil, fs)

	updated := s.AddOwner([]string{"Firebolt Dragon"}, "1")
	assert.Equal(t, []string{"Firebolt Dragon"}, updated)

	updated = s.AddOwner([]string{"Firebolt Dragon"}, "1")
	assert.Empty(t, updated)

	assert.Equal(t, models.Database{"Firebolt Dragon": {"1"}}, s.Snapshot())
	assert.Equal(t, 1, fs.saves, "no save when nothing changed")
}

func TestAddOwnerReturnsOnlyNewCards(t *testing.T) {
	fs := &fakeStore{}
	s := NewCardService(models.Database{"A": {"1"}}, fs)

	updated := s.AddOwner([]string{"A", "B", "", "C"}, "1")

	assert.Equal(t, []string{"B", "C"}, updated)
	assert.Equal(t, models.Database{"A": {"1"}, "B": {"1"}, "C": {"1"}}, fs.db)
}

func TestAddOwnerKeepsDiscoveryOrder(t *testing.T) {
	s := NewCardService(nil, &fakeStore{})
	s.AddOwner([]string{"A"}, "2")
	s.AddOwner([]string{"A"}, "1")
	s.AddOwner([]string{"A"}, "2")

	assert.Equal(t, []string{"2", "1"}, s.Snapshot()["A"])
}

func TestAddOwnerSaveFailureKeepsMemory(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	fs := &fakeStore{err: errors.New("disk full")}
	s := NewCardService(nil, fs)

	updated := s.AddOwner([]string{"A"}, "1")

	assert.Equal(t, []string{"A"}, updated)
	assert.Equal(t, 1, s.Count())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "could not save")
}

func TestAddOwnerConcurrent(t *testing.T) {
	s := NewCardService(nil, &fakeStore{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddOwner([]string{"Shared", fmt.Sprintf("Card %d", i)}, fmt.Sprint(i%5))
		}(i)
	}
	wg.Wait()

	db := s.Snapshot()
	assert.Len(t, db, 21)
	assert.ElementsMatch(t, []string{"0", "1", "2", "3", "4"}, db["Shared"])
}

func TestSearch(t *testing.T) {
	fs := &fakeStore{db: models.Database{
		"Firebolt Dragon": {"1", "2"},
		"Shield Knight":   {"3"},
	}}
	s := NewSearchService(fs)

	assert.Equal(t, []string{"1", "2"}, s.Search("drag"))
	assert.Equal(t, []string{"1", "2"}, s.Search("  DRAG "))
	assert.Equal(t, []string{"1", "2", "3"}, s.Search("i"))
	assert.Equal(t, []string{}, s.Search("nothing"))
}

func TestSearchDeduplicatesAndSorts(t *testing.T) {
	fs := &fakeStore{db: models.Database{
		"Red Dragon":  {"9", "10"},
		"Blue Dragon": {"10", "2"},
	}}
	assert.Equal(t, []string{"10", "2", "9"}, NewSearchService(fs).Search("dragon"))
}

func TestSearchEmptyQuerySkipsStorage(t *testing.T) {
	fs := &fakeStore{db: models.Database{"A": {"1"}}}
	s := NewSearchService(fs)

	got := s.Search("   ")

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, fs.loads)
}

func TestSearchRereadsStorage(t *testing.T) {
	fs := &fakeStore{db: models.Database{}}
	s := NewSearchService(fs)
	assert.Empty(t, s.Search("a"))

	require.NoError(t, fs.Save(models.Database{"A": {"7"}}))
	assert.Equal(t, []string{"7"}, s.Search("a"))
	assert.Equal(t, 2, fs.loads)
}

// gatedStore blocks the first Save until release is closed.
type gatedStore struct {
	fakeStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Save(db models.Database) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeStore.Save(db)
}

func TestAddOwnerSlowSaveDoesNotOverwriteNewer(t *testing.T) {
	gs := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewCardService(nil, gs)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.AddOwner([]string{"Firebolt Dragon"}, "1")
	}()
	<-gs.entered

	go func() {
		defer wg.Done()
		s.AddOwner([]string{"Shield Knight"}, "2")
	}()
	require.Eventually(t, func() bool { return s.Count() == 2 }, time.Second, 5*time.Millisecond)

	close(gs.release)
	wg.Wait()

	want := models.Database{"Firebolt Dragon": {"1"}, "Shield Knight": {"2"}}
	assert.Equal(t, want, s.Snapshot())
	assert.Equal(t, want, gs.Load(), "disk holds the newest snapshot")
	assert.Equal(t, []string{"2"}, NewSearchService(gs).Search("knight"))
}

func TestSaveSkipsStaleGeneration(t *testing.T) {
	fs := &fakeStore{}
	s := NewCardService(nil, fs)

	s.save(models.Database{"New": {"2"}}, 2)
	s.save(models.Database{"Old": {"1"}}, 1)

	assert.Equal(t, models.Database{"New": {"2"}}, fs.db)
	assert.Equal(t, 1, fs.saves)
}
