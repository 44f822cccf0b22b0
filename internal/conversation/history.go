package conversation

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistorySize bounds how many finished session transcripts are
// kept in memory for review screens.
const DefaultHistorySize = 32

// Archive keeps the transcripts of recently finished sessions, keyed
// by session ID, evicting the least recently used once full.
type Archive struct {
	cache *lru.Cache[uuid.UUID, []Utterance]
}

// NewArchive creates an Archive holding up to size transcripts.
func NewArchive(size int) (*Archive, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, err := lru.New[uuid.UUID, []Utterance](size)
	if err != nil {
		return nil, err
	}

	return &Archive{cache: cache}, nil
}

// Save stores the transcript of a finished session. Empty transcripts
// are not archived.
func (a *Archive) Save(id uuid.UUID, log []Utterance) {
	if len(log) == 0 {
		return
	}
	a.cache.Add(id, log)
}

// Get returns the archived transcript for a session, if still cached.
func (a *Archive) Get(id uuid.UUID) ([]Utterance, bool) {
	return a.cache.Get(id)
}

// Sessions lists the cached session IDs from oldest to newest.
func (a *Archive) Sessions() []uuid.UUID {
	return a.cache.Keys()
}
