package conversation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguakid/linguakid/internal/conversation"
)

func TestArchive_SaveAndGet(t *testing.T) {
	a, err := conversation.NewArchive(4)
	require.NoError(t, err)

	id := uuid.New()
	log := []conversation.Utterance{{Text: "hello", IsUser: false}}
	a.Save(id, log)

	got, ok := a.Get(id)
	assert.True(t, ok)
	assert.Equal(t, log, got)
}

func TestArchive_EmptyTranscriptNotSaved(t *testing.T) {
	a, err := conversation.NewArchive(4)
	require.NoError(t, err)

	id := uuid.New()
	a.Save(id, nil)

	_, ok := a.Get(id)
	assert.False(t, ok)
	assert.Empty(t, a.Sessions())
}

func TestArchive_EvictsOldest(t *testing.T) {
	a, err := conversation.NewArchive(2)
	require.NoError(t, err)

	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	log := []conversation.Utterance{{Text: "x", IsUser: true}}

	a.Save(first, log)
	a.Save(second, log)
	a.Save(third, log)

	_, ok := a.Get(first)
	assert.False(t, ok, "oldest session should have been evicted")
	assert.Len(t, a.Sessions(), 2)
}
