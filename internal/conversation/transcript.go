package conversation

import "sync"

// Transcript holds the ordered utterance log for one session.
// Consecutive fragments from the same speaker extend the most recent
// utterance in place; a speaker change starts a new one. Streaming
// transcription APIs emit partial text repeatedly for a single spoken
// turn, so fragments arrive with their own spacing already included.
type Transcript struct {
	mu         sync.Mutex
	utterances []Utterance
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append merges the fragment into the log and returns the utterance it
// ended up in.
func (t *Transcript) Append(text string, isUser bool) Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.utterances); n > 0 && t.utterances[n-1].IsUser == isUser {
		t.utterances[n-1].Text += text

		return t.utterances[n-1]
	}

	u := Utterance{Text: text, IsUser: isUser}
	t.utterances = append(t.utterances, u)

	return u
}

// Utterances returns a copy of the log in order.
func (t *Transcript) Utterances() []Utterance {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Utterance, len(t.utterances))
	copy(out, t.utterances)

	return out
}

// Reset clears the log for a new session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.utterances = nil
}
