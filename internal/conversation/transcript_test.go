package conversation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linguakid/linguakid/internal/conversation"
)

func TestTranscript_Append(t *testing.T) {
	type fragment struct {
		text   string
		isUser bool
	}

	tests := map[string]struct {
		fragments []fragment
		want      []conversation.Utterance
	}{
		"same speaker run collapses, speaker change splits": {
			fragments: []fragment{
				{"xin ", true},
				{"chào", true},
				{"ok", false},
			},
			want: []conversation.Utterance{
				{Text: "xin chào", IsUser: true},
				{Text: "ok", IsUser: false},
			},
		},
		"single fragment": {
			fragments: []fragment{{"hello", false}},
			want:      []conversation.Utterance{{Text: "hello", IsUser: false}},
		},
		"alternating speakers never merge": {
			fragments: []fragment{
				{"a", true},
				{"b", false},
				{"c", true},
			},
			want: []conversation.Utterance{
				{Text: "a", IsUser: true},
				{Text: "b", IsUser: false},
				{Text: "c", IsUser: true},
			},
		},
		"model run extends in place": {
			fragments: []fragment{
				{"good ", false},
				{"morning, ", false},
				{"class", false},
			},
			want: []conversation.Utterance{
				{Text: "good morning, class", IsUser: false},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tr := conversation.NewTranscript()
			for _, f := range tc.fragments {
				tr.Append(f.text, f.isUser)
			}
			assert.Equal(t, tc.want, tr.Utterances())
		})
	}
}

func TestTranscript_AppendReturnsMergedUtterance(t *testing.T) {
	tr := conversation.NewTranscript()

	tr.Append("xin ", true)
	got := tr.Append("chào", true)

	assert.Equal(t, conversation.Utterance{Text: "xin chào", IsUser: true}, got)
}

func TestTranscript_Reset(t *testing.T) {
	tr := conversation.NewTranscript()
	tr.Append("anything", true)

	tr.Reset()

	assert.Empty(t, tr.Utterances())

	// A fresh fragment after reset starts a new log.
	tr.Append("again", false)
	assert.Equal(t, []conversation.Utterance{{Text: "again", IsUser: false}}, tr.Utterances())
}

func TestTranscript_UtterancesReturnsCopy(t *testing.T) {
	tr := conversation.NewTranscript()
	tr.Append("original", true)

	out := tr.Utterances()
	out[0].Text = "mutated"

	assert.Equal(t, "original", tr.Utterances()[0].Text)
}
