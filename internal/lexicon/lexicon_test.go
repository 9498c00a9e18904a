package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Can you tell me where the Kitchen fire is? The kitchen!")
	assert.Equal(t, []string{"kitchen", "fire"}, got)
	assert.Empty(t, Tokenize("is it you?"))
}

func TestOverlap(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, Overlap([]string{"a1", "b2"}, []string{"b2", "c3"}), 1e-9)
	assert.Zero(t, Overlap(nil, []string{"x"}))
	assert.Equal(t, 1, SharedKeywords([]string{"x", "y"}, []string{"y"}))
}

func TestIsDirectCommand(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"turn off the lights", true},
		{"stop", true},
		{"Help!", true},
		{"help me understand this?", false},
		{"the weather is nice", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDirectCommand(tt.in), tt.in)
	}
}

func TestDetectors(t *testing.T) {
	assert.True(t, IsRecall("Do you remember my sister's name?"))
	assert.False(t, IsRecall("what time is it"))

	assert.True(t, IsQuestion("what time is it"))
	assert.True(t, IsQuestion("really?"))
	assert.False(t, IsQuestion("the door is open"))

	assert.Greater(t, Sentiment("thanks, that was great"), 0.0)
	assert.Less(t, Sentiment("this is the worst, I am scared"), 0.0)
	assert.Zero(t, Sentiment("the table is wooden"))

	assert.Equal(t, []string{"maybe", "what if"}, Possibilities("maybe we go, what if it rains"))
	assert.Equal(t, 2, AbsolutistCount("it always fails and never works"))
	assert.Equal(t, 1, Contradictions("it always fails and never works"))
	assert.Equal(t, 1, HedgeCount("Perhaps that helps"))
	assert.Equal(t, 1, HostilityCount("that is stupid"))
	assert.GreaterOrEqual(t, EmpathyCount("I understand, that sounds hard"), 2)
}
