// Package lexicon holds the keyword heuristics shared by perception,
// memory retrieval and the inner dialogue. No model calls.
package lexicon

import (
	"strings"
	"unicode"
)

// #region stopwords
// stopwords contains common English words excluded from topic matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true, "tell": true, "just": true, "there": true, "here": true,
}

// Tokenize splits text into unique lowercase non-stopword tokens, in order
// of first appearance.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// IsStopword reports whether w is excluded from topic matching.
func IsStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// SharedKeywords returns the count of tokens present in both slices.
func SharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// Overlap is the Jaccard similarity of two token sets, in [0,1].
func Overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := SharedKeywords(a, b)
	union := len(a) + len(b) - shared
	if union <= 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
// #endregion stopwords

// #region command-detection
var commandPrefixes = []string{
	"list ", "read ", "write ", "search for ", "show ", "open ",
	"create ", "delete ", "remove ", "save ", "send ", "play ",
	"turn on ", "turn off ", "set ", "remind me", "schedule ",
}

var imperatives = map[string]bool{
	"list": true, "read": true, "show": true, "run": true,
	"write": true, "save": true, "stop": true, "start": true,
	"help": true, "clear": true, "reset": true, "quit": true,
	"exit": true, "wait": true, "go": true, "look": true,
}

// IsDirectCommand reports whether text is an instruction to act rather than
// something to discuss.
func IsDirectCommand(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, p := range commandPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}

	// Short imperative phrases (1-3 words, no question mark)
	if strings.Contains(lower, "?") {
		return false
	}
	words := strings.Fields(lower)
	if len(words) >= 1 && len(words) <= 3 && imperatives[strings.Trim(words[0], ".!,")] {
		return true
	}
	return false
}
// #endregion command-detection

// #region word-lists
var recallPhrases = []string{
	"remember", "recall", "last time", "earlier you", "you said",
	"did i tell you", "what did i", "what was the", "before, you",
	"do you know what i", "remind me what",
}

var questionPrefixes = []string{
	"who ", "what ", "where ", "when ", "why ", "how ", "which ",
	"is ", "are ", "can ", "could ", "would ", "should ", "do ", "does ", "did ",
}

// Positive and negative lexicon for appraisal.
var positiveWords = map[string]float64{
	"good": 0.5, "great": 0.7, "happy": 0.7, "love": 0.8, "thanks": 0.5,
	"thank": 0.5, "glad": 0.6, "nice": 0.4, "wonderful": 0.8, "calm": 0.3,
	"safe": 0.4, "excited": 0.6, "fun": 0.5, "beautiful": 0.6, "well": 0.2,
	"hope": 0.4, "proud": 0.6, "grateful": 0.7, "success": 0.6, "win": 0.5,
}

var negativeWords = map[string]float64{
	"bad": 0.5, "terrible": 0.8, "awful": 0.8, "sad": 0.6, "hate": 0.8,
	"angry": 0.7, "afraid": 0.7, "scared": 0.7, "hurt": 0.6, "fail": 0.6,
	"failed": 0.6, "broken": 0.5, "worst": 0.9, "lost": 0.5, "alone": 0.5,
	"danger": 0.7, "fire": 0.6, "help": 0.3, "emergency": 0.8, "pain": 0.7,
	"anxious": 0.6, "worried": 0.5, "crash": 0.6, "wrong": 0.4, "problem": 0.4,
}

var possibilityWords = []string{
	"maybe", "perhaps", "might", "could", "what if", "imagine",
	"wonder", "possibly", "alternatively", "suppose", "idea",
}

var hedgeWords = []string{
	"perhaps", "maybe", "might", "it seems", "likely", "possibly",
	"i think", "probably", "could be",
}

var absolutistWords = []string{
	"always", "never", "everyone", "nobody", "everything", "nothing",
	"worst", "completely", "totally", "impossible", "ruined", "disaster",
}

var empathyWords = []string{
	"understand", "sounds", "feel", "sorry", "hear you", "makes sense",
	"together", "with you", "care", "appreciate", "thank",
}

var hostilityWords = []string{
	"stupid", "idiot", "shut up", "hate you", "worthless", "pathetic",
	"your fault", "deserve",
}

var contradictionPairs = [][2]string{
	{"always", "never"},
	{"everything", "nothing"},
	{"yes", "no"},
	{"safe", "dangerous"},
}
// #endregion word-lists

// #region detectors
// IsRecall reports whether text asks to bring back something from memory.
func IsRecall(text string) bool {
	return containsAny(strings.ToLower(text), recallPhrases)
}

// IsQuestion reports whether text is phrased as a question.
func IsQuestion(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(lower, "?") {
		return true
	}
	for _, p := range questionPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Sentiment scores text in [-1,1] from the positive/negative lexicon.
func Sentiment(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var pos, neg float64
	for _, w := range words {
		pos += positiveWords[w]
		neg += negativeWords[w]
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	score := (pos - neg) / total
	// dampen single-word evidence
	confidence := total / (total + 0.5)
	return score * confidence
}

// Possibilities returns the possibility markers present in text.
func Possibilities(text string) []string {
	return matches(strings.ToLower(text), possibilityWords)
}

// HedgeCount counts hedging expressions in text.
func HedgeCount(text string) int {
	return len(matches(strings.ToLower(text), hedgeWords))
}

// AbsolutistCount counts absolutist terms in text.
func AbsolutistCount(text string) int {
	return countWords(strings.ToLower(text), absolutistWords)
}

// EmpathyCount counts empathic expressions in text.
func EmpathyCount(text string) int {
	return len(matches(strings.ToLower(text), empathyWords))
}

// HostilityCount counts hostile expressions in text.
func HostilityCount(text string) int {
	return len(matches(strings.ToLower(text), hostilityWords))
}

// Contradictions counts opposed absolutist pairs that both appear in text.
func Contradictions(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, p := range contradictionPairs {
		if hasWord(lower, p[0]) && hasWord(lower, p[1]) {
			n++
		}
	}
	return n
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func matches(lower string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if strings.Contains(p, " ") {
			if strings.Contains(lower, p) {
				out = append(out, p)
			}
			continue
		}
		if hasWord(lower, p) {
			out = append(out, p)
		}
	}
	return out
}

func countWords(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if hasWord(lower, w) {
			n++
		}
	}
	return n
}

func hasWord(lower, w string) bool {
	for _, f := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if f == w {
			return true
		}
	}
	return false
}
// #endregion detectors
