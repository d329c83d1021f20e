package timing

import (
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultWordsPerMinute is the speaking rate used when none is given.
const DefaultWordsPerMinute = 150

const (
	shortWordFactor   = 0.8
	longWordFactor    = 1.2
	punctuationFactor = 0.5
	punctuationPause  = 0.2
	punctuationMarks  = ".,!?;"
)

var (
	markupPattern = regexp.MustCompile(`<[^<]+?>`)
	tokenPattern  = regexp.MustCompile(`\b[\w']+\b|[.,!?;]`)
)

// Estimate produces an approximate schedule for text when the vendor supplies
// no timing data. The result is deterministic: the same word always receives
// the same jitter.
func Estimate(text string, wordsPerMinute int) []WordTiming {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}

	text = markupPattern.ReplaceAllString(text, "")
	tokens := tokenPattern.FindAllString(text, -1)

	base := 60.0 / float64(wordsPerMinute)
	timings := make([]WordTiming, 0, len(tokens))
	current := 0.0

	for i, token := range tokens {
		var duration float64
		switch n := len(token); {
		case n <= 3:
			duration = base * shortWordFactor
		case n >= 8:
			duration = base * longWordFactor
		default:
			duration = base
		}

		if isPunctuation(token) {
			duration = base * punctuationFactor
			if i > 0 {
				timings[len(timings)-1].End += punctuationPause
				current += punctuationPause
			}
		}

		duration *= 1 + jitter(token)

		end := current + duration
		timings = append(timings, WordTiming{Start: current, End: end, Word: token})
		current = end
	}

	return timings
}

func isPunctuation(token string) bool {
	return len(token) == 1 && strings.Contains(punctuationMarks, token)
}

// jitter maps a word to a stable variation in [-0.10, +0.09].
func jitter(word string) float64 {
	h := fnv.New32a()
	h.Write([]byte(word))
	return float64(int(h.Sum32()%20)-10) / 100
}
