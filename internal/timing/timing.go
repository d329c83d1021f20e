// Package timing produces per-word timing schedules for synthesized speech,
// either estimated from text or normalized from vendor-supplied boundaries.
package timing

import (
	"errors"
	"fmt"
)

// ErrInvalidTimingFormat is returned when a vendor timing entry is neither
// a (start, word) pair nor a (start, end, word) triple.
var ErrInvalidTimingFormat = errors.New("invalid timing format")

// WordTiming is a single word boundary in seconds from the start of the audio.
type WordTiming struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Word  string  `json:"word" yaml:"word"`
}

// Duration returns End - Start.
func (w WordTiming) Duration() float64 {
	return w.End - w.Start
}

func (w WordTiming) String() string {
	return fmt.Sprintf("%q [%.3fs-%.3fs]", w.Word, w.Start, w.End)
}

// RawTiming is a timing entry as handed over by a vendor adapter. Times holds
// either one value (start) or two values (start, end).
type RawTiming struct {
	Times []float64
	Word  string
}

// Pair builds a (start, word) entry whose end is inferred during normalization.
func Pair(start float64, word string) RawTiming {
	return RawTiming{Times: []float64{start}, Word: word}
}

// Triple builds a fully specified (start, end, word) entry.
func Triple(start, end float64, word string) RawTiming {
	return RawTiming{Times: []float64{start, end}, Word: word}
}

// FromWordTimings converts canonical timings back to raw triples.
func FromWordTimings(timings []WordTiming) []RawTiming {
	raw := make([]RawTiming, len(timings))
	for i, t := range timings {
		raw[i] = Triple(t.Start, t.End, t.Word)
	}
	return raw
}

// DurationOf returns the duration in seconds of a 16-bit mono PCM buffer.
func DurationOf(pcmLen int, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(pcmLen) / float64(2*sampleRate)
}

// LastEnd returns the end of the final entry, or 0 for an empty schedule.
func LastEnd(timings []WordTiming) float64 {
	if len(timings) == 0 {
		return 0
	}
	return timings[len(timings)-1].End
}
