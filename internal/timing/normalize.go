package timing

import "fmt"

// Normalize canonicalizes vendor timings to (start, end, word) form.
//
// A pair takes its end from the next entry's start, or from totalDuration
// when it is the last entry. Triples are passed through unchanged.
func Normalize(raw []RawTiming, totalDuration float64) ([]WordTiming, error) {
	out := make([]WordTiming, 0, len(raw))

	for i, entry := range raw {
		switch len(entry.Times) {
		case 1:
			start := entry.Times[0]
			end := totalDuration
			if i < len(raw)-1 {
				next := raw[i+1]
				if len(next.Times) == 0 {
					return nil, fmt.Errorf("entry %d (%q): %w", i+1, next.Word, ErrInvalidTimingFormat)
				}
				end = next.Times[0]
			}
			out = append(out, WordTiming{Start: start, End: end, Word: entry.Word})
		case 2:
			out = append(out, WordTiming{Start: entry.Times[0], End: entry.Times[1], Word: entry.Word})
		default:
			return nil, fmt.Errorf("entry %d (%q) has %d elements: %w", i, entry.Word, len(entry.Times)+1, ErrInvalidTimingFormat)
		}
	}

	return out, nil
}
