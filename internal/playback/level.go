package playback

import (
	"math"
	"time"
)

const (
	// levelWindow is the stretch of played audio summarized by one level
	levelWindow = 40 * time.Millisecond

	levelFloorDB = -60.0
	// levelRelease is the share of the previous level kept when the signal falls
	levelRelease = 0.6
)

// LevelProcessor turns played PCM into a loudness level in [0,1], one value
// per window of audio time. Levels map RMS from levelFloorDB up to full scale.
type LevelProcessor struct {
	windowSamples int
	sumSquares    float64
	samples       int
	level         float64
	LevelChan     chan float64
}

func NewLevelProcessor() *LevelProcessor {
	lp := &LevelProcessor{LevelChan: make(chan float64, 16)}
	lp.SetSampleRate(DefaultSampleRate)
	return lp
}

// SetSampleRate sizes the level window for a new stream and drops any
// partial window left from the previous one.
func (lp *LevelProcessor) SetSampleRate(rate int) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	lp.windowSamples = int(float64(rate) * levelWindow.Seconds())
	if lp.windowSamples < 1 {
		lp.windowSamples = 1
	}
	lp.sumSquares = 0
	lp.samples = 0
	lp.level = 0
}

// Process takes a PCM16 mono chunk as it is written to the device. Each
// completed window emits a level; levels are dropped when nobody is reading.
func (lp *LevelProcessor) Process(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i])|int16(pcm[i+1])<<8) / 32768.0
		lp.sumSquares += s * s
		lp.samples++
		if lp.samples >= lp.windowSamples {
			lp.emit()
		}
	}
}

func (lp *LevelProcessor) emit() {
	rms := math.Sqrt(lp.sumSquares / float64(lp.samples))
	lp.sumSquares = 0
	lp.samples = 0

	level := 0.0
	if rms > 0 {
		level = (20*math.Log10(rms) - levelFloorDB) / -levelFloorDB
		level = math.Max(0, math.Min(level, 1))
	}
	// fast attack, slow release
	lp.level = math.Max(level, lp.level*levelRelease)

	select {
	case lp.LevelChan <- lp.level:
	default:
	}
}
