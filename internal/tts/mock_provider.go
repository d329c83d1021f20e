package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/willwade/tts-wrapper-sub000/internal/timing"
)

const mockSampleRate = 16000

var mockPitches = map[string]float64{
	"beep": 880,
	"hum":  220,
	"tone": 440,
}

// MockTTSProvider renders a sine tone as long as the text would take to say
// and reports (start, word) timings for it. It needs no network or device.
type MockTTSProvider struct {
	mu      sync.Mutex
	voice   string
	wpm     int
	volume  float64
	timings []timing.RawTiming
}

func NewMockTTSProvider() *MockTTSProvider {
	return &MockTTSProvider{
		voice:  "tone",
		wpm:    timing.DefaultWordsPerMinute,
		volume: 0.3,
	}
}

func (p *MockTTSProvider) SynthToBytes(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	freq := mockPitches[p.voice]
	wpm := p.wpm
	volume := p.volume
	p.mu.Unlock()

	estimate := timing.Estimate(StripSSML(text), wpm)
	duration := timing.LastEnd(estimate)

	raw := make([]timing.RawTiming, len(estimate))
	for i, w := range estimate {
		raw[i] = timing.Pair(w.Start, w.Word)
	}

	samples := int(duration * mockSampleRate)
	pcm := make([]byte, samples*2)
	amplitude := volume * math.MaxInt16
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/mockSampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}

	p.mu.Lock()
	p.timings = raw
	p.mu.Unlock()
	return pcm, nil
}

func (p *MockTTSProvider) WordTimings() []timing.RawTiming {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]timing.RawTiming(nil), p.timings...)
}

func (p *MockTTSProvider) GetVoices(context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "beep", Name: "Beep", Gender: "Neutral", LanguageCodes: []string{"en"}},
		{ID: "hum", Name: "Hum", Gender: "Neutral", LanguageCodes: []string{"en"}},
		{ID: "tone", Name: "Tone", Gender: "Neutral", LanguageCodes: []string{"en"}},
	}, nil
}

func (p *MockTTSProvider) SetVoice(voiceID, lang string) error {
	if _, ok := mockPitches[voiceID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voiceID)
	}
	p.mu.Lock()
	p.voice = voiceID
	p.mu.Unlock()
	return nil
}

// SetProperty understands rate as words per minute and volume as 0-100.
func (p *MockTTSProvider) SetProperty(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "rate":
		if wpm, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && wpm > 0 {
			p.wpm = wpm
		}
	case "volume":
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && v >= 0 && v <= 100 {
			p.volume = v / 100
		}
	}
}

func (p *MockTTSProvider) SampleRate() int {
	return mockSampleRate
}

func (p *MockTTSProvider) Name() string {
	return "Mock"
}
