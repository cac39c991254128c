package audio

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// ToneSource emits a sine wave paced at the frame rate.
type ToneSource struct {
	Freq      float64
	Amplitude float64 // 0..1
	Interval  time.Duration

	phase float64
}

func NewToneSource(freq float64) *ToneSource {
	return &ToneSource{Freq: freq, Amplitude: 0.2, Interval: FrameDuration}
}

// Next returns the next frame of the wave, continuing the phase.
func (t *ToneSource) Next() []byte {
	buf := make([]byte, FrameBytes)
	step := 2 * math.Pi * t.Freq / SampleRate
	amp := t.Amplitude * math.MaxInt16
	for i := 0; i < FrameSamples; i++ {
		v := int16(amp * math.Sin(t.phase))
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(v))
		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return buf
}

func (t *ToneSource) Run(ctx context.Context, emit func([]byte)) error {
	return pace(ctx, t.Interval, func() { emit(t.Next()) })
}

type SilenceSource struct {
	Interval time.Duration
}

func (s SilenceSource) Run(ctx context.Context, emit func([]byte)) error {
	return pace(ctx, s.Interval, func() { emit(make([]byte, FrameBytes)) })
}

func pace(ctx context.Context, interval time.Duration, tick func()) error {
	if interval <= 0 {
		interval = FrameDuration
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
