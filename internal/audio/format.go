// Package audio holds the fixed PCM format, capture sources, playback sinks
// and the bounded frame queue between the network and the sink.
package audio

import (
	"context"
	"time"
)

const (
	SampleRate     = 44100
	Channels       = 1
	BytesPerSample = 2 // s16le
	FrameSamples   = 1024
	FrameBytes     = FrameSamples * Channels * BytesPerSample
)

// FrameDuration is the wall time covered by one frame.
const FrameDuration = time.Duration(FrameSamples) * time.Second / SampleRate

// Source produces capture frames until ctx is cancelled. emit must not
// block; the frame passed to it is owned by the callee.
type Source interface {
	Run(ctx context.Context, emit func([]byte)) error
}

// Sink consumes frames for playback.
type Sink interface {
	Write(frame []byte) error
	Close() error
}
