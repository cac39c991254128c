package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestFrameFormat(t *testing.T) {
	if FrameBytes != 2048 {
		t.Errorf("FrameBytes = %d, want 2048", FrameBytes)
	}
	if FrameDuration < 23*time.Millisecond || FrameDuration > 24*time.Millisecond {
		t.Errorf("FrameDuration = %s", FrameDuration)
	}
}

func TestToneSourceNext(t *testing.T) {
	src := NewToneSource(440)
	f := src.Next()
	if len(f) != FrameBytes {
		t.Fatalf("frame size = %d", len(f))
	}
	if v := int16(binary.LittleEndian.Uint16(f[0:])); v != 0 {
		t.Errorf("first sample = %d, want 0", v)
	}
	var peak int16
	for i := 0; i < FrameSamples; i++ {
		v := int16(binary.LittleEndian.Uint16(f[i*2:]))
		if v > peak {
			peak = v
		}
	}
	amp := 0.2
	limit := int16(amp * 32767)
	if peak == 0 || peak > limit {
		t.Errorf("peak = %d, want within (0, %d]", peak, limit)
	}
	if bytes.Equal(f, src.Next()) {
		t.Error("consecutive frames must continue the phase")
	}
}

func TestSourcesStopOnCancel(t *testing.T) {
	sources := map[string]Source{
		"tone":    &ToneSource{Freq: 440, Amplitude: 0.1, Interval: time.Millisecond},
		"silence": SilenceSource{Interval: time.Millisecond},
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			frames := make(chan []byte, 64)
			done := make(chan error, 1)
			go func() {
				done <- src.Run(ctx, func(b []byte) {
					select {
					case frames <- b:
					default:
					}
				})
			}()

			select {
			case f := <-frames:
				if len(f) != FrameBytes {
					t.Errorf("frame size = %d", len(f))
				}
			case <-time.After(time.Second):
				t.Fatal("no frame emitted")
			}
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run returned %v", err)
				}
			case <-time.After(time.Second):
				t.Fatal("source did not stop")
			}
		})
	}
}

func TestFrameQueue(t *testing.T) {
	q := NewFrameQueue(2)
	if !q.Push([]byte{1}) || !q.Push([]byte{2}) {
		t.Fatal("push into empty queue failed")
	}
	if q.Push([]byte{3}) {
		t.Error("push into full queue must drop")
	}
	if q.Dropped() != 1 || q.Len() != 2 {
		t.Errorf("dropped = %d len = %d", q.Dropped(), q.Len())
	}

	ctx := context.Background()
	for _, want := range []byte{1, 2} {
		f, err := q.Pop(ctx)
		if err != nil || f[0] != want {
			t.Errorf("pop = %v, %v; want %d", f, err, want)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("pop on empty queue = %v", err)
	}
}

func TestFrameQueuePopWakes(t *testing.T) {
	q := NewFrameQueue(1)
	got := make(chan []byte, 1)
	go func() {
		f, _ := q.Pop(context.Background())
		got <- f
	}()
	time.Sleep(5 * time.Millisecond)
	q.Push([]byte{9})
	select {
	case f := <-got:
		if f[0] != 9 {
			t.Errorf("popped %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error { c.closed = true; return nil }

func TestWriterSink(t *testing.T) {
	var w closeRecorder
	s := NewWriterSink(&w)
	_ = s.Write([]byte{1, 2})
	_ = s.Write([]byte{3})
	if !bytes.Equal(w.Bytes(), []byte{1, 2, 3}) {
		t.Errorf("written = %v", w.Bytes())
	}
	if err := s.Close(); err != nil || !w.closed {
		t.Errorf("close = %v closed=%v", err, w.closed)
	}
	if err := (DiscardSink{}).Write([]byte{1}); err != nil {
		t.Error(err)
	}
}
