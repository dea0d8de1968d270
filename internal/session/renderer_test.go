package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beamapp/beam/internal/video"
)

// flakySink fails the first Display call, then recovers.
type flakySink struct {
	mu      sync.Mutex
	fails   int
	shown   int
	flushes int
}

func (s *flakySink) Display(f video.DecodedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("layer failed")
	}
	s.shown++
	return nil
}

func (s *flakySink) Flush() {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func TestRendererDeliversFrames(t *testing.T) {
	sink := &CountingSink{}
	r := NewRenderer(sink)

	for i := 0; i < 10; i++ {
		r.Enqueue(video.DecodedFrame{PTS: time.Duration(i) * time.Second / 30})
		time.Sleep(time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for sink.Count() < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.Count() != 10 {
		t.Errorf("sink displayed %d frames, want 10", sink.Count())
	}
	r.Stop()
}

func TestRendererRecoversFromFailedSink(t *testing.T) {
	sink := &flakySink{fails: 1}
	r := NewRenderer(sink)

	r.Enqueue(video.DecodedFrame{})
	time.Sleep(50 * time.Millisecond)
	r.Enqueue(video.DecodedFrame{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		shown, flushes := sink.shown, sink.flushes
		sink.mu.Unlock()
		if shown == 1 && flushes >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	shown, flushes := sink.shown, sink.flushes
	sink.mu.Unlock()
	if flushes < 1 {
		t.Error("failed layer was not flushed")
	}
	if shown != 1 {
		t.Errorf("enqueue after failure displayed %d frames, want 1", shown)
	}
	r.Stop()
}

func TestRendererFlushesOnStop(t *testing.T) {
	sink := &flakySink{}
	r := NewRenderer(sink)
	r.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.flushes != 1 {
		t.Errorf("stop flushed %d times, want exactly 1 before the view drops", sink.flushes)
	}
}

func TestRendererEnqueueAfterStopIsSafe(t *testing.T) {
	r := NewRenderer(&CountingSink{})
	r.Stop()
	r.Enqueue(video.DecodedFrame{}) // must not panic or block
}
