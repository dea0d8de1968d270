package session

import (
	"sync"
	"sync/atomic"

	"github.com/beamapp/beam/internal/video"
)

// FrameSink is the display-layer binding. Display is only ever called from
// the renderer's single goroutine; Flush resets a failed layer and must also
// run before the sink's view leaves the UI hierarchy.
type FrameSink interface {
	Display(f video.DecodedFrame) error
	Flush()
}

// Renderer serializes frame delivery onto one goroutine, the session's
// stand-in for the UI thread. Enqueue may be called from any goroutine and
// never blocks; when the sink lags, the oldest queued frame is dropped.
type Renderer struct {
	sink  FrameSink
	queue chan video.DecodedFrame

	enqueued atomic.Uint64
	rendered atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRenderer starts the render goroutine.
func NewRenderer(sink FrameSink) *Renderer {
	r := &Renderer{
		sink:   sink,
		queue:  make(chan video.DecodedFrame, 8),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Enqueue posts one decoded frame for display.
func (r *Renderer) Enqueue(f video.DecodedFrame) {
	r.enqueued.Add(1)
	select {
	case <-r.stopCh:
		return
	case r.queue <- f:
		return
	default:
	}
	// Queue full: drop the oldest frame, keep the freshest.
	select {
	case <-r.queue:
	default:
	}
	select {
	case r.queue <- f:
	default:
	}
}

// Rendered returns how many frames reached the sink.
func (r *Renderer) Rendered() uint64 {
	return r.rendered.Load()
}

// Stop waits for the render goroutine to exit, discarding frames still
// queued, then flushes the sink. The flush must complete before the sink's
// view is dropped; pending frames crash the compositor otherwise.
func (r *Renderer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.sink.Flush()
}

func (r *Renderer) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case f := <-r.queue:
			if err := r.sink.Display(f); err != nil {
				// Failed layer: flush it and let the next enqueue proceed.
				r.sink.Flush()
				continue
			}
			r.rendered.Add(1)
		}
	}
}
