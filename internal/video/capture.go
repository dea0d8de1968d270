package video

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
)

// maxCaptureErrors is how many consecutive capture failures are tolerated
// before the source is declared gone (the target window disappeared).
const maxCaptureErrors = 10

// Source produces raw frames for the capture loop.
type Source interface {
	Capture() (*image.RGBA, error)
}

// RegionSource captures a fixed screen rectangle. It is the portable capture
// backend: the platform layer resolves a window handle to its bounding
// rectangle and a platform-native per-window source where available.
type RegionSource struct {
	Rect image.Rectangle
}

// Capture grabs the region's current pixels.
func (s RegionSource) Capture() (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(s.Rect)
	if err != nil {
		return nil, fmt.Errorf("video: capture region %v: %w", s.Rect, err)
	}
	return img, nil
}

// DisplaySource captures a whole display by index.
type DisplaySource struct {
	Index int
}

// Capture grabs the display's current pixels.
func (s DisplaySource) Capture() (*image.RGBA, error) {
	if s.Index < 0 || s.Index >= screenshot.NumActiveDisplays() {
		return nil, fmt.Errorf("video: no display %d", s.Index)
	}
	img, err := screenshot.CaptureDisplay(s.Index)
	if err != nil {
		return nil, fmt.Errorf("video: capture display %d: %w", s.Index, err)
	}
	return img, nil
}

// Capturer pulls frames from a Source at the target rate and stamps each
// with its presentation time relative to the loop start.
type Capturer struct {
	src     Source
	onFrame func(Frame)
	onGone  func(error)

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartCapture launches the capture loop on its own goroutine. onGone fires
// once after maxCaptureErrors consecutive failures, after which the loop
// exits.
func StartCapture(src Source, fps int, onFrame func(Frame), onGone func(error)) *Capturer {
	if fps <= 0 {
		fps = 30
	}
	c := &Capturer{
		src:      src,
		onFrame:  onFrame,
		onGone:   onGone,
		interval: time.Second / time.Duration(fps),
		stopCh:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (c *Capturer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Capturer) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	start := time.Now()
	errStreak := 0
	var lastErr error

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		}

		img, err := c.src.Capture()
		if err != nil {
			errStreak++
			lastErr = err
			if errStreak >= maxCaptureErrors {
				log.Printf("[WARN] video: capture source gone after %d failures: %v", errStreak, err)
				if c.onGone != nil {
					c.onGone(lastErr)
				}
				return
			}
			continue
		}
		errStreak = 0

		c.onFrame(Frame{Image: img, PTS: time.Since(start)})
	}
}
