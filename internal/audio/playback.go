package audio

import (
	"encoding/binary"
	"log"
	"math"
	"sync"
	"sync/atomic"

	malgo "github.com/gen2brain/malgo"
)

// Engine is the playback binding. Buffers are scheduled in arrival order as
// per-channel planes (the engine's required layout); the engine queues them
// behind its own clock. Stop halts the engine before the owner drops it.
type Engine interface {
	Schedule(planes [][]float32)
	Stop()
}

// Player converts decoded interleaved PCM into the engine's non-interleaved
// layout and schedules it. There is no jitter buffer beyond the engine's own
// queue.
type Player struct {
	engine    Engine
	channels  int
	scheduled atomic.Uint64
}

// NewPlayer wraps a playback engine.
func NewPlayer(engine Engine, channels int) *Player {
	return &Player{engine: engine, channels: channels}
}

// Schedule enqueues one decoded buffer.
func (p *Player) Schedule(pcm []float32) {
	if len(pcm) == 0 {
		return
	}
	p.engine.Schedule(Deinterleave(pcm, p.channels))
	p.scheduled.Add(1)
}

// Scheduled returns how many buffers have been handed to the engine.
func (p *Player) Scheduled() uint64 {
	return p.scheduled.Load()
}

// Stop halts the engine. Must be called before the player is dropped.
func (p *Player) Stop() {
	p.engine.Stop()
}

// CountingEngine is a no-device Engine that only counts scheduled buffers.
// It backs tests and headless runs.
type CountingEngine struct {
	count atomic.Uint64
}

// Schedule counts the buffer and discards it.
func (e *CountingEngine) Schedule(planes [][]float32) {
	e.count.Add(1)
}

// Stop is a no-op.
func (e *CountingEngine) Stop() {}

// Count returns how many buffers were scheduled.
func (e *CountingEngine) Count() uint64 {
	return e.count.Load()
}

// MalgoEngine plays scheduled buffers on the default output device. The
// device callback pulls from a bounded queue; underruns play silence.
type MalgoEngine struct {
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	queue    chan [][]float32
	pending  []float32
	channels int
	stopOnce sync.Once
}

// NewMalgoEngine opens the default playback device at SampleRate.
func NewMalgoEngine(channels int) (*MalgoEngine, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[DEBUG] audio: malgo: %s", message)
	})
	if err != nil {
		return nil, err
	}

	e := &MalgoEngine{
		ctx:      mCtx,
		queue:    make(chan [][]float32, 256),
		channels: channels,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(SampleRate)

	dev, err := malgo.InitDevice(mCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			e.fill(pOutput, int(frameCount))
		},
	})
	if err != nil {
		mCtx.Uninit()
		return nil, err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		mCtx.Uninit()
		return nil, err
	}
	e.dev = dev
	return e, nil
}

// Schedule enqueues one buffer of per-channel planes. When the queue is
// full the oldest buffer is dropped so playback tracks the live edge.
func (e *MalgoEngine) Schedule(planes [][]float32) {
	select {
	case e.queue <- planes:
	default:
		select {
		case <-e.queue:
		default:
		}
		select {
		case e.queue <- planes:
		default:
		}
	}
}

// fill writes frameCount interleaved frames into the device buffer, pulling
// queued planes as needed and padding underruns with silence.
func (e *MalgoEngine) fill(pOutput []byte, frameCount int) {
	needed := frameCount * e.channels
	for len(e.pending) < needed {
		select {
		case planes := <-e.queue:
			e.pending = append(e.pending, interleave(planes)...)
		default:
			// Underrun: pad with silence.
			pad := make([]float32, needed-len(e.pending))
			e.pending = append(e.pending, pad...)
		}
	}

	for i := 0; i < needed && 4*i+3 < len(pOutput); i++ {
		binary.LittleEndian.PutUint32(pOutput[4*i:], math.Float32bits(e.pending[i]))
	}
	e.pending = e.pending[needed:]
}

// Stop halts and releases the device.
func (e *MalgoEngine) Stop() {
	e.stopOnce.Do(func() {
		_ = e.dev.Stop()
		e.dev.Uninit()
		e.ctx.Uninit()
	})
}

func interleave(planes [][]float32) []float32 {
	if len(planes) == 0 {
		return nil
	}
	frames := len(planes[0])
	out := make([]float32, 0, frames*len(planes))
	for i := 0; i < frames; i++ {
		for ch := range planes {
			out = append(out, planes[ch][i])
		}
	}
	return out
}
