package session

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/config"
	"github.com/beamapp/beam/internal/control"
	"github.com/beamapp/beam/internal/input"
	"github.com/beamapp/beam/internal/transport"
	"github.com/beamapp/beam/internal/video"
	"github.com/beamapp/beam/internal/window"
)

// Session is one running beam, on either side. It is the root of the
// component graph: leaves talk back only through callbacks installed at
// wiring time, and teardown detaches those callbacks before anything is
// dropped.
type Session struct {
	id    string
	role  Role
	opts  config.Options
	bind  Bindings
	local string

	state atomic.Int32

	errMu  sync.Mutex
	errStr string

	mu sync.Mutex
	ch *control.Channel

	// sender components
	target      window.Handle
	encoder     *video.Encoder
	capturer    *video.Capturer
	videoSender *transport.Sender
	audioSender *transport.Sender
	audioEnc    *audio.Encoder
	audioCancel func()
	hider       *window.Hider
	hidden      window.AXWindow
	injector    *input.Injector

	// receiver components
	videoRecv *transport.Receiver
	audioRecv *transport.Receiver
	decoder   *video.Decoder
	audioDec  *audio.Decoder
	player    *audio.Player
	renderer  *Renderer
	capture   *input.Capture

	framesCaptured atomic.Uint64

	stopping bool

	pumps    errgroup.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an idle session for the given role.
func New(role Role, opts config.Options, bind Bindings, localName string) *Session {
	return &Session{
		id:     uuid.New().String(),
		role:   role,
		opts:   opts,
		bind:   bind,
		local:  localName,
		stopCh: make(chan struct{}),
	}
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// Role returns which side this session plays.
func (s *Session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Err returns the one-shot error string, empty while healthy.
func (s *Session) Err() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.errStr
}

// fail records the first error; later failures are logged only.
func (s *Session) fail(msg string) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errStr == "" {
		s.errStr = msg
	}
	log.Printf("[WARN] session %s: %s", shortID(s.id), msg)
}

// Stats snapshots pipeline throughput.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	renderer, audioEnc, player := s.renderer, s.audioEnc, s.player
	s.mu.Unlock()

	st := Stats{FramesCaptured: s.framesCaptured.Load()}
	if renderer != nil {
		st.FramesRendered = renderer.Rendered()
	}
	if audioEnc != nil {
		st.AudioPackets = uint64(audioEnc.Packets())
	}
	if player != nil {
		st.AudioBuffers = player.Scheduled()
	}
	return st
}

// Stop tears the session down. Idempotent; safe to call immediately after
// start. Teardown order matters: channel callbacks are cleared before
// beam_end goes out, capturers stop before the things they feed, decoders
// drain their async completions before they are dropped, the audio engine
// stops before the player is dropped, and the renderer flushes before its
// sink can be removed.
func (s *Session) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Session) stop() {
	s.setState(StateStopping)

	s.mu.Lock()
	s.stopping = true
	ch := s.ch
	capturer, audioCancel := s.capturer, s.audioCancel
	videoRecv, audioRecv := s.videoRecv, s.audioRecv
	decoder, player, renderer := s.decoder, s.player, s.renderer
	audioEnc, audioDec := s.audioEnc, s.audioDec
	encoder, videoSender, audioSender := s.encoder, s.videoSender, s.audioSender
	hider, tap := s.hider, s.bind.AudioTap
	s.injector = nil
	s.mu.Unlock()

	// Reentrancy guard: no callback may re-enter a half-stopped session.
	if ch != nil {
		ch.ClearHandlers()
		ch.Send(control.Message{Type: control.TypeBeamEnd})
	}
	close(s.stopCh)

	// Capturers first: nothing may feed the pipelines while they drain.
	if capturer != nil {
		capturer.Stop()
	}
	if audioCancel != nil {
		audioCancel()
	}

	// Receive loops unblock and close their NAL streams; the pump
	// goroutines drain behind them.
	if videoRecv != nil {
		videoRecv.Stop()
	}
	if audioRecv != nil {
		audioRecv.Stop()
	}
	_ = s.pumps.Wait()

	// Decoders drain their async completions before release.
	if decoder != nil {
		decoder.Close()
	}
	if audioDec != nil {
		audioDec.Close()
	}

	// Engine stop strictly before the player is dropped.
	if player != nil {
		player.Stop()
	}

	// Input detached (injector nilled above), mute tap released.
	if tap != nil {
		tap.Detach()
	}

	// Flush before the sink leaves the UI hierarchy.
	if renderer != nil {
		renderer.Stop()
	}

	if encoder != nil {
		encoder.Close()
	}
	if audioEnc != nil {
		audioEnc.Close()
	}
	if videoSender != nil {
		videoSender.Close()
	}
	if audioSender != nil {
		audioSender.Close()
	}

	if hider != nil {
		hider.RestoreAll()
	}

	if ch != nil {
		ch.Close()
	}

	s.setState(StateStopped)
	log.Printf("[INFO] session %s: stopped", shortID(s.id))
}

// onDisconnect handles channel death from the channel's own goroutine, so
// the teardown (which joins that goroutine) runs elsewhere.
func (s *Session) onDisconnect() {
	go s.Stop()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
