package session

import (
	"fmt"
	"log"
	"net"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/control"
	"github.com/beamapp/beam/internal/input"
	"github.com/beamapp/beam/internal/transport"
	"github.com/beamapp/beam/internal/video"
)

// Adopt wraps an inbound control connection handed over by discovery. The
// receiver pipeline comes up when the first beam_offer arrives; the session
// replies beam_accept with its chosen media ports.
func (s *Session) Adopt(conn net.Conn) error {
	if s.role != RoleReceiver {
		return fmt.Errorf("session: Adopt on a %s session", s.role)
	}
	if s.State() != StateIdle {
		return fmt.Errorf("session: Adopt in state %s", s.State())
	}

	ch := control.Adopt(conn, control.Config{
		HeartbeatInterval: s.opts.HeartbeatInterval,
		HeartbeatTimeout:  s.opts.HeartbeatTimeout,
	})

	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	ch.Start(s.handleReceiverMessage, s.onDisconnect)
	log.Printf("[INFO] session %s: adopted connection from %s", shortID(s.id), ch.RemoteHost())
	return nil
}

func (s *Session) handleReceiverMessage(m control.Message) {
	switch m.Type {
	case control.TypeBeamOffer:
		if s.State() != StateIdle {
			return
		}
		videoPort, audioPort, err := s.buildReceiverPipeline(m)
		if err != nil {
			s.fail(fmt.Sprintf("build receiver pipeline: %v", err))
			go s.Stop()
			return
		}
		s.setState(StateActive)
		s.ch.Send(control.Message{
			Type:      control.TypeBeamAccept,
			VideoPort: videoPort,
			AudioPort: audioPort,
		})
		log.Printf("[INFO] session %s: accepted %q from %s (video :%d, audio :%d)",
			shortID(s.id), m.WindowTitle, m.SenderName, videoPort, audioPort)

	case control.TypeCursorState:
		if m.Visible == nil {
			return
		}
		s.mu.Lock()
		capture := s.capture
		s.mu.Unlock()
		if capture != nil {
			capture.SetRemoteCursorVisible(*m.Visible)
		}

	case control.TypeBeamEnd:
		go s.Stop()
	}
}

// buildReceiverPipeline stands up decode, render, playback, and input
// capture, and returns the system-chosen UDP ports for beam_accept.
func (s *Session) buildReceiverPipeline(offer control.Message) (videoPort, audioPort int, err error) {
	videoRecv, err := transport.ListenReceiver(s.opts.ReassemblyGCWindow)
	if err != nil {
		return 0, 0, err
	}

	renderer := NewRenderer(s.bind.Sink)
	decoder := video.NewDecoder(s.bind.DecoderBinding, renderer.Enqueue, func() {
		// A slice referenced a frame we never got: ask for a fresh IDR.
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()
		if ch != nil {
			ch.Send(control.Message{Type: control.TypeKeyframeRequest})
		}
	})

	s.pumps.Go(func() error {
		for nal := range videoRecv.NALs() {
			decoder.Submit(nal)
		}
		return nil
	})

	// Audio leg.
	var audioRecv *transport.Receiver
	var audioDec *audio.Decoder
	var player *audio.Player
	if offer.HasAudio {
		audioRecv, audioDec, player, err = s.buildAudioReceiver()
		if err != nil {
			log.Printf("[WARN] session %s: audio receive unavailable: %v", shortID(s.id), err)
			audioRecv = nil
		}
	}

	// Input capture over the display surface; events go straight onto the
	// control channel.
	capture := input.NewCapture(float64(offer.Width), float64(offer.Height), func(ev control.Event) {
		s.mu.Lock()
		ch := s.ch
		s.mu.Unlock()
		if ch != nil {
			ch.Send(control.InputMessage(ev))
		}
	}, s.bind.OnCursorCapture)

	s.mu.Lock()
	if s.stopping {
		// Stop raced the build: tear the fresh components down here, since
		// the stop path has already taken its snapshot.
		s.mu.Unlock()
		videoRecv.Stop()
		if audioRecv != nil {
			audioRecv.Stop()
		}
		decoder.Close()
		if audioDec != nil {
			audioDec.Close()
		}
		if player != nil {
			player.Stop()
		}
		renderer.Stop()
		return 0, 0, fmt.Errorf("session stopping")
	}
	s.videoRecv = videoRecv
	s.renderer = renderer
	s.decoder = decoder
	s.audioRecv = audioRecv
	s.audioDec = audioDec
	s.player = player
	s.capture = capture
	s.mu.Unlock()

	audioPort = 0
	if audioRecv != nil {
		audioPort = audioRecv.Port()
	}
	return videoRecv.Port(), audioPort, nil
}

func (s *Session) buildAudioReceiver() (*transport.Receiver, *audio.Decoder, *audio.Player, error) {
	const channels = 2

	codec, err := s.bind.NewAudioCodec(channels)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := s.bind.NewPlaybackEngine(channels)
	if err != nil {
		codec.Close()
		return nil, nil, nil, err
	}
	player := audio.NewPlayer(engine, channels)
	dec := audio.NewDecoder(codec, player.Schedule)

	recv, err := transport.ListenReceiver(s.opts.ReassemblyGCWindow)
	if err != nil {
		player.Stop()
		codec.Close()
		return nil, nil, nil, err
	}

	s.pumps.Go(func() error {
		for nal := range recv.NALs() {
			dec.Submit(nal.Data)
		}
		return nil
	})
	return recv, dec, player, nil
}

// Capture exposes the receiver's input-capture surface so the shell can feed
// it local events.
func (s *Session) Capture() *input.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}
