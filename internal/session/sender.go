package session

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/control"
	"github.com/beamapp/beam/internal/input"
	"github.com/beamapp/beam/internal/media"
	"github.com/beamapp/beam/internal/registry"
	"github.com/beamapp/beam/internal/transport"
	"github.com/beamapp/beam/internal/video"
	"github.com/beamapp/beam/internal/window"
)

// cursorPollInterval is the 3 Hz cadence for the sender's cursor-visibility
// poll.
const cursorPollInterval = 333 * time.Millisecond

// Offer describes the window being beamed.
type Offer struct {
	Target   window.Handle
	Title    string
	BundleID string
	HasAudio bool
}

// StartBeam connects to the peer and offers the window. The pipeline comes
// up asynchronously when the peer's beam_accept arrives; the session is
// Active from then until Stop.
func (s *Session) StartBeam(peer registry.Peer, offer Offer) error {
	if s.role != RoleSender {
		return fmt.Errorf("session: StartBeam on a %s session", s.role)
	}
	if s.State() != StateIdle {
		return fmt.Errorf("session: StartBeam in state %s", s.State())
	}
	s.setState(StateConnecting)

	addr := net.JoinHostPort(peer.Host, fmt.Sprintf("%d", peer.Port))
	ch, err := control.Connect(addr, control.Config{
		HeartbeatInterval: s.opts.HeartbeatInterval,
		HeartbeatTimeout:  s.opts.HeartbeatTimeout,
	})
	if err != nil {
		s.fail(fmt.Sprintf("connect to %s: %v", peer.Name, err))
		s.setState(StateStopped)
		return err
	}

	s.mu.Lock()
	s.ch = ch
	s.target = offer.Target
	s.mu.Unlock()

	ch.Start(func(m control.Message) { s.handleSenderMessage(m, offer) }, s.onDisconnect)
	ch.Send(control.Message{
		Type:        control.TypeBeamOffer,
		SenderName:  s.local,
		WindowTitle: offer.Title,
		Width:       int(offer.Target.Frame.W),
		Height:      int(offer.Target.Frame.H),
		HasAudio:    offer.HasAudio,
		BundleID:    offer.BundleID,
	})
	log.Printf("[INFO] session %s: offered %q to %s", shortID(s.id), offer.Title, peer.Name)
	return nil
}

func (s *Session) handleSenderMessage(m control.Message, offer Offer) {
	switch m.Type {
	case control.TypeBeamAccept:
		if s.State() != StateConnecting {
			return
		}
		if err := s.buildSenderPipeline(offer, m.VideoPort, m.AudioPort); err != nil {
			s.fail(fmt.Sprintf("build sender pipeline: %v", err))
			go s.Stop()
			return
		}
		s.setState(StateActive)

	case control.TypeInput:
		if m.Event == nil {
			return
		}
		s.mu.Lock()
		inj := s.injector
		s.mu.Unlock()
		if inj != nil {
			inj.Deliver(*m.Event)
		}

	case control.TypeKeyframeRequest:
		s.mu.Lock()
		enc := s.encoder
		s.mu.Unlock()
		if enc != nil {
			enc.ForceKeyframe()
		}

	case control.TypeBeamEnd:
		go s.Stop()
	}
}

func (s *Session) buildSenderPipeline(offer Offer, videoPort, audioPort int) error {
	host := s.ch.RemoteHost()

	videoSender, err := transport.NewSender(host, videoPort)
	if err != nil {
		return err
	}

	encoder, err := video.NewEncoder(s.bind.EncoderBinding, video.EncoderConfig{
		Width:               int(offer.Target.Frame.W),
		Height:              int(offer.Target.Frame.H),
		FPS:                 s.opts.TargetFPS,
		Bitrate:             s.opts.VideoBitrate,
		MaxKeyframeInterval: s.opts.MaxKeyframeInterval,
	}, func(nal media.NAL) {
		videoSender.Send(nal)
	})
	if err != nil {
		// Hardware refusal is fatal to the session.
		videoSender.Close()
		return err
	}

	// Hide the window; a platform without the virtual display runs
	// unhidden.
	var hider *window.Hider
	var hidden window.AXWindow
	if s.bind.DisplayAPI != nil && s.bind.WindowFinder != nil {
		hider, err = window.NewHider(s.bind.DisplayAPI, s.bind.WindowFinder)
		if err != nil {
			log.Printf("[WARN] session %s: %v, continuing unhidden", shortID(s.id), err)
		} else if hidden, err = hider.Hide(offer.Target.PID, offer.Title); err != nil {
			log.Printf("[WARN] session %s: hide window: %v, continuing unhidden", shortID(s.id), err)
			hider.RestoreAll()
			hider, hidden = nil, nil
		}
	}

	// Input injection into the hidden window.
	var injector *input.Injector
	if s.bind.Poster != nil && s.bind.Accessibility != nil {
		frame := func() (window.Rect, bool) {
			if hider != nil && hidden != nil {
				return hider.Frame(hidden)
			}
			return offer.Target.Frame, true
		}
		injector = input.NewInjector(offer.Target.PID, frame, s.bind.Poster, s.bind.Accessibility)
	}

	src, err := s.bind.NewCaptureSource(offer.Target, s.opts.TargetFPS)
	if err != nil {
		videoSender.Close()
		encoder.Close()
		if hider != nil {
			hider.RestoreAll()
		}
		return err
	}
	capturer := video.StartCapture(src, s.opts.TargetFPS, func(f video.Frame) {
		s.framesCaptured.Add(1)
		encoder.Submit(f)
	}, func(err error) {
		// The target window disappeared mid-beam.
		s.fail(fmt.Sprintf("capture source gone: %v", err))
		go s.Stop()
	})

	// Audio leg.
	var audioSender *transport.Sender
	var audioEnc *audio.Encoder
	var audioCancel context.CancelFunc
	if offer.HasAudio && audioPort > 0 {
		audioSender, audioEnc, audioCancel, err = s.buildAudioSender(offer, host, audioPort)
		if err != nil {
			log.Printf("[WARN] session %s: audio pipeline unavailable: %v", shortID(s.id), err)
		}
	}

	s.mu.Lock()
	if s.stopping {
		// Stop raced the build: tear the fresh components down here, since
		// the stop path has already taken its snapshot.
		s.mu.Unlock()
		capturer.Stop()
		if audioCancel != nil {
			audioCancel()
		}
		encoder.Close()
		if audioEnc != nil {
			audioEnc.Close()
		}
		videoSender.Close()
		if audioSender != nil {
			audioSender.Close()
		}
		if hider != nil {
			hider.RestoreAll()
		}
		return fmt.Errorf("session stopping")
	}
	s.videoSender = videoSender
	s.encoder = encoder
	s.capturer = capturer
	s.hider = hider
	s.hidden = hidden
	s.injector = injector
	s.audioSender = audioSender
	s.audioEnc = audioEnc
	s.audioCancel = audioCancel
	s.mu.Unlock()

	if s.bind.Cursor != nil {
		go s.cursorPollLoop()
	}

	log.Printf("[INFO] session %s: sender pipeline up (video→%s:%d)", shortID(s.id), host, videoPort)
	return nil
}

func (s *Session) buildAudioSender(offer Offer, host string, audioPort int) (*transport.Sender, *audio.Encoder, context.CancelFunc, error) {
	const channels = 2

	codec, err := s.bind.NewAudioCodec(channels)
	if err != nil {
		return nil, nil, nil, err
	}

	sender, err := transport.NewSender(host, audioPort)
	if err != nil {
		codec.Close()
		return nil, nil, nil, err
	}

	// The audio port's timestamp field is a plain packet counter.
	enc := audio.NewEncoder(codec, func(packet []byte, counter uint32) {
		sender.Send(media.NAL{Data: packet, Timestamp: counter})
	})

	ctx, cancel := context.WithCancel(context.Background())
	pcm, err := s.bind.StartAudioCapture(ctx, channels)
	if err != nil {
		cancel()
		sender.Close()
		codec.Close()
		return nil, nil, nil, err
	}

	// Local mute: only when the blacklist rule allows it for this app.
	if s.bind.AudioTap != nil {
		blacklist := audio.NewBlacklist(s.opts.MuteBlacklist)
		total := 1
		if s.bind.WindowCount != nil {
			total = s.bind.WindowCount(offer.BundleID)
		}
		if blacklist.ShouldMute(offer.BundleID, total, 1) {
			if err := s.bind.AudioTap.Attach(offer.Target.PID); err != nil {
				log.Printf("[WARN] session %s: mute tap: %v", shortID(s.id), err)
			}
		}
	}

	s.pumps.Go(func() error {
		for block := range pcm {
			enc.Write(block)
		}
		return nil
	})
	return sender, enc, cancel, nil
}

// cursorPollLoop polls local cursor visibility at 3 Hz. Changes are
// signaled to the receiver (which toggles cursor-capture mode), and a
// globally hidden cursor is unhidden again so the sender keeps seeing its
// own pointer.
func (s *Session) cursorPollLoop() {
	ticker := time.NewTicker(cursorPollInterval)
	defer ticker.Stop()

	last := true
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		visible := s.bind.Cursor.Visible()
		if visible != last {
			last = visible
			s.mu.Lock()
			ch := s.ch
			s.mu.Unlock()
			if ch != nil {
				ch.Send(control.CursorState(visible))
			}
		}
		if !visible {
			s.bind.Cursor.Unhide()
		}
	}
}
