package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxFrameSize is the largest accepted control frame body. Anything at or
// above this is treated as a malformed stream and kills the channel.
const maxFrameSize = 1_000_000

// Channel states. A channel is one-shot: once disconnected it never returns
// to any earlier state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Config tunes the heartbeat. Zero values mean the stock 5s/10s cadence.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	return c
}

// Channel is one control-plane TCP stream carrying length-framed JSON
// messages. Frames are 4-byte big-endian length followed by the UTF-8 JSON
// body, one message per frame, delivered in order.
type Channel struct {
	cfg        Config
	conn       net.Conn
	remoteHost string

	state atomic.Int32

	mu           sync.Mutex
	onMessage    func(Message)
	onDisconnect func()

	sendMu      sync.Mutex
	lastTraffic atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newChannel(conn net.Conn, cfg Config) *Channel {
	ch := &Channel{
		cfg:    cfg.withDefaults(),
		conn:   conn,
		stopCh: make(chan struct{}),
	}
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		ch.remoteHost = host
	}
	ch.state.Store(int32(StateConnected))
	ch.lastTraffic.Store(time.Now().UnixNano())
	return ch
}

// Connect dials addr and returns a connected channel (connector role).
func Connect(addr string, cfg Config) (*Channel, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("control: connect %s: %w", addr, err)
	}
	return newChannel(conn, cfg), nil
}

// Adopt wraps an already-accepted connection, typically handed over by the
// discovery layer, without changing channel behavior.
func Adopt(conn net.Conn, cfg Config) *Channel {
	return newChannel(conn, cfg)
}

// AcceptFirst blocks for the first inbound connection on ln (listener role).
// The first established connection wins; subsequent inbound connections are
// closed until the listener itself is closed.
func AcceptFirst(ln net.Listener, cfg Config) (*Channel, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("control: accept: %w", err)
	}
	go func() {
		for {
			extra, err := ln.Accept()
			if err != nil {
				return
			}
			extra.Close()
		}
	}()
	return newChannel(conn, cfg), nil
}

// State returns the current channel state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// RemoteHost is the peer's IP, used to target the UDP media flows.
func (c *Channel) RemoteHost() string {
	return c.remoteHost
}

// Start installs the handlers and launches the read and heartbeat loops.
// onMessage runs on the channel's read goroutine; ping frames are answered
// internally and still forwarded.
func (c *Channel) Start(onMessage func(Message), onDisconnect func()) {
	c.mu.Lock()
	c.onMessage = onMessage
	c.onDisconnect = onDisconnect
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop()
	go c.heartbeatLoop()
}

// ClearHandlers detaches both callbacks. Session teardown calls this before
// sending beam_end so no callback can re-enter a half-stopped session.
func (c *Channel) ClearHandlers() {
	c.mu.Lock()
	c.onMessage = nil
	c.onDisconnect = nil
	c.mu.Unlock()
}

// Send marshals and writes one frame. On a non-connected channel the message
// is silently dropped. A write error kills the channel.
func (c *Channel) Send(msg Message) {
	if c.State() != StateConnected {
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WARN] control: marshal %s: %v", msg.Type, err)
		return
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	c.sendMu.Lock()
	_, err = c.conn.Write(frame)
	c.sendMu.Unlock()
	if err != nil {
		c.disconnect()
	}
}

// Close tears the channel down and waits for its goroutines to exit.
func (c *Channel) Close() {
	c.disconnect()
	c.wg.Wait()
}

func (c *Channel) disconnect() {
	c.stopOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		close(c.stopCh)
		c.conn.Close()

		c.mu.Lock()
		cb := c.onDisconnect
		c.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	defer c.disconnect()

	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n >= maxFrameSize {
			log.Printf("[WARN] control: oversized frame (%d bytes) from %s, killing channel", n, c.remoteHost)
			return
		}

		body := make([]byte, n)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return
		}
		c.lastTraffic.Store(time.Now().UnixNano())

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Printf("[WARN] control: malformed frame from %s, killing channel: %v", c.remoteHost, err)
			return
		}

		if msg.Type == TypePing {
			c.Send(Message{Type: TypePong})
		}

		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (c *Channel) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			idle := time.Duration(time.Now().UnixNano() - c.lastTraffic.Load())
			if idle > c.cfg.HeartbeatTimeout {
				log.Printf("[WARN] control: peer %s silent for %v, disconnecting", c.remoteHost, idle.Round(time.Second))
				c.disconnect()
				return
			}
			c.Send(Message{Type: TypePing})
		}
	}
}
