// Package transport carries NAL-sized payloads over per-session UDP flows:
// a best-effort fragmenting sender and a reassembling receiver.
package transport

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/beamapp/beam/internal/media"
	"github.com/beamapp/beam/internal/packet"
)

// Sender fragments NAL units into headered datagrams toward one peer port.
// Send is best-effort: socket errors drop the datagram and never propagate
// to the encoder. A Sender is driven by a single encoder callback goroutine.
type Sender struct {
	conn    *net.UDPConn
	seq     uint16
	logOnce sync.Once
}

// NewSender opens a connected UDP socket toward host:port.
func NewSender(host string, port int) (*Sender, error) {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", raddr, err)
	}
	return &Sender{conn: conn}, nil
}

// Send fragments one NAL into ceil(len/MaxPayload) datagrams and writes them
// in fragment-index order. The keyframe flag is replicated on every
// fragment; start/end flags mark the first and last.
func (s *Sender) Send(nal media.NAL) {
	count := packet.FragmentCount(len(nal.Data))
	buf := make([]byte, 0, packet.MaxDatagram)

	for i := 0; i < count; i++ {
		var flags uint8
		if nal.Keyframe {
			flags |= packet.FlagKeyframe
		}
		if i == 0 {
			flags |= packet.FlagStart
		}
		if i == count-1 {
			flags |= packet.FlagEnd
		}

		h := packet.Header{
			Sequence:      s.seq,
			Timestamp:     nal.Timestamp,
			Flags:         flags,
			FragmentIndex: uint16(i),
			FragmentCount: uint16(count),
		}
		s.seq++

		lo := i * packet.MaxPayload
		hi := lo + packet.MaxPayload
		if hi > len(nal.Data) {
			hi = len(nal.Data)
		}

		buf = packet.AppendHeader(buf[:0], h)
		buf = append(buf, nal.Data[lo:hi]...)

		if _, err := s.conn.Write(buf); err != nil {
			s.logOnce.Do(func() {
				log.Printf("[WARN] transport: udp send to %s failed (dropping): %v", s.conn.RemoteAddr(), err)
			})
		}
	}
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
