package transport

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/beamapp/beam/internal/media"
	"github.com/beamapp/beam/internal/packet"
)

// Receiver owns one media-port socket, its receive loop, and a Reassembler.
// Completed NALs are published on a bounded channel; when the consumer lags,
// the oldest queued NAL is dropped rather than blocking the loop.
type Receiver struct {
	conn *net.UDPConn
	out  chan media.NAL

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ListenReceiver binds a dual-stack UDP socket on a system-chosen port and
// starts the receive loop. The bound port is what the receiver reports in
// beam_accept.
func ListenReceiver(gcWindow uint32) (*Receiver, error) {
	conn, err := listenMediaUDP()
	if err != nil {
		return nil, fmt.Errorf("transport: bind media port: %w", err)
	}

	r := &Receiver{
		conn:   conn,
		out:    make(chan media.NAL, 64),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.receiveLoop(NewReassembler(gcWindow))
	return r, nil
}

// Port returns the locally bound UDP port.
func (r *Receiver) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// NALs is the stream of reassembled units, in completion order.
func (r *Receiver) NALs() <-chan media.NAL {
	return r.out
}

// Stop signals the loop, closes the socket to unblock the pending read, and
// waits for the loop goroutine to exit before returning. Idempotent.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.conn.Close()
	})
	r.wg.Wait()
}

func (r *Receiver) receiveLoop(rs *Reassembler) {
	defer r.wg.Done()
	defer close(r.out)

	buf := make([]byte, 65535)
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-r.stopCh:
			default:
				log.Printf("[WARN] transport: udp read error: %v", err)
			}
			return
		}

		h, err := packet.DecodeHeader(buf[:n])
		if err != nil {
			// Truncated datagram, drop.
			continue
		}

		nal, ok := rs.Ingest(h, buf[packet.HeaderSize:n])
		if !ok {
			continue
		}

		select {
		case r.out <- nal:
		default:
			// Consumer is behind; drop the oldest queued NAL so the
			// freshest data keeps flowing.
			select {
			case <-r.out:
			default:
			}
			select {
			case r.out <- nal:
			default:
			}
		}
	}
}
