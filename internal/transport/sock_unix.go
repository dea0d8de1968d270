//go:build !windows

package transport

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenMediaUDP binds a wildcard dual-stack UDP socket on a system-chosen
// port. IPV6_V6ONLY is cleared so IPv4 peers reach the same socket, and
// SO_REUSEPORT is set so a crashed session's port can be rebound
// immediately.
func listenMediaUDP() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if serr != nil {
					return
				}
				if network == "udp6" {
					serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
				}
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", "[::]:0")
	if err != nil {
		// IPv6 wildcard can be unavailable; fall back to IPv4.
		pc, err = lc.ListenPacket(context.Background(), "udp4", "0.0.0.0:0")
		if err != nil {
			return nil, err
		}
	}
	return pc.(*net.UDPConn), nil
}
