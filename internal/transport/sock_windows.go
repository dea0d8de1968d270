//go:build windows

package transport

import "net"

// listenMediaUDP binds a wildcard UDP socket on a system-chosen port.
// Windows has no SO_REUSEPORT; the stack's dual-stack default is kept.
func listenMediaUDP() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return net.ListenUDP("udp4", &net.UDPAddr{})
	}
	return conn, nil
}
