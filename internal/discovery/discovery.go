// Package discovery advertises this device as a beam endpoint over DNS-SD
// and observes other beam endpoints on the LAN.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/beamapp/beam/internal/registry"
)

const (
	// ServiceType is the DNS-SD service advertised and browsed
	ServiceType = "_beam._tcp"
	// Domain is the DNS-SD domain
	Domain = "local."
	// ProtocolVersion is the advertised protocol major version
	ProtocolVersion = "1"

	// StaleTimeout is how long before an unrefreshed peer is dropped
	StaleTimeout = 90 * time.Second
	// CleanupInterval is how often stale peers are checked
	CleanupInterval = 15 * time.Second
	// rebrowseInterval is how often the browse query is reissued
	rebrowseInterval = 30 * time.Second
)

// Callback receives peer arrival and departure events
type Callback interface {
	OnPeerFound(p registry.Peer)
	OnPeerLost(deviceID string)
}

// Config identifies this device on the LAN
type Config struct {
	Name     string
	Platform string
	DeviceID string
}

// Service advertises one beam endpoint and browses for others. It also owns
// the control-channel TCP listener on the advertised port: inbound
// connections are handed raw to the session layer.
type Service struct {
	cfg      Config
	callback Callback
	onConn   func(net.Conn)

	reg      *registry.Registry
	listener net.Listener
	server   *zeroconf.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a discovery service. onConn is invoked from the accept
// goroutine with each inbound control connection.
func NewService(cfg Config, cb Callback, onConn func(net.Conn)) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		callback: cb,
		onConn:   onConn,
		reg:      registry.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the control listener, registers the advertisement, and begins
// browsing.
func (s *Service) Start() error {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return fmt.Errorf("discovery: bind control listener: %w", err)
	}
	s.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port

	txt := encodeTXT(ProtocolVersion, s.cfg.Platform, s.cfg.DeviceID, s.cfg.Name)
	server, err := zeroconf.Register(s.cfg.Name, ServiceType, Domain, port, txt, nil)
	if err != nil {
		ln.Close()
		return fmt.Errorf("discovery: register %s: %w", ServiceType, err)
	}
	s.server = server

	s.wg.Add(3)
	go s.acceptLoop()
	go s.browseLoop()
	go s.cleanupLoop()

	log.Printf("[INFO] discovery: advertising %q on tcp port %d", s.cfg.Name, port)
	return nil
}

// Port returns the advertised control-channel port.
func (s *Service) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Peers returns the current peer list, sorted by name.
func (s *Service) Peers() []registry.Peer {
	return s.reg.List()
}

// Stop shuts down the advertisement, browse, and listener.
func (s *Service) Stop() {
	s.cancel()
	if s.server != nil {
		s.server.Shutdown()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	log.Printf("[INFO] discovery: stopped")
}

func (s *Service) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] discovery: accept error: %v", err)
			return
		}
		if s.onConn == nil {
			conn.Close()
			continue
		}
		s.onConn(conn)
	}
}

// browseLoop issues a fresh browse query periodically. Browse results arrive
// already resolved (TXT included); results that fail the TXT filter are
// dropped here.
func (s *Service) browseLoop() {
	defer s.wg.Done()

	for {
		s.browseOnce()
		// browseOnce blocks for a full rebrowse window; only a short pause
		// is needed before reissuing the query.
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Service) browseOnce() {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		log.Printf("[WARN] discovery: resolver: %v", err)
		return
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	ctx, cancel := context.WithTimeout(s.ctx, rebrowseInterval)
	defer cancel()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		log.Printf("[WARN] discovery: browse: %v", err)
		return
	}

	for entry := range entries {
		peer, ok := peerFromTXT(entry.Text, entryHost(entry), entry.Port, s.cfg.DeviceID)
		if !ok {
			continue
		}
		if s.reg.Upsert(peer) {
			log.Printf("[INFO] discovery: found peer %s (%s) at %s:%d", peer.Name, shortID(peer.ID), peer.Host, peer.Port)
			if s.callback != nil {
				s.callback.OnPeerFound(peer)
			}
		}
	}
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.reg.Prune(StaleTimeout) {
				log.Printf("[INFO] discovery: peer %s left", shortID(id))
				if s.callback != nil {
					s.callback.OnPeerLost(id)
				}
			}
		}
	}
}

// entryHost picks the best address from a resolved entry: IPv4 first, then
// IPv6, then the advertised hostname.
func entryHost(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return entry.HostName
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
