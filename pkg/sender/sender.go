// ABOUTME: UDP multicast transmission of Scream packets
// ABOUTME: Paces packets on a ticker and sets multicast TTL, loopback and interface
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/scream"
	"golang.org/x/net/ipv4"
)

const defaultTTL = 1

// Config configures a Sender
type Config struct {
	Profile scream.Profile

	// Dest overrides the profile's group address (host:port)
	Dest      string
	Interface string
	TTL       int

	Logger *slog.Logger
}

// Sender transmits a source as Scream packets
type Sender struct {
	cfg  Config
	log  *slog.Logger
	conn net.PacketConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr
	pkt  *Packetizer

	sent atomic.Int64
}

// New opens the socket and prepares the packetizer
func New(cfg Config, src audio.Source) (*Sender, error) {
	if cfg.Profile.HeaderSize == 0 {
		cfg.Profile = scream.Current
	}
	if cfg.Dest == "" {
		cfg.Dest = cfg.Profile.Addr()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pkt, err := NewPacketizer(cfg.Profile, src)
	if err != nil {
		return nil, err
	}

	dst, err := net.ResolveUDPAddr("udp4", cfg.Dest)
	if err != nil {
		return nil, fmt.Errorf("destination %s: %w", cfg.Dest, err)
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("open socket: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)

	if dst.IP.IsMulticast() {
		if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast TTL: %w", err)
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast loopback: %w", err)
		}
		if cfg.Interface != "" {
			ifi, err := net.InterfaceByName(cfg.Interface)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
			}
			if err := pc.SetMulticastInterface(ifi); err != nil {
				conn.Close()
				return nil, fmt.Errorf("set multicast interface: %w", err)
			}
		}
	}

	return &Sender{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "sender"),
		conn: conn,
		pc:   pc,
		dst:  dst,
		pkt:  pkt,
	}, nil
}

// Run sends packets until ctx is done or the source ends
func (s *Sender) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pkt.Interval())
	defer ticker.Stop()

	s.log.Info("sending", "dest", s.dst.String(), "header", s.pkt.Header().String(), "interval", s.pkt.Interval())

	buf := make([]byte, 0, s.cfg.Profile.MaxPacketSize())
	for {
		packet, err := s.pkt.Next(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("source finished", "packets", s.sent.Load())
				return nil
			}
			return fmt.Errorf("read source: %w", err)
		}

		if _, err := s.pc.WriteTo(packet, nil, s.dst); err != nil {
			return fmt.Errorf("send to %s: %w", s.dst, err)
		}
		s.sent.Add(1)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Sent returns the number of packets sent
func (s *Sender) Sent() int64 {
	return s.sent.Load()
}

// Close closes the socket
func (s *Sender) Close() error {
	return s.conn.Close()
}
