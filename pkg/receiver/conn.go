// ABOUTME: Multicast group membership for the receive socket
// ABOUTME: Joins and leaves the profile's group with golang.org/x/net/ipv4
package receiver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/screamrx/screamrx/pkg/scream"
	"golang.org/x/net/ipv4"
)

// socketReadBuffer holds a few hundred milliseconds of the largest packets
const socketReadBuffer = 256 * 1024

// GroupConn is a socket joined to a multicast group
type GroupConn interface {
	// ReadFrom blocks for the next datagram; oversize datagrams are truncated
	ReadFrom(b []byte) (int, net.Addr, error)

	// Leave drops the group membership
	Leave() error

	// Close leaves the group if still joined and closes the socket,
	// unblocking ReadFrom. Safe to call concurrently and repeatedly.
	Close() error
}

// JoinFunc opens a GroupConn for a profile on the named interface ("" = system default)
type JoinFunc func(profile scream.Profile, iface string) (GroupConn, error)

// JoinMulticast is the JoinFunc for real UDP multicast
func JoinMulticast(profile scream.Profile, iface string) (GroupConn, error) {
	group := net.ParseIP(profile.Group)
	if group == nil || group.To4() == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("invalid IPv4 multicast group %q", profile.Group)
	}

	var ifi *net.Interface
	if iface != "" {
		var err error
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", iface, err)
		}
	}

	c, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(profile.Port)))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", profile.Port, err)
	}

	if udp, ok := c.(*net.UDPConn); ok {
		_ = udp.SetReadBuffer(socketReadBuffer)
	}

	p := ipv4.NewPacketConn(c)
	groupAddr := &net.UDPAddr{IP: group}
	if err := p.JoinGroup(ifi, groupAddr); err != nil {
		c.Close()
		return nil, fmt.Errorf("join group %s: %w", profile.Group, err)
	}

	// Destination filtering keeps other groups on the same port out;
	// platforms without control messages receive unfiltered.
	filter := p.SetControlMessage(ipv4.FlagDst, true) == nil

	return &multicastConn{
		pc:     p,
		ifi:    ifi,
		group:  groupAddr,
		filter: filter,
	}, nil
}

// groupSocket is the part of ipv4.PacketConn a multicastConn uses
type groupSocket interface {
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	Close() error
}

type multicastConn struct {
	pc     groupSocket
	ifi    *net.Interface
	group  *net.UDPAddr
	filter bool

	leaveOnce sync.Once
	leaveErr  error
	closeOnce sync.Once
	closeErr  error
}

func (m *multicastConn) ReadFrom(b []byte) (int, net.Addr, error) {
	for {
		n, cm, src, err := m.pc.ReadFrom(b)
		if err != nil {
			return n, src, err
		}
		if m.filter && cm != nil && cm.Dst != nil && !cm.Dst.Equal(m.group.IP) {
			continue
		}
		return n, src, nil
	}
}

// Leave drops the membership once; later calls return the first result
func (m *multicastConn) Leave() error {
	m.leaveOnce.Do(func() {
		if err := m.pc.LeaveGroup(m.ifi, m.group); err != nil && !errors.Is(err, net.ErrClosed) {
			m.leaveErr = fmt.Errorf("leave group %s: %w", m.group.IP, err)
		}
	})
	return m.leaveErr
}

func (m *multicastConn) Close() error {
	m.closeOnce.Do(func() {
		leaveErr := m.Leave()
		m.closeErr = errors.Join(leaveErr, m.pc.Close())
	})
	return m.closeErr
}
