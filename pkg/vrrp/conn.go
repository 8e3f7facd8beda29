package vrrp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// MsgConn is the VRRP advertisement send/receive collaborator (spec §1's
// "datalink send/receive abstraction" and "raw-socket opener", and §4.5's
// transmit socket). Implementations own the multicast join and the
// checksum-bearing wire encode/decode.
type MsgConn interface {
	// WriteAdvertisement encodes a and transmits it to the VRRP
	// multicast group with TTL 255.
	WriteAdvertisement(a *Advertisement) error
	// ReadAdvertisement blocks for the next datagram, validates its TTL,
	// decodes it, and reports the sender's source IP alongside it. It
	// does not validate the checksum or VRID/version/type: that is the
	// Receive Path's job (spec §4.4), since the decision to drop is
	// policy, not transport.
	ReadAdvertisement() (*ReceivedAdvertisement, bool /* checksumValid */, error)
	Close() error
}

// ipv4Conn implements MsgConn over an IPv4 raw socket bound to protocol
// 112, joined to the VRRP multicast group on one interface — ported from
// the teacher's IPv4VRRPMsgCon, trimmed to IPv4-only (VRRPv3/IPv6 is a
// declared non-goal).
type ipv4Conn struct {
	itf    *net.Interface
	remote *net.IPAddr
	pc     *ipv4.PacketConn
	buf    []byte
}

// NewIPv4Conn opens a raw IPv4 socket for protocol 112 on itf and joins
// the VRRP multicast group.
func NewIPv4Conn(itf *net.Interface) (MsgConn, error) {
	remote := &net.IPAddr{IP: MulticastAddr}

	raw, err := net.ListenIP(fmt.Sprintf("ip4:%d", VRRPIPProtocolNumber), &net.IPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, &InterfaceError{Interface: itf.Name, Reason: fmt.Sprintf("open raw socket: %v", err)}
	}
	pc := ipv4.NewPacketConn(raw)
	_ = pc.LeaveGroup(itf, remote)
	if err := pc.JoinGroup(itf, remote); err != nil {
		_ = raw.Close()
		return nil, &InterfaceError{Interface: itf.Name, Reason: fmt.Sprintf("join multicast group: %v", err)}
	}
	_ = pc.SetMulticastTTL(MulticastTTL)
	_ = pc.SetMulticastInterface(itf)
	_ = pc.SetMulticastLoopback(true)
	_ = pc.SetControlMessage(ipv4.FlagTTL|ipv4.FlagSrc|ipv4.FlagDst|ipv4.FlagInterface, true)
	_ = raw.SetReadBuffer(2048)
	_ = raw.SetWriteBuffer(2048)

	return &ipv4Conn{itf: itf, remote: remote, pc: pc, buf: make([]byte, 2048)}, nil
}

func (c *ipv4Conn) WriteAdvertisement(a *Advertisement) error {
	raw := a.Encode()
	if _, err := c.pc.WriteTo(raw, nil, c.remote); err != nil {
		return &TransportError{Reason: err.Error()}
	}
	return nil
}

func (c *ipv4Conn) ReadAdvertisement() (*ReceivedAdvertisement, bool, error) {
	n, cm, _, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		return nil, false, &TransportError{Reason: err.Error()}
	}
	if cm == nil || cm.TTL != MulticastTTL {
		return nil, false, &ValidationError{Reason: fmt.Sprintf("TTL %v != %d", ttlOf(cm), MulticastTTL)}
	}
	raw := append([]byte(nil), c.buf[:n]...)
	adv, err := Decode(raw)
	if err != nil {
		return nil, false, err
	}
	srcIP, ok := netipAddrFromIP(cm.Src)
	if !ok {
		return nil, false, &ValidationError{Reason: "unparsable source address"}
	}
	valid := ValidateChecksum(raw)
	return &ReceivedAdvertisement{Advertisement: adv, SourceIP: srcIP}, valid, nil
}

func (c *ipv4Conn) Close() error {
	if c.pc == nil {
		return nil
	}
	_ = c.pc.LeaveGroup(c.itf, c.remote)
	return c.pc.Close()
}

func ttlOf(cm *ipv4.ControlMessage) int {
	if cm == nil {
		return -1
	}
	return cm.TTL
}
