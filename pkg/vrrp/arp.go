package vrrp

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/mdlayher/arp"
)

// broadcastMAC is the Ethernet broadcast address, used as both the
// gratuitous-ARP target hardware address and as destination of the
// underlying frame per RFC 3768 §7.2.
var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Announcer is the gratuitous-ARP / ARP-reply collaborator (spec §4.5's
// send_gratuitous_arp and §4.6's ARP Responder).
type Announcer interface {
	// AnnounceAll emits one gratuitous ARP per address in addrs, sender
	// hardware address set to the VRI's virtual MAC (spec §4.5).
	AnnounceAll(vrid uint8, addrs []netip.Prefix) error
	// Reply answers a single ARP request for target with the VRI's
	// virtual MAC (spec §4.6, MASTER only).
	Reply(vrid uint8, target netip.Addr, requesterMAC net.HardwareAddr) error
	// ReadRequest blocks for the next incoming ARP request and reports
	// its target protocol address and the requester's hardware address.
	// Non-request ARP traffic (replies) is skipped transparently.
	ReadRequest() (target netip.Addr, requesterMAC net.HardwareAddr, err error)
	Close() error
}

// ARPAnnouncer implements Announcer with github.com/mdlayher/arp, ported
// from the teacher's IPv4AddrAnnouncer.
type ARPAnnouncer struct {
	client *arp.Client
}

// NewARPAnnouncer dials an ARP client bound to itf.
func NewARPAnnouncer(itf *net.Interface) (*ARPAnnouncer, error) {
	c, err := arp.Dial(itf)
	if err != nil {
		return nil, &InterfaceError{Interface: itf.Name, Reason: err.Error()}
	}
	return &ARPAnnouncer{client: c}, nil
}

// arp operation codes (RFC 826); mdlayher/arp's Packet struct mirrors the
// wire layout directly rather than offering named operation constants.
const (
	arpOpRequest = 1
	arpOpReply   = 2
)

func (a *ARPAnnouncer) AnnounceAll(vrid uint8, addrs []netip.Prefix) error {
	if err := a.client.SetWriteDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		return &TransportError{Reason: err.Error()}
	}
	vmac := VirtualMAC(vrid)
	var firstErr error
	for _, p := range addrs {
		ip := p.Addr()
		pkt := arp.Packet{
			HardwareType:       1,
			ProtocolType:       0x0800,
			HardwareAddrLength: 6,
			IPLength:           4,
			Operation:          arpOpRequest,
			SenderHardwareAddr: vmac,
			SenderIP:           ip,
			TargetHardwareAddr: broadcastMAC,
			TargetIP:           ip,
		}
		if err := a.client.WriteTo(&pkt, broadcastMAC); err != nil {
			if firstErr == nil {
				firstErr = &TransportError{Reason: fmt.Sprintf("gratuitous arp for %s: %v", ip, err)}
			}
		}
	}
	return firstErr
}

func (a *ARPAnnouncer) Reply(vrid uint8, target netip.Addr, requesterMAC net.HardwareAddr) error {
	if err := a.client.SetWriteDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		return &TransportError{Reason: err.Error()}
	}
	vmac := VirtualMAC(vrid)
	pkt := arp.Packet{
		HardwareType:       1,
		ProtocolType:       0x0800,
		HardwareAddrLength: 6,
		IPLength:           4,
		Operation:          arpOpReply,
		SenderHardwareAddr: vmac,
		SenderIP:           target,
		TargetHardwareAddr: requesterMAC,
		TargetIP:           target,
	}
	if err := a.client.WriteTo(&pkt, requesterMAC); err != nil {
		return &TransportError{Reason: fmt.Sprintf("arp reply: %v", err)}
	}
	return nil
}

// ReadRequest blocks until an ARP request arrives, skipping replies.
// Gratuitous announcements sent as requests are returned like any other
// request.
func (a *ARPAnnouncer) ReadRequest() (netip.Addr, net.HardwareAddr, error) {
	for {
		pkt, _, err := a.client.Read()
		if err != nil {
			return netip.Addr{}, nil, &TransportError{Reason: err.Error()}
		}
		if pkt.Operation != arpOpRequest {
			continue
		}
		return pkt.TargetIP, pkt.SenderHardwareAddr, nil
	}
}

func (a *ARPAnnouncer) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// NullAnnouncer records calls without sending frames, for tests. Requests,
// if non-nil, feeds ReadRequest; Close always unblocks a pending
// ReadRequest, matching how Stop() expects every collaborator's blocking
// read to return once closed.
type NullAnnouncer struct {
	AnnouncedAll [][]netip.Prefix
	Replied      []netip.Addr
	Requests     chan ARPRequest

	closeOnce sync.Once
	closed    chan struct{}
}

// ARPRequest is a synthetic incoming ARP request for NullAnnouncer tests.
type ARPRequest struct {
	Target netip.Addr
	MAC    net.HardwareAddr
}

func (n *NullAnnouncer) AnnounceAll(_ uint8, addrs []netip.Prefix) error {
	n.AnnouncedAll = append(n.AnnouncedAll, addrs)
	return nil
}

func (n *NullAnnouncer) Reply(_ uint8, target netip.Addr, _ net.HardwareAddr) error {
	n.Replied = append(n.Replied, target)
	return nil
}

func (n *NullAnnouncer) ReadRequest() (netip.Addr, net.HardwareAddr, error) {
	n.initClosed()
	select {
	case req, ok := <-n.Requests:
		if !ok {
			return netip.Addr{}, nil, &TransportError{Reason: "closed"}
		}
		return req.Target, req.MAC, nil
	case <-n.closed:
		return netip.Addr{}, nil, &TransportError{Reason: "closed"}
	}
}

func (n *NullAnnouncer) initClosed() {
	n.closeOnce.Do(func() { n.closed = make(chan struct{}) })
}

func (n *NullAnnouncer) Close() error {
	n.initClosed()
	select {
	case <-n.closed:
	default:
		close(n.closed)
	}
	return nil
}
