package vrrp

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/vishvananda/netlink"
)

// AddressEffector attaches/detaches the VRI's virtual IPv4 addresses to
// its interface (spec §4.2). Idempotent: attaching an already-present
// address, or detaching an already-absent one, is not an error. Failures
// are advisory — wrapped as *EffectorError and logged, never fatal,
// because VRRP correctness is ultimately decided by the network.
type AddressEffector interface {
	Attach(itf *net.Interface, addrs []netip.Prefix) error
	Detach(itf *net.Interface, addrs []netip.Prefix) error
}

// NetlinkEffector implements AddressEffector with
// github.com/vishvananda/netlink, grounded on the teacher's own
// demo/go.mod dependency on the same package for exactly this purpose.
type NetlinkEffector struct{}

func (NetlinkEffector) Attach(itf *net.Interface, addrs []netip.Prefix) error {
	link, err := netlink.LinkByName(itf.Name)
	if err != nil {
		return &EffectorError{Op: "attach", Reason: err.Error()}
	}
	var firstErr error
	for _, p := range addrs {
		nlAddr := &netlink.Addr{IPNet: prefixToIPNet(p)}
		if err := netlink.AddrAdd(link, nlAddr); err != nil && !isExistsErr(err) {
			if firstErr == nil {
				firstErr = &EffectorError{Op: "attach", Reason: fmt.Sprintf("%s: %v", p, err)}
			}
		}
	}
	return firstErr
}

func (NetlinkEffector) Detach(itf *net.Interface, addrs []netip.Prefix) error {
	link, err := netlink.LinkByName(itf.Name)
	if err != nil {
		return &EffectorError{Op: "detach", Reason: err.Error()}
	}
	var firstErr error
	for _, p := range addrs {
		nlAddr := &netlink.Addr{IPNet: prefixToIPNet(p)}
		if err := netlink.AddrDel(link, nlAddr); err != nil && !isMissingErr(err) {
			if firstErr == nil {
				firstErr = &EffectorError{Op: "detach", Reason: fmt.Sprintf("%s: %v", p, err)}
			}
		}
	}
	return firstErr
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	addr := p.Addr().AsSlice()
	return &net.IPNet{IP: net.IP(addr), Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen())}
}

// isExistsErr / isMissingErr tolerate the common "already there" /
// "already gone" netlink errnos so Attach/Detach stay idempotent.
func isExistsErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "file exists")
}

func isMissingErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cannot assign requested address") || strings.Contains(msg, "no such")
}

// NullEffector records calls without touching the host, backing unit
// tests that cannot assume root or real interfaces.
type NullEffector struct {
	Attached [][]netip.Prefix
	Detached [][]netip.Prefix
}

func (n *NullEffector) Attach(_ *net.Interface, addrs []netip.Prefix) error {
	n.Attached = append(n.Attached, addrs)
	return nil
}

func (n *NullEffector) Detach(_ *net.Interface, addrs []netip.Prefix) error {
	n.Detached = append(n.Detached, addrs)
	return nil
}
