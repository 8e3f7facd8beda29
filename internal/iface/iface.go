// Package iface resolves interface names to the kernel state a Virtual
// Router Instance needs: the *net.Interface handle and its primary IPv4
// address.
package iface

import (
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/virtual-router/vrrpd/pkg/vrrp"
)

// Resolve looks up name and its primary IPv4 address, wrapping pkg/vrrp's
// resolver so the supervisor has one call site for interface lookup.
func Resolve(name string) (*net.Interface, netip.Addr, error) {
	return vrrp.ResolveInterface(name)
}

// Exists reports whether name is a link known to the kernel, checked via
// netlink rather than net.InterfaceByName so a missing interface is
// diagnosed before any raw socket is opened.
func Exists(name string) bool {
	_, err := netlink.LinkByName(name)
	return err == nil
}
