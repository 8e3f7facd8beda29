package vrrp

import (
	"net"
	"net/netip"
)

// netipAddrFromIP converts a net.IP carrying an IPv4 address into a
// netip.Addr, reporting false for anything else (IPv6, nil, malformed).
func netipAddrFromIP(ip net.IP) (netip.Addr, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, false
	}
	var b [4]byte
	copy(b[:], v4)
	return netip.AddrFrom4(b), true
}

// PrimaryIPv4 returns the first global-unicast IPv4 address configured on
// itf — the "primary IP" spec §4.3 uses to break MASTER priority ties.
// Ported from the teacher's interfacePreferIP, IPv4-only.
func PrimaryIPv4(itf *net.Interface) (netip.Addr, error) {
	addrs, err := itf.Addrs()
	if err != nil {
		return netip.Addr{}, &InterfaceError{Interface: itf.Name, Reason: err.Error()}
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || !ip.IsGlobalUnicast() {
			continue
		}
		addr, ok := netipAddrFromIP(ip)
		if !ok {
			continue
		}
		return addr, nil
	}
	return netip.Addr{}, &InterfaceError{Interface: itf.Name, Reason: "no usable IPv4 address found"}
}

// ResolveInterface looks up an interface by name and its primary IPv4,
// wrapping failures as InterfaceError so a per-VRI startup failure
// doesn't kill the rest of the process (spec §7).
func ResolveInterface(name string) (*net.Interface, netip.Addr, error) {
	itf, err := net.InterfaceByName(name)
	if err != nil {
		return nil, netip.Addr{}, &InterfaceError{Interface: name, Reason: err.Error()}
	}
	if itf.HardwareAddr == nil || len(itf.HardwareAddr) == 0 {
		return nil, netip.Addr{}, &InterfaceError{Interface: name, Reason: "interface has no MAC address"}
	}
	ip, err := PrimaryIPv4(itf)
	if err != nil {
		return nil, netip.Addr{}, err
	}
	return itf, ip, nil
}
