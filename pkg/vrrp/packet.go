package vrrp

import (
	"fmt"
	"net/netip"
)

// Advertisement is a decoded VRRPv2 message (RFC 3768 §5.1).
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version| Type  | Virtual Rtr ID|   Priority    |Count IP Addrs|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|   Auth Type   |   Adver Int   |          Checksum             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       IP Address (1..N)                      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                     Authentication Data (1,2)                |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Advertisement struct {
	WireVersion     byte
	WireType        byte
	VirtualRouterID uint8
	Priority        uint8
	AdvertInt       uint8
	Checksum        uint16
	IPAddresses     []netip.Addr
}

// ReceivedAdvertisement pairs a decoded Advertisement with the IPv4
// source address it arrived from, which the FSM's primary-IP tie-break
// (RFC 3768 §6.4.3) needs but which is not itself a wire field.
type ReceivedAdvertisement struct {
	*Advertisement
	SourceIP netip.Addr
}

const (
	headerSize  = 8
	authSize    = 8
	minPacket   = headerSize + authSize      // one zero-address packet would still carry auth; 16
	maxIPAddrs  = 16
	maxPacket   = headerSize + authSize + 4*maxIPAddrs // 80
)

// Encode serializes the advertisement to wire bytes with the checksum
// computed and filled in. The checksum covers the serialized VRRP
// message only (spec §4.1): RFC 3768's VRRP checksum, unlike TCP/UDP's,
// has no IPv4 pseudo-header.
func (a *Advertisement) Encode() []byte {
	n := len(a.IPAddresses)
	buf := make([]byte, headerSize+4*n+authSize)
	buf[0] = (Version << 4) | (TypeAdvertisement & 0x0F)
	buf[1] = a.VirtualRouterID
	buf[2] = a.Priority
	buf[3] = uint8(n)
	buf[4] = 0 // auth_type, always zero
	buf[5] = a.AdvertInt
	buf[6] = 0 // checksum zeroed during computation
	buf[7] = 0
	for i, addr := range a.IPAddresses {
		a4 := addr.As4()
		copy(buf[headerSize+4*i:], a4[:])
	}
	// trailing 8 bytes of legacy auth data are left zero.

	sum := checksum(buf)
	buf[6] = byte(sum >> 8)
	buf[7] = byte(sum)
	a.Checksum = sum
	return buf
}

// Decode parses wire bytes into an Advertisement, rejecting malformed
// input per spec §4.1. It does not validate the checksum: that is a
// policy decision made by the Receive Path (spec §4.1's "error kinds"
// note), via ValidateChecksum.
func Decode(octets []byte) (*Advertisement, error) {
	if len(octets) < minPacket {
		return nil, &CodecError{Kind: ErrMalformedLength, Detail: fmt.Sprintf("got %d bytes, want >= %d", len(octets), minPacket)}
	}
	if len(octets) > maxPacket {
		return nil, &CodecError{Kind: ErrMalformedLength, Detail: fmt.Sprintf("got %d bytes, want <= %d", len(octets), maxPacket)}
	}
	count := int(octets[3])
	if count > maxIPAddrs {
		return nil, &CodecError{Kind: ErrCountMismatch, Detail: fmt.Sprintf("count_ip %d exceeds %d", count, maxIPAddrs)}
	}
	want := headerSize + 4*count + authSize
	if len(octets) != want {
		return nil, &CodecError{Kind: ErrTruncatedPayload, Detail: fmt.Sprintf("count_ip %d implies %d bytes, got %d", count, want, len(octets))}
	}

	a := &Advertisement{
		WireVersion:     GetVersion(octets),
		WireType:        GetType(octets),
		VirtualRouterID: octets[1],
		Priority:        octets[2],
		AdvertInt:       octets[5],
		Checksum:        uint16(octets[6])<<8 | uint16(octets[7]),
	}
	for i := 0; i < count; i++ {
		off := headerSize + 4*i
		var b4 [4]byte
		copy(b4[:], octets[off:off+4])
		a.IPAddresses = append(a.IPAddresses, netip.AddrFrom4(b4))
	}
	return a, nil
}

// GetVersion and GetType extract the packed 4-bit fields from raw wire
// bytes; Decode uses them to fill WireVersion and WireType, which the
// Receive Path then checks.
func GetVersion(octets []byte) byte { return (octets[0] & 0xF0) >> 4 }
func GetType(octets []byte) byte    { return octets[0] & 0x0F }

// ValidateChecksum treats octets (the VRRP message exactly as received,
// checksum field included) as a stream of 16-bit words and reports
// whether they one's-complement-sum to all-ones, per RFC 1071. No
// pseudo-header is involved: the VRRP checksum covers only the message
// itself (spec §4.1).
func ValidateChecksum(octets []byte) bool {
	sum := checksum(octets)
	return sum == 0
}

// checksum computes the RFC 1071 internet checksum over data, folding
// 16-bit big-endian words and any trailing odd byte.
func checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
