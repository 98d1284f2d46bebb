package ofp4sw

import (
	"encoding/binary"
)

// checksumSum adds data as big endian 16 bit words to sum. A trailing odd
// byte is the high half of a zero padded word.
func checksumSum(data []byte, sum uint32) uint32 {
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if len(data) != n {
		sum += uint32(data[n]) << 8
	}
	return sum
}

func aroundCarry(sum uint32) uint32 {
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xffff
	}
	return sum
}

func finishChecksum(sum uint32) uint16 {
	return ^uint16(aroundCarry(sum))
}

func internetChecksum(data []byte) uint16 {
	return finishChecksum(checksumSum(data, 0))
}

// pseudoHeaderSum is the unfolded sum of the TCP/UDP/ICMPv6 pseudo-header.
// src and dst are both 4 or both 16 bytes.
func pseudoHeaderSum(src, dst []byte, proto uint8, length int) uint32 {
	sum := checksumSum(src, 0)
	sum = checksumSum(dst, sum)
	sum += uint32(proto)
	sum += uint32(length>>16) + uint32(length&0xffff)
	return sum
}

// fixIPv4Checksum recomputes the IPv4 header checksum in place.
func (self *Frame) fixIPv4Checksum() {
	if !self.isIPv4() {
		return
	}
	l3 := self.cls.L3
	ihl := int(self.data[l3]&0x0f) * 4
	if ihl < 20 || l3+ihl > len(self.data) {
		return
	}
	hdr := self.data[l3 : l3+ihl]
	hdr[10], hdr[11] = 0, 0
	binary.BigEndian.PutUint16(hdr[10:], internetChecksum(hdr))
}

// l4ChecksumOffset returns the checksum position inside the L4 header,
// or -1 when the protocol has no checksum this engine maintains.
func (self *Frame) l4ChecksumOffset() int {
	if self.cls.L4 < 0 {
		return -1
	}
	switch self.cls.L4Proto {
	case ipProtoTCP:
		return 16
	case ipProtoUDP:
		return 6
	case ipProtoICMPv4:
		if self.isIPv4() {
			return 2
		}
	case ipProtoICMPv6:
		if self.isIPv6() {
			return 2
		}
	}
	return -1
}

// fixL4Checksum recomputes the TCP, UDP, ICMP or ICMPv6 checksum in place.
// A zero UDP checksum over IPv4 means "no checksum" and is kept.
func (self *Frame) fixL4Checksum() {
	pos := self.l4ChecksumOffset()
	if pos < 0 || self.cls.L4Len < pos+2 {
		return
	}
	l3, l4 := self.cls.L3, self.cls.L4
	seg := self.data[l4 : l4+self.cls.L4Len]
	if self.cls.L4Proto == ipProtoUDP && self.isIPv4() && seg[6] == 0 && seg[7] == 0 {
		return
	}
	seg[pos], seg[pos+1] = 0, 0

	var sum uint32
	switch {
	case self.cls.L4Proto == ipProtoICMPv4:
		// no pseudo-header
	case self.isIPv4():
		sum = pseudoHeaderSum(self.data[l3+12:l3+16], self.data[l3+16:l3+20], self.cls.L4Proto, len(seg))
	case self.isIPv6():
		sum = pseudoHeaderSum(self.data[l3+8:l3+24], self.data[l3+24:l3+40], self.cls.L4Proto, len(seg))
	}
	csum := finishChecksum(checksumSum(seg, sum))
	if csum == 0 && self.cls.L4Proto == ipProtoUDP {
		csum = 0xffff
	}
	binary.BigEndian.PutUint16(seg[pos:], csum)
}
