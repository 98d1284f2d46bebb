package ofp4sw

import (
	"encoding/binary"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
)

const (
	icmpv6NeighborSolicitation  = 135
	icmpv6NeighborAdvertisement = 136

	ndOptSourceLinkAddr = 1
	ndOptTargetLinkAddr = 2
)

// setField writes one basic field value into the frame. A field that does
// not exist in the current classification is a mismatch. Checksums covering
// the field are recomputed; re-classification is left to the caller.
func (self *Frame) setField(oxmType uint32, value []byte) error {
	length, _ := oxm.OxmOfDefs(oxmType)
	if length == 0 {
		return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_TYPE}
	}
	if len(value) != length {
		return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_LEN}
	}
	name := "set_" + oxm.FieldName(oxmType)
	cls := self.cls
	d := self.data

	switch oxmType {
	case oxm.OXM_OF_ETH_DST:
		copy(d[0:6], value)
	case oxm.OXM_OF_ETH_SRC:
		copy(d[6:12], value)
	case oxm.OXM_OF_ETH_TYPE:
		copy(d[cls.TypeOffset:], value)
	case oxm.OXM_OF_VLAN_VID:
		if cls.Vlan < 0 {
			return mismatch(name, "a VLAN tag")
		}
		vid := binary.BigEndian.Uint16(value) & 0x0fff
		self.putUint16At(cls.Vlan, self.uint16At(cls.Vlan)&0xf000|vid)
	case oxm.OXM_OF_VLAN_PCP:
		if cls.Vlan < 0 {
			return mismatch(name, "a VLAN tag")
		}
		self.putUint16At(cls.Vlan, self.uint16At(cls.Vlan)&0x1fff|uint16(value[0]&0x07)<<13)
	case oxm.OXM_OF_IP_DSCP, oxm.OXM_OF_IP_ECN:
		var tc, bits, shift uint8
		if oxmType == oxm.OXM_OF_IP_DSCP {
			bits, shift = 0xfc, 2
		} else {
			bits, shift = 0x03, 0
		}
		switch {
		case self.isIPv4():
			tc = d[cls.L3+1]
			d[cls.L3+1] = tc&^bits | (value[0]<<shift)&bits
			self.fixIPv4Checksum()
		case self.isIPv6():
			tc = d[cls.L3]<<4 | d[cls.L3+1]>>4
			tc = tc&^bits | (value[0]<<shift)&bits
			d[cls.L3] = d[cls.L3]&0xf0 | tc>>4
			d[cls.L3+1] = d[cls.L3+1]&0x0f | tc<<4
		default:
			return mismatch(name, "IPv4 or IPv6")
		}
	case oxm.OXM_OF_IP_PROTO:
		switch {
		case self.isIPv4():
			d[cls.L3+9] = value[0]
			self.fixIPv4Checksum()
		case self.isIPv6():
			d[cls.L3+6] = value[0]
		default:
			return mismatch(name, "IPv4 or IPv6")
		}
	case oxm.OXM_OF_IPV4_SRC, oxm.OXM_OF_IPV4_DST:
		if !self.isIPv4() {
			return mismatch(name, "IPv4")
		}
		off := cls.L3 + 12
		if oxmType == oxm.OXM_OF_IPV4_DST {
			off = cls.L3 + 16
		}
		copy(d[off:off+4], value)
		self.fixIPv4Checksum()
		self.fixL4Checksum()
	case oxm.OXM_OF_TCP_SRC, oxm.OXM_OF_TCP_DST:
		if !self.hasL4(ipProtoTCP) {
			return mismatch(name, "TCP")
		}
		return self.setPort(oxmType == oxm.OXM_OF_TCP_DST, value)
	case oxm.OXM_OF_UDP_SRC, oxm.OXM_OF_UDP_DST:
		if !self.hasL4(ipProtoUDP) {
			return mismatch(name, "UDP")
		}
		return self.setPort(oxmType == oxm.OXM_OF_UDP_DST, value)
	case oxm.OXM_OF_ICMPV4_TYPE, oxm.OXM_OF_ICMPV4_CODE:
		if !self.isIPv4() || !self.hasL4(ipProtoICMPv4) {
			return mismatch(name, "ICMPv4")
		}
		if oxmType == oxm.OXM_OF_ICMPV4_TYPE {
			d[cls.L4] = value[0]
		} else {
			d[cls.L4+1] = value[0]
		}
		self.fixL4Checksum()
	case oxm.OXM_OF_ARP_OP, oxm.OXM_OF_ARP_SHA, oxm.OXM_OF_ARP_SPA, oxm.OXM_OF_ARP_THA, oxm.OXM_OF_ARP_TPA:
		if !self.isARP() || cls.L3+28 > len(d) {
			return mismatch(name, "ARP")
		}
		off := map[uint32]int{
			oxm.OXM_OF_ARP_OP:  6,
			oxm.OXM_OF_ARP_SHA: 8,
			oxm.OXM_OF_ARP_SPA: 14,
			oxm.OXM_OF_ARP_THA: 18,
			oxm.OXM_OF_ARP_TPA: 24,
		}[oxmType]
		copy(d[cls.L3+off:], value)
	case oxm.OXM_OF_IPV6_SRC, oxm.OXM_OF_IPV6_DST:
		if !self.isIPv6() {
			return mismatch(name, "IPv6")
		}
		off := cls.L3 + 8
		if oxmType == oxm.OXM_OF_IPV6_DST {
			off = cls.L3 + 24
		}
		copy(d[off:off+16], value)
		self.fixL4Checksum()
	case oxm.OXM_OF_IPV6_FLABEL:
		if !self.isIPv6() {
			return mismatch(name, "IPv6")
		}
		label := binary.BigEndian.Uint32(value) & 0xfffff
		self.putUint32At(cls.L3, self.uint32At(cls.L3)&0xfff00000|label)
	case oxm.OXM_OF_ICMPV6_TYPE, oxm.OXM_OF_ICMPV6_CODE:
		if !self.isIPv6() || !self.hasL4(ipProtoICMPv6) {
			return mismatch(name, "ICMPv6")
		}
		if oxmType == oxm.OXM_OF_ICMPV6_TYPE {
			d[cls.L4] = value[0]
		} else {
			d[cls.L4+1] = value[0]
		}
		self.fixL4Checksum()
	case oxm.OXM_OF_IPV6_ND_TARGET:
		if !self.isNeighborDiscovery(icmpv6NeighborSolicitation, icmpv6NeighborAdvertisement) {
			return mismatch(name, "ICMPv6 neighbor discovery")
		}
		copy(d[cls.L4+8:cls.L4+24], value)
		self.fixL4Checksum()
	case oxm.OXM_OF_IPV6_ND_SLL, oxm.OXM_OF_IPV6_ND_TLL:
		icmpType, optType := uint8(icmpv6NeighborSolicitation), uint8(ndOptSourceLinkAddr)
		if oxmType == oxm.OXM_OF_IPV6_ND_TLL {
			icmpType, optType = icmpv6NeighborAdvertisement, ndOptTargetLinkAddr
		}
		if !self.isNeighborDiscovery(icmpType) {
			return mismatch(name, "ICMPv6 neighbor discovery")
		}
		opt := self.ndOption(optType)
		if opt < 0 {
			return mismatch(name, "a link-layer address option")
		}
		copy(d[opt+2:opt+8], value)
		self.fixL4Checksum()
	case oxm.OXM_OF_MPLS_LABEL, oxm.OXM_OF_MPLS_TC, oxm.OXM_OF_MPLS_BOS:
		if cls.Mpls < 0 {
			return mismatch(name, "an MPLS shim")
		}
		shim := self.uint32At(cls.Mpls)
		switch oxmType {
		case oxm.OXM_OF_MPLS_LABEL:
			shim = shim&0x00000fff | (binary.BigEndian.Uint32(value)&0xfffff)<<12
		case oxm.OXM_OF_MPLS_TC:
			shim = shim&^0x00000e00 | uint32(value[0]&0x07)<<9
		case oxm.OXM_OF_MPLS_BOS:
			shim = shim&^0x00000100 | uint32(value[0]&0x01)<<8
		}
		self.putUint32At(cls.Mpls, shim)
	default:
		return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_TYPE}
	}
	return nil
}

func (self *Frame) setPort(dst bool, value []byte) error {
	off := self.cls.L4
	if dst {
		off += 2
	}
	copy(self.data[off:off+2], value)
	self.fixL4Checksum()
	return nil
}

func (self *Frame) isNeighborDiscovery(types ...uint8) bool {
	if !self.isIPv6() || !self.hasL4(ipProtoICMPv6) || self.cls.L4Len < 24 {
		return false
	}
	for _, t := range types {
		if self.cls.Icmpv6Type == t {
			return true
		}
	}
	return false
}

// ndOption returns the offset of the first ND option of optType carrying an
// ethernet address, or -1.
func (self *Frame) ndOption(optType uint8) int {
	end := self.cls.L4 + self.cls.L4Len
	for cur := self.cls.L4 + 24; cur+2 <= end; {
		olen := int(self.data[cur+1]) * 8
		if olen == 0 || cur+olen > end {
			return -1
		}
		if self.data[cur] == optType && olen >= 8 {
			return cur
		}
		cur += olen
	}
	return -1
}
