package ofp4sw

import (
	"encoding/binary"
)

// Classification is the parsed view of a Frame. Offsets index into the frame
// bytes and are -1 when the header is absent.
type Classification struct {
	// carried across re-classification
	InPort   uint32
	Metadata uint64

	EthType    uint16 // ethertype of the L2 payload
	TypeOffset int    // ethertype field that EthType was read from
	Vlan       int    // outermost 802.1Q TCI, right after the ethernet header
	Mpls       int    // outermost MPLS shim

	L3     int
	L3Type uint16 // layers.EthernetType of the L3 header, 0 when none

	L4      int
	L4Proto uint8
	L4Len   int // L4 header plus payload, bounded by the IP length field

	Icmpv6Type uint8
}

func (self Classification) reset() Classification {
	return Classification{
		InPort:   self.InPort,
		Metadata: self.Metadata,
		Vlan:     -1,
		Mpls:     -1,
		L3:       -1,
		L4:       -1,
	}
}

// Frame is an owned, resizable packet buffer with its attached Classification.
// The Classification must be refreshed by a Classifier after any byte change
// that could move headers.
type Frame struct {
	data []byte
	cls  Classification
}

// NewFrame wraps data without copying it. Edits change data in place, but
// a frame never grows into the spare capacity of data.
func NewFrame(data []byte, inPort uint32) *Frame {
	f := &Frame{data: data[:len(data):len(data)]}
	f.cls = Classification{InPort: inPort}.reset()
	return f
}

func (self *Frame) Bytes() []byte {
	return self.data
}

func (self *Frame) Len() int {
	return len(self.data)
}

func (self *Frame) Classification() Classification {
	return self.cls
}

func (self *Frame) InPort() uint32 {
	return self.cls.InPort
}

func (self *Frame) SetInPort(port uint32) {
	self.cls.InPort = port
}

func (self *Frame) SetMetadata(metadata uint64) {
	self.cls.Metadata = metadata
}

// Clone returns a deep copy that shares no bytes with the receiver.
func (self *Frame) Clone() *Frame {
	return &Frame{
		data: append([]byte(nil), self.data...),
		cls:  self.cls,
	}
}

func (self *Frame) uint16At(off int) uint16 {
	return binary.BigEndian.Uint16(self.data[off:])
}

func (self *Frame) putUint16At(off int, v uint16) {
	binary.BigEndian.PutUint16(self.data[off:], v)
}

func (self *Frame) uint32At(off int) uint32 {
	return binary.BigEndian.Uint32(self.data[off:])
}

func (self *Frame) putUint32At(off int, v uint32) {
	binary.BigEndian.PutUint32(self.data[off:], v)
}

func (self *Frame) isIPv4() bool {
	return self.cls.L3 >= 0 && self.cls.L3Type == ethTypeIPv4
}

func (self *Frame) isIPv6() bool {
	return self.cls.L3 >= 0 && self.cls.L3Type == ethTypeIPv6
}

func (self *Frame) isARP() bool {
	return self.cls.L3 >= 0 && self.cls.L3Type == ethTypeARP
}

func (self *Frame) hasL4(proto uint8) bool {
	return self.cls.L4 >= 0 && self.cls.L4Proto == proto
}
