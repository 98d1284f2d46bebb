package oxm

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Header is the 32 bit OXM TLV header: class(16) field(7) hasmask(1) length(8).
type Header uint32

func (self Header) Class() uint16 {
	return uint16(self >> 16)
}

func (self Header) Field() uint8 {
	return uint8(self>>9) & 0x7f
}

func (self Header) HasMask() bool {
	return self&0x100 != 0
}

func (self Header) Length() int {
	return int(self & 0xff)
}

// Type strips the mask bit and the length.
func (self Header) Type() uint32 {
	return uint32(self) &^ 0x1ff
}

func (self *Header) SetMask(mask bool) {
	if mask {
		*self |= 0x100
	} else {
		*self &^= 0x100
	}
}

func (self *Header) SetLength(length int) {
	*self = (*self &^ 0xff) | Header(length&0xff)
}

// Oxm is a sequence of OXM TLVs in wire format.
type Oxm []byte

func (self Oxm) Header() Header {
	return Header(binary.BigEndian.Uint32(self))
}

// Iter splits the sequence into single TLVs. A truncated trailing TLV is dropped.
func (self Oxm) Iter() []Oxm {
	var ret []Oxm
	for cur := 0; cur+4 <= len(self); {
		length := 4 + Oxm(self[cur:]).Header().Length()
		if cur+length > len(self) {
			break
		}
		ret = append(ret, self[cur:cur+length])
		cur += length
	}
	return ret
}

// Value returns the unmasked value part of a single TLV.
func (self Oxm) Value() []byte {
	hdr := self.Header()
	p := self[4 : 4+hdr.Length()]
	if hdr.HasMask() {
		return p[:len(p)/2]
	}
	return p
}

// Mask returns the mask part of a single TLV, nil when unmasked.
func (self Oxm) Mask() []byte {
	hdr := self.Header()
	if !hdr.HasMask() {
		return nil
	}
	p := self[4 : 4+hdr.Length()]
	return p[len(p)/2:]
}

// OxmOfDefs returns the payload length and maskability of a basic field type.
func OxmOfDefs(oxmType uint32) (length int, maskable bool) {
	if def, ok := fieldsByType[Header(oxmType).Type()]; ok {
		return def.length, def.maskable
	}
	return 0, false
}

// Value is a single field value with an optional mask.
type Value struct {
	Value []byte
	Mask  []byte
}

// Match is a sparse set of basic field values keyed by OXM_OF_* type.
// It carries flow match criteria as well as SET_FIELD payloads.
type Match map[uint32]Value

func (self Match) Get(oxmType uint32) (Value, bool) {
	v, ok := self[oxmType]
	return v, ok
}

func (self Match) Set(oxmType uint32, value []byte) {
	self[oxmType] = Value{Value: value}
}

// Fields returns the present field types in ascending field order.
func (self Match) Fields() []uint32 {
	var ret []uint32
	for k := range self {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

func (self Match) MarshalBinary() ([]byte, error) {
	var buf []byte
	for _, oxmType := range self.Fields() {
		v := self[oxmType]
		hdr := Header(oxmType)
		if len(v.Mask) > 0 {
			if len(v.Mask) != len(v.Value) {
				return nil, fmt.Errorf("mask length mismatch for %s", FieldName(oxmType))
			}
			hdr.SetMask(true)
		}
		hdr.SetLength(len(v.Value) + len(v.Mask))
		tlv := make([]byte, 4, 4+len(v.Value)+len(v.Mask))
		binary.BigEndian.PutUint32(tlv, uint32(hdr))
		buf = append(buf, append(append(tlv, v.Value...), v.Mask...)...)
	}
	return buf, nil
}

// FromOxm builds a Match from basic class TLVs. Other classes are rejected.
func FromOxm(seq Oxm) (Match, error) {
	ret := make(Match)
	for _, tlv := range seq.Iter() {
		hdr := tlv.Header()
		if hdr.Class() != OFPXMC_OPENFLOW_BASIC {
			return nil, fmt.Errorf("unsupported oxm class 0x%04x", hdr.Class())
		}
		length, maskable := OxmOfDefs(hdr.Type())
		if length == 0 {
			return nil, fmt.Errorf("unknown oxm field %d", hdr.Field())
		}
		if hdr.HasMask() && !maskable {
			return nil, fmt.Errorf("%s not maskable", FieldName(hdr.Type()))
		}
		want := length
		if hdr.HasMask() {
			want *= 2
		}
		if hdr.Length() != want {
			return nil, fmt.Errorf("%s length %d", FieldName(hdr.Type()), hdr.Length())
		}
		v := Value{Value: append([]byte(nil), tlv.Value()...)}
		if m := tlv.Mask(); m != nil {
			v.Mask = append([]byte(nil), m...)
		}
		ret[hdr.Type()] = v
	}
	return ret, nil
}
