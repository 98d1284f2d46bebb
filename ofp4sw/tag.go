package ofp4sw

import (
	"github.com/pkg/errors"
)

const (
	ethHeaderSize = 14
	vlanTagSize   = 4
	mplsShimSize  = 4
)

// pushTag opens a zero filled gap of size bytes at offset.
func (self *Frame) pushTag(offset, size int) error {
	if offset < 0 || offset > len(self.data) {
		return errors.Errorf("tag offset %d out of frame length %d", offset, len(self.data))
	}
	oldLen := len(self.data)
	if cap(self.data) >= oldLen+size {
		self.data = self.data[:oldLen+size]
	} else {
		grown := make([]byte, oldLen+size, (oldLen+size)*2)
		copy(grown, self.data)
		self.data = grown
	}
	copy(self.data[offset+size:], self.data[offset:oldLen])
	for i := offset; i < offset+size; i++ {
		self.data[i] = 0
	}
	return nil
}

// popTag removes size bytes at offset.
func (self *Frame) popTag(offset, size int) error {
	if offset < 0 || offset+size > len(self.data) {
		return errors.Errorf("tag range %d+%d out of frame length %d", offset, size, len(self.data))
	}
	copy(self.data[offset:], self.data[offset+size:])
	self.data = self.data[:len(self.data)-size]
	return nil
}

func (self *Frame) pushVlan(ethType uint16) error {
	if ethType != 0x8100 && ethType != 0x88a8 {
		return errBadArgument()
	}
	at := ethHeaderSize
	var tci uint16
	if self.cls.Vlan >= 0 {
		at = self.cls.Vlan
		tci = self.uint16At(self.cls.Vlan)
	}
	inner := self.uint16At(at - 2)
	if err := self.pushTag(at, vlanTagSize); err != nil {
		return err
	}
	self.putUint16At(at, tci)
	self.putUint16At(at+2, inner)
	self.putUint16At(at-2, ethType)
	return nil
}

func (self *Frame) popVlan() error {
	if self.cls.Vlan < 0 {
		return mismatch("pop_vlan", "a VLAN tag")
	}
	at := self.cls.Vlan
	self.putUint16At(at-2, self.uint16At(at+2))
	return self.popTag(at, vlanTagSize)
}

func (self *Frame) pushMpls(ethType uint16) error {
	if ethType != 0x8847 && ethType != 0x8848 {
		return errBadArgument()
	}
	at := self.cls.TypeOffset + 2
	var shim uint32
	if self.cls.Mpls >= 0 {
		at = self.cls.Mpls
		shim = self.uint32At(at) &^ 0x100
	} else {
		shim = 0x100
		switch {
		case self.isIPv4():
			shim |= uint32(self.data[self.cls.L3+8])
		case self.isIPv6():
			shim |= uint32(self.data[self.cls.L3+7])
		}
	}
	if err := self.pushTag(at, mplsShimSize); err != nil {
		return err
	}
	self.putUint32At(at, shim)
	self.putUint16At(self.cls.TypeOffset, ethType)
	return nil
}

func (self *Frame) popMpls(ethType uint16) error {
	if self.cls.Mpls < 0 {
		return mismatch("pop_mpls", "an MPLS shim")
	}
	self.putUint16At(self.cls.TypeOffset, ethType)
	return self.popTag(self.cls.Mpls, mplsShimSize)
}
