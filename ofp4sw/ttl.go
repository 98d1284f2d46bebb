package ofp4sw

// decrementTtl lowers *ttl by one. It reports false and leaves the value
// alone when it is already zero.
func decrementTtl(ttl *uint8) bool {
	if *ttl == 0 {
		return false
	}
	*ttl--
	return true
}

func (self *Frame) mplsTtl() *uint8 {
	if self.cls.Mpls < 0 {
		return nil
	}
	return &self.data[self.cls.Mpls+3]
}

func (self *Frame) ipTtl() *uint8 {
	switch {
	case self.isIPv4():
		return &self.data[self.cls.L3+8]
	case self.isIPv6():
		return &self.data[self.cls.L3+7]
	}
	return nil
}

// decMplsTtl returns ok=false when the TTL was already zero.
func (self *Frame) decMplsTtl() (bool, error) {
	ttl := self.mplsTtl()
	if ttl == nil {
		return true, mismatch("dec_mpls_ttl", "an MPLS shim")
	}
	return decrementTtl(ttl), nil
}

func (self *Frame) decNwTtl() (bool, error) {
	ttl := self.ipTtl()
	if ttl == nil {
		return true, mismatch("dec_nw_ttl", "IPv4 or IPv6")
	}
	if !decrementTtl(ttl) {
		return false, nil
	}
	self.fixIPv4Checksum()
	return true, nil
}

func (self *Frame) setMplsTtl(value uint8) error {
	ttl := self.mplsTtl()
	if ttl == nil {
		return mismatch("set_mpls_ttl", "an MPLS shim")
	}
	*ttl = value
	return nil
}

func (self *Frame) setNwTtl(value uint8) error {
	ttl := self.ipTtl()
	if ttl == nil {
		return mismatch("set_nw_ttl", "IPv4 or IPv6")
	}
	*ttl = value
	self.fixIPv4Checksum()
	return nil
}

// copyTtlIn copies the outermost MPLS TTL into the IP TTL or hop limit.
func (self *Frame) copyTtlIn() error {
	mpls, ip := self.mplsTtl(), self.ipTtl()
	if mpls == nil || ip == nil {
		return mismatch("copy_ttl_in", "MPLS over IPv4 or IPv6")
	}
	*ip = *mpls
	self.fixIPv4Checksum()
	return nil
}

// copyTtlOut copies the IP TTL or hop limit into the outermost MPLS TTL.
func (self *Frame) copyTtlOut() error {
	mpls, ip := self.mplsTtl(), self.ipTtl()
	if mpls == nil || ip == nil {
		return mismatch("copy_ttl_out", "MPLS over IPv4 or IPv6")
	}
	*mpls = *ip
	return nil
}
