package ofp4sw

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/pkg/errors"
)

type PortState struct {
	Name     string
	LinkDown bool
	Blocked  bool
	Live     bool
	HwAddr   [6]byte
	Mtu      uint32
}

// Port is an egress endpoint. Egress must not retain data.
type Port interface {
	Name() string
	State() PortState
	Egress(data []byte) error
}

// IngressPort is a Port that also receives frames.
type IngressPort interface {
	Port
	Ingress() <-chan []byte
}

type PortStats struct {
	TxPackets uint64
	TxBytes   uint64
	TxDropped uint64
	TxErrors  uint64
}

type portEntry struct {
	port  Port
	stats PortStats
}

// PortTable numbers ports and implements PortIO over them.
type PortTable struct {
	lock  sync.RWMutex
	ports map[uint32]*portEntry
}

func NewPortTable() *PortTable {
	return &PortTable{ports: make(map[uint32]*portEntry)}
}

func (self *PortTable) AddPort(portNo uint32, port Port) error {
	if portNo == 0 || portNo > ofp4.OFPP_MAX {
		return errors.Errorf("invalid port number %d", portNo)
	}
	self.lock.Lock()
	defer self.lock.Unlock()
	if _, exists := self.ports[portNo]; exists {
		return errors.Errorf("port %d already exists", portNo)
	}
	self.ports[portNo] = &portEntry{port: port}
	return nil
}

func (self *PortTable) RemovePort(portNo uint32) {
	self.lock.Lock()
	defer self.lock.Unlock()
	delete(self.ports, portNo)
}

// Close closes every port that is an io.Closer and empties the table.
func (self *PortTable) Close() error {
	self.lock.Lock()
	defer self.lock.Unlock()
	var first error
	for portNo, entry := range self.ports {
		if c, ok := entry.port.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(self.ports, portNo)
	}
	return first
}

func (self *PortTable) Port(portNo uint32) (Port, bool) {
	self.lock.RLock()
	defer self.lock.RUnlock()
	if entry, ok := self.ports[portNo]; ok {
		return entry.port, true
	}
	return nil, false
}

// IngressPorts returns the ports that receive frames, by port number.
func (self *PortTable) IngressPorts() map[uint32]IngressPort {
	self.lock.RLock()
	defer self.lock.RUnlock()
	ret := make(map[uint32]IngressPort)
	for portNo, entry := range self.ports {
		if port, ok := entry.port.(IngressPort); ok {
			ret[portNo] = port
		}
	}
	return ret
}

func (self *PortTable) Stats(portNo uint32) (PortStats, bool) {
	self.lock.RLock()
	defer self.lock.RUnlock()
	entry, ok := self.ports[portNo]
	if !ok {
		return PortStats{}, false
	}
	return PortStats{
		TxPackets: atomic.LoadUint64(&entry.stats.TxPackets),
		TxBytes:   atomic.LoadUint64(&entry.stats.TxBytes),
		TxDropped: atomic.LoadUint64(&entry.stats.TxDropped),
		TxErrors:  atomic.LoadUint64(&entry.stats.TxErrors),
	}, true
}

// IsLinkUp treats reserved ports as always up.
func (self *PortTable) IsLinkUp(portNo uint32) bool {
	if portNo > ofp4.OFPP_MAX {
		return true
	}
	port, ok := self.Port(portNo)
	if !ok {
		return false
	}
	return !port.State().LinkDown
}

// Send delivers f to one port, or to every port but the ingress one for
// OFPP_ALL and OFPP_FLOOD. Ports that are down or blocked count a drop.
func (self *PortTable) Send(portNo uint32, f *Frame) error {
	switch portNo {
	case ofp4.OFPP_ALL, ofp4.OFPP_FLOOD:
		var targets []*portEntry
		self.lock.RLock()
		for outPortNo, entry := range self.ports {
			if outPortNo != f.InPort() {
				targets = append(targets, entry)
			}
		}
		self.lock.RUnlock()
		var first error
		for _, entry := range targets {
			if err := entry.send(f.data); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	if portNo > ofp4.OFPP_MAX {
		return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_OUT_PORT}
	}
	self.lock.RLock()
	entry, ok := self.ports[portNo]
	self.lock.RUnlock()
	if !ok {
		return errors.Errorf("port %d not found", portNo)
	}
	return entry.send(f.data)
}

func (self *portEntry) send(data []byte) error {
	state := self.port.State()
	if state.LinkDown || state.Blocked {
		atomic.AddUint64(&self.stats.TxDropped, 1)
		return nil
	}
	if err := self.port.Egress(data); err != nil {
		atomic.AddUint64(&self.stats.TxErrors, 1)
		return errors.Wrapf(err, "egress %s", self.port.Name())
	}
	atomic.AddUint64(&self.stats.TxPackets, 1)
	atomic.AddUint64(&self.stats.TxBytes, uint64(len(data)))
	return nil
}
