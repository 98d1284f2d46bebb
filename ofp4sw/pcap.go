package ofp4sw

import (
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapPort records egress frames into a pcap stream.
type PcapPort struct {
	name   string
	lock   sync.Mutex
	writer *pcapgo.Writer
	closer io.Closer
	down   bool
	now    func() time.Time
}

func NewPcapPort(name string, w io.Writer) (*PcapPort, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	port := &PcapPort{
		name:   name,
		writer: writer,
		now:    time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		port.closer = c
	}
	return port, nil
}

func (self *PcapPort) Name() string {
	return self.name
}

func (self *PcapPort) State() PortState {
	self.lock.Lock()
	defer self.lock.Unlock()
	return PortState{
		Name:     self.name,
		LinkDown: self.down,
		Live:     !self.down,
	}
}

// SetLinkDown simulates a link state change.
func (self *PcapPort) SetLinkDown(down bool) {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.down = down
}

func (self *PcapPort) Egress(data []byte) error {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     self.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

func (self *PcapPort) Close() error {
	if self.closer != nil {
		return self.closer.Close()
	}
	return nil
}
