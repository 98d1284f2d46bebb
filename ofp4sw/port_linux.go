//go:build linux

package ofp4sw

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetdevPort binds a linux network device through an AF_PACKET socket and
// follows its link state over rtnetlink.
type NetdevPort struct {
	name    string
	lock    sync.RWMutex
	state   PortState
	handle  *pktSock
	ingress chan []byte
	done    chan struct{}
	log     *logrus.Entry
}

func NewNetdevPort(name string, log *logrus.Entry) (*NetdevPort, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, errors.Wrapf(err, "netdev %s", name)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	self := &NetdevPort{
		name:    name,
		ingress: make(chan []byte, 64),
		done:    make(chan struct{}),
		log:     log.WithField("port", name),
	}
	updates := make(chan netlink.LinkUpdate)
	if err := netlink.LinkSubscribe(updates, self.done); err != nil {
		return nil, errors.Wrap(err, "link subscribe")
	}
	if err := self.handleLink(link); err != nil {
		close(self.done)
		return nil, err
	}
	go func() {
		for update := range updates {
			if update.Link == nil || update.Link.Attrs().Name != self.name {
				continue
			}
			if update.Header.Type == unix.RTM_DELLINK {
				self.closeHandle()
				self.lock.Lock()
				self.state.LinkDown = true
				self.state.Live = false
				self.lock.Unlock()
				continue
			}
			if err := self.handleLink(update.Link); err != nil {
				self.log.WithError(err).Warn("link update")
			}
		}
	}()
	return self, nil
}

func (self *NetdevPort) handleLink(link netlink.Link) error {
	attrs := link.Attrs()
	state := PortState{
		Name:     attrs.Name,
		LinkDown: attrs.OperState != netlink.OperUp && attrs.OperState != netlink.OperUnknown,
		Blocked:  attrs.Flags&net.FlagUp == 0,
		Mtu:      uint32(attrs.MTU),
	}
	state.Live = !state.LinkDown && !state.Blocked
	copy(state.HwAddr[:], attrs.HardwareAddr)

	self.lock.Lock()
	self.state = state
	needOpen := !state.Blocked && self.handle == nil
	self.lock.Unlock()

	if state.Blocked {
		self.closeHandle()
		return nil
	}
	if needOpen {
		handle, err := newPktSock(attrs.Index)
		if err != nil {
			return errors.Wrapf(err, "packet socket on %s", self.name)
		}
		self.lock.Lock()
		self.handle = handle
		self.lock.Unlock()
		go self.receive(handle)
	}
	return nil
}

// receive owns the socket descriptor and closes it on return.
func (self *NetdevPort) receive(handle *pktSock) {
	defer func() {
		self.lock.Lock()
		if self.handle == handle {
			self.handle = nil
		}
		self.lock.Unlock()
		unix.Close(handle.fd)
	}()
	for {
		select {
		case <-handle.closing:
			return
		default:
		}
		data, err := handle.Get()
		if err != nil {
			if _, ignore := err.(pktSockIgnore); ignore {
				continue
			}
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			self.log.WithError(err).Warn("receive stopped")
			return
		}
		select {
		case self.ingress <- data:
		default:
			self.log.Debug("ingress queue full, frame dropped")
		}
	}
}

func (self *NetdevPort) closeHandle() {
	self.lock.Lock()
	handle := self.handle
	self.handle = nil
	self.lock.Unlock()
	if handle != nil {
		handle.Close()
	}
}

func (self *NetdevPort) Name() string {
	return self.name
}

func (self *NetdevPort) State() PortState {
	self.lock.RLock()
	defer self.lock.RUnlock()
	return self.state
}

// Ingress yields received frames with any stripped VLAN tag restored.
// Frames are dropped while the channel is full.
func (self *NetdevPort) Ingress() <-chan []byte {
	return self.ingress
}

func (self *NetdevPort) Egress(data []byte) error {
	self.lock.RLock()
	defer self.lock.RUnlock()
	if self.handle == nil {
		return errors.Errorf("%s not open", self.name)
	}
	return self.handle.Put(data)
}

func (self *NetdevPort) Close() error {
	select {
	case <-self.done:
	default:
		close(self.done)
	}
	self.closeHandle()
	return nil
}

// struct tpacket_auxdata
const sizeofAuxdata = 20

// pktSockTimeout bounds how long a closed socket keeps its receiver blocked.
const pktSockTimeout = 200 * time.Millisecond

type pktSock struct {
	ifindex int
	fd      int
	buf     []byte
	closing chan struct{}
	once    sync.Once
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

func newPktSock(ifindex int) (*pktSock, error) {
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, err
	}
	if err := func() error {
		if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_AUXDATA, 1); err != nil {
			return err
		}
		tv := unix.NsecToTimeval(int64(pktSockTimeout))
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return err
		}
		return unix.Bind(fd, &unix.SockaddrLinklayer{
			Protocol: proto,
			Ifindex:  ifindex,
		})
	}(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &pktSock{
		ifindex: ifindex,
		fd:      fd,
		buf:     make([]byte, 64*1024),
		closing: make(chan struct{}),
	}, nil
}

type pktSockIgnore string

func (self pktSockIgnore) Error() string {
	return string(self)
}

func (self *pktSock) Get() ([]byte, error) {
	p := self.buf
	oob := make([]byte, unix.CmsgSpace(sizeofAuxdata))
	n, oobn, flags, from, err := unix.Recvmsg(self.fd, p, oob, unix.MSG_TRUNC)
	if err != nil {
		return nil, err
	}
	if ll, ok := from.(*unix.SockaddrLinklayer); !ok || ll.Ifindex != self.ifindex {
		return nil, pktSockIgnore("ifindex mismatch")
	} else if ll.Pkttype == unix.PACKET_OUTGOING {
		return nil, pktSockIgnore("outgoing")
	}
	if n > len(p) {
		n = len(p)
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return append([]byte(nil), p[:n]...), nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, err
	}
	for _, cmsg := range cmsgs {
		if cmsg.Header.Level != unix.SOL_PACKET || cmsg.Header.Type != unix.PACKET_AUXDATA {
			continue
		}
		if len(cmsg.Data) < 18 {
			return nil, errors.New("unexpected PACKET_AUXDATA")
		}
		status := binary.NativeEndian.Uint32(cmsg.Data[0:])
		if status&unix.TP_STATUS_VLAN_VALID == 0 || n < 12 {
			break
		}
		tpid := uint16(0x8100)
		if len(cmsg.Data) >= 20 && status&unix.TP_STATUS_VLAN_TPID_VALID != 0 {
			tpid = binary.NativeEndian.Uint16(cmsg.Data[18:])
		}
		tci := binary.NativeEndian.Uint16(cmsg.Data[16:])
		data := make([]byte, n+4)
		copy(data, p[:12])
		binary.BigEndian.PutUint16(data[12:], tpid)
		binary.BigEndian.PutUint16(data[14:], tci)
		copy(data[16:], p[12:n])
		return data, nil
	}
	return append([]byte(nil), p[:n]...), nil
}

func (self *pktSock) Put(data []byte) error {
	return unix.Sendto(self.fd, data, 0, &unix.SockaddrLinklayer{
		Ifindex: self.ifindex,
	})
}

// Close stops the receiver, which then releases the descriptor.
func (self *pktSock) Close() {
	self.once.Do(func() {
		close(self.closing)
	})
}

func openNetdevPort(name string, log *logrus.Entry) (Port, error) {
	return NewNetdevPort(name, log)
}
