package ofp4sw

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Controller turns PacketIn notifications into OFPT_PACKET_IN messages.
// Frames longer than max_len are kept in Buffers and truncated.
type Controller struct {
	Buffers *LRUBufferPool
	Egress  func(msg []byte) error
	Log     *logrus.Entry

	xid uint32
}

func NewController(buffers *LRUBufferPool, egress func([]byte) error) *Controller {
	return &Controller{
		Buffers: buffers,
		Egress:  egress,
		Log:     logrus.WithField("component", "controller"),
	}
}

func (self *Controller) PacketIn(pin PacketIn) error {
	msg, err := self.message(pin)
	if err != nil {
		return err
	}
	buf, err := msg.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "packet_in marshal")
	}
	if self.Log != nil {
		self.Log.WithFields(logrus.Fields{
			"xid":       msg.Xid,
			"reason":    pin.Reason,
			"buffer_id": msg.BufferId,
			"in_port":   oxm.PortString(pin.InPort),
			"total_len": msg.TotalLen,
		}).Debug("packet_in")
	}
	if self.Egress == nil {
		return nil
	}
	return self.Egress(buf)
}

func (self *Controller) message(pin PacketIn) (ofp4.PacketIn, error) {
	data := pin.Data
	bufferId := uint32(ofp4.OFP_NO_BUFFER)
	if pin.MaxLen != ofp4.OFPCML_NO_BUFFER && len(data) > int(pin.MaxLen) && self.Buffers != nil {
		id, err := self.Buffers.Store(NewFrame(data, pin.InPort))
		if err != nil {
			return ofp4.PacketIn{}, err
		}
		bufferId = id
		data = data[:pin.MaxLen]
	}

	match := oxm.Match{}
	for k, v := range pin.Match {
		match[k] = v
	}
	inPort := make([]byte, 4)
	binary.BigEndian.PutUint32(inPort, pin.InPort)
	match.Set(oxm.OXM_OF_IN_PORT, inPort)
	matchBytes, err := match.MarshalBinary()
	if err != nil {
		return ofp4.PacketIn{}, errors.Wrap(err, "packet_in match")
	}

	return ofp4.PacketIn{
		Xid:      atomic.AddUint32(&self.xid, 1),
		BufferId: bufferId,
		TotalLen: uint16(len(pin.Data)),
		Reason:   pin.Reason,
		TableId:  pin.TableId,
		Cookie:   pin.Cookie,
		Match:    matchBytes,
		Data:     data,
	}, nil
}
