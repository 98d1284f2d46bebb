package ofp4sw

import (
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PacketOut is a controller request to run Actions against a buffered frame,
// or against Data when BufferId is OFP_NO_BUFFER.
type PacketOut struct {
	BufferId uint32
	InPort   uint32
	Actions  ActionList
	Data     []byte
}

// PacketOut runs the request under the pipeline lock. The working frame goes
// back to the buffer pool whatever the outcome.
func (self *Pipeline) PacketOut(req PacketOut) (err error) {
	defer func() {
		self.Metrics.packetOut(err)
	}()

	var f *Frame
	if req.BufferId != ofp4.OFP_NO_BUFFER {
		var ok bool
		if f, ok = self.Buffers.Lookup(req.BufferId); !ok {
			return ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BUFFER_UNKNOWN}
		}
	} else {
		f = self.Buffers.Duplicate(&Frame{data: req.Data})
	}
	defer self.Buffers.Release(f)

	f.SetInPort(req.InPort)
	if !self.Classifier.Classify(f) {
		return errors.Wrapf(ErrClassify, "packet_out buffer_id=0x%x", req.BufferId)
	}

	if !self.Lock.Acquire() {
		return errors.New("pipeline lock not acquired")
	}
	defer self.Lock.Release()

	if err = self.ApplyActions(f, req.Actions, PacketOutFlow); err != nil {
		self.Log.WithFields(logrus.Fields{
			"buffer_id": req.BufferId,
			"in_port":   req.InPort,
		}).Debug(err)
	}
	return err
}
