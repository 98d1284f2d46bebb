/*
Package ofp4sw implements the action execution engine of an openflow 1.3
software switch: apply-actions, action sets, groups and packet-out.
*/
package ofp4sw

import (
	"sync"
	"time"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Classifier re-derives the Classification of a frame in place.
type Classifier interface {
	Classify(f *Frame) bool
}

// BufferPool owns frames referenced by openflow buffer ids.
type BufferPool interface {
	Lookup(bufferId uint32) (*Frame, bool)
	Duplicate(f *Frame) *Frame
	Release(f *Frame)
}

// PortIO delivers frames to ports. Send must not retain f.
type PortIO interface {
	Send(portNo uint32, f *Frame) error
	IsLinkUp(portNo uint32) bool
}

// ControllerChannel delivers packet-in notifications.
type ControllerChannel interface {
	PacketIn(pin PacketIn) error
}

// GroupTable looks up group entries. nil means no such group.
type GroupTable interface {
	LookupGroup(groupId uint32) *GroupEntry
}

// PipelineLock serializes packet-out against pipeline processing.
type PipelineLock interface {
	Acquire() bool
	Release()
}

// PacketIn is what the engine hands to the controller channel.
type PacketIn struct {
	Cookie  uint64
	Reason  uint8
	MaxLen  uint16
	TableId uint8
	Match   oxm.Match
	InPort  uint32
	Data    []byte
}

// FlowRef identifies the flow entry whose actions are running. It is only
// used to fill packet-in notifications.
type FlowRef struct {
	Cookie  uint64
	TableId uint8
	Match   oxm.Match
}

// PacketOutFlow is the owner of actions that come from a packet-out.
var PacketOutFlow = FlowRef{
	Cookie:  0xffffffffffffffff,
	TableId: ofp4.OFPTT_ALL,
}

type mutexLock struct {
	lock sync.Mutex
}

func (self *mutexLock) Acquire() bool {
	self.lock.Lock()
	return true
}

func (self *mutexLock) Release() {
	self.lock.Unlock()
}

const (
	DefaultMissSendLen    = 128
	DefaultBufferPoolSize = 256
)

// Pipeline holds the collaborators the action engine runs against.
// The zero value is not usable, use NewPipeline.
type Pipeline struct {
	Classifier Classifier
	Buffers    BufferPool
	Ports      PortIO
	Controller ControllerChannel
	Groups     GroupTable
	Lock       PipelineLock
	Metrics    *Metrics
	Log        *logrus.Entry

	// MissSendLen is the max_len of invalid TTL packet-ins.
	MissSendLen uint16
	Now         func() time.Time
}

func NewPipeline() *Pipeline {
	buffers, err := NewLRUBufferPool(DefaultBufferPoolSize)
	if err != nil {
		panic(err)
	}
	return &Pipeline{
		Classifier:  gopacketClassifier{},
		Buffers:     buffers,
		Groups:      NewGroupMap(),
		Lock:        &mutexLock{},
		Log:         logrus.WithField("component", "ofp4sw"),
		MissSendLen: DefaultMissSendLen,
		Now:         time.Now,
	}
}

// Classify refreshes the classification of f.
func (self *Pipeline) Classify(f *Frame) bool {
	return self.Classifier.Classify(f)
}

// ApplyActions runs an action list against f in order. It stops at the first
// failure and leaves the frame as modified so far.
func (self *Pipeline) ApplyActions(f *Frame, actions ActionList, flow FlowRef) error {
	ctx := &execution{pipe: self, flow: flow}
	return ignoreDropped(ctx.applyList(f, actions))
}

// ApplyActionSet runs an action set against f in canonical order.
func (self *Pipeline) ApplyActionSet(f *Frame, set ActionSet, flow FlowRef) error {
	ctx := &execution{pipe: self, flow: flow}
	return ignoreDropped(ctx.applySet(f, set))
}

func ignoreDropped(err error) error {
	if err == errDropped {
		return nil
	}
	return err
}

// execution is the state of one action list or action set application.
type execution struct {
	pipe  *Pipeline
	flow  FlowRef
	chain []uint32 // groups being executed, outermost first
}

func (self *execution) reclassify(f *Frame) error {
	if !self.pipe.Classifier.Classify(f) {
		return ErrClassify
	}
	return nil
}

func (self *execution) packetIn(f *Frame, reason uint8, maxLen uint16) error {
	if self.pipe.Controller == nil {
		return errors.New("no controller channel")
	}
	pin := PacketIn{
		Cookie:  self.flow.Cookie,
		Reason:  reason,
		MaxLen:  maxLen,
		TableId: self.flow.TableId,
		Match:   self.flow.Match,
		InPort:  f.InPort(),
		Data:    append([]byte(nil), f.data...),
	}
	self.pipe.Metrics.packetIn(reason)
	if err := self.pipe.Controller.PacketIn(pin); err != nil {
		return errors.Wrapf(err, "packet_in reason=%d", reason)
	}
	return nil
}

func (self *execution) output(f *Frame, port uint32, maxLen uint16) error {
	switch port {
	case ofp4.OFPP_CONTROLLER:
		return self.packetIn(f, ofp4.OFPR_ACTION, maxLen)
	case ofp4.OFPP_IN_PORT:
		port = f.InPort()
	}
	if self.pipe.Ports == nil {
		return errors.New("no port io")
	}
	if err := self.pipe.Ports.Send(port, f); err != nil {
		return errors.Wrapf(err, "output to port %d", port)
	}
	return nil
}
