package ofp4sw

import (
	"testing"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseList(t *testing.T, txt string) ActionList {
	actions, err := ParseActionList(txt)
	require.NoError(t, err)
	return actions
}

func TestExecuteGoto(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	set := NewActionSet()
	require.NoError(t, set.Write(parseList(t, "output=9")))

	f := classified(t, udp4Frame(t), 1)
	next, err := pipe.Execute(f, set, Instructions{
		Apply:        parseList(t, "output=1"),
		Clear:        true,
		Write:        parseList(t, "output=2"),
		Metadata:     0x0f,
		MetadataMask: 0xff,
		GotoTable:    3,
	}, FlowRef{TableId: 1})
	require.NoError(t, err)
	assert.Equal(t, uint8(3), next)
	assert.Equal(t, []uint32{1}, ports.ports())
	assert.Len(t, set, 1)
	assert.Equal(t, uint32(2), set[ofp4.OFPAT_OUTPUT].(actionOutput).Port)
	assert.Equal(t, uint64(0x0f), f.Classification().Metadata)

	next, err = pipe.Execute(f, set, Instructions{}, FlowRef{TableId: 3})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), next)
	assert.Equal(t, []uint32{1, 2}, ports.ports())
}

func TestExecuteDroppedStops(t *testing.T) {
	pipe, ports, controller := newTestPipeline()
	set := NewActionSet()
	f := classified(t, mplsUdp4Frame(t, 0), 1)
	next, err := pipe.Execute(f, set, Instructions{
		Apply: parseList(t, "dec_mpls_ttl"),
		Write: parseList(t, "output=2"),
	}, FlowRef{})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), next)
	assert.Empty(t, set)
	assert.Empty(t, ports.sent)
	assert.Len(t, controller.pins, 1)
}

func TestExecuteInvalid(t *testing.T) {
	pipe, _, _ := newTestPipeline()
	f := classified(t, udp4Frame(t), 1)
	_, err := pipe.Execute(f, NewActionSet(), Instructions{GotoTable: 2}, FlowRef{TableId: 2})
	assert.Equal(t, ofp4.Error{Type: ofp4.OFPET_BAD_INSTRUCTION, Code: ofp4.OFPBIC_BAD_TABLE_ID}, err)
	_, err = pipe.Execute(f, NewActionSet(), Instructions{Metadata: 0x100, MetadataMask: 0xff}, FlowRef{})
	assert.Error(t, err)
}

type countingLock struct {
	held     bool
	acquired int
}

func (self *countingLock) Acquire() bool {
	self.held = true
	self.acquired++
	return true
}

func (self *countingLock) Release() {
	self.held = false
}

type heldPorts struct {
	recordingPorts
	lock   *countingLock
	inside []bool
}

func (self *heldPorts) Send(portNo uint32, f *Frame) error {
	self.inside = append(self.inside, self.lock.held)
	return self.recordingPorts.Send(portNo, f)
}

func TestExecuteHoldsPipelineLock(t *testing.T) {
	pipe, _, _ := newTestPipeline()
	lock := &countingLock{}
	ports := &heldPorts{lock: lock}
	pipe.Lock = lock
	pipe.Ports = ports

	set := NewActionSet()
	require.NoError(t, set.Write(parseList(t, "output=2")))
	_, err := pipe.Execute(classified(t, udp4Frame(t), 1), set, Instructions{
		Apply: parseList(t, "output=1"),
	}, FlowRef{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, ports.inside)
	assert.Equal(t, 1, lock.acquired)
	assert.False(t, lock.held)

	pipe.Lock = refusingLock{}
	ports.inside = nil
	_, err = pipe.Execute(classified(t, udp4Frame(t), 1), set, Instructions{}, FlowRef{})
	assert.Error(t, err)
	assert.Empty(t, ports.inside)
}
