package ofp4sw

import (
	"testing"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPool struct {
	*LRUBufferPool
	released int
}

func (self *countingPool) Release(f *Frame) {
	self.released++
	self.LRUBufferPool.Release(f)
}

type refusingLock struct{}

func (refusingLock) Acquire() bool { return false }
func (refusingLock) Release()      {}

func TestPacketOutData(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	actions, err := ParseActionList("set_ipv4_dst=10.0.0.1,output=in_port")
	require.NoError(t, err)
	data := udp4Frame(t)
	orig := append([]byte(nil), data...)

	require.NoError(t, pipe.PacketOut(PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   4,
		Actions:  actions,
		Data:     data,
	}))
	assert.Equal(t, []uint32{4}, ports.ports())
	assert.Equal(t, orig, data)
	assert.NotEqual(t, orig, ports.sent[0].data)
}

func TestPacketOutBuffered(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	pool := &countingPool{LRUBufferPool: pipe.Buffers.(*LRUBufferPool)}
	pipe.Buffers = pool
	id, err := pool.Store(NewFrame(udp4Frame(t), 0))
	require.NoError(t, err)

	actions, err := ParseActionList("output=2")
	require.NoError(t, err)
	req := PacketOut{BufferId: id, InPort: ofp4.OFPP_CONTROLLER, Actions: actions}
	require.NoError(t, pipe.PacketOut(req))
	assert.Equal(t, []uint32{2}, ports.ports())
	assert.Equal(t, 1, pool.released)

	err = pipe.PacketOut(req)
	assert.Equal(t, ofp4.Error{Type: ofp4.OFPET_BAD_REQUEST, Code: ofp4.OFPBRC_BUFFER_UNKNOWN}, err)
	assert.Len(t, ports.sent, 1)
}

func TestPacketOutReleasesOnFailure(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	pool := &countingPool{LRUBufferPool: pipe.Buffers.(*LRUBufferPool)}
	pipe.Buffers = pool
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	pipe.Metrics = metrics

	actions, err := ParseActionList("output=1,set_queue=2,output=3")
	require.NoError(t, err)
	err = pipe.PacketOut(PacketOut{BufferId: ofp4.OFP_NO_BUFFER, Actions: actions, Data: udp4Frame(t)})
	assert.Equal(t, ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}, err)
	assert.Equal(t, []uint32{1}, ports.ports())
	assert.Equal(t, 1, pool.released)

	err = pipe.PacketOut(PacketOut{BufferId: ofp4.OFP_NO_BUFFER, Actions: actions, Data: make([]byte, 4)})
	assert.ErrorIs(t, err, ErrClassify)
	assert.Equal(t, 2, pool.released)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PacketOuts.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PacketOuts.WithLabelValues("ok")))
}

func TestPacketOutLock(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	pipe.Lock = refusingLock{}
	actions, err := ParseActionList("output=1")
	require.NoError(t, err)
	assert.Error(t, pipe.PacketOut(PacketOut{BufferId: ofp4.OFP_NO_BUFFER, Actions: actions, Data: udp4Frame(t)}))
	assert.Empty(t, ports.sent)
}
