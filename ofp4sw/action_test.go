package ofp4sw

import (
	"testing"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionListStopsAtUnsupported(t *testing.T) {
	badType := ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}
	for _, unsupported := range []string{
		"set_queue=1",
		"push_pbb=0x88e7",
		"pop_pbb",
		"experimenter=0x2320",
	} {
		t.Run(unsupported, func(t *testing.T) {
			pipe, ports, _ := newTestPipeline()
			actions, err := ParseActionList("output=1," + unsupported + ",output=2")
			require.NoError(t, err)
			err = pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, FlowRef{})
			assert.Equal(t, badType, err)
			assert.Equal(t, []uint32{1}, ports.ports())
		})
	}
}

func TestOutputInPort(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	actions, err := ParseActionList("output=in_port")
	require.NoError(t, err)
	require.NoError(t, pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, FlowRef{}))
	assert.Equal(t, []uint32{9}, ports.ports())
}

func TestOutputController(t *testing.T) {
	pipe, ports, controller := newTestPipeline()
	actions, err := ParseActionList("output=controller:0x80")
	require.NoError(t, err)
	flow := FlowRef{Cookie: 77, TableId: 1}
	require.NoError(t, pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, flow))
	assert.Empty(t, ports.sent)
	require.Len(t, controller.pins, 1)
	assert.Equal(t, uint8(ofp4.OFPR_ACTION), controller.pins[0].Reason)
	assert.Equal(t, uint16(0x80), controller.pins[0].MaxLen)
	assert.Equal(t, uint64(77), controller.pins[0].Cookie)
}

func TestOutputSendsSnapshot(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	actions, err := ParseActionList("output=1,push_vlan=0x8100,output=2")
	require.NoError(t, err)
	orig := udp4Frame(t)
	require.NoError(t, pipe.ApplyActions(classified(t, append([]byte(nil), orig...), 9), actions, FlowRef{}))
	require.Len(t, ports.sent, 2)
	assert.Equal(t, orig, ports.sent[0].data)
	assert.Len(t, ports.sent[1].data, len(orig)+4)
}

func TestOutputFailure(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	ports.err = assert.AnError
	actions, err := ParseActionList("output=1")
	require.NoError(t, err)
	err = pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, FlowRef{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output to port 1")
}

type failingClassifier struct{}

func (failingClassifier) Classify(f *Frame) bool { return false }

func TestReclassifyFailure(t *testing.T) {
	pipe, ports, _ := newTestPipeline()
	pipe.Classifier = failingClassifier{}
	actions, err := ParseActionList("push_vlan=0x8100,output=1")
	require.NoError(t, err)
	err = pipe.ApplyActions(classified(t, udp4Frame(t), 1), actions, FlowRef{})
	assert.Equal(t, ErrClassify, err)
	assert.Empty(t, ports.sent)
}

func TestDecodeActionListBadLength(t *testing.T) {
	_, err := DecodeActionList([]byte{0, 0, 0, 4, 0, 0, 0, 0})
	assert.Equal(t, ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_LEN}, err)
}

func TestActionMetrics(t *testing.T) {
	pipe, _, _ := newTestPipeline()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	pipe.Metrics = metrics

	actions, err := ParseActionList("output=1,set_queue=3")
	require.NoError(t, err)
	assert.Error(t, pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, FlowRef{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues("output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues("set_queue")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActionFailures.WithLabelValues("output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActionFailures.WithLabelValues("set_queue")))
}

func TestNilMetrics(t *testing.T) {
	var metrics *Metrics
	metrics.action(ofp4.OFPAT_OUTPUT, nil)
	metrics.packetIn(ofp4.OFPR_ACTION)
	metrics.bucket(ofp4.OFPGT_ALL)
	metrics.packetOut(nil)
}

func TestActionListUnknownType(t *testing.T) {
	// output:1, then type 0x99 with an empty body, then output:2
	data := []byte{
		0, 0, 0, 16, 0, 0, 0, 1, 0xff, 0xff, 0, 0, 0, 0, 0, 0,
		0, 0x99, 0, 8, 0, 0, 0, 0,
		0, 0, 0, 16, 0, 0, 0, 2, 0xff, 0xff, 0, 0, 0, 0, 0, 0,
	}
	actions, err := DecodeActionList(data)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	pipe, ports, _ := newTestPipeline()
	err = pipe.ApplyActions(classified(t, udp4Frame(t), 9), actions, FlowRef{})
	assert.Equal(t, ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}, err)
	assert.Equal(t, []uint32{1}, ports.ports())
}
