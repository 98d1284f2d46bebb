package ofp4sw

import (
	"testing"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordController(t *testing.T, size int) (*Controller, *LRUBufferPool, *[]ofp4.PacketIn) {
	pool, err := NewLRUBufferPool(size)
	require.NoError(t, err)
	var msgs []ofp4.PacketIn
	c := NewController(pool, func(data []byte) error {
		var msg ofp4.PacketIn
		require.NoError(t, msg.UnmarshalBinary(data))
		msgs = append(msgs, msg)
		return nil
	})
	c.Log = testLog()
	return c, pool, &msgs
}

func TestControllerTruncates(t *testing.T) {
	c, pool, msgs := recordController(t, 4)
	data := udp4Frame(t)
	require.NoError(t, c.PacketIn(PacketIn{
		Cookie:  9,
		Reason:  ofp4.OFPR_ACTION,
		MaxLen:  16,
		TableId: 2,
		InPort:  5,
		Data:    data,
	}))
	require.Len(t, *msgs, 1)
	msg := (*msgs)[0]
	assert.Equal(t, data[:16], msg.Data)
	assert.Equal(t, uint16(len(data)), msg.TotalLen)
	assert.Equal(t, uint64(9), msg.Cookie)
	assert.Equal(t, uint8(2), msg.TableId)

	match, err := oxm.FromOxm(msg.Match)
	require.NoError(t, err)
	v, ok := match.Get(oxm.OXM_OF_IN_PORT)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 5}, v.Value)

	f, ok := pool.Lookup(msg.BufferId)
	require.True(t, ok)
	assert.Equal(t, data, f.Bytes())
	assert.Equal(t, uint32(5), f.InPort())
}

func TestControllerNoBuffer(t *testing.T) {
	c, pool, msgs := recordController(t, 4)
	data := udp4Frame(t)
	flowMatch := oxm.Match{oxm.OXM_OF_ETH_TYPE: {Value: []byte{0x08, 0x00}}}
	for _, maxLen := range []uint16{ofp4.OFPCML_NO_BUFFER, uint16(len(data)), 0xfff0} {
		require.NoError(t, c.PacketIn(PacketIn{MaxLen: maxLen, InPort: 1, Match: flowMatch, Data: data}))
	}
	require.Len(t, *msgs, 3)
	for _, msg := range *msgs {
		assert.Equal(t, uint32(ofp4.OFP_NO_BUFFER), msg.BufferId)
		assert.Equal(t, data, msg.Data)
		match, err := oxm.FromOxm(msg.Match)
		require.NoError(t, err)
		assert.Len(t, match, 2)
	}
	assert.Equal(t, 0, pool.Len())
	assert.Len(t, flowMatch, 1)
	assert.NotEqual(t, (*msgs)[0].Xid, (*msgs)[1].Xid)
}

func TestControllerEgressError(t *testing.T) {
	pool, err := NewLRUBufferPool(1)
	require.NoError(t, err)
	c := NewController(pool, func([]byte) error { return assert.AnError })
	assert.ErrorIs(t, c.PacketIn(PacketIn{MaxLen: ofp4.OFPCML_NO_BUFFER, Data: udp4Frame(t)}), assert.AnError)
}
