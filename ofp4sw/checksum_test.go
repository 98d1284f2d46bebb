package ofp4sw

import (
	"testing"

	"github.com/hkwi/ofp4act/oxm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternetChecksum(t *testing.T) {
	for _, c := range []struct {
		data []byte
		sum  uint16
	}{
		{[]byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}, 0x220d},
		{[]byte{0x01}, 0xfeff},
		{[]byte{0x00, 0x01, 0x02}, 0xfdfe},
		{nil, 0xffff},
	} {
		assert.Equal(t, c.sum, internetChecksum(c.data), "%x", c.data)
	}
}

func TestAroundCarry(t *testing.T) {
	assert.Equal(t, uint32(0x0001), aroundCarry(0x10000))
	assert.Equal(t, uint32(0xffff), aroundCarry(0x1fffe))
	assert.Equal(t, uint32(0x1234), aroundCarry(0x1234))
}

func TestFixChecksums(t *testing.T) {
	for name, data := range map[string][]byte{
		"udp": udp4Frame(t),
		"tcp": tcp4Frame(t),
		"nd":  neighborSolicitationFrame(t),
	} {
		t.Run(name, func(t *testing.T) {
			f := classified(t, data, 1)
			f.data[f.cls.L4+f.l4ChecksumOffset()] ^= 0xff
			f.fixL4Checksum()
			assert.True(t, l4ChecksumOK(t, f.Bytes()))
			if f.isIPv4() {
				f.data[f.cls.L3+10] ^= 0xff
				f.fixIPv4Checksum()
				assert.True(t, ipv4ChecksumOK(t, f.Bytes()))
			}
		})
	}
}

func TestZeroUdpChecksumIsKept(t *testing.T) {
	f := classified(t, udp4Frame(t), 1)
	csum := f.cls.L4 + 6
	f.data[csum], f.data[csum+1] = 0, 0
	require.NoError(t, f.setField(oxm.OXM_OF_IPV4_DST, []byte{10, 0, 0, 1}))
	assert.Equal(t, []byte{0, 0}, f.data[csum:csum+2])
	assert.True(t, ipv4ChecksumOK(t, f.Bytes()))
}
