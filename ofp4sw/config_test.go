package ofp4sw

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket/pcapgo"
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log_level: debug
log_format: json
buffer_pool_size: 8
miss_send_len: 64
ports:
  - no: 1
    pcap: {{dir}}/p1.pcap
  - no: 2
    name: uplink
    pcap: {{dir}}/p2.pcap
actions: group=10
groups:
  - id: 10
    type: all
    buckets:
      - actions: output=1
      - actions: push_vlan=0x8100,set_vlan_vid=7,output=2
`

func loadTestConfig(t *testing.T) (*Config, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ofpact.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "{{dir}}", dir)), 0644))
	config, err := LoadConfig(path)
	require.NoError(t, err)
	return config, dir
}

func TestLoadConfig(t *testing.T) {
	config, dir := loadTestConfig(t)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 8, config.BufferPoolSize)
	require.NotNil(t, config.MissSendLen)
	assert.Equal(t, uint16(64), *config.MissSendLen)
	require.Len(t, config.Ports, 2)
	assert.Equal(t, PortConfig{No: 2, Name: "uplink", Pcap: filepath.Join(dir, "p2.pcap")}, config.Ports[1])
	require.Len(t, config.Groups, 1)
	assert.Len(t, config.Groups[0].Buckets, 2)
}

func TestConfigPipeline(t *testing.T) {
	config, dir := loadTestConfig(t)
	reg := prometheus.NewRegistry()
	pipe, err := config.NewPipeline(reg)
	require.NoError(t, err)
	assert.Equal(t, uint16(64), pipe.MissSendLen)
	assert.Equal(t, logrus.DebugLevel, pipe.Log.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, pipe.Log.Logger.Formatter)

	actions, err := config.ActionList()
	require.NoError(t, err)
	require.NoError(t, pipe.PacketOut(PacketOut{
		BufferId: ofp4.OFP_NO_BUFFER,
		InPort:   ofp4.OFPP_CONTROLLER,
		Actions:  actions,
		Data:     udp4Frame(t),
	}))
	ports := pipe.Ports.(*PortTable)
	for _, no := range []uint32{1, 2} {
		stats, ok := ports.Stats(no)
		require.True(t, ok)
		assert.Equal(t, uint64(1), stats.TxPackets)
	}
	require.NoError(t, ports.Close())

	fp, err := os.Open(filepath.Join(dir, "p2.pcap"))
	require.NoError(t, err)
	defer fp.Close()
	r, err := pcapgo.NewReader(fp)
	require.NoError(t, err)
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x8100), uint16(data[12])<<8|uint16(data[13]))
	assert.Equal(t, byte(7), data[15])

	assert.Equal(t, 1.0, testutil.ToFloat64(pipe.Metrics.PacketOuts.WithLabelValues("ok")))
}

func TestConfigErrors(t *testing.T) {
	for _, txt := range []string{
		"unknown_key: 1",
		"log_level: loud",
		"log_format: xml",
		"groups: [{id: 1, type: fancy}]",
		"groups: [{id: 1, type: indirect}]",
		"groups: [{id: 1, type: all, buckets: [{actions: bogus=1}]}]",
		"ports: [{no: 1}]",
	} {
		t.Run(txt, func(t *testing.T) {
			config, err := ReadConfig(strings.NewReader(txt))
			if err == nil {
				_, err = config.NewPipeline(nil)
			}
			assert.Error(t, err)
		})
	}
}

func TestEmptyConfig(t *testing.T) {
	config, err := ReadConfig(strings.NewReader(""))
	require.NoError(t, err)
	pipe, err := config.NewPipeline(nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultMissSendLen), pipe.MissSendLen)
	assert.Nil(t, pipe.Metrics)
}
