package ofp4sw

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	testSrcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	testDstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	testSrcIP  = net.IP{192, 168, 0, 1}
	testDstIP  = net.IP{192, 168, 0, 2}
	testSrcIP6 = net.ParseIP("fe80::1")
	testDstIP6 = net.ParseIP("fe80::2")
	testPayload = gopacket.Payload("hello world!")
)

type sentFrame struct {
	port uint32
	data []byte
}

type recordingPorts struct {
	sent []sentFrame
	down map[uint32]bool
	err  error
}

func (self *recordingPorts) Send(portNo uint32, f *Frame) error {
	if self.err != nil {
		return self.err
	}
	self.sent = append(self.sent, sentFrame{port: portNo, data: append([]byte(nil), f.Bytes()...)})
	return nil
}

func (self *recordingPorts) IsLinkUp(portNo uint32) bool {
	return !self.down[portNo]
}

func (self *recordingPorts) ports() []uint32 {
	var ret []uint32
	for _, s := range self.sent {
		ret = append(ret, s.port)
	}
	return ret
}

type recordingController struct {
	pins []PacketIn
	err  error
}

func (self *recordingController) PacketIn(pin PacketIn) error {
	self.pins = append(self.pins, pin)
	return self.err
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

func newTestPipeline() (*Pipeline, *recordingPorts, *recordingController) {
	ports := &recordingPorts{down: make(map[uint32]bool)}
	controller := &recordingController{}
	pipe := NewPipeline()
	pipe.Ports = ports
	pipe.Controller = controller
	pipe.Log = testLog()
	pipe.Now = func() time.Time { return time.Unix(0, 0) }
	return pipe, ports, controller
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: ethType}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: testSrcIP, DstIP: testDstIP}
}

func ipv6(next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: next, SrcIP: testSrcIP6, DstIP: testDstIP6}
}

func udp4Frame(t *testing.T) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, testPayload)
}

func tcp4Frame(t *testing.T) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 1000, DstPort: 80, Seq: 1, Window: 1024, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, testPayload)
}

func icmp4Frame(t *testing.T) []byte {
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}, testPayload)
}

func udp6Frame(t *testing.T) []byte {
	ip := ipv6(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, udp, testPayload)
}

func tcp6Frame(t *testing.T) []byte {
	ip := ipv6(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 1000, DstPort: 80, Seq: 1, Window: 1024, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, tcp, testPayload)
}

func vlanUdp4Frame(t *testing.T, vid uint16) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t,
		ethernet(layers.EthernetTypeDot1Q),
		&layers.Dot1Q{Priority: 3, VLANIdentifier: vid, Type: layers.EthernetTypeIPv4},
		ip, udp, testPayload)
}

func mplsUdp4Frame(t *testing.T, ttl uint8) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t,
		ethernet(layers.EthernetTypeMPLSUnicast),
		&layers.MPLS{Label: 1000, StackBottom: true, TTL: ttl},
		ip, udp, testPayload)
}

func mplsUdp6Frame(t *testing.T, ttl uint8) []byte {
	ip := ipv6(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t,
		ethernet(layers.EthernetTypeMPLSUnicast),
		&layers.MPLS{Label: 1000, StackBottom: true, TTL: ttl},
		ip, udp, testPayload)
}

func arpFrame(t *testing.T) []byte {
	return serialize(t, ethernet(layers.EthernetTypeARP), &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testSrcMAC,
		SourceProtAddress: testSrcIP,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    testDstIP,
	})
}

func neighborSolicitationFrame(t *testing.T) []byte {
	ip := ipv6(layers.IPProtocolICMPv6)
	ip.HopLimit = 255
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborSolicitation, 0)}
	require.NoError(t, icmp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, icmp, &layers.ICMPv6NeighborSolicitation{
		TargetAddress: testDstIP6,
		Options: layers.ICMPv6Options{
			{Type: layers.ICMPv6OptSourceAddress, Data: testSrcMAC},
		},
	})
}

func neighborAdvertisementFrame(t *testing.T) []byte {
	ip := ipv6(layers.IPProtocolICMPv6)
	ip.HopLimit = 255
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborAdvertisement, 0)}
	require.NoError(t, icmp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, icmp, &layers.ICMPv6NeighborAdvertisement{
		Flags:         0x60,
		TargetAddress: testDstIP6,
		Options: layers.ICMPv6Options{
			{Type: layers.ICMPv6OptTargetAddress, Data: testDstMAC},
		},
	})
}

func classified(t *testing.T, data []byte, inPort uint32) *Frame {
	f := NewFrame(data, inPort)
	require.True(t, gopacketClassifier{}.Classify(f))
	return f
}

func decode(data []byte) gopacket.Packet {
	return gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.Default)
}

// ipv4ChecksumOK recomputes the header checksum with gopacket.
func ipv4ChecksumOK(t *testing.T, data []byte) bool {
	ip, ok := decode(data).Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	want := ip.Checksum
	cp := *ip
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, cp.SerializeTo(buf, gopacket.SerializeOptions{ComputeChecksums: true}))
	return cp.Checksum == want
}

// l4ChecksumOK recomputes the transport checksum with gopacket.
func l4ChecksumOK(t *testing.T, data []byte) bool {
	pkt := decode(data)
	var network gopacket.NetworkLayer
	if ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		network = ip
	} else if ip, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		network = ip
	}
	require.NotNil(t, network)

	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	buf := gopacket.NewSerializeBuffer()
	switch l := pkt.TransportLayer().(type) {
	case *layers.UDP:
		cp := *l
		require.NoError(t, cp.SetNetworkLayerForChecksum(network))
		require.NoError(t, gopacket.SerializeLayers(buf, opts, &cp, gopacket.Payload(l.Payload)))
		return cp.Checksum == l.Checksum
	case *layers.TCP:
		cp := *l
		require.NoError(t, cp.SetNetworkLayerForChecksum(network))
		require.NoError(t, gopacket.SerializeLayers(buf, opts, &cp, gopacket.Payload(l.Payload)))
		return cp.Checksum == l.Checksum
	}
	if l, ok := pkt.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6); ok {
		cp := *l
		require.NoError(t, cp.SetNetworkLayerForChecksum(network))
		require.NoError(t, gopacket.SerializeLayers(buf, opts, &cp, gopacket.Payload(l.Payload)))
		return cp.Checksum == l.Checksum
	}
	if l, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		cp := *l
		require.NoError(t, gopacket.SerializeLayers(buf, opts, &cp, gopacket.Payload(l.Payload)))
		return cp.Checksum == l.Checksum
	}
	t.Fatal("no transport layer")
	return false
}
