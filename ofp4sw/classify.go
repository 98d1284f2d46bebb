package ofp4sw

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	ethTypeIPv4 = uint16(layers.EthernetTypeIPv4)
	ethTypeIPv6 = uint16(layers.EthernetTypeIPv6)
	ethTypeARP  = uint16(layers.EthernetTypeARP)

	ipProtoICMPv4 = uint8(layers.IPProtocolICMPv4)
	ipProtoTCP    = uint8(layers.IPProtocolTCP)
	ipProtoUDP    = uint8(layers.IPProtocolUDP)
	ipProtoICMPv6 = uint8(layers.IPProtocolICMPv6)
)

const (
	// 802.1QSTagType
	ethernetTypeDot1QSTag layers.EthernetType = 0x88a8
	// 802.1QITagType
	ethernetTypeDot1QITag layers.EthernetType = 0x88e7
)

var layerTypePBB = gopacket.RegisterLayerType(1500, gopacket.LayerTypeMetadata{
	Name:    "PBB",
	Decoder: gopacket.DecodeFunc(decodePBB),
})

func init() {
	layers.MPLSPayloadDecoder = gopacket.DecodeFunc(decodeMPLSPayload)
	layers.EthernetTypeMetadata[ethernetTypeDot1QSTag] = layers.EthernetTypeMetadata[layers.EthernetTypeDot1Q]
	layers.EthernetTypeMetadata[ethernetTypeDot1QITag] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodePBB),
		Name:       "PBB",
		LayerType:  layerTypePBB,
	}
}

// MPLS carries no payload type, so guess by the IP version nibble and fall
// back to an opaque payload.
func decodeMPLSPayload(data []byte, p gopacket.PacketBuilder) error {
	g := layers.ProtocolGuessingDecoder{}
	if err := g.Decode(data, p); err != nil {
		return gopacket.DecodePayload.Decode(data, p)
	}
	return nil
}

// PBB is the 802.1ah I-TAG followed by the customer addresses.
type PBB struct {
	layers.BaseLayer
	Priority           uint8
	DropEligible       bool
	UseCustomerAddress bool
	ServiceIdentifier  uint32
	DstMAC             net.HardwareAddr
	SrcMAC             net.HardwareAddr
	Type               layers.EthernetType
}

func (p PBB) LayerType() gopacket.LayerType     { return layerTypePBB }
func (p PBB) CanDecode() gopacket.LayerClass    { return layerTypePBB }
func (p PBB) NextLayerType() gopacket.LayerType { return p.Type.LayerType() }

func decodePBB(data []byte, p gopacket.PacketBuilder) error {
	if len(data) < 18 {
		return errors.New("PBB I-TAG truncated")
	}
	if data[0]&0x3 != 0 {
		return errors.New("I-TAG TCI Res2 must be zero")
	}
	pbb := &PBB{
		Priority:           data[0] >> 5,
		DropEligible:       data[0]&0x10 != 0,
		UseCustomerAddress: data[0]&0x08 != 0,
		ServiceIdentifier:  binary.BigEndian.Uint32(data[0:4]) & 0xffffff,
		DstMAC:             net.HardwareAddr(data[4:10]),
		SrcMAC:             net.HardwareAddr(data[10:16]),
		Type:               layers.EthernetType(binary.BigEndian.Uint16(data[16:18])),
		BaseLayer:          layers.BaseLayer{Contents: data[:18], Payload: data[18:]},
	}
	p.AddLayer(pbb)
	return p.NextDecoder(pbb.Type)
}

// gopacketClassifier derives header offsets by decoding the frame with
// gopacket and summing layer content lengths.
type gopacketClassifier struct{}

func (gopacketClassifier) Classify(f *Frame) bool {
	cls := f.cls.reset()
	f.cls = cls
	if len(f.data) < 14 {
		return false
	}
	pkt := gopacket.NewPacket(f.data, layers.LinkTypeEthernet, gopacket.DecodeOptions{NoCopy: true})
	if pkt.Layer(layers.LayerTypeEthernet) == nil {
		return false
	}

	off := 0
	ipEnd := -1
	l4 := func(proto uint8) {
		if cls.L3 >= 0 && cls.L4 < 0 && cls.L4Proto == proto {
			cls.L4 = off
		}
	}
	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			cls.TypeOffset = 12
			cls.EthType = uint16(l.EthernetType)
		case *layers.Dot1Q:
			if cls.Mpls >= 0 || cls.L3 >= 0 {
				break
			}
			if cls.Vlan < 0 {
				cls.Vlan = off
			}
			cls.TypeOffset = off + 2
			cls.EthType = uint16(l.Type)
		case *PBB:
			cls.TypeOffset = off + 16
			cls.EthType = uint16(l.Type)
		case *layers.MPLS:
			if cls.Mpls < 0 {
				cls.Mpls = off
			}
		case *layers.IPv4:
			if cls.L3 < 0 {
				cls.L3 = off
				cls.L3Type = ethTypeIPv4
				cls.L4Proto = uint8(l.Protocol)
				ipEnd = off + int(l.Length)
			}
		case *layers.IPv6:
			if cls.L3 < 0 {
				cls.L3 = off
				cls.L3Type = ethTypeIPv6
				cls.L4Proto = uint8(l.NextHeader)
				ipEnd = off + 40 + int(l.Length)
			}
		case *layers.IPv6HopByHop:
			if cls.L4 < 0 {
				cls.L4Proto = uint8(l.NextHeader)
			}
		case *layers.IPv6Routing:
			if cls.L4 < 0 {
				cls.L4Proto = uint8(l.NextHeader)
			}
		case *layers.IPv6Destination:
			if cls.L4 < 0 {
				cls.L4Proto = uint8(l.NextHeader)
			}
		case *layers.ARP:
			if cls.L3 < 0 {
				cls.L3 = off
				cls.L3Type = ethTypeARP
			}
		case *layers.TCP:
			l4(ipProtoTCP)
		case *layers.UDP:
			l4(ipProtoUDP)
		case *layers.ICMPv4:
			l4(ipProtoICMPv4)
		case *layers.ICMPv6:
			l4(ipProtoICMPv6)
			if cls.L4 == off {
				cls.Icmpv6Type = l.TypeCode.Type()
			}
		}
		off += len(layer.LayerContents())
	}
	if cls.L4 >= 0 {
		end := ipEnd
		if end > len(f.data) || end < cls.L4 {
			end = len(f.data)
		}
		cls.L4Len = end - cls.L4
	}
	f.cls = cls
	return true
}
