package oxm

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
)

type fieldKind int

const (
	kindInt fieldKind = iota
	kindPort
	kindMac
	kindIPv4
	kindIPv6
)

type fieldDef struct {
	name     string
	oxmType  uint32
	length   int
	maskable bool
	kind     fieldKind
	format   string // for kindInt
}

var fieldDefs = []fieldDef{
	{"in_port", OXM_OF_IN_PORT, 4, false, kindPort, ""},
	{"in_phy_port", OXM_OF_IN_PHY_PORT, 4, false, kindPort, ""},
	{"metadata", OXM_OF_METADATA, 8, true, kindInt, "0x%x"},
	{"eth_dst", OXM_OF_ETH_DST, 6, true, kindMac, ""},
	{"eth_src", OXM_OF_ETH_SRC, 6, true, kindMac, ""},
	{"eth_type", OXM_OF_ETH_TYPE, 2, false, kindInt, "0x%04x"},
	{"vlan_vid", OXM_OF_VLAN_VID, 2, true, kindInt, "0x%x"},
	{"vlan_pcp", OXM_OF_VLAN_PCP, 1, false, kindInt, "%d"},
	{"ip_dscp", OXM_OF_IP_DSCP, 1, false, kindInt, "0x%x"},
	{"ip_ecn", OXM_OF_IP_ECN, 1, false, kindInt, "0x%x"},
	{"ip_proto", OXM_OF_IP_PROTO, 1, false, kindInt, "%d"},
	{"ipv4_src", OXM_OF_IPV4_SRC, 4, true, kindIPv4, ""},
	{"ipv4_dst", OXM_OF_IPV4_DST, 4, true, kindIPv4, ""},
	{"tcp_src", OXM_OF_TCP_SRC, 2, false, kindInt, "%d"},
	{"tcp_dst", OXM_OF_TCP_DST, 2, false, kindInt, "%d"},
	{"udp_src", OXM_OF_UDP_SRC, 2, false, kindInt, "%d"},
	{"udp_dst", OXM_OF_UDP_DST, 2, false, kindInt, "%d"},
	{"sctp_src", OXM_OF_SCTP_SRC, 2, false, kindInt, "%d"},
	{"sctp_dst", OXM_OF_SCTP_DST, 2, false, kindInt, "%d"},
	{"icmpv4_type", OXM_OF_ICMPV4_TYPE, 1, false, kindInt, "%d"},
	{"icmpv4_code", OXM_OF_ICMPV4_CODE, 1, false, kindInt, "%d"},
	{"arp_op", OXM_OF_ARP_OP, 2, false, kindInt, "%d"},
	{"arp_spa", OXM_OF_ARP_SPA, 4, true, kindIPv4, ""},
	{"arp_tpa", OXM_OF_ARP_TPA, 4, true, kindIPv4, ""},
	{"arp_sha", OXM_OF_ARP_SHA, 6, true, kindMac, ""},
	{"arp_tha", OXM_OF_ARP_THA, 6, true, kindMac, ""},
	{"ipv6_src", OXM_OF_IPV6_SRC, 16, true, kindIPv6, ""},
	{"ipv6_dst", OXM_OF_IPV6_DST, 16, true, kindIPv6, ""},
	{"ipv6_flabel", OXM_OF_IPV6_FLABEL, 4, true, kindInt, "0x%x"},
	{"icmpv6_type", OXM_OF_ICMPV6_TYPE, 1, false, kindInt, "%d"},
	{"icmpv6_code", OXM_OF_ICMPV6_CODE, 1, false, kindInt, "%d"},
	{"ipv6_nd_target", OXM_OF_IPV6_ND_TARGET, 16, false, kindIPv6, ""},
	{"ipv6_nd_sll", OXM_OF_IPV6_ND_SLL, 6, false, kindMac, ""},
	{"ipv6_nd_tll", OXM_OF_IPV6_ND_TLL, 6, false, kindMac, ""},
	{"mpls_label", OXM_OF_MPLS_LABEL, 4, false, kindInt, "0x%x"},
	{"mpls_tc", OXM_OF_MPLS_TC, 1, false, kindInt, "%d"},
	{"mpls_bos", OXM_OF_MPLS_BOS, 1, false, kindInt, "%d"},
	{"pbb_isid", OXM_OF_PBB_ISID, 3, true, kindInt, "0x%x"},
	{"tunnel_id", OXM_OF_TUNNEL_ID, 8, true, kindInt, "0x%x"},
	{"ipv6_exthdr", OXM_OF_IPV6_EXTHDR, 2, true, kindInt, "0x%x"},
}

var fieldsByType = map[uint32]fieldDef{}
var fieldsByName = map[string]fieldDef{}

func init() {
	for _, def := range fieldDefs {
		fieldsByType[def.oxmType] = def
		fieldsByName[def.name] = def
	}
}

var portNames = map[uint32]string{
	OFPP_MAX:        "max",
	OFPP_IN_PORT:    "in_port",
	OFPP_TABLE:      "table",
	OFPP_NORMAL:     "normal",
	OFPP_FLOOD:      "flood",
	OFPP_ALL:        "all",
	OFPP_CONTROLLER: "controller",
	OFPP_LOCAL:      "local",
	OFPP_ANY:        "any",
}

// PortString renders reserved port numbers by name.
func PortString(port uint32) string {
	if name, ok := portNames[port]; ok {
		return name
	}
	return strconv.FormatUint(uint64(port), 10)
}

// ParsePort accepts a reserved port name or an integer.
func ParsePort(txt string) (uint32, error) {
	for port, name := range portNames {
		if name == txt {
			return port, nil
		}
	}
	n, err := strconv.ParseUint(txt, 0, 32)
	return uint32(n), err
}

// IsSeparator reports the runes that delimit tokens in the text syntax.
func IsSeparator(c rune) bool {
	return c == ',' || unicode.IsSpace(c)
}

// FieldName returns the text label of a basic field type.
func FieldName(oxmType uint32) string {
	if def, ok := fieldsByType[Header(oxmType).Type()]; ok {
		return def.name
	}
	return fmt.Sprintf("oxm(0x%08x)", oxmType)
}

func uintBytes(p []byte) uint64 {
	var v uint64
	for _, c := range p {
		v = v<<8 | uint64(c)
	}
	return v
}

func putUintBytes(p []byte, v uint64) {
	for i := len(p) - 1; i >= 0; i-- {
		p[i] = uint8(v)
		v >>= 8
	}
}

func (self fieldDef) formatValue(p []byte) string {
	switch self.kind {
	case kindPort:
		return PortString(binary.BigEndian.Uint32(p))
	case kindMac:
		return net.HardwareAddr(p).String()
	case kindIPv4, kindIPv6:
		return net.IP(p).String()
	default:
		return fmt.Sprintf(self.format, uintBytes(p))
	}
}

func (self fieldDef) parseValue(txt string) ([]byte, error) {
	buf := make([]byte, self.length)
	switch self.kind {
	case kindPort:
		port, err := ParsePort(txt)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(buf, port)
	case kindMac:
		hw, err := net.ParseMAC(txt)
		if err != nil {
			return nil, err
		}
		if len(hw) != self.length {
			return nil, fmt.Errorf("%s hardware address length %d", self.name, len(hw))
		}
		copy(buf, hw)
	case kindIPv4:
		ip := net.ParseIP(txt).To4()
		if ip == nil {
			return nil, fmt.Errorf("IP parse error %s", txt)
		}
		copy(buf, ip)
	case kindIPv6:
		ip := net.ParseIP(txt).To16()
		if ip == nil {
			return nil, fmt.Errorf("IP parse error %s", txt)
		}
		copy(buf, ip)
	default:
		n, err := strconv.ParseUint(txt, 0, 8*self.length)
		if err != nil {
			return nil, err
		}
		putUintBytes(buf, n)
	}
	return buf, nil
}

// parseMask accepts either a full mask or a prefix length for addresses.
func (self fieldDef) parseMask(txt string) ([]byte, error) {
	if self.kind == kindIPv4 || self.kind == kindIPv6 {
		if ones, err := strconv.Atoi(txt); err == nil {
			m := net.CIDRMask(ones, 8*self.length)
			if m == nil {
				return nil, fmt.Errorf("prefix length %d out of range", ones)
			}
			return []byte(m), nil
		}
	}
	return self.parseValue(txt)
}

func (self Oxm) String() string {
	var ret []string
	for _, s := range self.Iter() {
		ret = append(ret, s.single())
	}
	return strings.Join(ret, ",")
}

func (self Oxm) single() string {
	hdr := self.Header()
	def, ok := fieldsByType[hdr.Type()]
	if !ok || hdr.Class() != OFPXMC_OPENFLOW_BASIC {
		return "?"
	}
	s := def.name + "=" + def.formatValue(self.Value())
	if m := self.Mask(); m != nil {
		s += "/" + def.formatValue(m)
	}
	return s
}

func (self Match) String() string {
	buf, err := self.MarshalBinary()
	if err != nil {
		return "?"
	}
	return Oxm(buf).String()
}

// ParseOne parses a single "label=value[/mask]" token into an OXM TLV and
// returns the number of bytes consumed.
func ParseOne(txt string) ([]byte, int, error) {
	token := txt
	if idx := strings.IndexFunc(txt, IsSeparator); idx >= 0 {
		token = txt[:idx]
	}
	labelIdx := strings.IndexRune(token, '=')
	if labelIdx <= 0 {
		return nil, 0, fmt.Errorf("parse failed %s", txt)
	}
	def, ok := fieldsByName[token[:labelIdx]]
	if !ok {
		return nil, 0, fmt.Errorf("unknown field %s", token[:labelIdx])
	}
	args := token[labelIdx+1:]
	value, mask := args, ""
	if split := strings.IndexRune(args, '/'); split >= 0 {
		value, mask = args[:split], args[split+1:]
	}

	payload, err := def.parseValue(value)
	if err != nil {
		return nil, 0, err
	}
	hdr := Header(def.oxmType)
	if len(mask) > 0 {
		if !def.maskable {
			return nil, 0, fmt.Errorf("%s not maskable", def.name)
		}
		m, err := def.parseMask(mask)
		if err != nil {
			return nil, 0, err
		}
		hdr.SetMask(true)
		payload = append(payload, m...)
	}
	hdr.SetLength(len(payload))
	buf := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(hdr))
	return append(buf, payload...), len(token), nil
}

// Parse reads separator delimited tokens until one fails to parse as a field.
func Parse(txt string) ([]byte, int, error) {
	var buf []byte
	cur := 0
	for cur < len(txt) {
		tlv, n, err := ParseOne(txt[cur:])
		if err != nil {
			if len(buf) == 0 {
				return nil, 0, err
			}
			break
		}
		buf = append(buf, tlv...)
		cur += n
		for cur < len(txt) && IsSeparator(rune(txt[cur])) {
			cur++
		}
	}
	return buf, cur, nil
}

// ParseMatch parses the text form into a Match.
func ParseMatch(txt string) (Match, error) {
	buf, n, err := Parse(txt)
	if err != nil {
		return nil, err
	}
	if n != len(txt) {
		return nil, fmt.Errorf("trailing text %q", txt[n:])
	}
	return FromOxm(buf)
}
