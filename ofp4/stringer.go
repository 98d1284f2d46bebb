package ofp4

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/hkwi/ofp4act/oxm"
)

func parseLabeledValue(txt string) (label, value string, eatLen int) {
	feed := txt
	if idx := strings.IndexFunc(txt, oxm.IsSeparator); idx > 0 {
		feed = txt[:idx]
	}
	eatLen = len(feed)
	for _, c := range txt[len(feed):] {
		if !oxm.IsSeparator(c) {
			break
		}
		eatLen += len(string(c))
	}
	kv := strings.SplitN(feed, "=", 2)
	if len(kv) > 1 {
		return kv[0], kv[1], eatLen
	}
	return kv[0], "", eatLen
}

func parseUint(txt string, bitSize int) (uint64, error) {
	return strconv.ParseUint(txt, 0, bitSize)
}

// ActionHeader is a single ofp_action in wire format.
type ActionHeader []byte

func (self ActionHeader) Type() uint16 {
	return binary.BigEndian.Uint16(self)
}

func (self ActionHeader) Len() int {
	return int(binary.BigEndian.Uint16(self[2:]))
}

var genericLabels = map[string]uint16{
	"copy_ttl_out": OFPAT_COPY_TTL_OUT,
	"copy_ttl_in":  OFPAT_COPY_TTL_IN,
	"dec_mpls_ttl": OFPAT_DEC_MPLS_TTL,
	"pop_vlan":     OFPAT_POP_VLAN,
	"dec_nw_ttl":   OFPAT_DEC_NW_TTL,
	"pop_pbb":      OFPAT_POP_PBB,
}

var pushLabels = map[string]uint16{
	"push_vlan": OFPAT_PUSH_VLAN,
	"push_mpls": OFPAT_PUSH_MPLS,
	"pop_mpls":  OFPAT_POP_MPLS,
	"push_pbb":  OFPAT_PUSH_PBB,
}

// ParseAction parses one ovs-ofctl style action token, e.g. "output=3" or
// "set_ipv4_dst=10.0.0.1", and returns the wire bytes and consumed length.
func ParseAction(txt string) (buf []byte, eatLen int, err error) {
	label, value, eatLen := parseLabeledValue(txt)
	if atype, ok := genericLabels[label]; ok {
		buf, _ = ActionGeneric{Type: atype}.MarshalBinary()
		return buf, eatLen, nil
	}
	if atype, ok := pushLabels[label]; ok {
		var v uint64
		if v, err = parseUint(value, 16); err != nil {
			return nil, 0, err
		}
		if atype == OFPAT_POP_MPLS {
			buf, _ = ActionPopMpls{Ethertype: uint16(v)}.MarshalBinary()
		} else {
			buf, _ = ActionPush{Type: atype, Ethertype: uint16(v)}.MarshalBinary()
		}
		return buf, eatLen, nil
	}

	switch label {
	case "output":
		vs := strings.SplitN(value, ":", 2)
		var port uint32
		if port, err = oxm.ParsePort(vs[0]); err != nil {
			return nil, 0, err
		}
		maxLen := uint64(OFPCML_NO_BUFFER)
		if len(vs) > 1 {
			if maxLen, err = parseUint(vs[1], 16); err != nil {
				return nil, 0, err
			}
		}
		buf, _ = ActionOutput{Port: port, MaxLen: uint16(maxLen)}.MarshalBinary()
	case "set_mpls_ttl", "set_nw_ttl":
		var v uint64
		if v, err = parseUint(value, 8); err != nil {
			return nil, 0, err
		}
		if label == "set_mpls_ttl" {
			buf, _ = ActionMplsTtl{MplsTtl: uint8(v)}.MarshalBinary()
		} else {
			buf, _ = ActionNwTtl{NwTtl: uint8(v)}.MarshalBinary()
		}
	case "group", "set_queue":
		var v uint64
		if v, err = parseUint(value, 32); err != nil {
			return nil, 0, err
		}
		if label == "group" {
			buf, _ = ActionGroup{GroupId: uint32(v)}.MarshalBinary()
		} else {
			buf, _ = ActionSetQueue{QueueId: uint32(v)}.MarshalBinary()
		}
	case "experimenter":
		var v uint64
		if v, err = parseUint(value, 32); err != nil {
			return nil, 0, err
		}
		buf, _ = ActionExperimenter{Experimenter: uint32(v)}.MarshalBinary()
	default:
		if !strings.HasPrefix(label, "set_") {
			return nil, 0, fmt.Errorf("unknown action %q", label)
		}
		setLen := len("set_")
		p, n, e := oxm.ParseOne(txt[setLen:])
		if e != nil {
			return nil, 0, e
		}
		buf, _ = ActionSetField{Field: p}.MarshalBinary()
		if setLen+n > eatLen {
			eatLen = setLen + n
		}
	}
	return buf, eatLen, nil
}

// ParseActionList parses a separator delimited action list into wire bytes.
func ParseActionList(txt string) ([]byte, error) {
	var ret []byte
	for cur := 0; cur < len(txt); {
		buf, n, err := ParseAction(txt[cur:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("no progress at %q", txt[cur:])
		}
		ret = append(ret, buf...)
		cur += n
	}
	return ret, nil
}

func (self ActionHeader) String() string {
	seq := []byte(self)
	switch self.Type() {
	case OFPAT_OUTPUT:
		port := oxm.PortString(binary.BigEndian.Uint32(seq[4:]))
		if maxLen := binary.BigEndian.Uint16(seq[8:]); maxLen != OFPCML_NO_BUFFER {
			return fmt.Sprintf("output=%s:0x%x", port, maxLen)
		}
		return "output=" + port
	case OFPAT_SET_MPLS_TTL:
		return fmt.Sprintf("set_mpls_ttl=%d", seq[4])
	case OFPAT_SET_NW_TTL:
		return fmt.Sprintf("set_nw_ttl=%d", seq[4])
	case OFPAT_SET_QUEUE:
		return fmt.Sprintf("set_queue=%d", binary.BigEndian.Uint32(seq[4:]))
	case OFPAT_GROUP:
		return fmt.Sprintf("group=%d", binary.BigEndian.Uint32(seq[4:]))
	case OFPAT_SET_FIELD:
		return fmt.Sprintf("set_%v", oxm.Oxm(seq[4:4+4+int(seq[7])]))
	case OFPAT_EXPERIMENTER:
		return fmt.Sprintf("experimenter=0x%x", binary.BigEndian.Uint32(seq[4:]))
	}
	for label, atype := range genericLabels {
		if atype == self.Type() {
			return label
		}
	}
	for label, atype := range pushLabels {
		if atype == self.Type() {
			return fmt.Sprintf("%s=0x%04x", label, binary.BigEndian.Uint16(seq[4:]))
		}
	}
	return "?"
}

// ActionsString renders packed actions in the text syntax.
func ActionsString(data []byte) string {
	var ret []string
	for cur := 0; cur+8 <= len(data); {
		a := ActionHeader(data[cur:])
		if a.Len() < 8 {
			break
		}
		ret = append(ret, a[:a.Len()].String())
		cur += a.Len()
	}
	return strings.Join(ret, ",")
}
