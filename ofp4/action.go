package ofp4

import (
	"encoding"
	"encoding/binary"
)

type Action interface {
	encoding.BinaryMarshaler
	GetType() uint16
}

func actionPrefix(atype uint16, length int) []byte {
	data := make([]byte, length)
	binary.BigEndian.PutUint16(data[0:2], atype)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	return data
}

// ParseActions decodes a packed ofp_action_header sequence.
func ParseActions(data []byte) (actions []Action, err error) {
	badLen := Error{Type: OFPET_BAD_ACTION, Code: OFPBAC_BAD_LEN}
	for cur := 0; cur < len(data); {
		if cur+8 > len(data) {
			return nil, badLen
		}
		atype := binary.BigEndian.Uint16(data[cur : 2+cur])
		alen := int(binary.BigEndian.Uint16(data[2+cur : 4+cur]))
		if alen < 8 || alen%8 != 0 || cur+alen > len(data) {
			return nil, badLen
		}
		seq := data[cur : cur+alen]

		var action Action
		switch atype {
		case OFPAT_COPY_TTL_OUT, OFPAT_COPY_TTL_IN, OFPAT_DEC_MPLS_TTL, OFPAT_POP_VLAN, OFPAT_DEC_NW_TTL, OFPAT_POP_PBB:
			action = ActionGeneric{Type: atype}
		case OFPAT_OUTPUT:
			if alen != 16 {
				return nil, badLen
			}
			action = ActionOutput{
				Port:   binary.BigEndian.Uint32(seq[4:8]),
				MaxLen: binary.BigEndian.Uint16(seq[8:10]),
			}
		case OFPAT_SET_MPLS_TTL:
			action = ActionMplsTtl{MplsTtl: seq[4]}
		case OFPAT_PUSH_VLAN, OFPAT_PUSH_MPLS, OFPAT_PUSH_PBB:
			action = ActionPush{Type: atype, Ethertype: binary.BigEndian.Uint16(seq[4:6])}
		case OFPAT_POP_MPLS:
			action = ActionPopMpls{Ethertype: binary.BigEndian.Uint16(seq[4:6])}
		case OFPAT_SET_QUEUE:
			action = ActionSetQueue{QueueId: binary.BigEndian.Uint32(seq[4:8])}
		case OFPAT_GROUP:
			action = ActionGroup{GroupId: binary.BigEndian.Uint32(seq[4:8])}
		case OFPAT_SET_NW_TTL:
			action = ActionNwTtl{NwTtl: seq[4]}
		case OFPAT_SET_FIELD:
			flen := 4 + int(binary.BigEndian.Uint16(seq[6:8])&0xff)
			if 4+flen > alen {
				return nil, badLen
			}
			action = ActionSetField{Field: append([]byte(nil), seq[4:4+flen]...)}
		case OFPAT_EXPERIMENTER:
			action = ActionExperimenter{
				Experimenter: binary.BigEndian.Uint32(seq[4:8]),
				Data:         append([]byte(nil), seq[8:]...),
			}
		default:
			// kept so that execution can reject it
			action = ActionGeneric{Type: atype}
		}
		actions = append(actions, action)
		cur += alen
	}
	return
}

// MarshalActions packs actions back into wire form.
func MarshalActions(actions []Action) ([]byte, error) {
	var ret []byte
	for _, action := range actions {
		buf, err := action.MarshalBinary()
		if err != nil {
			return nil, err
		}
		ret = append(ret, buf...)
	}
	return ret, nil
}

type ActionGeneric struct {
	Type uint16
}

func (obj ActionGeneric) MarshalBinary() ([]byte, error) {
	return actionPrefix(obj.Type, 8), nil
}

func (obj ActionGeneric) GetType() uint16 {
	return obj.Type
}

type ActionOutput struct {
	Port   uint32
	MaxLen uint16
}

func (obj ActionOutput) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_OUTPUT, 16)
	binary.BigEndian.PutUint32(data[4:8], obj.Port)
	binary.BigEndian.PutUint16(data[8:10], obj.MaxLen)
	return data, nil
}

func (obj ActionOutput) GetType() uint16 {
	return OFPAT_OUTPUT
}

type ActionMplsTtl struct {
	MplsTtl uint8
}

func (obj ActionMplsTtl) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_SET_MPLS_TTL, 8)
	data[4] = obj.MplsTtl
	return data, nil
}

func (obj ActionMplsTtl) GetType() uint16 {
	return OFPAT_SET_MPLS_TTL
}

// ActionPush covers PUSH_VLAN, PUSH_MPLS and PUSH_PBB.
type ActionPush struct {
	Type      uint16
	Ethertype uint16
}

func (obj ActionPush) MarshalBinary() ([]byte, error) {
	data := actionPrefix(obj.Type, 8)
	binary.BigEndian.PutUint16(data[4:6], obj.Ethertype)
	return data, nil
}

func (obj ActionPush) GetType() uint16 {
	return obj.Type
}

type ActionPopMpls struct {
	Ethertype uint16
}

func (obj ActionPopMpls) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_POP_MPLS, 8)
	binary.BigEndian.PutUint16(data[4:6], obj.Ethertype)
	return data, nil
}

func (obj ActionPopMpls) GetType() uint16 {
	return OFPAT_POP_MPLS
}

type ActionSetQueue struct {
	QueueId uint32
}

func (obj ActionSetQueue) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_SET_QUEUE, 8)
	binary.BigEndian.PutUint32(data[4:8], obj.QueueId)
	return data, nil
}

func (obj ActionSetQueue) GetType() uint16 {
	return OFPAT_SET_QUEUE
}

type ActionGroup struct {
	GroupId uint32
}

func (obj ActionGroup) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_GROUP, 8)
	binary.BigEndian.PutUint32(data[4:8], obj.GroupId)
	return data, nil
}

func (obj ActionGroup) GetType() uint16 {
	return OFPAT_GROUP
}

type ActionNwTtl struct {
	NwTtl uint8
}

func (obj ActionNwTtl) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_SET_NW_TTL, 8)
	data[4] = obj.NwTtl
	return data, nil
}

func (obj ActionNwTtl) GetType() uint16 {
	return OFPAT_SET_NW_TTL
}

// ActionSetField carries exactly one OXM TLV.
type ActionSetField struct {
	Field []byte
}

func (obj ActionSetField) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_SET_FIELD, align8(4+len(obj.Field)))
	copy(data[4:], obj.Field)
	return data, nil
}

func (obj ActionSetField) GetType() uint16 {
	return OFPAT_SET_FIELD
}

type ActionExperimenter struct {
	Experimenter uint32
	Data         []byte
}

func (obj ActionExperimenter) MarshalBinary() ([]byte, error) {
	data := actionPrefix(OFPAT_EXPERIMENTER, align8(8+len(obj.Data)))
	binary.BigEndian.PutUint32(data[4:8], obj.Experimenter)
	copy(data[8:], obj.Data)
	return data, nil
}

func (obj ActionExperimenter) GetType() uint16 {
	return OFPAT_EXPERIMENTER
}
