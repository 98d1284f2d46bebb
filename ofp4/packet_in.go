package ofp4

import (
	"encoding/binary"
	"errors"
)

const OFPMT_OXM = 1

// PacketIn is the OFPT_PACKET_IN message. Match holds packed OXM TLVs.
type PacketIn struct {
	Xid      uint32
	BufferId uint32
	TotalLen uint16
	Reason   uint8
	TableId  uint8
	Cookie   uint64
	Match    []byte
	Data     []byte
}

func marshalMatch(oxm []byte) []byte {
	length := 4 + len(oxm)
	data := make([]byte, align8(length))
	binary.BigEndian.PutUint16(data[0:2], OFPMT_OXM)
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	copy(data[4:], oxm)
	return data
}

func (obj PacketIn) MarshalBinary() ([]byte, error) {
	match := marshalMatch(obj.Match)
	length := 8 + 16 + len(match) + 2 + len(obj.Data)
	if length > 0xffff {
		return nil, errors.New("packet_in too long")
	}
	data := make([]byte, length)
	data[0] = OFP_VERSION
	data[1] = OFPT_PACKET_IN
	binary.BigEndian.PutUint16(data[2:4], uint16(length))
	binary.BigEndian.PutUint32(data[4:8], obj.Xid)

	body := data[8:]
	binary.BigEndian.PutUint32(body[0:4], obj.BufferId)
	binary.BigEndian.PutUint16(body[4:6], obj.TotalLen)
	body[6] = obj.Reason
	body[7] = obj.TableId
	binary.BigEndian.PutUint64(body[8:16], obj.Cookie)
	copy(body[16:], match)
	copy(body[16+len(match)+2:], obj.Data)
	return data, nil
}

func (obj *PacketIn) UnmarshalBinary(data []byte) error {
	if len(data) < 8+16+4 || data[1] != OFPT_PACKET_IN {
		return Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_LEN}
	}
	obj.Xid = binary.BigEndian.Uint32(data[4:8])
	body := data[8:]
	obj.BufferId = binary.BigEndian.Uint32(body[0:4])
	obj.TotalLen = binary.BigEndian.Uint16(body[4:6])
	obj.Reason = body[6]
	obj.TableId = body[7]
	obj.Cookie = binary.BigEndian.Uint64(body[8:16])
	matchLen := int(binary.BigEndian.Uint16(body[18:20]))
	off := 16 + align8(matchLen) + 2
	if matchLen < 4 || off > len(body) {
		return Error{Type: OFPET_BAD_REQUEST, Code: OFPBRC_BAD_LEN}
	}
	obj.Match = append([]byte(nil), body[20:16+matchLen]...)
	obj.Data = append([]byte(nil), body[off:]...)
	return nil
}
