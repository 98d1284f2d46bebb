package ofp4

import (
	"encoding/binary"
	"fmt"
)

// Error is an OFPT_ERROR type/code pair. It can be used as error.
type Error struct {
	Type uint16
	Code uint16
	Data []byte
}

func (obj Error) MarshalBinary() (data []byte, err error) {
	data = append(make([]byte, 4), obj.Data...)
	binary.BigEndian.PutUint16(data[0:2], obj.Type)
	binary.BigEndian.PutUint16(data[2:4], obj.Code)
	return
}

func (obj Error) Error() string {
	return fmt.Sprintf("%s code=%d", errorTypeNames[obj.Type], obj.Code)
}

var errorTypeNames = map[uint16]string{
	OFPET_HELLO_FAILED:     "hello_failed",
	OFPET_BAD_REQUEST:      "bad_request",
	OFPET_BAD_ACTION:       "bad_action",
	OFPET_BAD_INSTRUCTION:  "bad_instruction",
	OFPET_BAD_MATCH:        "bad_match",
	OFPET_FLOW_MOD_FAILED:  "flow_mod_failed",
	OFPET_GROUP_MOD_FAILED: "group_mod_failed",
}
