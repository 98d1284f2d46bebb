package ofp4sw

import (
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
)

// ActionSet accumulates write-actions, one per action kind.
type ActionSet map[uint16]action

var actionSetOrder = [...]uint16{
	ofp4.OFPAT_COPY_TTL_IN,
	ofp4.OFPAT_POP_PBB,
	ofp4.OFPAT_POP_VLAN,
	ofp4.OFPAT_POP_MPLS,
	ofp4.OFPAT_PUSH_MPLS,
	ofp4.OFPAT_PUSH_PBB,
	ofp4.OFPAT_PUSH_VLAN,
	ofp4.OFPAT_COPY_TTL_OUT,
	ofp4.OFPAT_DEC_MPLS_TTL,
	ofp4.OFPAT_DEC_NW_TTL,
	ofp4.OFPAT_SET_MPLS_TTL,
	ofp4.OFPAT_SET_NW_TTL,
	ofp4.OFPAT_SET_FIELD,
	ofp4.OFPAT_SET_QUEUE,
	ofp4.OFPAT_GROUP,
	ofp4.OFPAT_OUTPUT,
}

var actionSetKinds = func() map[uint16]bool {
	ret := make(map[uint16]bool)
	for _, k := range actionSetOrder {
		ret[k] = true
	}
	return ret
}()

func NewActionSet() ActionSet {
	return make(ActionSet)
}

// Write merges write-actions into the set. A later action replaces an
// earlier one of the same kind. SET_FIELD values merge per field.
func (self ActionSet) Write(actions ActionList) error {
	for _, act := range actions {
		if !actionSetKinds[act.kind()] {
			return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_TYPE}
		}
	}
	for _, act := range actions {
		if sf, ok := act.(actionSetField); ok {
			merged := make(oxm.Match)
			if prev, ok := self[ofp4.OFPAT_SET_FIELD].(actionSetField); ok {
				for k, v := range prev.fields {
					merged[k] = v
				}
			}
			for k, v := range sf.fields {
				merged[k] = v
			}
			self[ofp4.OFPAT_SET_FIELD] = actionSetField{fields: merged}
			continue
		}
		self[act.kind()] = act
	}
	return nil
}

func (self ActionSet) Clear() {
	for k := range self {
		delete(self, k)
	}
}

func (self *execution) applySet(f *Frame, set ActionSet) error {
	for _, k := range actionSetOrder {
		act, ok := set[k]
		if !ok {
			continue
		}
		if k == ofp4.OFPAT_OUTPUT {
			if _, group := set[ofp4.OFPAT_GROUP]; group {
				continue
			}
		}
		if err := self.applyList(f, ActionList{act}); err != nil {
			return err
		}
	}
	return nil
}
