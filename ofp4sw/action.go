package ofp4sw

import (
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/oxm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// errDropped stops an application after the frame was handed to the
// controller for an invalid TTL. It never leaves the package.
var errDropped = errors.New("dropped on invalid ttl")

type action interface {
	kind() uint16
	process(ctx *execution, f *Frame) error
}

var actionNames = map[uint16]string{
	ofp4.OFPAT_OUTPUT:       "output",
	ofp4.OFPAT_COPY_TTL_OUT: "copy_ttl_out",
	ofp4.OFPAT_COPY_TTL_IN:  "copy_ttl_in",
	ofp4.OFPAT_SET_MPLS_TTL: "set_mpls_ttl",
	ofp4.OFPAT_DEC_MPLS_TTL: "dec_mpls_ttl",
	ofp4.OFPAT_PUSH_VLAN:    "push_vlan",
	ofp4.OFPAT_POP_VLAN:     "pop_vlan",
	ofp4.OFPAT_PUSH_MPLS:    "push_mpls",
	ofp4.OFPAT_POP_MPLS:     "pop_mpls",
	ofp4.OFPAT_SET_QUEUE:    "set_queue",
	ofp4.OFPAT_GROUP:        "group",
	ofp4.OFPAT_SET_NW_TTL:   "set_nw_ttl",
	ofp4.OFPAT_DEC_NW_TTL:   "dec_nw_ttl",
	ofp4.OFPAT_SET_FIELD:    "set_field",
	ofp4.OFPAT_PUSH_PBB:     "push_pbb",
	ofp4.OFPAT_POP_PBB:      "pop_pbb",
	ofp4.OFPAT_EXPERIMENTER: "experimenter",
}

func actionName(atype uint16) string {
	if name, ok := actionNames[atype]; ok {
		return name
	}
	return "unknown"
}

type actionOutput ofp4.ActionOutput

func (a actionOutput) kind() uint16 { return ofp4.OFPAT_OUTPUT }

func (a actionOutput) process(ctx *execution, f *Frame) error {
	return ctx.output(f, a.Port, a.MaxLen)
}

type actionGeneric ofp4.ActionGeneric

func (a actionGeneric) kind() uint16 { return a.Type }

func (a actionGeneric) process(ctx *execution, f *Frame) error {
	switch a.Type {
	case ofp4.OFPAT_COPY_TTL_OUT:
		return ctx.tolerate(f, f.copyTtlOut())
	case ofp4.OFPAT_COPY_TTL_IN:
		return ctx.tolerate(f, f.copyTtlIn())
	case ofp4.OFPAT_DEC_MPLS_TTL:
		return ctx.decrement(f, f.decMplsTtl)
	case ofp4.OFPAT_DEC_NW_TTL:
		return ctx.decrement(f, f.decNwTtl)
	case ofp4.OFPAT_POP_VLAN:
		return ctx.settle(f, f.popVlan())
	}
	// OFPAT_POP_PBB and anything unrecognized
	return errBadType()
}

type actionMplsTtl ofp4.ActionMplsTtl

func (a actionMplsTtl) kind() uint16 { return ofp4.OFPAT_SET_MPLS_TTL }

func (a actionMplsTtl) process(ctx *execution, f *Frame) error {
	return ctx.tolerate(f, f.setMplsTtl(a.MplsTtl))
}

type actionNwTtl ofp4.ActionNwTtl

func (a actionNwTtl) kind() uint16 { return ofp4.OFPAT_SET_NW_TTL }

func (a actionNwTtl) process(ctx *execution, f *Frame) error {
	return ctx.tolerate(f, f.setNwTtl(a.NwTtl))
}

type actionPush ofp4.ActionPush

func (a actionPush) kind() uint16 { return a.Type }

func (a actionPush) process(ctx *execution, f *Frame) error {
	switch a.Type {
	case ofp4.OFPAT_PUSH_VLAN:
		return ctx.settle(f, f.pushVlan(a.Ethertype))
	case ofp4.OFPAT_PUSH_MPLS:
		return ctx.settle(f, f.pushMpls(a.Ethertype))
	}
	return errBadType()
}

type actionPopMpls ofp4.ActionPopMpls

func (a actionPopMpls) kind() uint16 { return ofp4.OFPAT_POP_MPLS }

func (a actionPopMpls) process(ctx *execution, f *Frame) error {
	return ctx.settle(f, f.popMpls(a.Ethertype))
}

type actionGroup ofp4.ActionGroup

func (a actionGroup) kind() uint16 { return ofp4.OFPAT_GROUP }

func (a actionGroup) process(ctx *execution, f *Frame) error {
	return ctx.group(f, a.GroupId)
}

// actionSetField holds the decoded values of one or more SET_FIELD actions.
type actionSetField struct {
	fields oxm.Match
}

func (a actionSetField) kind() uint16 { return ofp4.OFPAT_SET_FIELD }

func (a actionSetField) process(ctx *execution, f *Frame) error {
	for _, oxmType := range a.fields.Fields() {
		v := a.fields[oxmType]
		if len(v.Mask) > 0 {
			return ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_ARGUMENT}
		}
		if err := ctx.settle(f, f.setField(oxmType, v.Value)); err != nil {
			return err
		}
	}
	return nil
}

// actionUnsupported covers kinds this engine refuses to run: SET_QUEUE,
// PUSH_PBB, EXPERIMENTER and undecodable payloads.
type actionUnsupported struct {
	atype uint16
	err   error
}

func (a actionUnsupported) kind() uint16 { return a.atype }

func (a actionUnsupported) process(ctx *execution, f *Frame) error {
	if a.err != nil {
		return a.err
	}
	return errBadType()
}

func newAction(msg ofp4.Action) action {
	switch act := msg.(type) {
	case ofp4.ActionOutput:
		return actionOutput(act)
	case ofp4.ActionGeneric:
		return actionGeneric(act)
	case ofp4.ActionMplsTtl:
		return actionMplsTtl(act)
	case ofp4.ActionNwTtl:
		return actionNwTtl(act)
	case ofp4.ActionPush:
		if act.Type == ofp4.OFPAT_PUSH_PBB {
			return actionUnsupported{atype: act.Type}
		}
		return actionPush(act)
	case ofp4.ActionPopMpls:
		return actionPopMpls(act)
	case ofp4.ActionGroup:
		return actionGroup(act)
	case ofp4.ActionSetField:
		fields, err := oxm.FromOxm(act.Field)
		if err != nil || len(fields) != 1 {
			return actionUnsupported{
				atype: ofp4.OFPAT_SET_FIELD,
				err:   ofp4.Error{Type: ofp4.OFPET_BAD_ACTION, Code: ofp4.OFPBAC_BAD_SET_TYPE},
			}
		}
		return actionSetField{fields: fields}
	}
	return actionUnsupported{atype: msg.GetType()}
}

// ActionList is an ordered action sequence: apply-actions, packet-out
// actions and group bucket bodies.
type ActionList []action

func NewActionList(msg []ofp4.Action) ActionList {
	actions := make(ActionList, len(msg))
	for i, mact := range msg {
		actions[i] = newAction(mact)
	}
	return actions
}

// DecodeActionList decodes wire format actions.
func DecodeActionList(data []byte) (ActionList, error) {
	msg, err := ofp4.ParseActions(data)
	if err != nil {
		return nil, err
	}
	return NewActionList(msg), nil
}

// ParseActionList decodes the text form, e.g. "set_ipv4_dst=10.0.0.1,output=3".
func ParseActionList(txt string) (ActionList, error) {
	data, err := ofp4.ParseActionList(txt)
	if err != nil {
		return nil, err
	}
	return DecodeActionList(data)
}

func (self *execution) applyList(f *Frame, actions ActionList) error {
	for _, act := range actions {
		err := act.process(self, f)
		self.pipe.Metrics.action(act.kind(), err)
		if err != nil {
			if err != errDropped {
				self.pipe.Log.WithFields(logrus.Fields{
					"action": actionName(act.kind()),
					"cookie": self.flow.Cookie,
				}).Debug(err)
			}
			return err
		}
	}
	return nil
}

// tolerate turns a mismatch into a logged no-op.
func (self *execution) tolerate(f *Frame, err error) error {
	if err != nil && isMismatch(err) {
		self.pipe.Log.WithFields(logrus.Fields{
			"in_port": f.InPort(),
			"cookie":  self.flow.Cookie,
		}).Warn(err)
		return nil
	}
	return err
}

// settle is tolerate plus re-classification after a successful mutation.
func (self *execution) settle(f *Frame, err error) error {
	if err == nil {
		return self.reclassify(f)
	}
	return self.tolerate(f, err)
}

// decrement runs a TTL decrement and reports an invalid TTL to the controller.
func (self *execution) decrement(f *Frame, dec func() (bool, error)) error {
	ok, err := dec()
	if err != nil {
		return self.tolerate(f, err)
	}
	if ok {
		return nil
	}
	if err := self.packetIn(f, ofp4.OFPR_INVALID_TTL, self.pipe.MissSendLen); err != nil {
		return err
	}
	return errDropped
}
