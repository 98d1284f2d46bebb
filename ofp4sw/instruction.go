package ofp4sw

import (
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/pkg/errors"
)

// Instructions are the instructions of a matched flow entry.
// GotoTable of zero ends the pipeline at this entry.
type Instructions struct {
	Apply        ActionList
	Clear        bool
	Write        ActionList
	Metadata     uint64
	MetadataMask uint64
	GotoTable    uint8
}

func (self Instructions) validate(tableId uint8) error {
	if self.Metadata&^self.MetadataMask != 0 {
		return errors.New("invalid metadata value/mask pair")
	}
	if self.GotoTable != 0 && self.GotoTable <= tableId {
		return ofp4.Error{Type: ofp4.OFPET_BAD_INSTRUCTION, Code: ofp4.OFPBIC_BAD_TABLE_ID}
	}
	return nil
}

// Execute runs inst of the flow entry in instruction order against f and the
// packet's action set. It returns the next table id, or zero when the action
// set has been executed or the packet was dropped. It holds the pipeline
// lock, so packet-out requests wait for it.
func (self *Pipeline) Execute(f *Frame, set ActionSet, inst Instructions, flow FlowRef) (uint8, error) {
	if err := inst.validate(flow.TableId); err != nil {
		return 0, err
	}
	if !self.Lock.Acquire() {
		return 0, errors.New("pipeline lock not acquired")
	}
	defer self.Lock.Release()
	ctx := &execution{pipe: self, flow: flow}
	if err := ctx.applyList(f, inst.Apply); err != nil {
		return 0, ignoreDropped(err)
	}
	if inst.Clear {
		set.Clear()
	}
	if len(inst.Write) > 0 {
		if err := set.Write(inst.Write); err != nil {
			return 0, err
		}
	}
	if inst.MetadataMask != 0 {
		f.SetMetadata(inst.Metadata&inst.MetadataMask | f.cls.Metadata&^inst.MetadataMask)
	}
	if inst.GotoTable != 0 {
		return inst.GotoTable, nil
	}
	return 0, ignoreDropped(ctx.applySet(f, set))
}
