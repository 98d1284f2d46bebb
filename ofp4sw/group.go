package ofp4sw

import (
	"sync"
	"sync/atomic"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/sirupsen/logrus"
)

type Bucket struct {
	Actions     ActionList
	packetCount uint64
	byteCount   uint64
}

func NewBucket(actions ActionList) *Bucket {
	return &Bucket{Actions: actions}
}

func (self *Bucket) count(length int) {
	atomic.AddUint64(&self.packetCount, 1)
	atomic.AddUint64(&self.byteCount, uint64(length))
}

func (self *Bucket) Counters() (packets, bytes uint64) {
	return atomic.LoadUint64(&self.packetCount), atomic.LoadUint64(&self.byteCount)
}

// live reports whether every OUTPUT of the bucket targets a port whose link is up.
func (self *Bucket) live(ports PortIO, inPort uint32) bool {
	if ports == nil {
		return true
	}
	for _, act := range self.Actions {
		if out, ok := act.(actionOutput); ok {
			port := out.Port
			if port == ofp4.OFPP_IN_PORT {
				port = inPort
			}
			if !ports.IsLinkUp(port) {
				return false
			}
		}
	}
	return true
}

type GroupEntry struct {
	GroupId     uint32
	Type        uint8
	Buckets     []*Bucket
	packetCount uint64
	byteCount   uint64
}

func (self *GroupEntry) count(length int) {
	atomic.AddUint64(&self.packetCount, 1)
	atomic.AddUint64(&self.byteCount, uint64(length))
}

func (self *GroupEntry) Counters() (packets, bytes uint64) {
	return atomic.LoadUint64(&self.packetCount), atomic.LoadUint64(&self.byteCount)
}

var groupTypeNames = map[uint8]string{
	ofp4.OFPGT_ALL:      "all",
	ofp4.OFPGT_SELECT:   "select",
	ofp4.OFPGT_INDIRECT: "indirect",
	ofp4.OFPGT_FF:       "ff",
}

// GroupMap is an in-memory GroupTable.
type GroupMap struct {
	lock   sync.RWMutex
	groups map[uint32]*GroupEntry
}

func NewGroupMap() *GroupMap {
	return &GroupMap{groups: make(map[uint32]*GroupEntry)}
}

func (self *GroupMap) Add(entry *GroupEntry) error {
	if _, ok := groupTypeNames[entry.Type]; !ok {
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_BAD_TYPE}
	}
	if entry.GroupId > ofp4.OFPG_MAX {
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_INVALID_GROUP}
	}
	if entry.Type == ofp4.OFPGT_INDIRECT && len(entry.Buckets) != 1 {
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_INVALID_GROUP}
	}
	self.lock.Lock()
	defer self.lock.Unlock()
	if _, exists := self.groups[entry.GroupId]; exists {
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_GROUP_EXISTS}
	}
	self.groups[entry.GroupId] = entry
	return nil
}

func (self *GroupMap) Delete(groupId uint32) error {
	self.lock.Lock()
	defer self.lock.Unlock()
	if _, exists := self.groups[groupId]; !exists {
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_UNKNOWN_GROUP}
	}
	delete(self.groups, groupId)
	return nil
}

func (self *GroupMap) LookupGroup(groupId uint32) *GroupEntry {
	self.lock.RLock()
	defer self.lock.RUnlock()
	return self.groups[groupId]
}

func (self *execution) group(f *Frame, groupId uint32) error {
	var entry *GroupEntry
	if self.pipe.Groups != nil {
		entry = self.pipe.Groups.LookupGroup(groupId)
	}
	if entry == nil {
		self.pipe.Log.WithField("group_id", groupId).Debug("group not found, action dropped")
		return nil
	}
	for _, id := range self.chain {
		if id == groupId {
			return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_LOOP}
		}
	}
	self.chain = append(self.chain, groupId)
	defer func() {
		self.chain = self.chain[:len(self.chain)-1]
	}()

	run := func(b *Bucket) error {
		entry.count(f.Len())
		b.count(f.Len())
		self.pipe.Metrics.bucket(entry.Type)
		return self.applyList(f, b.Actions)
	}

	switch entry.Type {
	case ofp4.OFPGT_ALL:
		// every bucket sees the frame as left by the previous one
		for _, b := range entry.Buckets {
			if err := run(b); err != nil {
				return err
			}
		}
	case ofp4.OFPGT_SELECT:
		var candidates []*Bucket
		for _, b := range entry.Buckets {
			if b.live(self.pipe.Ports, f.InPort()) {
				candidates = append(candidates, b)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
		// XXX: one bucket per wall clock second, not a flow hash
		return run(candidates[self.pipe.Now().Unix()%int64(len(candidates))])
	case ofp4.OFPGT_INDIRECT:
		if len(entry.Buckets) > 0 {
			return run(entry.Buckets[0])
		}
	case ofp4.OFPGT_FF:
		self.pipe.Log.WithFields(logrus.Fields{
			"group_id": groupId,
		}).Debug("fast failover group is not implemented")
	default:
		return ofp4.Error{Type: ofp4.OFPET_GROUP_MOD_FAILED, Code: ofp4.OFPGMFC_BAD_TYPE}
	}
	return nil
}
