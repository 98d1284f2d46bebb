package ofp4sw

import (
	"strconv"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine activity. A nil *Metrics records nothing.
type Metrics struct {
	Actions        *prometheus.CounterVec
	ActionFailures *prometheus.CounterVec
	PacketIns      *prometheus.CounterVec
	GroupBuckets   *prometheus.CounterVec
	PacketOuts     *prometheus.CounterVec
}

var packetInReasons = map[uint8]string{
	ofp4.OFPR_NO_MATCH:    "no_match",
	ofp4.OFPR_ACTION:      "action",
	ofp4.OFPR_INVALID_TTL: "invalid_ttl",
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	self := &Metrics{
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofp4sw_actions_total",
			Help: "Number of actions executed",
		}, []string{"action"}),
		ActionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofp4sw_action_failures_total",
			Help: "Number of actions that failed",
		}, []string{"action"}),
		PacketIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofp4sw_packet_in_total",
			Help: "Number of packet_in notifications",
		}, []string{"reason"}),
		GroupBuckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofp4sw_group_buckets_total",
			Help: "Number of group buckets executed",
		}, []string{"type"}),
		PacketOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofp4sw_packet_out_total",
			Help: "Number of packet_out requests",
		}, []string{"result"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			self.Actions,
			self.ActionFailures,
			self.PacketIns,
			self.GroupBuckets,
			self.PacketOuts,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return self, nil
}

func (self *Metrics) action(atype uint16, err error) {
	if self == nil {
		return
	}
	name := actionName(atype)
	self.Actions.WithLabelValues(name).Inc()
	if err != nil && err != errDropped {
		self.ActionFailures.WithLabelValues(name).Inc()
	}
}

func (self *Metrics) packetIn(reason uint8) {
	if self == nil {
		return
	}
	name, ok := packetInReasons[reason]
	if !ok {
		name = strconv.Itoa(int(reason))
	}
	self.PacketIns.WithLabelValues(name).Inc()
}

func (self *Metrics) bucket(groupType uint8) {
	if self == nil {
		return
	}
	name, ok := groupTypeNames[groupType]
	if !ok {
		name = strconv.Itoa(int(groupType))
	}
	self.GroupBuckets.WithLabelValues(name).Inc()
}

func (self *Metrics) packetOut(err error) {
	if self == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	self.PacketOuts.WithLabelValues(result).Inc()
}
