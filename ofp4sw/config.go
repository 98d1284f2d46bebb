package ofp4sw

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type PortConfig struct {
	No   uint32 `yaml:"no"`
	Name string `yaml:"name"`
	// Pcap records egress frames into this file instead of a netdev.
	Pcap string `yaml:"pcap"`
}

type BucketConfig struct {
	Actions string `yaml:"actions"`
}

type GroupConfig struct {
	Id      uint32         `yaml:"id"`
	Type    string         `yaml:"type"`
	Buckets []BucketConfig `yaml:"buckets"`
}

type Config struct {
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	BufferPoolSize int           `yaml:"buffer_pool_size"`
	MissSendLen    *uint16       `yaml:"miss_send_len"`
	Ports          []PortConfig  `yaml:"ports"`
	Actions        string        `yaml:"actions"`
	Groups         []GroupConfig `yaml:"groups"`
}

func LoadConfig(path string) (*Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	defer fp.Close()
	return ReadConfig(fp)
}

func ReadConfig(r io.Reader) (*Config, error) {
	var config Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "config decode")
	}
	return &config, nil
}

func (self *Config) Logger() (*logrus.Entry, error) {
	logger := logrus.New()
	if self.LogLevel != "" {
		level, err := logrus.ParseLevel(self.LogLevel)
		if err != nil {
			return nil, errors.Wrap(err, "log_level")
		}
		logger.SetLevel(level)
	}
	switch strings.ToLower(self.LogFormat) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log_format %q", self.LogFormat)
	}
	return logger.WithField("component", "ofp4sw"), nil
}

// ActionList parses the configured apply-actions list.
func (self *Config) ActionList() (ActionList, error) {
	actions, err := ParseActionList(self.Actions)
	if err != nil {
		return nil, errors.Wrap(err, "actions")
	}
	return actions, nil
}

var groupTypesByName = map[string]uint8{
	"all":      ofp4.OFPGT_ALL,
	"select":   ofp4.OFPGT_SELECT,
	"indirect": ofp4.OFPGT_INDIRECT,
	"ff":       ofp4.OFPGT_FF,
}

// NewPipeline builds a pipeline with a PortTable, a Controller sharing the
// buffer pool and the configured groups. reg may be nil.
func (self *Config) NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	log, err := self.Logger()
	if err != nil {
		return nil, err
	}
	pipe := NewPipeline()
	pipe.Log = log
	if self.MissSendLen != nil {
		pipe.MissSendLen = *self.MissSendLen
	}

	size := self.BufferPoolSize
	if size == 0 {
		size = DefaultBufferPoolSize
	}
	buffers, err := NewLRUBufferPool(size)
	if err != nil {
		return nil, err
	}
	pipe.Buffers = buffers
	controller := NewController(buffers, nil)
	controller.Log = log.WithField("component", "controller")
	pipe.Controller = controller

	if reg != nil {
		metrics, err := NewMetrics(reg)
		if err != nil {
			return nil, errors.Wrap(err, "metrics")
		}
		pipe.Metrics = metrics
	}

	ports := NewPortTable()
	for _, pc := range self.Ports {
		port, err := pc.open(log)
		if err != nil {
			ports.Close()
			return nil, err
		}
		if err := ports.AddPort(pc.No, port); err != nil {
			ports.Close()
			return nil, err
		}
	}
	pipe.Ports = ports

	groups := NewGroupMap()
	for _, gc := range self.Groups {
		gtype, ok := groupTypesByName[strings.ToLower(gc.Type)]
		if !ok {
			ports.Close()
			return nil, errors.Errorf("group %d: unknown type %q", gc.Id, gc.Type)
		}
		entry := &GroupEntry{GroupId: gc.Id, Type: gtype}
		for _, bc := range gc.Buckets {
			actions, err := ParseActionList(bc.Actions)
			if err != nil {
				ports.Close()
				return nil, errors.Wrapf(err, "group %d bucket", gc.Id)
			}
			entry.Buckets = append(entry.Buckets, NewBucket(actions))
		}
		if err := groups.Add(entry); err != nil {
			ports.Close()
			return nil, errors.Wrapf(err, "group %d", gc.Id)
		}
	}
	pipe.Groups = groups
	return pipe, nil
}

func (self PortConfig) open(log *logrus.Entry) (Port, error) {
	name := self.Name
	if name == "" {
		name = fmt.Sprintf("port%d", self.No)
	}
	if self.Pcap != "" {
		fp, err := os.Create(self.Pcap)
		if err != nil {
			return nil, errors.Wrapf(err, "port %d", self.No)
		}
		port, err := NewPcapPort(name, fp)
		if err != nil {
			fp.Close()
			return nil, errors.Wrapf(err, "port %d", self.No)
		}
		return port, nil
	}
	if self.Name == "" {
		return nil, errors.Errorf("port %d: name or pcap required", self.No)
	}
	return openNetdevPort(self.Name, log)
}
