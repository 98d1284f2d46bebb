/*
Command ofpact replays a pcap file through an openflow action list as
packet-out requests and records what leaves the switch ports. With -l it
instead applies the action list to frames received on the netdev ports
until interrupted.
*/
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/gopacket/pcapgo"
	"github.com/hkwi/ofp4act/ofp4"
	"github.com/hkwi/ofp4act/ofp4sw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "ofpact.yaml", "config file")
	var input string
	flag.StringVar(&input, "r", "", "input pcap file")
	var inPort uint
	flag.UintVar(&inPort, "i", uint(ofp4.OFPP_CONTROLLER), "in_port of replayed frames")
	var actions string
	flag.StringVar(&actions, "a", "", "action list, overrides the config")
	var packetIns string
	flag.StringVar(&packetIns, "w", "", "file to write packet_in messages to")
	var metricsAddr string
	flag.StringVar(&metricsAddr, "m", "", "serve prometheus metrics on this address and wait")
	var listen bool
	flag.BoolVar(&listen, "l", false, "apply the action list to frames received on the ports")
	flag.Parse()

	config, err := ofp4sw.LoadConfig(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if actions != "" {
		config.Actions = actions
	}
	reg := prometheus.NewRegistry()
	pipe, err := config.NewPipeline(reg)
	if err != nil {
		logrus.WithError(err).Fatal("pipeline")
	}
	log := pipe.Log
	ports := pipe.Ports.(*ofp4sw.PortTable)
	defer ports.Close()

	if packetIns != "" {
		fp, err := os.Create(packetIns)
		if err != nil {
			log.WithError(err).Fatal("packet_in output")
		}
		defer fp.Close()
		pipe.Controller.(*ofp4sw.Controller).Egress = func(msg []byte) error {
			_, err := fp.Write(msg)
			return err
		}
	}

	list, err := config.ActionList()
	if err != nil {
		log.WithError(err).Fatal("action list")
	}

	if input != "" {
		if err := replay(pipe, input, uint32(inPort), list); err != nil {
			log.WithError(err).Fatal("replay")
		}
	}

	for _, pc := range config.Ports {
		if stats, ok := ports.Stats(pc.No); ok {
			log.WithFields(logrus.Fields{
				"port":       pc.No,
				"tx_packets": stats.TxPackets,
				"tx_bytes":   stats.TxBytes,
				"tx_dropped": stats.TxDropped,
				"tx_errors":  stats.TxErrors,
			}).Info("port stats")
		}
	}

	if metricsAddr == "" && !listen {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if metricsAddr != "" {
		server := &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		if !listen {
			serveMetrics(server, log)
			return
		}
		go serveMetrics(server, log)
	}
	log.WithField("ports", len(ports.IngressPorts())).Info("listening")
	pipe.Listen(ctx, ports, list)
}

func serveMetrics(server *http.Server, log *logrus.Entry) {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("metrics server")
	}
}

func replay(pipe *ofp4sw.Pipeline, input string, inPort uint32, actions ofp4sw.ActionList) error {
	fp, err := os.Open(input)
	if err != nil {
		return err
	}
	defer fp.Close()
	reader, err := pcapgo.NewReader(fp)
	if err != nil {
		return err
	}
	count := 0
	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		count++
		if err := pipe.PacketOut(ofp4sw.PacketOut{
			BufferId: ofp4.OFP_NO_BUFFER,
			InPort:   inPort,
			Actions:  actions,
			Data:     data,
		}); err != nil {
			pipe.Log.WithError(err).WithField("frame", count).Warn("packet_out")
		}
	}
	pipe.Log.WithField("frames", count).Info("replay done")
	return nil
}
