package ofp4sw

import (
	"context"
	"sync"

	"github.com/hkwi/ofp4act/ofp4"
	"github.com/sirupsen/logrus"
)

// Listen runs every frame received on the ingress ports of ports through
// actions as a packet-out with in_port set to the receiving port. It returns
// once ctx is done and every port loop has stopped.
func (self *Pipeline) Listen(ctx context.Context, ports *PortTable, actions ActionList) {
	var wg sync.WaitGroup
	for portNo, port := range ports.IngressPorts() {
		wg.Add(1)
		go func(portNo uint32, port IngressPort) {
			defer wg.Done()
			log := self.Log.WithFields(logrus.Fields{
				"in_port": portNo,
				"port":    port.Name(),
			})
			for {
				select {
				case <-ctx.Done():
					return
				case data := <-port.Ingress():
					if err := self.PacketOut(PacketOut{
						BufferId: ofp4.OFP_NO_BUFFER,
						InPort:   portNo,
						Actions:  actions,
						Data:     data,
					}); err != nil {
						log.WithError(err).Debug("ingress frame")
					}
				}
			}
		}(portNo, port)
	}
	wg.Wait()
}
