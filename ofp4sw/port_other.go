//go:build !linux

package ofp4sw

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func openNetdevPort(name string, log *logrus.Entry) (Port, error) {
	return nil, errors.Errorf("netdev port %s: not supported on this platform", name)
}
