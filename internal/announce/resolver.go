package announce

import (
	"errors"
	"net"

	"github.com/hostinger/garp-service/internal/logger"
	"github.com/vishvananda/netlink"
)

// NetlinkResolver resolves hardware addresses through rtnetlink.
type NetlinkResolver struct{}

func (NetlinkResolver) HardwareAddr(ifname string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, err
	}

	attrs := link.Attrs()
	if len(attrs.HardwareAddr) == 0 {
		return nil, errors.New("no hardware address")
	}
	if attrs.Flags&net.FlagUp == 0 {
		logger.Warn("Interface %s is down, announcements will not leave the host until it is up", ifname)
	}

	return attrs.HardwareAddr, nil
}
