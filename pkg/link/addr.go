package link

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/util"
)

// SetAddr assigns a static CIDR address to an interface of n, flushing
// any address it had (same as mininet's setIP).
func (lm *LinkManager) SetAddr(n *api.Node, ifname, cidr string) error {
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("failed to parse CIDR %s: %v", cidr, err)
	}
	return util.InNetNs(n.NetNs, func() error {
		link, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("failed to get link %s in %s: %v", ifname, n.Name, err)
		}
		old, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return fmt.Errorf("failed to list addresses of %s: %v", ifname, err)
		}
		for i := range old {
			if err := netlink.AddrDel(link, &old[i]); err != nil {
				return fmt.Errorf("failed to flush address %s: %v", old[i].IPNet, err)
			}
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("failed to add address to link: %v", err)
		}
		return nil
	})
}

// AddDefaultRoute installs "default via gw" in the namespace of n.
func (lm *LinkManager) AddDefaultRoute(n *api.Node, gw string) error {
	ip := net.ParseIP(gw)
	if ip == nil {
		return fmt.Errorf("invalid gateway address %q", gw)
	}
	return util.InNetNs(n.NetNs, func() error {
		if err := netlink.RouteReplace(&netlink.Route{Gw: ip}); err != nil {
			return fmt.Errorf("failed to add default route via %s on %s: %v", gw, n.Name, err)
		}
		return nil
	})
}

// SetLinkUp brings an interface of n up.
func (lm *LinkManager) SetLinkUp(n *api.Node, ifname string) error {
	return util.InNetNs(n.NetNs, func() error {
		link, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("failed to get link %s in %s: %v", ifname, n.Name, err)
		}
		if err = netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set link up: %v", err)
		}
		return nil
	})
}
