package link

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/util"
)

// Each veth end is point-to-point, so one class shapes all of its egress:
//
//	1:   htb root, default class 1:1
//	1:1  htb class, rate limit
//	10:  netem under 1:1, delay and loss
//
// bw control comes before loss and latency, as with mininet's TCIntf.

var (
	rootHandle  = netlink.MakeHandle(1, 0)
	classHandle = netlink.MakeHandle(1, 1)
	netemHandle = netlink.MakeHandle(10, 0)
)

const (
	netemLimit = 1000
	htbBuffer  = 10000
	mbit       = 1000 * 1000
)

// NetemAttrs converts link properties to netem parameters.
func NetemAttrs(p api.LinkProperties) netlink.NetemQdiscAttrs {
	return netlink.NetemQdiscAttrs{
		Latency: p.Latency * 1000, // ms to us
		Loss:    p.Loss,
		Limit:   netemLimit,
	}
}

// HtbRate converts the link rate to bits per second.
func HtbRate(p api.LinkProperties) uint64 {
	return p.Rate * mbit
}

// ApplyLinkProperties installs (or replaces) the shaping tree on the
// named interface of node n:
// tc qdisc replace dev eth0 root handle 1: htb default 1
// tc class replace dev eth0 parent 1: classid 1:1 htb rate 100mbit burst 10000
// tc qdisc replace dev eth0 parent 1:1 handle 10: netem delay 1ms loss 3.6%
func (lm *LinkManager) ApplyLinkProperties(n *api.Node, ifname string, p api.LinkProperties) error {
	return util.InNetNs(n.NetNs, func() error {
		link, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %v", ifname, err)
		}
		index := link.Attrs().Index

		// 1. htb root
		qdisc := netlink.NewHtb(netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    rootHandle,
			Parent:    netlink.HANDLE_ROOT,
		})
		qdisc.Defcls = 1
		if err := netlink.QdiscReplace(qdisc); err != nil {
			return fmt.Errorf("failed to add HTB root qdisc on %s: %v", ifname, err)
		}

		// 2. bw control
		class := netlink.NewHtbClass(
			netlink.ClassAttrs{
				LinkIndex: index,
				Handle:    classHandle,
				Parent:    rootHandle,
			},
			netlink.HtbClassAttrs{
				Rate:   HtbRate(p),
				Buffer: htbBuffer,
				Prio:   1,
			},
		)
		if err := netlink.ClassReplace(class); err != nil {
			return fmt.Errorf("failed to add HTB class on %s: %v", ifname, err)
		}

		// 3. delay and loss
		netem := netlink.NewNetem(netlink.QdiscAttrs{
			LinkIndex: index,
			Parent:    classHandle,
			Handle:    netemHandle,
		}, NetemAttrs(p))
		if err := netlink.QdiscReplace(netem); err != nil {
			return fmt.Errorf("failed to add netem qdisc on %s: %v", ifname, err)
		}
		return nil
	})
}
