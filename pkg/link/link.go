package link

import (
	"fmt"

	"github.com/apex/log"
	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/util"
)

const (
	DefaultMTU = 1500

	// tagLen is how much of the run tag goes into host-side veth names,
	// which must fit in IFNAMSIZ-1 = 15 bytes.
	tagLen = 8
)

// LinkManager materializes links as veth pairs between node namespaces,
// shapes them with tc and configures interface addresses and routes.
type LinkManager struct {
	mtu int
	tag string
}

// NewLinkManager creates a LinkManager whose host-side veth names carry
// tag, usually the run id, so that concurrent runs do not collide.
func NewLinkManager(tag string) *LinkManager {
	return &LinkManager{mtu: DefaultMTU, tag: tag}
}

// VethName is the temporary host-side name of one end of link uid; end
// is 'a' for the source and 'b' for the destination.
func VethName(tag string, uid int32, end byte) string {
	if len(tag) > tagLen {
		tag = tag[len(tag)-tagLen:]
	}
	return fmt.Sprintf("sk%s%d%c", tag, uid, end)
}

// AddLink creates the veth pair for l, moves each end into the namespace
// of its node, renames it there and applies the link properties on both
// ends.
func (lm *LinkManager) AddLink(l *api.Link, src, dst *api.Node) error {
	srcTmp, dstTmp := VethName(lm.tag, l.Uid, 'a'), VethName(lm.tag, l.Uid, 'b')

	// 1. Create veth pair in the host namespace under run-scoped names
	linkAttr := netlink.NewLinkAttrs()
	linkAttr.Name = srcTmp
	linkAttr.MTU = lm.mtu
	veth := &netlink.Veth{
		LinkAttrs: linkAttr,
		PeerName:  dstTmp,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("failed to create veth pair %s/%s: %v", srcTmp, dstTmp, err)
	}

	// 2. Move both ends into their nodes and give them their final names
	if err := lm.moveToNode(srcTmp, l.SrcIntf.Name, src); err != nil {
		_ = netlink.LinkDel(veth)
		return err
	}
	if err := lm.moveToNode(dstTmp, l.DstIntf.Name, dst); err != nil {
		return err
	}

	// 3. Record MACs
	if err := lm.recordMac(src, l.SrcIntf.Name, &l.SrcIntf); err != nil {
		return err
	}
	if err := lm.recordMac(dst, l.DstIntf.Name, &l.DstIntf); err != nil {
		return err
	}

	// 4. Shape both directions with the same properties
	if err := lm.ApplyLinkProperties(src, l.SrcIntf.Name, l.Properties); err != nil {
		return err
	}
	if err := lm.ApplyLinkProperties(dst, l.DstIntf.Name, l.Properties); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"link":  fmt.Sprintf("%s<->%s", l.SrcIntf.Name, l.DstIntf.Name),
		"props": l.Properties.String(),
	}).Info("link created")
	return nil
}

func (lm *LinkManager) moveToNode(tmpName, ifname string, n *api.Node) error {
	hostLink, err := netlink.LinkByName(tmpName)
	if err != nil {
		return fmt.Errorf("failed to get link by name %s: %v", tmpName, err)
	}
	nodeNs, err := ns.GetNS(n.NetNs)
	if err != nil {
		return fmt.Errorf("failed to get namespace for %s: %v", n.Name, err)
	}
	defer nodeNs.Close()

	if err = netlink.LinkSetNsFd(hostLink, int(nodeNs.Fd())); err != nil {
		return fmt.Errorf("failed to move %s into %s: %v", tmpName, n.Name, err)
	}
	return nodeNs.Do(func(_ ns.NetNS) error {
		nodeLink, err := netlink.LinkByName(tmpName)
		if err != nil {
			return fmt.Errorf("failed to get link %s in %s: %v", tmpName, n.Name, err)
		}
		if err = netlink.LinkSetName(nodeLink, ifname); err != nil {
			return fmt.Errorf("failed to rename %s to %s in %s: %v", tmpName, ifname, n.Name, err)
		}
		return nil
	})
}

func (lm *LinkManager) recordMac(n *api.Node, ifname string, linkIntf *api.NodeInterface) error {
	return util.InNetNs(n.NetNs, func() error {
		nodeLink, err := netlink.LinkByName(ifname)
		if err != nil {
			return fmt.Errorf("failed to get link %s in %s: %v", ifname, n.Name, err)
		}
		mac := nodeLink.Attrs().HardwareAddr.String()
		linkIntf.Mac = mac
		if intf, ok := n.Interface(ifname); ok {
			intf.Mac = mac
		}
		return nil
	})
}
