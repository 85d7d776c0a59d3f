// Package netconf assigns static addresses and default routes to the
// emulated chain. The router is the dual-homed gateway of both subnets.
package netconf

import (
	"fmt"

	"github.com/apex/log"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/topo"
	"github.com/cs244-team/sidekick/pkg/util"
)

const (
	ClientSubnet = "192.168.0.0/24"
	ServerSubnet = "35.240.0.0/16"

	RouterClientAddr = "192.168.0.1/24"
	ClientAddr       = "192.168.0.2/24"
	RouterServerAddr = "35.240.0.1/16"
	ServerAddr       = "35.240.20.220/16"
)

var ErrMissingInterface = fmt.Errorf("%w: missing interface", api.ErrConfig)

type Assignment struct {
	Node      string
	Interface string
	Address   string // CIDR
	Subnet    string // network of the segment, e.g. 192.168.0.0/24
}

type Route struct {
	Node string
	Via  string
}

// Plan is the subnet assignment of a topology.
type Plan struct {
	Router      string
	Assignments []Assignment
	Routes      []Route
}

// Configurer is the part of the emulation engine that touches interfaces.
type Configurer interface {
	SetLinkUp(n *api.Node, ifname string) error
	SetAddr(n *api.Node, ifname, cidr string) error
	AddDefaultRoute(n *api.Node, gw string) error
}

// DefaultPlan lays the fixed two-subnet scheme over t: a /24 on the
// access segment and a /16 on the backbone.
func DefaultPlan(t *topo.Topology) (*Plan, error) {
	router := t.Router()
	if router == nil {
		return nil, fmt.Errorf("%w: topology has no router", api.ErrConfig)
	}
	client := t.NodeByRole(api.RoleClient)
	server := t.NodeByRole(api.RoleServer)
	if client == nil || server == nil {
		return nil, fmt.Errorf("%w: topology needs a client and a server", api.ErrConfig)
	}

	p := &Plan{Router: router.Name}
	segments := []struct {
		leaf       *api.Node
		subnet     string
		leafAddr   string
		routerAddr string
	}{
		{client, ClientSubnet, ClientAddr, RouterClientAddr},
		{server, ServerSubnet, ServerAddr, RouterServerAddr},
	}
	for _, s := range segments {
		l := t.LinkBetween(s.leaf.Name, router.Name)
		if l == nil {
			return nil, fmt.Errorf("%w: no link between %s and %s", api.ErrConfig, s.leaf.Name, router.Name)
		}
		leafIntf, _ := l.IntfOn(s.leaf.Name)
		routerIntf, _ := l.IntfOn(router.Name)
		p.Assignments = append(p.Assignments,
			Assignment{Node: router.Name, Interface: routerIntf.Name, Address: s.routerAddr, Subnet: s.subnet},
			Assignment{Node: s.leaf.Name, Interface: leafIntf.Name, Address: s.leafAddr, Subnet: s.subnet},
		)
		p.Routes = append(p.Routes, Route{Node: s.leaf.Name, Via: util.HostIP(s.routerAddr)})
	}
	return p, nil
}

// Address returns the CIDR assigned to node/ifname, or "".
func (p *Plan) Address(node, ifname string) string {
	for _, a := range p.Assignments {
		if a.Node == node && a.Interface == ifname {
			return a.Address
		}
	}
	return ""
}

// HostIP returns the address of the first interface of node, without prefix.
func (p *Plan) HostIP(node string) string {
	for _, a := range p.Assignments {
		if a.Node == node {
			return util.HostIP(a.Address)
		}
	}
	return ""
}

// Gateway returns the default route target of node, or "".
func (p *Plan) Gateway(node string) string {
	for _, r := range p.Routes {
		if r.Node == node {
			return r.Via
		}
	}
	return ""
}

// Verify checks that every address is a valid IPv4 CIDR inside its
// segment's subnet and that every non-router node routes through the
// router address on its own subnet.
func (p *Plan) Verify() error {
	leaves := make(map[string][]string)
	var routerAddrs []string
	for _, a := range p.Assignments {
		if _, err := util.ParseIpv4CIDR(a.Address); err != nil {
			return fmt.Errorf("%w: %s/%s: %v", api.ErrConfig, a.Node, a.Interface, err)
		}
		if a.Subnet != "" && !util.SameSubnet(a.Subnet, util.HostIP(a.Address)) {
			return fmt.Errorf("%w: %s/%s: %s outside %s",
				api.ErrConfig, a.Node, a.Interface, a.Address, a.Subnet)
		}
		if a.Node == p.Router {
			routerAddrs = append(routerAddrs, a.Address)
		} else {
			leaves[a.Node] = append(leaves[a.Node], a.Address)
		}
	}

	for node, addrs := range leaves {
		via := p.Gateway(node)
		if via == "" {
			return fmt.Errorf("%w: %s has no default route", api.ErrConfig, node)
		}
		found := false
		for _, ra := range routerAddrs {
			if util.HostIP(ra) == via && util.SameSubnet(addrs[0], via) {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: %s routes via %s, not a router address on its subnet",
				api.ErrConfig, node, via)
		}
	}
	return nil
}

// Apply configures the instantiated nodes. It must run before the network
// is started. All referenced interfaces are checked before anything is
// changed: a miss means topology and plan disagree.
func (p *Plan) Apply(nodes map[string]*api.Node, c Configurer) error {
	for _, a := range p.Assignments {
		n, ok := nodes[a.Node]
		if !ok {
			return fmt.Errorf("%w: node %s not instantiated", api.ErrConfig, a.Node)
		}
		if _, ok := n.Interface(a.Interface); !ok {
			return fmt.Errorf("%w: %s on %s", ErrMissingInterface, a.Interface, a.Node)
		}
	}
	for _, r := range p.Routes {
		if _, ok := nodes[r.Node]; !ok {
			return fmt.Errorf("%w: node %s not instantiated", api.ErrConfig, r.Node)
		}
	}

	loopback := make(map[string]bool)
	for _, a := range p.Assignments {
		n := nodes[a.Node]
		if !loopback[n.Name] {
			if err := c.SetLinkUp(n, "lo"); err != nil {
				return err
			}
			loopback[n.Name] = true
		}
		if err := c.SetAddr(n, a.Interface, a.Address); err != nil {
			return err
		}
		if err := c.SetLinkUp(n, a.Interface); err != nil {
			return err
		}
		intf, _ := n.Interface(a.Interface)
		intf.Ipv4 = a.Address
		log.WithFields(log.Fields{"node": n.Name, "intf": a.Interface, "addr": a.Address}).Info("address assigned")
	}

	for _, r := range p.Routes {
		if err := c.AddDefaultRoute(nodes[r.Node], r.Via); err != nil {
			return err
		}
		log.WithFields(log.Fields{"node": r.Node, "via": r.Via}).Info("default route installed")
	}
	return nil
}
