// Package topo describes the emulated client--router--server chain.
//
//	client ---- router ---- server
//	       access      backbone
//
// A Topology is pure data: nothing here touches the host.
package topo

import (
	"fmt"

	"github.com/cs244-team/sidekick/api"
)

const (
	ClientName = "client"
	RouterName = "router"
	ServerName = "server"
)

type Topology struct {
	Nodes []*api.Node
	Links []*api.Link
}

// Build assembles the chain from the two segment properties. Interface names
// follow the <node>-eth<N> convention, numbered in link order per node.
func Build(access, backbone api.LinkProperties) *Topology {
	t := &Topology{}
	client := t.addNode(ClientName, api.RoleClient)
	router := t.addNode(RouterName, api.RoleRouter)
	server := t.addNode(ServerName, api.RoleServer)

	t.addLink(client, router, access)
	t.addLink(router, server, backbone)
	return t
}

func (t *Topology) addNode(name string, role api.Role) *api.Node {
	n := &api.Node{
		Uid:  int32(len(t.Nodes) + 1),
		Name: name,
		Role: role,
	}
	t.Nodes = append(t.Nodes, n)
	return n
}

func (t *Topology) addIntf(n *api.Node) api.NodeInterface {
	intf := api.NodeInterface{
		Uid:      int32(len(n.Interfaces)),
		Name:     fmt.Sprintf("%s-eth%d", n.Name, len(n.Interfaces)),
		NodeName: n.Name,
	}
	n.Interfaces = append(n.Interfaces, intf)
	return intf
}

func (t *Topology) addLink(src, dst *api.Node, p api.LinkProperties) {
	t.Links = append(t.Links, &api.Link{
		Uid:        int32(len(t.Links) + 1),
		SrcNode:    src.Name,
		DstNode:    dst.Name,
		Properties: p,
		SrcIntf:    t.addIntf(src),
		DstIntf:    t.addIntf(dst),
	})
}

// Node returns the node with the given name, or nil.
func (t *Topology) Node(name string) *api.Node {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// NodeByRole returns the first node with the given role, or nil.
func (t *Topology) NodeByRole(role api.Role) *api.Node {
	for _, n := range t.Nodes {
		if n.Role == role {
			return n
		}
	}
	return nil
}

func (t *Topology) Router() *api.Node { return t.NodeByRole(api.RoleRouter) }

// LinkBetween returns the link joining a and b in either direction, or nil.
func (t *Topology) LinkBetween(a, b string) *api.Link {
	for _, l := range t.Links {
		if l.Attaches(a) && l.Attaches(b) {
			return l
		}
	}
	return nil
}

// Delays returns the configured latency of every link, in link order.
func (t *Topology) Delays() []uint32 {
	out := make([]uint32, 0, len(t.Links))
	for _, l := range t.Links {
		out = append(out, l.Properties.Latency)
	}
	return out
}

// Validate checks the chain invariants structurally: three nodes with
// distinct names and one of each role, two links with valid properties, no
// self links, every endpoint interface present on its node, and the
// router being the only node shared by both links.
func (t *Topology) Validate() error {
	if len(t.Nodes) != 3 || len(t.Links) != 2 {
		return fmt.Errorf("%w: want 3 nodes and 2 links, got %d and %d",
			api.ErrConfig, len(t.Nodes), len(t.Links))
	}

	names := make(map[string]*api.Node)
	roles := make(map[api.Role]int)
	for _, n := range t.Nodes {
		if _, dup := names[n.Name]; dup {
			return fmt.Errorf("%w: duplicate node %s", api.ErrConfig, n.Name)
		}
		names[n.Name] = n
		roles[n.Role]++
	}
	for _, r := range []api.Role{api.RoleClient, api.RoleRouter, api.RoleServer} {
		if roles[r] != 1 {
			return fmt.Errorf("%w: want exactly one %s, got %d", api.ErrConfig, r, roles[r])
		}
	}

	degree := make(map[string]int)
	for _, l := range t.Links {
		src, dst := l.Endpoints()
		if src == dst {
			return fmt.Errorf("%w: link %d connects %s to itself", api.ErrConfig, l.Uid, src)
		}
		if err := l.Properties.Validate(); err != nil {
			return fmt.Errorf("link %s-%s: %w", src, dst, err)
		}
		for _, end := range []struct {
			node string
			intf api.NodeInterface
		}{{src, l.SrcIntf}, {dst, l.DstIntf}} {
			n, ok := names[end.node]
			if !ok {
				return fmt.Errorf("%w: link %d references unknown node %s", api.ErrConfig, l.Uid, end.node)
			}
			if _, ok := n.Interface(end.intf.Name); !ok {
				return fmt.Errorf("%w: interface %s not found on %s", api.ErrConfig, end.intf.Name, n.Name)
			}
			degree[end.node]++
		}
	}

	router := t.Router()
	if degree[router.Name] != 2 {
		return fmt.Errorf("%w: router must terminate both links", api.ErrConfig)
	}
	for _, n := range t.Nodes {
		if n != router && degree[n.Name] != 1 {
			return fmt.Errorf("%w: %s must terminate exactly one link, got %d",
				api.ErrConfig, n.Name, degree[n.Name])
		}
	}
	return nil
}
