package api

type Role string

const (
	RoleClient Role = "client"
	RoleRouter Role = "router"
	RoleServer Role = "server"
)

type Node struct {
	Uid        int32
	Name       string
	Role       Role
	Interfaces []NodeInterface
	NetNs      string // namespace path, set once the node is instantiated
	Image      string // container runtime only
}

type NodeInterface struct {
	Uid      int32
	Name     string
	Mac      string
	Ipv4     string // CIDR, e.g. 192.168.0.2/24
	NodeName string
}

// Interface looks up an interface by name.
func (n *Node) Interface(name string) (*NodeInterface, bool) {
	for i := range n.Interfaces {
		if n.Interfaces[i].Name == name {
			return &n.Interfaces[i], true
		}
	}
	return nil, false
}
