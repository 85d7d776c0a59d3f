package api

import (
	"fmt"
	"math"
)

// Link is a point-to-point segment between two node interfaces.
// Shaping is symmetric: Properties apply to both endpoints.
type Link struct {
	Uid        int32
	SrcNode    string         `yaml:"srcNode"` // SrcNodeName
	DstNode    string         `yaml:"dstNode"` // DstNodeName
	Properties LinkProperties `yaml:"properties"`

	SrcIntf NodeInterface
	DstIntf NodeInterface
}

// MaxLatency is the largest delay, in ms, that netem can express in us.
const MaxLatency = math.MaxUint32 / 1000

type LinkProperties struct {
	Latency uint32  `yaml:"latency"` // in ms
	Loss    float32 `yaml:"loss"`    // in percentage
	Rate    uint64  `yaml:"rate"`    // in mbps
}

// Validate checks the bounds of link properties.
func (p LinkProperties) Validate() error {
	if p.Latency > MaxLatency {
		return fmt.Errorf("%w: latency %dms above %dms", ErrConfig, p.Latency, MaxLatency)
	}
	if p.Loss < 0 || p.Loss > 100 {
		return fmt.Errorf("%w: loss %.2f%% not in [0, 100]", ErrConfig, p.Loss)
	}
	if p.Rate == 0 {
		return fmt.Errorf("%w: rate must be positive", ErrConfig)
	}
	return nil
}

func (p LinkProperties) String() string {
	return fmt.Sprintf("delay=%dms loss=%.1f%% bw=%dMbit", p.Latency, p.Loss, p.Rate)
}

// Endpoints returns the names of the two nodes attached to the link.
func (l *Link) Endpoints() (string, string) {
	return l.SrcNode, l.DstNode
}

// Attaches reports whether the named node is one of the link endpoints.
func (l *Link) Attaches(node string) bool {
	return l.SrcNode == node || l.DstNode == node
}

// IntfOn returns the link interface that lives on the named node.
func (l *Link) IntfOn(node string) (NodeInterface, bool) {
	switch node {
	case l.SrcNode:
		return l.SrcIntf, true
	case l.DstNode:
		return l.DstIntf, true
	}
	return NodeInterface{}, false
}
