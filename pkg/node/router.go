package node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/containernetworking/plugins/pkg/utils/sysctl"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg/util"
)

const ipForwardKey = "net.ipv4.ip_forward"

var ErrRouterActive = errors.New("router already active")

// Sysctl writes kernel parameters inside a network namespace.
type Sysctl interface {
	Set(netns, key, value string) error
}

// NsSysctl is the Sysctl backed by /proc/sys of the target namespace.
type NsSysctl struct{}

func (NsSysctl) Set(netns, key, value string) error {
	return util.InNetNs(netns, func() error {
		_, err := sysctl.Sysctl(key, value)
		return err
	})
}

// Router is the forwarding node of the chain. It owns the ip_forward flag
// of its namespace: Activate sets it, Terminate always clears it.
type Router struct {
	mu         sync.Mutex
	node       *api.Node
	sysctl     Sysctl
	forwarding bool
}

func NewRouter(n *api.Node, s Sysctl) *Router {
	return &Router{node: n, sysctl: s}
}

func (r *Router) Node() *api.Node { return r.node }

func (r *Router) Forwarding() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forwarding
}

// Activate enables IP forwarding. A router is activated once per lifecycle.
func (r *Router) Activate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forwarding {
		return ErrRouterActive
	}
	if err := r.sysctl.Set(r.node.NetNs, ipForwardKey, "1"); err != nil {
		return fmt.Errorf("failed to enable forwarding on %s: %w", r.node.Name, err)
	}
	r.forwarding = true
	log.WithField("node", r.node.Name).Debug("ip forwarding enabled")
	return nil
}

// Terminate runs the router's own teardown step and then disables IP
// forwarding. The release happens even if teardown fails or panics.
func (r *Router) Terminate(teardown func() error) (err error) {
	defer func() {
		if rerr := r.release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	if teardown != nil {
		err = teardown()
	}
	return err
}

func (r *Router) release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// the flag is cleared even when the write fails: the namespace is
	// about to be deleted with the rest of the node
	r.forwarding = false
	if r.node.NetNs == "" {
		return nil
	}
	if err := r.sysctl.Set(r.node.NetNs, ipForwardKey, "0"); err != nil {
		return fmt.Errorf("failed to disable forwarding on %s: %w", r.node.Name, err)
	}
	log.WithField("node", r.node.Name).Debug("ip forwarding disabled")
	return nil
}
